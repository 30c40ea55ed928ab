package model

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// Retention defaults for a persisted profile.
const (
	DefaultHistoryLimit     = 20
	DefaultInteractionLimit = 50
)

// Action is the kind of a recorded interaction.
type Action string

// Supported actions. No other value is valid.
const (
	ActionView     Action = "view"
	ActionClick    Action = "click"
	ActionFavorite Action = "favorite"
)

// Valid reports whether a is one of the supported actions.
func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionClick, ActionFavorite:
		return true
	default:
		return false
	}
}

// ParseAction converts a wire value into an Action.
func ParseAction(s string) (Action, bool) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	return a, a.Valid()
}

// Interaction is one recorded (item, action, timestamp) event.
type Interaction struct {
	ItemID    string `json:"itemId"`
	Action    Action `json:"action"`
	Timestamp int64  `json:"timestamp"` // unix millis
}

// Limits bound the retained collections of a profile.
type Limits struct {
	History      int
	Interactions int
}

// DefaultLimits returns the standard retention caps.
func DefaultLimits() Limits {
	return Limits{History: DefaultHistoryLimit, Interactions: DefaultInteractionLimit}
}

// Profile is the persisted behavioral profile of one user.
type Profile struct {
	Interests           []string       `json:"interests"`
	BrowsingHistory     []string       `json:"browsingHistory"`
	Interactions        []Interaction  `json:"interactions"`
	SessionCount        int            `json:"sessionCount"`
	LastVisitTimestamp  int64          `json:"lastVisitTimestamp"`
	CategoryPreferences map[string]int `json:"categoryPreferences"`
}

// NewProfile returns the empty default profile.
func NewProfile() Profile {
	return Profile{
		Interests:           []string{},
		BrowsingHistory:     []string{},
		Interactions:        []Interaction{},
		CategoryPreferences: map[string]int{},
	}
}

// Normalize replaces nil collections with empty ones and trims collections
// longer than the limits, oldest entries first.
func (p *Profile) Normalize(l Limits) {
	if p.Interests == nil {
		p.Interests = []string{}
	}
	if p.BrowsingHistory == nil {
		p.BrowsingHistory = []string{}
	}
	if p.Interactions == nil {
		p.Interactions = []Interaction{}
	}
	if p.CategoryPreferences == nil {
		p.CategoryPreferences = map[string]int{}
	}
	if p.SessionCount < 0 {
		p.SessionCount = 0
	}
	p.BrowsingHistory, _ = trimFront(p.BrowsingHistory, l.History)
	p.Interactions, _ = trimFront(p.Interactions, l.Interactions)
}

// Clone returns a deep copy.
func (p Profile) Clone() Profile {
	out := p
	out.Interests = slices.Clone(p.Interests)
	out.BrowsingHistory = slices.Clone(p.BrowsingHistory)
	out.Interactions = slices.Clone(p.Interactions)
	out.CategoryPreferences = maps.Clone(p.CategoryPreferences)
	out.Normalize(Limits{})
	return out
}

// AppendInteraction appends in and evicts from the front until at most
// limit interactions remain. It returns the number evicted.
func (p *Profile) AppendInteraction(in Interaction, limit int) int {
	p.Interactions = append(p.Interactions, in)
	var evicted int
	p.Interactions, evicted = trimFront(p.Interactions, limit)
	return evicted
}

// AddToHistory appends itemID unless it is already present. Revisiting an
// item does not move it to the end.
func (p *Profile) AddToHistory(itemID string, limit int) (added bool, evicted int) {
	if slices.Contains(p.BrowsingHistory, itemID) {
		return false, 0
	}
	p.BrowsingHistory = append(p.BrowsingHistory, itemID)
	p.BrowsingHistory, evicted = trimFront(p.BrowsingHistory, limit)
	return true, evicted
}

// AddInterests adds the non-blank tags that are not present yet and returns
// how many were added.
func (p *Profile) AddInterests(tags ...string) int {
	added := 0
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || slices.Contains(p.Interests, t) {
			continue
		}
		p.Interests = append(p.Interests, t)
		added++
	}
	return added
}

// PreferCategory bumps the preference counter of category.
func (p *Profile) PreferCategory(category string) {
	if category == "" {
		return
	}
	if p.CategoryPreferences == nil {
		p.CategoryPreferences = map[string]int{}
	}
	p.CategoryPreferences[category]++
}

// Touch stamps the profile as mutated at now.
func (p *Profile) Touch(now time.Time) {
	p.LastVisitTimestamp = now.UnixMilli()
}

// LastVisit returns LastVisitTimestamp as a time, zero if never set.
func (p Profile) LastVisit() time.Time {
	if p.LastVisitTimestamp <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(p.LastVisitTimestamp)
}

// trimFront keeps the last limit elements. A limit <= 0 disables trimming.
func trimFront[T any](s []T, limit int) ([]T, int) {
	if limit <= 0 || len(s) <= limit {
		return s, 0
	}
	n := len(s) - limit
	return slices.Clone(s[n:]), n
}
