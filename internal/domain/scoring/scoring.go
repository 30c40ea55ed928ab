// Package scoring ranks catalog items against a behavioral profile with a
// deterministic weighted sum.
package scoring

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/okian/showcase/internal/domain/model"
)

// Default scoring configuration constants.
const (
	defaultNewUserSessions = 3
	defaultReturningAfter  = 24 * time.Hour
	defaultPositionWindow  = 30
	maxScore               = 1.0
)

// Reasons attached to a RecommendationScore, one per term that fired.
const (
	ReasonCategoryAffinity = "Matches categories you use often"
	ReasonCatalogPosition  = "Featured in the catalog"
	ReasonNovelty          = "Something new for you"
	ReasonPopular          = "Popular with new users"
	ReasonReturning        = "Welcome back"
)

// DefaultPopularItems are boosted for users with few sessions.
var DefaultPopularItems = []string{"restaurant-demo", "fitness-demo", "banking-demo"}

// Weights of the five scoring terms.
type Weights struct {
	CategoryAffinity float64 // multiplied by the category preference count
	CatalogPosition  float64 // scaled by the item's position in the window
	Novelty          float64
	Popular          float64
	Returning        float64
}

// DefaultWeights returns the standard weights.
func DefaultWeights() Weights {
	return Weights{
		CategoryAffinity: 0.4,
		CatalogPosition:  0.2,
		Novelty:          0.2,
		Popular:          0.1,
		Returning:        0.1,
	}
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithWeights replaces the term weights.
func WithWeights(w Weights) Option {
	return func(e *Engine) {
		e.weights = w
	}
}

// WithPopularItems replaces the popular allow-list.
func WithPopularItems(ids []string) Option {
	return func(e *Engine) {
		e.popular = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			e.popular[id] = struct{}{}
		}
	}
}

// WithNewUserSessions sets the session count below which a user is new.
func WithNewUserSessions(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.newUserSessions = n
		}
	}
}

// WithReturningAfter sets the absence after which a user is returning.
func WithReturningAfter(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.returningAfter = d
		}
	}
}

// WithPositionWindow sets how many leading catalog positions earn the
// position term.
func WithPositionWindow(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.positionWindow = n
		}
	}
}

// WithClock sets the time source used for the returning-user term.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine scores items. It holds configuration only; Score is a pure
// function of its inputs and the clock.
type Engine struct {
	weights         Weights
	popular         map[string]struct{}
	newUserSessions int
	returningAfter  time.Duration
	positionWindow  int
	now             func() time.Time
}

// NewEngine creates an engine with the standard configuration.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		weights:         DefaultWeights(),
		newUserSessions: defaultNewUserSessions,
		returningAfter:  defaultReturningAfter,
		positionWindow:  defaultPositionWindow,
		now:             time.Now,
	}
	WithPopularItems(DefaultPopularItems)(e)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score annotates every item with a score in [0, 1] and the reasons behind
// it, sorted by score descending. Ties keep input order. The position of an
// item in items is its catalog position.
func (e *Engine) Score(items []model.Item, p model.Profile) []model.RecommendationScore {
	if len(items) == 0 {
		return []model.RecommendationScore{}
	}

	seen := e.browsedCategories(items, p)
	returning := e.isReturning(p)
	newUser := p.SessionCount < e.newUserSessions

	out := make([]model.RecommendationScore, 0, len(items))
	for i, it := range items {
		var score float64
		reasons := []string{}

		if n := p.CategoryPreferences[it.Category]; n > 0 && it.Category != "" {
			score += float64(n) * e.weights.CategoryAffinity
			reasons = append(reasons, ReasonCategoryAffinity)
		}
		if i < e.positionWindow {
			score += float64(e.positionWindow-i) / float64(e.positionWindow) * e.weights.CatalogPosition
			reasons = append(reasons, ReasonCatalogPosition)
		}
		if _, ok := seen[it.Category]; !ok && it.Category != "" {
			score += e.weights.Novelty
			reasons = append(reasons, ReasonNovelty)
		}
		if _, ok := e.popular[it.ID]; ok && newUser {
			score += e.weights.Popular
			reasons = append(reasons, ReasonPopular)
		}
		if returning {
			score += e.weights.Returning
			reasons = append(reasons, ReasonReturning)
		}

		out = append(out, model.RecommendationScore{
			ItemID:  it.ID,
			Score:   clamp(score),
			Reasons: reasons,
		})
	}

	slices.SortStableFunc(out, func(a, b model.RecommendationScore) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return out
}

// Top returns at most n of the best scored items. n <= 0 returns all.
func (e *Engine) Top(items []model.Item, p model.Profile, n int) []model.RecommendationScore {
	scored := e.Score(items, p)
	if n > 0 && len(scored) > n {
		scored = scored[:n]
	}
	return scored
}

// browsedCategories resolves the categories of the browsing history through
// the supplied items. History entries outside items are ignored.
func (e *Engine) browsedCategories(items []model.Item, p model.Profile) map[string]struct{} {
	byID := make(map[string]string, len(items))
	for _, it := range items {
		byID[it.ID] = it.Category
	}
	seen := make(map[string]struct{}, len(p.BrowsingHistory))
	for _, id := range p.BrowsingHistory {
		if c, ok := byID[id]; ok {
			seen[c] = struct{}{}
		}
	}
	return seen
}

func (e *Engine) isReturning(p model.Profile) bool {
	last := p.LastVisit()
	if last.IsZero() {
		return false
	}
	return e.now().Sub(last) > e.returningAfter
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(maxScore, v))
}
