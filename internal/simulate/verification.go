package simulate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/okian/showcase/pkg/logger"
)

// checkProfile compares a fetched profile with what the run submitted for the
// user and returns every violated expectation.
func checkProfile(cfg *Config, p Profile, accepted []Event) []string {
	var problems []string

	if p.SessionCount != 1 {
		problems = append(problems, fmt.Sprintf("sessionCount is %d, want 1", p.SessionCount))
	}
	if len(p.BrowsingHistory) > cfg.HistoryLimit {
		problems = append(problems, fmt.Sprintf("history holds %d items, cap is %d", len(p.BrowsingHistory), cfg.HistoryLimit))
	}
	seen := make(map[string]struct{}, len(p.BrowsingHistory))
	for _, id := range p.BrowsingHistory {
		if _, dup := seen[id]; dup {
			problems = append(problems, "history repeats "+id)
		}
		seen[id] = struct{}{}
	}

	want := min(len(accepted), cfg.InteractionLimit)
	if len(p.Interactions) != want {
		problems = append(problems, fmt.Sprintf("interaction log holds %d entries, want %d", len(p.Interactions), want))
	}
	if n := len(p.Interactions); n > 0 && len(accepted) > 0 {
		last, got := accepted[len(accepted)-1], p.Interactions[n-1]
		if got.ItemID != last.ItemID || got.Action != last.Action {
			problems = append(problems, fmt.Sprintf("newest interaction is %s/%s, want %s/%s", got.ItemID, got.Action, last.ItemID, last.Action))
		}
	}
	return problems
}

// checkRecommendations returns every violated ranking expectation.
func checkRecommendations(recs []Recommendation, limit int) []string {
	var problems []string
	if limit > 0 && len(recs) > limit {
		problems = append(problems, fmt.Sprintf("%d recommendations returned, limit is %d", len(recs), limit))
	}
	for i, r := range recs {
		if r.Score < 0 || r.Score > 1 {
			problems = append(problems, fmt.Sprintf("%s scored %.3f outside [0, 1]", r.ItemID, r.Score))
		}
		if i > 0 && recs[i-1].Score < r.Score {
			problems = append(problems, fmt.Sprintf("ranking not sorted at position %d", i))
		}
	}
	return problems
}

// verifyUsers fetches every user's profile and recommendations and checks
// them. It fails when any user violates an expectation.
func verifyUsers(ctx context.Context, cfg *Config, c *client, users []string, accepted map[string][]Event, stats *Stats) error {
	logger.Get().Info(ctx, "verifying profiles", logger.Int("users", len(users)))

	for _, u := range users {
		var p Profile
		if err := c.getJSON(ctx, "/v1/users/"+u+"/profile", &p); err != nil {
			return err
		}
		var recs recommendationsResponse
		if err := c.getJSON(ctx, "/v1/users/"+u+"/recommendations?limit="+strconv.Itoa(cfg.Limit), &recs); err != nil {
			return err
		}

		problems := append(checkProfile(cfg, p, accepted[u]), checkRecommendations(recs.Recommendations, cfg.Limit)...)
		for _, msg := range problems {
			logger.Get().Warn(ctx, "verification failed", logger.UserID(u), logger.String("problem", msg))
		}
		stats.Violations += len(problems)
		stats.ProfilesVerified++

		if cfg.Verbose && len(recs.Recommendations) > 0 {
			top := recs.Recommendations[0]
			logger.Get().Info(ctx, "top recommendation",
				logger.UserID(u),
				logger.String("itemID", top.ItemID),
				logger.Float64("score", top.Score),
				logger.Any("reasons", top.Reasons),
			)
		}
	}

	if stats.Violations > 0 {
		return fmt.Errorf("%d violations across %d users", stats.Violations, stats.ProfilesVerified)
	}
	logger.Get().Info(ctx, "verification passed", logger.Int("users", stats.ProfilesVerified))
	return nil
}
