package simulate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/okian/showcase/pkg/logger"
)

// Action weights out of 100: mostly views, some clicks, few favorites.
const (
	viewWeight  = 60
	clickWeight = 30
)

// generateUsers returns n fresh user ids.
func generateUsers(n int) []string {
	users := make([]string, n)
	for i := range users {
		users[i] = uuid.NewString()
	}
	return users
}

// generateEvents creates EventsPerUser interactions for every user. Items are
// drawn from items with a per-user bias so profiles develop preferences.
func generateEvents(ctx context.Context, cfg *Config, users, items []string, stats *Stats) ([]Event, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}
	logger.Get().Info(ctx, "generating events",
		logger.Int("users", len(users)),
		logger.Int("eventsPerUser", cfg.EventsPerUser),
	)

	ts := time.Now().UTC().Format(time.RFC3339)
	events := make([]Event, 0, len(users)*cfg.EventsPerUser)
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during event generation: %w", err)
		}
		favorite := items[rand.IntN(len(items))]
		for i := 0; i < cfg.EventsPerUser; i++ {
			item := items[rand.IntN(len(items))]
			if rand.IntN(2) == 0 {
				item = favorite
			}
			events = append(events, Event{
				UserID:  u,
				EventID: uuid.NewString(),
				ItemID:  item,
				Action:  randomAction(),
				TS:      ts,
			})
		}
	}

	stats.EventsGenerated = len(events)
	logger.Get().Info(ctx, "generated events", logger.Int("count", len(events)))
	return events, nil
}

func randomAction() string {
	switch n := rand.IntN(100); {
	case n < viewWeight:
		return "view"
	case n < viewWeight+clickWeight:
		return "click"
	default:
		return "favorite"
	}
}
