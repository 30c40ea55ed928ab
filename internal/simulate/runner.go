// Package simulate drives a running showcase service with synthetic users and
// checks that the profiles and rankings it serves stay within their bounds.
package simulate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/showcase/pkg/logger"
)

const (
	directoryPermission = 0o750
	pollInterval        = 50 * time.Millisecond
)

// Run executes a complete simulation.
func Run(ctx context.Context, cfg *Config) error {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting showcase simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("users", cfg.Users),
		logger.Int("eventsPerUser", cfg.EventsPerUser),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout),
	)

	c := newClient(cfg.BaseURL, cfg.Timeout)

	// Step 1: Check service health
	if err := c.getJSON(ctx, "/healthz", nil); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Read the catalog
	var cat catalogResponse
	if err := c.getJSON(ctx, "/v1/catalog", &cat); err != nil {
		return fmt.Errorf("catalog retrieval failed: %w", err)
	}
	items := make([]string, 0, len(cat.Items))
	for _, it := range cat.Items {
		items = append(items, it.ID)
	}

	baseline, err := processedCount(ctx, c)
	if err != nil {
		return fmt.Errorf("stats retrieval failed: %w", err)
	}

	// Step 3: Open a session per user
	users := generateUsers(cfg.Users)
	if err := startSessions(ctx, c, users, stats); err != nil {
		return fmt.Errorf("session start failed: %w", err)
	}

	// Step 4: Generate and submit interactions
	events, err := generateEvents(ctx, cfg, users, items, stats)
	if err != nil {
		return fmt.Errorf("event generation failed: %w", err)
	}
	accepted := submitEvents(ctx, cfg, c, events, stats)

	// Step 5: Wait for the workers to record every accepted event
	if err := waitForProcessing(ctx, cfg, c, baseline+int64(stats.EventsAccepted)); err != nil {
		return fmt.Errorf("processing did not finish: %w", err)
	}

	// Step 6: Verify profiles and rankings
	if err := verifyUsers(ctx, cfg, c, users, accepted, stats); err != nil {
		return fmt.Errorf("result verification failed: %w", err)
	}

	if cfg.OutputFile != "" {
		if err := saveEventsToFile(ctx, cfg.OutputFile, events); err != nil {
			log.Warn(ctx, "failed to save events to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)
	return nil
}

// processedCount reads the worker pool's processed counter from /stats.
func processedCount(ctx context.Context, c *client) (int64, error) {
	var stats map[string]any
	if err := c.getJSON(ctx, "/stats", &stats); err != nil {
		return 0, err
	}
	n, _ := stats["processed"].(float64)
	return int64(n), nil
}

func waitForProcessing(ctx context.Context, cfg *Config, c *client, target int64) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.SettleTimeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		n, err := processedCount(ctx, c)
		if err == nil && n >= target {
			logger.Get().Info(ctx, "all accepted events processed", logger.Int64("processed", n))
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("processed %d of %d: %w", n, target, ctx.Err())
		case <-ticker.C:
		}
	}
}

// saveEventsToFile writes the generated events as a JSON array.
func saveEventsToFile(ctx context.Context, filename string, events []Event) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	logger.Get().Info(ctx, "events saved to file", logger.String("filename", filename))
	return nil
}

func displayFinalStats(ctx context.Context, stats *Stats) {
	var eventsPerSecond float64
	if stats.Duration > 0 {
		eventsPerSecond = float64(stats.EventsSubmitted) / stats.Duration.Seconds()
	}
	logger.Get().Info(ctx, "final statistics",
		logger.Int("sessionsStarted", stats.SessionsStarted),
		logger.Int("eventsGenerated", stats.EventsGenerated),
		logger.Int("eventsSubmitted", stats.EventsSubmitted),
		logger.Int("eventsAccepted", stats.EventsAccepted),
		logger.Int("eventsDuplicate", stats.EventsDuplicate),
		logger.Int("eventsFailed", stats.EventsFailed),
		logger.Int("profilesVerified", stats.ProfilesVerified),
		logger.Duration("duration", stats.Duration),
		logger.Float64("eventsPerSecond", eventsPerSecond),
	)
}
