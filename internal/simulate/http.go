package simulate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/showcase/pkg/logger"
)

// client wraps http.Client with the service base URL.
type client struct {
	http    *http.Client
	baseURL string
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// do sends a request with an optional JSON body and decodes a JSON response
// into out when out is non-nil. It returns the status code.
func (c *client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if out != nil && resp.StatusCode < http.StatusBadRequest {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// getJSON fetches path and fails on any non-200 status.
func (c *client) getJSON(ctx context.Context, path string, out any) error {
	status, err := c.do(ctx, http.MethodGet, path, nil, out)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", path, status)
	}
	return nil
}

// startSessions opens one session per user.
func startSessions(ctx context.Context, c *client, users []string, stats *Stats) error {
	for _, u := range users {
		var p Profile
		status, err := c.do(ctx, http.MethodPost, "/v1/users/"+u+"/sessions", nil, &p)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("start session for %s: unexpected status %d", u, status)
		}
		stats.SessionsStarted++
	}
	logger.Get().Info(ctx, "sessions started", logger.Int("count", stats.SessionsStarted))
	return nil
}

// submitEvents posts every event. Each worker owns whole users so one user's
// events are submitted in order. It returns the accepted events per user.
func submitEvents(ctx context.Context, cfg *Config, c *client, events []Event, stats *Stats) map[string][]Event {
	byUser := make(map[string][]Event)
	var order []string
	for _, e := range events {
		if _, ok := byUser[e.UserID]; !ok {
			order = append(order, e.UserID)
		}
		byUser[e.UserID] = append(byUser[e.UserID], e)
	}
	logger.Get().Info(ctx, "submitting events",
		logger.Int("events", len(events)),
		logger.Int("workers", cfg.Workers),
	)

	var (
		submitted, accepted, duplicate, failed atomic.Int64

		mu       sync.Mutex
		received = make(map[string][]Event, len(byUser))
	)

	userCh := make(chan string, cfg.Workers)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range userCh {
				for _, e := range byUser[u] {
					if ctx.Err() != nil {
						return
					}
					submitted.Add(1)
					switch submitSingleEvent(ctx, c, e) {
					case resultAccepted:
						accepted.Add(1)
						mu.Lock()
						received[u] = append(received[u], e)
						mu.Unlock()
					case resultDuplicate:
						duplicate.Add(1)
					default:
						failed.Add(1)
						if cfg.Verbose {
							logger.Get().Warn(ctx, "interaction rejected", logger.UserID(u), logger.String("eventID", e.EventID))
						}
					}
				}
			}
		}()
	}

	go func() {
		defer close(userCh)
		for _, u := range order {
			select {
			case <-ctx.Done():
				return
			case userCh <- u:
			}
		}
	}()
	wg.Wait()

	stats.EventsSubmitted = int(submitted.Load())
	stats.EventsAccepted = int(accepted.Load())
	stats.EventsDuplicate = int(duplicate.Load())
	stats.EventsFailed = int(failed.Load())
	logger.Get().Info(ctx, "event submission completed",
		logger.Int("accepted", stats.EventsAccepted),
		logger.Int("duplicate", stats.EventsDuplicate),
		logger.Int("failed", stats.EventsFailed),
	)
	return received
}

type submitResult int

const (
	resultFailed submitResult = iota
	resultAccepted
	resultDuplicate
)

func submitSingleEvent(ctx context.Context, c *client, e Event) submitResult {
	var ack AckResponse
	status, err := c.do(ctx, http.MethodPost, "/v1/users/"+e.UserID+"/interactions", e, &ack)
	if err != nil {
		return resultFailed
	}
	switch status {
	case http.StatusAccepted:
		return resultAccepted
	case http.StatusOK:
		return resultDuplicate
	default:
		return resultFailed
	}
}
