package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/okian/showcase/internal/adapters/http/api"
	"github.com/okian/showcase/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var errDown = errors.New("down")

// mockDeps implements api.Dependencies in memory.
type mockDeps struct {
	mu        sync.Mutex
	seen      map[string]bool
	enqueued  []model.InteractionEvent
	reject    bool
	fail      bool
	profiles  map[string]model.Profile
	lastLimit int
}

func newMockDeps() *mockDeps {
	return &mockDeps{seen: map[string]bool{}, profiles: map[string]model.Profile{}}
}

func (m *mockDeps) SeenAndRecord(_ context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[id] {
		return true
	}
	m.seen[id] = true
	return false
}

func (m *mockDeps) Unrecord(_ context.Context, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, id)
}

func (m *mockDeps) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.seen))
}

func (m *mockDeps) Enqueue(_ context.Context, ev model.InteractionEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reject {
		return false
	}
	m.enqueued = append(m.enqueued, ev)
	return true
}

func (m *mockDeps) profile(userID string) model.Profile {
	p, ok := m.profiles[userID]
	if !ok {
		p = model.NewProfile()
	}
	return p
}

func (m *mockDeps) StartSession(_ context.Context, userID string) (model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return model.Profile{}, errDown
	}
	p := m.profile(userID)
	p.SessionCount++
	m.profiles[userID] = p
	return p, nil
}

func (m *mockDeps) Profile(_ context.Context, userID string) (model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return model.Profile{}, errDown
	}
	return m.profile(userID), nil
}

func (m *mockDeps) AddInterests(_ context.Context, userID string, tags []string) (model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.profile(userID)
	p.AddInterests(tags...)
	m.profiles[userID] = p
	return p, nil
}

func (m *mockDeps) ResetProfile(_ context.Context, userID string) (model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.profiles, userID)
	return model.NewProfile(), nil
}

func (m *mockDeps) Recommendations(_ context.Context, _ string, limit int) ([]model.RecommendationScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errDown
	}
	m.lastLimit = limit
	return []model.RecommendationScore{
		{ItemID: "fitness-demo", Score: 0.9, Reasons: []string{"Featured in the catalog"}},
		{ItemID: "banking-demo", Score: 0.4, Reasons: []string{}},
	}, nil
}

func (m *mockDeps) Catalog() []model.Item {
	return []model.Item{{ID: "fitness-demo", Category: "fitness", Title: "Fitness"}}
}

func (m *mockDeps) Subscribe(ctx context.Context, _ string) (<-chan model.ProfileChanged, error) {
	ch := make(chan model.ProfileChanged)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (m *mockDeps) GetStats() map[string]any {
	return map[string]any{"started": true, "queueLength": 0}
}

func newMux(deps *mockDeps, opts ...api.Option) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, deps, opts...).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeError(w *httptest.ResponseRecorder) errorBody {
	var e errorBody
	So(json.Unmarshal(w.Body.Bytes(), &e), ShouldBeNil)
	return e
}

func TestInteractions(t *testing.T) {
	Convey("Given the interactions endpoint", t, func() {
		deps := newMockDeps()
		mux := newMux(deps)
		const path = "/v1/users/42/interactions"

		Convey("When a valid interaction is posted", func() {
			w := do(mux, http.MethodPost, path, `{"event_id":"e1","item_id":"fitness-demo","action":"click","ts":"2025-01-02T03:04:05Z"}`)

			Convey("Then it is accepted and enqueued for the path user", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(w.Body.String(), ShouldContainSubstring, `"status":"accepted"`)
				So(deps.enqueued, ShouldHaveLength, 1)
				So(deps.enqueued[0].UserID, ShouldEqual, "42")
				So(deps.enqueued[0].Action, ShouldEqual, model.ActionClick)
				So(deps.enqueued[0].TS.Year(), ShouldEqual, 2025)
			})

			Convey("Then a retry with the same event id is a duplicate", func() {
				w := do(mux, http.MethodPost, path, `{"event_id":"e1","item_id":"fitness-demo","action":"click"}`)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"duplicate":true`)
				So(deps.enqueued, ShouldHaveLength, 1)
			})
		})

		Convey("When no event id is given", func() {
			w := do(mux, http.MethodPost, path, `{"item_id":"fitness-demo","action":"view"}`)

			Convey("Then one is assigned", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(deps.enqueued[0].EventID, ShouldNotBeBlank)
			})
		})

		Convey("When the body is invalid", func() {
			cases := []string{
				`{`,
				`{"item_id":"","action":"view"}`,
				`{"item_id":"x","action":"purchase"}`,
				`{"item_id":"x","action":"view","ts":"yesterday"}`,
				`{"item_id":"x","action":"view","extra":1}`,
			}

			Convey("Then every case is a 400", func() {
				for _, body := range cases {
					w := do(mux, http.MethodPost, path, body)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
					So(decodeError(w).Code, ShouldEqual, "bad_request")
				}
				So(deps.enqueued, ShouldBeEmpty)
			})
		})

		Convey("When the item id is only whitespace", func() {
			w := do(mux, http.MethodPost, path, `{"event_id":"e5","item_id":"   ","action":"view"}`)

			Convey("Then it is a 400 and nothing is enqueued or remembered", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(w).Message, ShouldContainSubstring, "item_id must not be blank")
				So(deps.enqueued, ShouldBeEmpty)
				So(deps.Size(), ShouldEqual, 0)
			})
		})

		Convey("When the queue is full", func() {
			deps.reject = true
			w := do(mux, http.MethodPost, path, `{"event_id":"e9","item_id":"x","action":"view"}`)

			Convey("Then it is a 429 and the id may be retried", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				So(decodeError(w).Code, ShouldEqual, "backpressure")
				So(deps.Size(), ShouldEqual, 0)
			})
		})

		Convey("When the user id is too long", func() {
			w := do(mux, http.MethodPost, "/v1/users/"+strings.Repeat("x", 65)+"/interactions", `{"item_id":"x","action":"view"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})

	Convey("Given an ingestion limit of one event", t, func() {
		deps := newMockDeps()
		mux := newMux(deps, api.WithIngestLimit(0.001, 1))

		Convey("Then the second request is rate limited", func() {
			So(do(mux, http.MethodPost, "/v1/users/1/interactions", `{"item_id":"x","action":"view"}`).Code, ShouldEqual, http.StatusAccepted)
			w := do(mux, http.MethodPost, "/v1/users/1/interactions", `{"item_id":"x","action":"view"}`)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			So(decodeError(w).Code, ShouldEqual, "rate_limited")
		})
	})
}

func TestProfileRoutes(t *testing.T) {
	Convey("Given the profile endpoints", t, func() {
		deps := newMockDeps()
		mux := newMux(deps)

		Convey("When a session starts", func() {
			w := do(mux, http.MethodPost, "/v1/users/7/sessions", "")

			Convey("Then the updated profile is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var p model.Profile
				So(json.Unmarshal(w.Body.Bytes(), &p), ShouldBeNil)
				So(p.SessionCount, ShouldEqual, 1)
			})

			Convey("Then the profile reads it back", func() {
				w := do(mux, http.MethodGet, "/v1/users/7/profile", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"sessionCount":1`)
			})

			Convey("Then a reset clears it", func() {
				w := do(mux, http.MethodDelete, "/v1/users/7/profile", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"sessionCount":0`)
			})
		})

		Convey("When interests are declared", func() {
			w := do(mux, http.MethodPut, "/v1/users/7/interests", `{"interests":["coffee","travel"]}`)

			Convey("Then they are stored", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"interests":["coffee","travel"]`)
			})

			Convey("Then an empty list is rejected", func() {
				So(do(mux, http.MethodPut, "/v1/users/7/interests", `{"interests":[]}`).Code, ShouldEqual, http.StatusBadRequest)
				So(do(mux, http.MethodPut, "/v1/users/7/interests", `{"interests":[" "]}`).Code, ShouldEqual, http.StatusBadRequest)
				So(do(mux, http.MethodPut, "/v1/users/7/interests", `{"interests":[""]}`).Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the service is unavailable", func() {
			deps.fail = true
			w := do(mux, http.MethodPost, "/v1/users/7/sessions", "")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(decodeError(w).Code, ShouldEqual, "unavailable")
		})

		Convey("When the method does not match", func() {
			So(do(mux, http.MethodPatch, "/v1/users/7/profile", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestRecommendationRoutes(t *testing.T) {
	Convey("Given the recommendations endpoint", t, func() {
		deps := newMockDeps()
		mux := newMux(deps)

		Convey("When a limit is given", func() {
			w := do(mux, http.MethodGet, "/v1/users/7/recommendations?limit=2", "")

			Convey("Then it is forwarded and the ranking returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastLimit, ShouldEqual, 2)
				So(w.Body.String(), ShouldContainSubstring, `"userId":"7"`)
				So(w.Body.String(), ShouldContainSubstring, `"itemId":"fitness-demo"`)
			})
		})

		Convey("When no limit is given", func() {
			So(do(mux, http.MethodGet, "/v1/users/7/recommendations", "").Code, ShouldEqual, http.StatusOK)
			So(deps.lastLimit, ShouldEqual, 0)
		})

		Convey("When the limit is invalid", func() {
			So(do(mux, http.MethodGet, "/v1/users/7/recommendations?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/v1/users/7/recommendations?limit=ten", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the service fails", func() {
			deps.fail = true
			So(do(mux, http.MethodGet, "/v1/users/7/recommendations", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestOperationalRoutes(t *testing.T) {
	Convey("Given the operational endpoints", t, func() {
		mux := newMux(newMockDeps())

		Convey("Then healthz reports ok", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"ok"`)
		})

		Convey("Then metrics are exposed", func() {
			w := do(mux, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then stats come from the provider", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("Then the catalog is listed", func() {
			w := do(mux, http.MethodGet, "/v1/catalog", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"category":"fitness"`)
		})
	})

	Convey("Given a nil mux", t, func() {
		So(func() { api.NewServer(newMockDeps(), newMockDeps()).Register(context.Background(), nil) }, ShouldPanic)
	})
}

func TestErrors(t *testing.T) {
	Convey("Given wrapped API errors", t, func() {
		cause := errors.New("boom")
		err := api.WrapKind("api.op", api.ErrBadRequest, cause)

		Convey("Then both kind and cause are matchable", func() {
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: bad request: boom")
		})

		Convey("Then Wrap keeps nil as nil", func() {
			So(api.Wrap("api.op", nil), ShouldBeNil)
			So(api.NewKind("api.op", api.ErrBackpressure).Error(), ShouldEqual, "api.op: backpressure")
		})
	})
}
