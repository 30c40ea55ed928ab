package simulate

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/showcase/internal/adapters/http/api"
	service "github.com/okian/showcase/internal/app"
	"github.com/okian/showcase/internal/config"
	"github.com/okian/showcase/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func testConfig() *Config {
	return &Config{HistoryLimit: 3, InteractionLimit: 4}
}

func TestCheckProfile(t *testing.T) {
	Convey("Given the events accepted for a user", t, func() {
		cfg := testConfig()
		accepted := []Event{
			{ItemID: "a", Action: "view"},
			{ItemID: "b", Action: "click"},
		}

		Convey("When the profile matches", func() {
			p := Profile{
				SessionCount:    1,
				BrowsingHistory: []string{"a", "b"},
				Interactions:    []Interaction{{ItemID: "a", Action: "view"}, {ItemID: "b", Action: "click"}},
			}

			Convey("Then nothing is reported", func() {
				So(checkProfile(cfg, p, accepted), ShouldBeEmpty)
			})

			Convey("Then a wrong newest interaction is reported", func() {
				p.Interactions[1].Action = "favorite"
				So(checkProfile(cfg, p, accepted), ShouldHaveLength, 1)
			})
		})

		Convey("When the profile breaks the caps", func() {
			p := Profile{SessionCount: 2, BrowsingHistory: []string{"a", "b", "a", "c"}}

			Convey("Then every problem is reported", func() {
				problems := checkProfile(cfg, p, accepted)
				So(problems, ShouldContain, "sessionCount is 2, want 1")
				So(problems, ShouldContain, "history holds 4 items, cap is 3")
				So(problems, ShouldContain, "history repeats a")
				So(problems, ShouldContain, "interaction log holds 0 entries, want 2")
			})
		})
	})
}

func TestCheckRecommendations(t *testing.T) {
	Convey("Given ranked recommendations", t, func() {
		Convey("Then a sorted, bounded ranking passes", func() {
			recs := []Recommendation{{ItemID: "a", Score: 1}, {ItemID: "b", Score: 0.5}, {ItemID: "c", Score: 0.5}}
			So(checkRecommendations(recs, 3), ShouldBeEmpty)
		})

		Convey("Then unsorted, out of range or too long rankings fail", func() {
			recs := []Recommendation{{ItemID: "a", Score: 0.2}, {ItemID: "b", Score: 1.5}}
			problems := checkRecommendations(recs, 1)
			So(problems, ShouldHaveLength, 3)
		})
	})
}

func TestGenerateEvents(t *testing.T) {
	Convey("Given users and a catalog", t, func() {
		So(logger.InitWithWriter(&bytes.Buffer{}), ShouldBeNil)
		cfg := &Config{EventsPerUser: 7}
		users := generateUsers(3)
		stats := &Stats{}

		events, err := generateEvents(context.Background(), cfg, users, []string{"x", "y"}, stats)

		Convey("Then every user gets its share of valid events", func() {
			So(err, ShouldBeNil)
			So(events, ShouldHaveLength, 21)
			So(stats.EventsGenerated, ShouldEqual, 21)
			for _, e := range events {
				So(e.ItemID, ShouldBeIn, []string{"x", "y"})
				So(e.Action, ShouldBeIn, []string{"view", "click", "favorite"})
				So(e.EventID, ShouldNotBeBlank)
			}
		})

		Convey("Then an empty catalog is an error", func() {
			_, err := generateEvents(context.Background(), cfg, users, nil, stats)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestRunAgainstService(t *testing.T) {
	Convey("Given a showcase server", t, func() {
		So(logger.InitWithWriter(&bytes.Buffer{}), ShouldBeNil)
		svcCfg := config.New(context.Background())
		svcCfg.WorkerCount = 4
		svcCfg.InteractionLimit = 10
		svc := service.New(service.WithConfig(svcCfg))
		So(svc.Start(context.Background()), ShouldBeNil)

		mux := http.NewServeMux()
		api.NewServer(svc, svc).Register(context.Background(), mux)
		srv := httptest.NewServer(mux)

		Convey("When the simulate command runs against it", func() {
			out := filepath.Join(t.TempDir(), "events.json")
			cmd := NewCommand()
			var stderr bytes.Buffer
			cmd.SetErr(&stderr)
			cmd.SetOut(&stderr)
			cmd.SetArgs([]string{
				"--url", srv.URL,
				"--users", "5",
				"--events", "15",
				"--workers", "3",
				"--interaction-limit", "10",
				"--settle", "10s",
				"--output", out,
			})

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			err := cmd.ExecuteContext(ctx)

			Convey("Then every profile and ranking verifies", func() {
				So(err, ShouldBeNil)
				_, statErr := os.Stat(out)
				So(statErr, ShouldBeNil)
			})
		})

		Reset(func() {
			srv.Close()
			_ = svc.Stop(context.Background())
		})
	})
}
