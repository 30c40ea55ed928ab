package api_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/showcase/internal/adapters/http/api"
	service "github.com/okian/showcase/internal/app"
	"github.com/okian/showcase/internal/config"
	"github.com/okian/showcase/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// nextEvent reads SSE lines until an event with a data line arrives.
func nextEvent(sc *bufio.Scanner) (name, data string) {
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			return name, data
		}
	}
	return name, data
}

func TestProfileStream(t *testing.T) {
	Convey("Given a server backed by a running service", t, func() {
		So(logger.Init(), ShouldBeNil)
		cfg := config.New(context.Background())
		cfg.WorkerCount = 1
		svc := service.New(service.WithConfig(cfg))
		So(svc.Start(context.Background()), ShouldBeNil)

		mux := http.NewServeMux()
		api.NewServer(svc, svc).Register(context.Background(), mux)
		srv := httptest.NewServer(mux)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/users/42/stream", http.NoBody)
		So(err, ShouldBeNil)
		resp, err := http.DefaultClient.Do(req)
		So(err, ShouldBeNil)
		sc := bufio.NewScanner(resp.Body)

		Convey("Then the current profile arrives first", func() {
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(resp.Header.Get("Content-Type"), ShouldEqual, "text/event-stream")
			name, data := nextEvent(sc)
			So(name, ShouldEqual, "profile")
			So(data, ShouldContainSubstring, `"sessionCount":0`)

			Convey("And a session start is pushed as a change", func() {
				post, err := http.Post(srv.URL+"/v1/users/42/sessions", "application/json", http.NoBody)
				So(err, ShouldBeNil)
				_ = post.Body.Close()

				name, data := nextEvent(sc)
				So(name, ShouldEqual, "profile.changed")
				So(data, ShouldContainSubstring, `"userId":"42"`)
				So(data, ShouldContainSubstring, `"sessionCount":1`)
			})
		})

		Reset(func() {
			cancel()
			_ = resp.Body.Close()
			srv.Close()
			_ = svc.Stop(context.Background())
		})
	})
}
