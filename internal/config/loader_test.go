package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/okian/showcase/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it matches the personalization constants", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreBackend, convey.ShouldEqual, config.BackendMemory)
			convey.So(cfg.ProfileKey, convey.ShouldEqual, "ai_user_profile")
			convey.So(cfg.HistoryLimit, convey.ShouldEqual, 20)
			convey.So(cfg.InteractionLimit, convey.ShouldEqual, 50)
			convey.So(cfg.NewUserSessions, convey.ShouldEqual, 3)
			convey.So(cfg.ReturningAfter(), convey.ShouldEqual, 24*time.Hour)
			convey.So(cfg.BreakerCooldown(), convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.PopularItems, convey.ShouldResemble, []string{"restaurant-demo", "fitness-demo", "banking-demo"})
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.InteractionLimit, convey.ShouldEqual, 50)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("SHOWCASE_ADDR", ":8080")
			_ = os.Setenv("SHOWCASE_QUEUE_SIZE", "500")
			_ = os.Setenv("SHOWCASE_WORKER_COUNT", "3")
			_ = os.Setenv("SHOWCASE_STORE_BACKEND", "sqlite")
			_ = os.Setenv("SHOWCASE_POPULAR_ITEMS", "a-demo, b-demo")
			_ = os.Setenv("SHOWCASE_INGEST_RATE_PER_SEC", "2.5")

			cfg, err := config.Load(ctx)

			convey.Convey("Then env vars override defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 500)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
				convey.So(cfg.StoreBackend, convey.ShouldEqual, config.BackendSQLite)
				convey.So(cfg.PopularItems, convey.ShouldResemble, []string{"a-demo", "b-demo"})
				convey.So(cfg.IngestRatePerSec, convey.ShouldEqual, 2.5)
			})
		})

		convey.Convey("When loading config with a YAML file and env vars", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
history_limit: 10
popular_items:
  - hotel-demo
store_backend: badger
data_dir: /tmp/showcase
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("SHOWCASE_CONFIG", tmpFile)
			_ = os.Setenv("SHOWCASE_ADDR", ":7070")

			cfg, err := config.Load(ctx)

			convey.Convey("Then env beats file and file beats defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.HistoryLimit, convey.ShouldEqual, 10)
				convey.So(cfg.InteractionLimit, convey.ShouldEqual, 50)
				convey.So(cfg.PopularItems, convey.ShouldResemble, []string{"hotel-demo"})
				convey.So(cfg.StoreBackend, convey.ShouldEqual, config.BackendBadger)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("SHOWCASE_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("SHOWCASE_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("SHOWCASE_QUEUE_SIZE", "invalid")

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When validation fails", func() {
			cases := map[string]string{
				"SHOWCASE_ADDR":              "",
				"SHOWCASE_STORE_BACKEND":     "redis",
				"SHOWCASE_HISTORY_LIMIT":     "0",
				"SHOWCASE_INTERACTION_LIMIT": "-1",
			}
			for k, v := range cases {
				clearConfigEnvVars()
				_ = os.Setenv(k, v)

				cfg, err := config.Load(ctx)

				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			}
		})
	})
}

func clearConfigEnvVars() {
	for _, envVar := range []string{
		"SHOWCASE_CONFIG",
		"SHOWCASE_ADDR",
		"SHOWCASE_QUEUE_SIZE",
		"SHOWCASE_WORKER_COUNT",
		"SHOWCASE_STORE_BACKEND",
		"SHOWCASE_POPULAR_ITEMS",
		"SHOWCASE_INGEST_RATE_PER_SEC",
		"SHOWCASE_HISTORY_LIMIT",
		"SHOWCASE_INTERACTION_LIMIT",
	} {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "showcase-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
