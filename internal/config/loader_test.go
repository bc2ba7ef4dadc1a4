package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/starboard/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "starboard.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// setenv sets key for the current Convey path only.
func setenv(key, value string) {
	_ = os.Setenv(key, value)
	convey.Reset(func() { _ = os.Unsetenv(key) })
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			setenv(config.EnvConfigFile, "")
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 50_000)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			setenv("STARBOARD_ADDR", ":8080")
			setenv("STARBOARD_CONFLICT_RETRIES", "9")
			setenv("STARBOARD_ALLIANCE_SHARE", "0.35")
			setenv("STARBOARD_SWEEP_INTERVAL_MS", "250")
			setenv("STARBOARD_METRICS_ENABLED", "false")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.ConflictRetries, convey.ShouldEqual, 9)
				convey.So(cfg.AllianceShare, convey.ShouldEqual, 0.35)
				convey.So(cfg.SweepIntervalMS, convey.ShouldEqual, 250)
				convey.So(cfg.MetricsEnabled, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			path := writeConfigFile(t, `
addr: ":9090"
store: sqlite
sqlite_path: /tmp/stars.db
shard_count: 4
roster_file: roster.yaml
metrics_refresh_ms: 2500
metrics_labels:
  instance: east
`)
			setenv(config.EnvConfigFile, path)
			setenv("STARBOARD_SHARD_COUNT", "32")

			cfg, err := config.Load(ctx)

			convey.Convey("Then env should win over the file and the file over defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.Store, convey.ShouldEqual, config.StoreSQLite)
				convey.So(cfg.SQLitePath, convey.ShouldEqual, "/tmp/stars.db")
				convey.So(cfg.ShardCount, convey.ShouldEqual, 32)
				convey.So(cfg.RosterFile, convey.ShouldEqual, "roster.yaml")
				convey.So(cfg.MaxLogLimit, convey.ShouldEqual, 500)
				convey.So(cfg.MetricsRefreshMS, convey.ShouldEqual, 2500)
				convey.So(cfg.MetricsLabels, convey.ShouldResemble, map[string]string{"instance": "east"})
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			setenv(config.EnvConfigFile, writeConfigFile(t, `invalid: yaml: content: [`))
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			setenv(config.EnvConfigFile, "/non/existent/file.yaml")
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			setenv("STARBOARD_ADDR", "")
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with an unknown store", func() {
			setenv("STARBOARD_STORE", "postgres")
			_, err := config.Load(ctx)

			convey.Convey("Then it should be rejected", func() {
				convey.So(errors.Is(err, config.ErrUnknownStore), convey.ShouldBeTrue)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}
