package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/reconcile/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.PageSize, convey.ShouldEqual, 5000)
				convey.So(cfg.AdminTokens, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("RECONCILE_ADDR", ":8080")
			_ = os.Setenv("RECONCILE_PAGE_SIZE", "250")
			_ = os.Setenv("RECONCILE_MAX_ATTEMPTS", "3")
			_ = os.Setenv("RECONCILE_INDEX_TIE_BREAK", "lowest_id")
			_ = os.Setenv("RECONCILE_ADMIN_TOKENS", "alpha, beta,,gamma")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.PageSize, convey.ShouldEqual, 250)
				convey.So(cfg.MaxAttempts, convey.ShouldEqual, 3)
				convey.So(cfg.IndexTieBreak, convey.ShouldEqual, config.TieBreakLowestID)
				convey.So(cfg.AdminTokens, convey.ShouldResemble, []string{"alpha", "beta", "gamma"})
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
store_driver: sqlite
sqlite_path: /tmp/reconcile-test.db
page_size: 1000
base_delay_ms: 100
admin_tokens:
  - root-token
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("RECONCILE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, config.StoreSQLite)
				convey.So(cfg.PageSize, convey.ShouldEqual, 1000)
				convey.So(cfg.BaseDelayMS, convey.ShouldEqual, 100)
				convey.So(cfg.AdminTokens, convey.ShouldResemble, []string{"root-token"})
				convey.So(cfg.MaxAttempts, convey.ShouldEqual, 5) // default
			})
		})

		convey.Convey("When file and env both set a key", func() {
			tmpFile := createTempConfigFile("addr: \":9090\"\npage_size: 1000\n")
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("RECONCILE_CONFIG", tmpFile)
			_ = os.Setenv("RECONCILE_PAGE_SIZE", "42")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables win", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.PageSize, convey.ShouldEqual, 42)
			})
		})

		convey.Convey("When loading an invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("RECONCILE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the file does not exist", func() {
			cfg, err := config.LoadFile("/non/existent/file.yaml")
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When a numeric variable is not a number", func() {
			_ = os.Setenv("RECONCILE_PAGE_SIZE", "lots")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When the result fails validation", func() {
			_ = os.Setenv("RECONCILE_STORE_DRIVER", "mongo")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)
			convey.So(cfg, convey.ShouldBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	for _, envVar := range []string{
		"RECONCILE_CONFIG",
		"RECONCILE_ADDR",
		"RECONCILE_PAGE_SIZE",
		"RECONCILE_MAX_ATTEMPTS",
		"RECONCILE_INDEX_TIE_BREAK",
		"RECONCILE_ADMIN_TOKENS",
		"RECONCILE_STORE_DRIVER",
	} {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "reconcile-config-*.yaml")
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
