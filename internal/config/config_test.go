package config_test

import (
	"errors"
	"testing"

	"github.com/okian/reconcile/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.PageSize, convey.ShouldEqual, 5000)
			convey.So(cfg.MaxAttempts, convey.ShouldEqual, 5)
			convey.So(cfg.SampleErrors, convey.ShouldEqual, 10)
			convey.So(cfg.IndexTieBreak, convey.ShouldEqual, config.TieBreakFirst)
			convey.So(cfg.UnknownTeamSentinel, convey.ShouldEqual, "unknown")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then durations are derived from milliseconds", func() {
			convey.So(cfg.BaseDelay().Milliseconds(), convey.ShouldEqual, 500)
			convey.So(cfg.MaxDelay().Seconds(), convey.ShouldEqual, 30)
			convey.So(cfg.PaceDelay().Milliseconds(), convey.ShouldEqual, 50)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs violating constraints", t, func() {
		cases := map[string]func(c *config.Config){
			"empty addr":        func(c *config.Config) { c.Addr = " " },
			"zero page size":    func(c *config.Config) { c.PageSize = 0 },
			"zero attempts":     func(c *config.Config) { c.MaxAttempts = 0 },
			"negative delay":    func(c *config.Config) { c.BaseDelayMS = -1 },
			"negative sample":   func(c *config.Config) { c.SampleErrors = -1 },
			"unknown driver":    func(c *config.Config) { c.StoreDriver = "mongo" },
			"sqlite no path":    func(c *config.Config) { c.StoreDriver = config.StoreSQLite; c.SQLitePath = "" },
			"postgres no dsn":   func(c *config.Config) { c.StoreDriver = config.StorePostgres },
			"unknown tie-break": func(c *config.Config) { c.IndexTieBreak = "random" },
		}

		for _, mutate := range cases {
			cfg := config.New()
			mutate(cfg)
			err := cfg.Validate()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		}

		convey.Convey("And an unknown driver is reported as such", func() {
			cfg := config.New()
			cfg.StoreDriver = "mongo"
			convey.So(errors.Is(cfg.Validate(), config.ErrUnknownStore), convey.ShouldBeTrue)
		})

		convey.Convey("And a postgres config with a dsn is accepted", func() {
			cfg := config.New()
			cfg.StoreDriver = config.StorePostgres
			cfg.PostgresDSN = "postgres://localhost/reconcile"
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}
