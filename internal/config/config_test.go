package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/ghpulse/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.GitHubBaseURL, convey.ShouldEqual, "https://api.github.com")
			convey.So(cfg.RetryMaxAttempts, convey.ShouldEqual, 5)
			convey.So(cfg.RateLimitBurst, convey.ShouldEqual, 5)
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 500_000)
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.RunTimeout(), convey.ShouldEqual, 30*time.Minute)
		})

		convey.Convey("Then it is not valid until a token is set", func() {
			convey.So(errors.Is(cfg.Validate(), config.ErrConfigMissing), convey.ShouldBeTrue)
			cfg.GitHubToken = "ghp_x"
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}
