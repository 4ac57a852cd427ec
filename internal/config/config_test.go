package config_test

import (
	"runtime"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/detflow/internal/config"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*2)
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 50_000)
			convey.So(cfg.RequestTimeout, convey.ShouldEqual, 90*time.Second)
			convey.So(cfg.Store.Driver, convey.ShouldEqual, "memory")
			convey.So(cfg.Lock.Driver, convey.ShouldEqual, "local")
			convey.So(cfg.Orchestrator.TaskType, convey.ShouldEqual, "write_about_photo")
			convey.So(cfg.Orchestrator.DefaultTargetScore, convey.ShouldEqual, 120)
			convey.So(cfg.Orchestrator.HistoryWindow, convey.ShouldEqual, 10)
		})

		convey.Convey("Then the defaults validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then no selector option is produced", func() {
			convey.So(cfg.SelectorOptions(), convey.ShouldBeEmpty)
		})
	})
}
