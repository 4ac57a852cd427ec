package loadtest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/detflow/internal/adapters/http/api"
	"github.com/okian/detflow/internal/adapters/llm"
	service "github.com/okian/detflow/internal/app"
	"github.com/okian/detflow/internal/config"
	"github.com/okian/detflow/pkg/logger"
)

type cannedCompleter struct{}

func (cannedCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	if strings.Contains(req.System, "study plans") {
		return `{"plan_title":"Plan","duration_weeks":4}`, nil
	}
	return `{"overall_score":100,"subscores":{"literacy":100,"comprehension":100,"conversation":100,"production":100},"cefr_level":"B2","feedback":"ok"}`, nil
}

func TestGenerate(t *testing.T) {
	Convey("Given a generator configuration", t, func() {
		cfg := DefaultConfig()
		cfg.Callers = 4
		cfg.AnswersPerCaller = 2

		Convey("Each learner gets a full conversation", func() {
			convs := Generate(cfg)
			So(convs, ShouldHaveLength, 4)
			for _, c := range convs {
				So(c.Answers, ShouldEqual, 2)
				So(len(c.Messages), ShouldBeGreaterThanOrEqualTo, 5)
				So(c.Messages[len(c.Messages)-1].Message, ShouldEqual, "Show my progress")
			}
			So(convs[0].Phone, ShouldNotEqual, convs[1].Phone)
		})

		Convey("A full duplicate rate repeats every message id", func() {
			cfg.DuplicateRate = 1
			c := Generate(cfg)[0]
			So(len(c.Messages), ShouldEqual, 10)
			for i := 0; i < len(c.Messages); i += 2 {
				So(c.Messages[i+1].MessageID, ShouldEqual, c.Messages[i].MessageID)
				So(c.Messages[i+1].Redelivery, ShouldBeTrue)
			}
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running service", t, func() {
		ctx := context.Background()
		scfg := config.New()
		scfg.WorkerCount = 2
		svc := service.New(scfg, service.WithLogger(logger.Nop()), service.WithCompleter("openai", cannedCompleter{}))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		mux := http.NewServeMux()
		api.NewServer(svc, svc, logger.Nop()).Register(ctx, mux)
		srv := httptest.NewServer(mux)
		Reset(srv.Close)

		Convey("Every answer is counted once despite redeliveries", func() {
			cfg := DefaultConfig()
			cfg.BaseURL = srv.URL
			cfg.Callers = 5
			cfg.AnswersPerCaller = 2
			cfg.DuplicateRate = 0.5
			cfg.Workers = 3
			cfg.Timeout = 10 * time.Second

			stats, err := Run(ctx, cfg)
			So(err, ShouldBeNil)
			So(stats.Verified, ShouldEqual, 5)
			So(stats.Failed, ShouldEqual, 0)
			So(stats.Sent, ShouldEqual, stats.Replied+stats.Duplicates)
		})

		Convey("An unreachable service fails fast", func() {
			cfg := DefaultConfig()
			cfg.BaseURL = "http://127.0.0.1:1"
			cfg.Timeout = time.Second
			_, err := Run(ctx, cfg)
			So(err, ShouldNotBeNil)
		})
	})
}
