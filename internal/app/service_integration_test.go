package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/detflow/internal/adapters/http/api"
	service "github.com/okian/detflow/internal/app"
	"github.com/okian/detflow/pkg/logger"
)

func TestServiceOverHTTP(t *testing.T) {
	Convey("Given the API backed by a sqlite store", t, func() {
		ctx := context.Background()
		cfg := testConfig()
		cfg.Store.Driver = "sqlite"
		cfg.Store.DSN = filepath.Join(t.TempDir(), "detflow.db")

		svc := service.New(cfg, service.WithLogger(logger.Nop()), service.WithCompleter("openai", &scriptedCompleter{}))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		mux := http.NewServeMux()
		api.NewServer(svc, svc, logger.Nop()).Register(ctx, mux)
		srv := httptest.NewServer(api.RequestID(mux))
		Reset(srv.Close)

		post := func(id, phone, text string) map[string]any {
			body := fmt.Sprintf(`{"message_id":%q,"phone":%q,"message":%q}`, id, phone, text)
			resp, err := http.Post(srv.URL+"/webhook/messages", "application/json", strings.NewReader(body))
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			var out map[string]any
			So(json.NewDecoder(resp.Body).Decode(&out), ShouldBeNil)
			return out
		}

		Convey("A submission round-trips through the webhook and read endpoints", func() {
			out := post("wamid.A", "+441234", "please evaluate my answer: the photo shows a busy market")
			So(out["success"], ShouldBeTrue)
			So(out["message"], ShouldContainSubstring, "115/160")

			dup := post("wamid.A", "+441234", "please evaluate my answer: the photo shows a busy market")
			So(dup["duplicate"], ShouldBeTrue)

			resp, err := http.Get(srv.URL + "/api/callers/+441234/submissions")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			var list struct {
				Submissions []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
				} `json:"submissions"`
			}
			So(json.NewDecoder(resp.Body).Decode(&list), ShouldBeNil)
			So(list.Submissions, ShouldHaveLength, 1)
			So(list.Submissions[0].Status, ShouldEqual, "completed")

			one, err := http.Get(srv.URL + "/api/submissions/" + list.Submissions[0].ID)
			So(err, ShouldBeNil)
			defer one.Body.Close()
			So(one.StatusCode, ShouldEqual, http.StatusOK)
		})

		Convey("Concurrent callers are all answered", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex
			ok := 0
			for i := 0; i < 6; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					body := fmt.Sprintf(`{"phone":"+1%03d","message":"hello"}`, i)
					resp, err := http.Post(srv.URL+"/webhook/messages", "application/json", strings.NewReader(body))
					if err != nil {
						return
					}
					defer resp.Body.Close()
					if resp.StatusCode == http.StatusOK {
						mu.Lock()
						ok++
						mu.Unlock()
					}
				}(i)
			}
			wg.Wait()
			So(ok, ShouldEqual, 6)
			So(svc.GetStats()["callers"], ShouldEqual, int64(6))
		})
	})
}
