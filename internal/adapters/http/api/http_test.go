package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/detflow/internal/adapters/http/api"
	"github.com/okian/detflow/internal/adapters/mq/queue"
	"github.com/okian/detflow/internal/adapters/repository"
	"github.com/okian/detflow/internal/domain/dedupe"
	"github.com/okian/detflow/internal/domain/model"
	"github.com/okian/detflow/internal/domain/selection"
)

type mockDeps struct {
	dedupe.Deduper

	mu       sync.Mutex
	handled  []model.InboundMessage
	replyErr error

	callers  map[string]model.Caller
	subs     map[uuid.UUID]model.Submission
	lastList int
	selector *selection.Selector
}

func newMockDeps() *mockDeps {
	sel, err := selection.New()
	if err != nil {
		panic(err)
	}
	return &mockDeps{
		Deduper:  dedupe.NewWindow(),
		callers:  map[string]model.Caller{},
		subs:     map[uuid.UUID]model.Submission{},
		selector: sel,
	}
}

func (m *mockDeps) HandleInbound(_ context.Context, msg model.InboundMessage) (model.Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replyErr != nil {
		return model.Reply{}, m.replyErr
	}
	m.handled = append(m.handled, msg)
	return model.Reply{Address: msg.Address, Text: "echo: " + msg.Text, Intent: "unknown", Success: true}, nil
}

func (m *mockDeps) Caller(_ context.Context, address string) (model.Caller, error) {
	c, ok := m.callers[address]
	if !ok {
		return model.Caller{}, repository.ErrNotFound
	}
	return c, nil
}

func (m *mockDeps) CallerSubmissions(_ context.Context, address string, limit int) ([]model.Submission, error) {
	c, ok := m.callers[address]
	if !ok {
		return nil, repository.ErrNotFound
	}
	m.lastList = limit
	var out []model.Submission
	for _, s := range m.subs {
		if s.CallerID == c.ID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockDeps) Submission(_ context.Context, id uuid.UUID) (model.Submission, error) {
	s, ok := m.subs[id]
	if !ok {
		return model.Submission{}, repository.ErrNotFound
	}
	return s, nil
}

func (m *mockDeps) Recommend(activity string, req *selection.Requirements) (selection.Result, error) {
	return m.selector.Recommend(activity, req, nil)
}

type mockStats struct{}

func (mockStats) GetStats() map[string]any {
	return map[string]any{"queue_pending": 3}
}

func newTestServer(deps *mockDeps) http.Handler {
	mux := http.NewServeMux()
	api.NewServer(deps, mockStats{}, nil).Register(context.Background(), mux)
	return api.RequestID(mux)
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return out
}

func TestWebhook(t *testing.T) {
	Convey("Given a server with a message handler", t, func() {
		deps := newMockDeps()
		h := newTestServer(deps)

		Convey("A valid message is handled and the reply returned", func() {
			rec := do(h, http.MethodPost, "/webhook/messages", `{"message_id":"m1","phone":"+15550001","message":"hello"}`)
			So(rec.Code, ShouldEqual, http.StatusOK)
			body := decode(rec)
			So(body["phone"], ShouldEqual, "+15550001")
			So(body["message"], ShouldEqual, "echo: hello")
			So(body["success"], ShouldBeTrue)
			So(deps.handled, ShouldHaveLength, 1)
			So(rec.Header().Get(api.RequestIDHeader), ShouldNotBeEmpty)
		})

		Convey("A redelivered message id is acknowledged without reprocessing", func() {
			do(h, http.MethodPost, "/webhook/messages", `{"message_id":"m1","phone":"+1","message":"hi"}`)
			rec := do(h, http.MethodPost, "/webhook/messages", `{"message_id":"m1","phone":"+1","message":"hi"}`)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode(rec)["duplicate"], ShouldBeTrue)
			So(deps.handled, ShouldHaveLength, 1)
		})

		Convey("Messages without an id are never deduplicated", func() {
			do(h, http.MethodPost, "/webhook/messages", `{"phone":"+1","message":"hi"}`)
			do(h, http.MethodPost, "/webhook/messages", `{"phone":"+1","message":"hi"}`)
			So(deps.handled, ShouldHaveLength, 2)
		})

		Convey("Missing fields are rejected", func() {
			So(do(h, http.MethodPost, "/webhook/messages", `{"message":"hi"}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodPost, "/webhook/messages", `{"phone":"+1","message":"  "}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodPost, "/webhook/messages", `{not json`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Backpressure yields 429 and the id can be retried", func() {
			deps.replyErr = queue.ErrBackpressure
			rec := do(h, http.MethodPost, "/webhook/messages", `{"message_id":"m9","phone":"+1","message":"hi"}`)
			So(rec.Code, ShouldEqual, http.StatusTooManyRequests)
			So(decode(rec)["code"], ShouldEqual, "backpressure")

			deps.replyErr = nil
			rec = do(h, http.MethodPost, "/webhook/messages", `{"message_id":"m9","phone":"+1","message":"hi"}`)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode(rec)["duplicate"], ShouldBeNil)
		})

		Convey("A closed queue yields 503", func() {
			deps.replyErr = queue.ErrClosed
			rec := do(h, http.MethodPost, "/webhook/messages", `{"phone":"+1","message":"hi"}`)
			So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("Unexpected failures do not leak the cause", func() {
			deps.replyErr = errors.New("db password wrong")
			rec := do(h, http.MethodPost, "/webhook/messages", `{"phone":"+1","message":"hi"}`)
			So(rec.Code, ShouldEqual, http.StatusInternalServerError)
			So(rec.Body.String(), ShouldNotContainSubstring, "password")
		})

		Convey("Other methods are not routed", func() {
			So(do(h, http.MethodGet, "/webhook/messages", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestReadEndpoints(t *testing.T) {
	Convey("Given a caller with one evaluated submission", t, func() {
		deps := newMockDeps()
		h := newTestServer(deps)

		caller := model.Caller{ID: uuid.New(), Address: "+15550002", CurrentLevel: "B2", TotalSubmissions: 1, CreatedAt: time.Now()}
		deps.callers[caller.Address] = caller
		score := 115
		sub := model.Submission{
			ID: uuid.New(), CallerID: caller.ID, TaskType: "writing", ResponseText: "essay",
			Status: model.StatusCompleted, OverallScore: &score, CEFRLevel: "B2",
			Feedback: []byte(`{"feedback":"good"}`),
		}
		deps.subs[sub.ID] = sub

		Convey("The caller is returned by address", func() {
			rec := do(h, http.MethodGet, "/api/callers/+15550002", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			body := decode(rec)
			So(body["current_level"], ShouldEqual, "B2")
			So(body["total_submissions"], ShouldEqual, 1.0)
		})

		Convey("An unknown caller is 404", func() {
			rec := do(h, http.MethodGet, "/api/callers/nobody", "")
			So(rec.Code, ShouldEqual, http.StatusNotFound)
			So(decode(rec)["code"], ShouldEqual, "not_found")
		})

		Convey("Submissions are listed with the default limit", func() {
			rec := do(h, http.MethodGet, "/api/callers/+15550002/submissions", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(deps.lastList, ShouldEqual, 10)
			subs := decode(rec)["submissions"].([]any)
			So(subs, ShouldHaveLength, 1)
			first := subs[0].(map[string]any)
			So(first["overall_score"], ShouldEqual, 115.0)
			So(first["feedback"].(map[string]any)["feedback"], ShouldEqual, "good")
		})

		Convey("The limit is bounded", func() {
			So(do(h, http.MethodGet, "/api/callers/+15550002/submissions?limit=5", "").Code, ShouldEqual, http.StatusOK)
			So(deps.lastList, ShouldEqual, 5)
			So(do(h, http.MethodGet, "/api/callers/+15550002/submissions?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/api/callers/+15550002/submissions?limit=101", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/api/callers/+15550002/submissions?limit=x", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A submission is returned by id", func() {
			rec := do(h, http.MethodGet, "/api/submissions/"+sub.ID.String(), "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode(rec)["status"], ShouldEqual, "completed")
		})

		Convey("A malformed id is 400 and an unknown one 404", func() {
			So(do(h, http.MethodGet, "/api/submissions/not-a-uuid", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/api/submissions/"+uuid.NewString(), "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestRecommendations(t *testing.T) {
	Convey("Given the default catalog", t, func() {
		h := newTestServer(newMockDeps())

		Convey("Evaluation picks the highest quality model", func() {
			rec := do(h, http.MethodGet, "/api/recommendations?activity=evaluation", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			body := decode(rec)
			So(body["selected_model"], ShouldEqual, "gpt-4o")
			So(body["score_breakdown"], ShouldNotBeNil)
		})

		Convey("Query constraints are applied", func() {
			rec := do(h, http.MethodGet, "/api/recommendations?activity=chat&max_cost_tier=1", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode(rec)["selected_model"], ShouldNotBeEmpty)
		})

		Convey("Out of range tiers and negative priorities are rejected", func() {
			So(do(h, http.MethodGet, "/api/recommendations?activity=chat&max_cost_tier=9", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/api/recommendations?quality_priority=-1", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/api/recommendations?cost_priority=abc", "").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestOperationalEndpoints(t *testing.T) {
	Convey("Given a server", t, func() {
		h := newTestServer(newMockDeps())

		Convey("healthz reports ok", func() {
			rec := do(h, http.MethodGet, "/healthz", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode(rec)["status"], ShouldEqual, "ok")
		})

		Convey("stats are served from the provider", func() {
			rec := do(h, http.MethodGet, "/stats", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode(rec)["queue_pending"], ShouldEqual, 3.0)
		})

		Convey("metrics are exposed in the Prometheus format", func() {
			do(h, http.MethodGet, "/healthz", "")
			rec := do(h, http.MethodGet, "/metrics", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "http_requests_total")
		})

		Convey("an incoming request id is echoed", func() {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.Header.Set(api.RequestIDHeader, "abc-123")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			So(rec.Header().Get(api.RequestIDHeader), ShouldEqual, "abc-123")
		})
	})
}

func TestErrorKinds(t *testing.T) {
	Convey("API errors unwrap to their kind and cause", t, func() {
		cause := errors.New("boom")
		err := api.WrapKind("op", api.ErrNotFound, cause)
		So(errors.Is(err, api.ErrNotFound), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(err.Error(), ShouldEqual, "op: not found: boom")
		So(api.NewKind("op", api.ErrBadRequest).Error(), ShouldEqual, "op: bad request")
	})
}
