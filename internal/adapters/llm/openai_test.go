package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

type capturedRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func chatServer(t *testing.T, status int, body string) (*httptest.Server, func() capturedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		last capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		_ = json.Unmarshal(raw, &last)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, func() capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

const okCompletion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "hello there"}}]
}`

func TestOpenAIComplete(t *testing.T) {
	Convey("Given an OpenAI-compatible endpoint", t, func() {
		Convey("When it answers with one choice", func() {
			srv, last := chatServer(t, http.StatusOK, okCompletion)
			c := NewOpenAI(WithAPIKey("test"), WithBaseURL(srv.URL), WithMaxRetries(0))

			text, err := c.Complete(context.Background(), Request{Model: "gpt-4o", System: "be brief", User: "hi"})

			Convey("Then the first choice is returned", func() {
				So(err, ShouldBeNil)
				So(text, ShouldEqual, "hello there")
			})

			Convey("Then the model and both prompts are sent", func() {
				req := last()
				So(req.Model, ShouldEqual, "gpt-4o")
				So(len(req.Messages), ShouldEqual, 2)
				So(req.Messages[0].Role, ShouldEqual, "system")
				So(req.Messages[1].Content, ShouldEqual, "hi")
			})
		})

		Convey("When it answers without choices", func() {
			srv, _ := chatServer(t, http.StatusOK,
				`{"id":"x","object":"chat.completion","created":0,"model":"gpt-4o","choices":[]}`)
			c := NewOpenAI(WithAPIKey("test"), WithBaseURL(srv.URL), WithMaxRetries(0))

			_, err := c.Complete(context.Background(), Request{Model: "gpt-4o", User: "hi"})
			So(err, ShouldEqual, ErrNoChoices)
		})

		Convey("When it fails", func() {
			srv, _ := chatServer(t, http.StatusInternalServerError, `{"error":{"message":"boom"}}`)
			c := NewOpenAI(WithAPIKey("test"), WithBaseURL(srv.URL), WithMaxRetries(0))

			_, err := c.Complete(context.Background(), Request{Model: "gpt-4o", User: "hi"})
			So(err, ShouldNotBeNil)
		})

		Convey("When both prompts are empty nothing is sent", func() {
			c := NewOpenAI(WithAPIKey("test"), WithBaseURL("http://127.0.0.1:1"))
			_, err := c.Complete(context.Background(), Request{Model: "gpt-4o"})
			So(err, ShouldEqual, ErrEmptyPrompt)
		})
	})
}
