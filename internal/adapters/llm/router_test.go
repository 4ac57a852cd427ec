package llm

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/detflow/internal/domain/selection"
)

type fakeCompleter struct {
	text  string
	err   error
	calls []Request
}

func (f *fakeCompleter) Complete(_ context.Context, req Request) (string, error) {
	f.calls = append(f.calls, req)
	return f.text, f.err
}

func TestRouter(t *testing.T) {
	Convey("Given a router over the default catalog", t, func() {
		sel, err := selection.New()
		So(err, ShouldBeNil)

		oa := &fakeCompleter{text: "from openai"}
		an := &fakeCompleter{text: "from anthropic"}

		Convey("When completing an evaluation", func() {
			r, err := NewRouter(sel, WithProvider("openai", oa), WithProvider("anthropic", an))
			So(err, ShouldBeNil)

			c, err := r.Complete(context.Background(), selection.ActivityEvaluation, "sys", "user")

			Convey("Then the recommended model is used on its provider", func() {
				So(err, ShouldBeNil)
				So(c.Model, ShouldEqual, "gpt-4o")
				So(c.Provider, ShouldEqual, "openai")
				So(c.Text, ShouldEqual, "from openai")
				So(oa.calls[0].Model, ShouldEqual, "gpt-4o")
				So(oa.calls[0].System, ShouldEqual, "sys")
				So(an.calls, ShouldBeEmpty)
			})
		})

		Convey("When an override names an anthropic model", func() {
			sel, err := selection.New(selection.WithOverrides(map[string]string{
				selection.ActivityChat: "claude-3-haiku",
			}))
			So(err, ShouldBeNil)
			r, err := NewRouter(sel, WithProvider("openai", oa), WithProvider("anthropic", an))
			So(err, ShouldBeNil)

			c, err := r.Complete(context.Background(), selection.ActivityChat, "", "hi")
			So(err, ShouldBeNil)
			So(c.Provider, ShouldEqual, "anthropic")
			So(an.calls[0].Model, ShouldEqual, "claude-3-haiku")
		})

		Convey("When the model's provider has no completer", func() {
			sel, err := selection.New(selection.WithOverrides(map[string]string{
				selection.ActivityChat: "claude-3-haiku",
			}))
			So(err, ShouldBeNil)
			r, err := NewRouter(sel, WithProvider("openai", oa))
			So(err, ShouldBeNil)

			c, err := r.Complete(context.Background(), selection.ActivityChat, "", "hi")

			Convey("Then the default provider serves it", func() {
				So(err, ShouldBeNil)
				So(c.Provider, ShouldEqual, "openai")
				So(oa.calls[0].Model, ShouldEqual, "claude-3-haiku")
			})
		})

		Convey("When the completer fails the error is returned", func() {
			boom := errors.New("boom")
			r, err := NewRouter(sel, WithProvider("openai", &fakeCompleter{err: boom}))
			So(err, ShouldBeNil)

			_, err = r.Complete(context.Background(), selection.ActivityStudyPlan, "", "hi")
			So(errors.Is(err, boom), ShouldBeTrue)
		})

		Convey("When the catalog is empty selection fails", func() {
			sel, err := selection.New(selection.WithCatalog(nil))
			So(err, ShouldBeNil)
			r, err := NewRouter(sel, WithProvider("openai", oa))
			So(err, ShouldBeNil)

			_, err = r.Complete(context.Background(), selection.ActivityChat, "", "hi")
			So(errors.Is(err, selection.ErrEmptyCatalog), ShouldBeTrue)
			So(oa.calls, ShouldBeEmpty)
		})

		Convey("When no provider is registered construction fails", func() {
			_, err := NewRouter(sel)
			So(err, ShouldEqual, ErrNoProvider)
		})
	})
}
