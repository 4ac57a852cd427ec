package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/detflow/internal/domain/model"
	"github.com/okian/detflow/pkg/logger"
)

var dbSeq atomic.Int64

// stepClock returns a clock that advances one second per call so ordering
// by creation time is deterministic.
func stepClock() func() time.Time {
	t := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	dsn := fmt.Sprintf("file:detflow_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := OpenGorm(DriverSQLite, dsn, logger.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s, err := NewGormStore(context.Background(), db, WithClock(stepClock()))
	if err != nil {
		t.Fatalf("new gorm store: %v", err)
	}
	return s
}

func storeBackends(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore(WithClock(stepClock())) },
		"sqlite": func() Store { return newSQLiteStore(t) },
	}
}

func intp(v int) *int { return &v }

func TestStoreCallers(t *testing.T) {
	for name, factory := range storeBackends(t) {
		Convey("Given an empty "+name+" store", t, func() {
			ctx := context.Background()
			s := factory()
			defer func() { _ = s.Close() }()

			Convey("When looking up an unseen address", func() {
				_, err := s.GetCallerByAddress(ctx, "+5511999999999")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})

			Convey("When a caller is created", func() {
				c, err := s.CreateCaller(ctx, model.Caller{Address: "+5511999999999", TargetScore: 120})
				So(err, ShouldBeNil)
				So(c.ID, ShouldNotEqual, uuid.Nil)
				So(c.CreatedAt.IsZero(), ShouldBeFalse)

				Convey("Then it can be fetched by address", func() {
					got, err := s.GetCallerByAddress(ctx, "+5511999999999")
					So(err, ShouldBeNil)
					So(got.ID, ShouldEqual, c.ID)
					So(got.TargetScore, ShouldEqual, 120)
				})

				Convey("Then a second create for the same address is rejected", func() {
					_, err := s.CreateCaller(ctx, model.Caller{Address: "+5511999999999"})
					So(errors.Is(err, ErrAlreadyExists), ShouldBeTrue)
				})

				Convey("Then counters, level and activity can be updated", func() {
					n, err := s.IncrementSubmissions(ctx, c.ID)
					So(err, ShouldBeNil)
					So(n, ShouldEqual, 1)
					n, _ = s.IncrementSubmissions(ctx, c.ID)
					So(n, ShouldEqual, 2)

					So(s.SetCallerLevel(ctx, c.ID, "B2"), ShouldBeNil)
					at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
					So(s.TouchCaller(ctx, c.ID, at), ShouldBeNil)

					got, _ := s.GetCallerByAddress(ctx, c.Address)
					So(got.TotalSubmissions, ShouldEqual, 2)
					So(got.CurrentLevel, ShouldEqual, "B2")
					So(got.LastActiveAt.Equal(at), ShouldBeTrue)
				})
			})

			Convey("When updating an unknown caller", func() {
				So(errors.Is(s.TouchCaller(ctx, uuid.New(), time.Now()), ErrNotFound), ShouldBeTrue)
				_, err := s.IncrementSubmissions(ctx, uuid.New())
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})

			Convey("When creating a caller without an address", func() {
				_, err := s.CreateCaller(ctx, model.Caller{})
				So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
			})
		})
	}
}

func TestStoreSubmissions(t *testing.T) {
	for name, factory := range storeBackends(t) {
		Convey("Given a "+name+" store with one caller", t, func() {
			ctx := context.Background()
			s := factory()
			defer func() { _ = s.Close() }()
			c, err := s.CreateCaller(ctx, model.Caller{Address: "caller-1"})
			So(err, ShouldBeNil)

			Convey("When a submission is created and evaluated", func() {
				sub, err := s.CreateSubmission(ctx, model.Submission{
					CallerID:     c.ID,
					TaskType:     "write_about_photo",
					ResponseText: "I went to the park yesterday.",
					Status:       model.StatusEvaluating,
				})
				So(err, ShouldBeNil)
				So(sub.OverallScore, ShouldBeNil)

				at := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
				sub.Status = model.StatusCompleted
				sub.OverallScore = intp(115)
				sub.Subscores = &model.Subscores{Literacy: 110, Comprehension: 120, Conversation: 105, Production: 125}
				sub.CEFRLevel = "B2"
				sub.Feedback = []byte(`{"strengths":["clear"]}`)
				sub.EvaluatedAt = &at
				So(s.UpdateSubmission(ctx, sub), ShouldBeNil)

				Convey("Then the stored record reflects the evaluation", func() {
					got, err := s.GetSubmission(ctx, sub.ID)
					So(err, ShouldBeNil)
					So(got.Status, ShouldEqual, model.StatusCompleted)
					So(*got.OverallScore, ShouldEqual, 115)
					So(got.Subscores.Production, ShouldEqual, 125)
					So(got.CEFRLevel, ShouldEqual, "B2")
					So(string(got.Feedback), ShouldContainSubstring, "clear")
					So(got.EvaluatedAt.Equal(at), ShouldBeTrue)
				})
			})

			Convey("When several submissions exist", func() {
				for i := 0; i < 5; i++ {
					_, err := s.CreateSubmission(ctx, model.Submission{
						CallerID: c.ID, TaskType: "t", ResponseText: fmt.Sprintf("r%d", i),
					})
					So(err, ShouldBeNil)
				}

				Convey("Then recent returns newest first, bounded by n", func() {
					recent, err := s.RecentSubmissions(ctx, c.ID, 3)
					So(err, ShouldBeNil)
					So(len(recent), ShouldEqual, 3)
					So(recent[0].ResponseText, ShouldEqual, "r4")
					So(recent[2].ResponseText, ShouldEqual, "r2")
					So(recent[0].Status, ShouldEqual, model.StatusCreated)
				})

				Convey("Then a non-positive limit is rejected", func() {
					_, err := s.RecentSubmissions(ctx, c.ID, 0)
					So(errors.Is(err, ErrInvalidLimit), ShouldBeTrue)
				})

				Convey("Then stats count them", func() {
					st, err := s.Stats(ctx)
					So(err, ShouldBeNil)
					So(st.Callers, ShouldEqual, 1)
					So(st.Submissions, ShouldEqual, 5)
				})
			})

			Convey("When fetching or updating an unknown submission", func() {
				_, err := s.GetSubmission(ctx, uuid.New())
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				So(errors.Is(s.UpdateSubmission(ctx, model.Submission{ID: uuid.New()}), ErrNotFound), ShouldBeTrue)
			})
		})
	}
}

func TestStoreStudyPlans(t *testing.T) {
	for name, factory := range storeBackends(t) {
		Convey("Given a "+name+" store with one caller", t, func() {
			ctx := context.Background()
			s := factory()
			defer func() { _ = s.Close() }()
			c, _ := s.CreateCaller(ctx, model.Caller{Address: "caller-2"})

			first, err := s.CreateStudyPlan(ctx, model.StudyPlan{CallerID: c.ID, Title: "first", Active: true, DurationWeeks: 8, Payload: []byte(`{}`)})
			So(err, ShouldBeNil)
			second, err := s.CreateStudyPlan(ctx, model.StudyPlan{CallerID: c.ID, Title: "second", Active: true, DurationWeeks: 6})
			So(err, ShouldBeNil)

			Convey("Then several plans may be active at once, newest first", func() {
				active, err := s.ActivePlans(ctx, c.ID)
				So(err, ShouldBeNil)
				So(len(active), ShouldEqual, 2)
				So(active[0].ID, ShouldEqual, second.ID)
				So(active[1].ID, ShouldEqual, first.ID)
			})

			Convey("When plans are deactivated", func() {
				n, err := s.DeactivatePlans(ctx, c.ID)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)

				active, _ := s.ActivePlans(ctx, c.ID)
				So(active, ShouldBeEmpty)

				st, _ := s.Stats(ctx)
				So(st.StudyPlans, ShouldEqual, 2)
			})
		})
	}
}

func TestOpenGormUnsupportedDriver(t *testing.T) {
	Convey("Given an unknown driver", t, func() {
		_, err := OpenGorm("oracle", "dsn", nil)
		So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
	})
}

func TestStoreOrderWithEqualTimestamps(t *testing.T) {
	frozen := func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }
	backends := map[string]func() Store{
		"memory": func() Store { return NewMemoryStore(WithClock(frozen)) },
		"sqlite": func() Store {
			dsn := fmt.Sprintf("file:detflow_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
			db, err := OpenGorm(DriverSQLite, dsn, logger.Nop())
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			s, err := NewGormStore(context.Background(), db, WithClock(frozen))
			if err != nil {
				t.Fatalf("new gorm store: %v", err)
			}
			return s
		},
	}
	for name, factory := range backends {
		Convey("Given a "+name+" store whose clock never moves", t, func() {
			ctx := context.Background()
			s := factory()
			defer func() { _ = s.Close() }()
			c, err := s.CreateCaller(ctx, model.Caller{Address: "same-second"})
			So(err, ShouldBeNil)

			Convey("When several submissions share a creation time", func() {
				var ids []uuid.UUID
				for i := 0; i < 5; i++ {
					sub, err := s.CreateSubmission(ctx, model.Submission{CallerID: c.ID, TaskType: "writing"})
					So(err, ShouldBeNil)
					ids = append(ids, sub.ID)
				}

				Convey("Then they still come back newest first", func() {
					recent, err := s.RecentSubmissions(ctx, c.ID, 5)
					So(err, ShouldBeNil)
					So(len(recent), ShouldEqual, 5)
					for i, sub := range recent {
						So(sub.ID, ShouldEqual, ids[len(ids)-1-i])
					}
				})
			})

			Convey("When several plans share a creation time", func() {
				var ids []uuid.UUID
				for i := 0; i < 3; i++ {
					p, err := s.CreateStudyPlan(ctx, model.StudyPlan{CallerID: c.ID, Title: fmt.Sprintf("plan %d", i), Active: true})
					So(err, ShouldBeNil)
					ids = append(ids, p.ID)
				}

				Convey("Then active plans come back newest first", func() {
					active, err := s.ActivePlans(ctx, c.ID)
					So(err, ShouldBeNil)
					So(len(active), ShouldEqual, 3)
					So(active[0].ID, ShouldEqual, ids[2])
					So(active[2].ID, ShouldEqual, ids[0])
				})
			})
		})
	}
}

func TestGormLogsThroughServiceLogger(t *testing.T) {
	Convey("Given a sqlite store logging into a buffer", t, func() {
		var buf bytes.Buffer
		dsn := fmt.Sprintf("file:detflow_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
		db, err := OpenGorm(DriverSQLite, dsn, logger.New(&buf, "json"))
		So(err, ShouldBeNil)
		s, err := NewGormStore(context.Background(), db)
		So(err, ShouldBeNil)
		defer func() { _ = s.Close() }()

		Convey("When a lookup misses", func() {
			_, err := s.GetCallerByAddress(context.Background(), "nobody")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)

			Convey("Then nothing is logged", func() {
				So(buf.String(), ShouldBeEmpty)
			})
		})

		Convey("When a statement fails", func() {
			err := db.Exec("SELECT * FROM missing_table").Error
			So(err, ShouldNotBeNil)

			Convey("Then the failure is written as a structured entry", func() {
				var entry map[string]any
				So(json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry), ShouldBeNil)
				So(entry["msg"], ShouldEqual, "sql statement failed")
				So(entry["level"], ShouldEqual, "ERROR")
				So(entry["gorm"], ShouldNotBeNil)
			})
		})
	})
}
