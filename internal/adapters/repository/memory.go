package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/detflow/internal/domain/model"
)

const memoryBackend = "memory"

// MemoryStore keeps every record in process memory. Reads return copies so
// callers never alias stored state.
type MemoryStore struct {
	mu          sync.RWMutex
	opts        options
	callers     map[uuid.UUID]*model.Caller
	byAddress   map[string]uuid.UUID
	submissions map[uuid.UUID]*model.Submission
	byCaller    map[uuid.UUID][]uuid.UUID // insertion order
	plans       map[uuid.UUID]*model.StudyPlan
	plansBy     map[uuid.UUID][]uuid.UUID
}

// NewMemoryStore creates an empty in-memory Store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{
		opts:        o,
		callers:     make(map[uuid.UUID]*model.Caller),
		byAddress:   make(map[string]uuid.UUID),
		submissions: make(map[uuid.UUID]*model.Submission),
		byCaller:    make(map[uuid.UUID][]uuid.UUID),
		plans:       make(map[uuid.UUID]*model.StudyPlan),
		plansBy:     make(map[uuid.UUID][]uuid.UUID),
	}
}

func (s *MemoryStore) GetCallerByAddress(_ context.Context, address string) (c model.Caller, err error) {
	defer observe(memoryBackend, "get_caller", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byAddress[address]
	if !ok {
		return model.Caller{}, ErrNotFound
	}
	return *s.callers[id], nil
}

func (s *MemoryStore) CreateCaller(_ context.Context, c model.Caller) (_ model.Caller, err error) {
	defer observe(memoryBackend, "create_caller", time.Now(), &err)
	if strings.TrimSpace(c.Address) == "" {
		return model.Caller{}, fmt.Errorf("%w: empty address", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byAddress[c.Address]; ok {
		return model.Caller{}, ErrAlreadyExists
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.opts.now()
	}
	if c.LastActiveAt.IsZero() {
		c.LastActiveAt = c.CreatedAt
	}
	stored := c
	s.callers[c.ID] = &stored
	s.byAddress[c.Address] = c.ID
	return c, nil
}

func (s *MemoryStore) TouchCaller(_ context.Context, id uuid.UUID, at time.Time) (err error) {
	defer observe(memoryBackend, "touch_caller", time.Now(), &err)
	return s.mutateCaller(id, func(c *model.Caller) { c.LastActiveAt = at })
}

func (s *MemoryStore) IncrementSubmissions(_ context.Context, id uuid.UUID) (n int, err error) {
	defer observe(memoryBackend, "increment_submissions", time.Now(), &err)
	err = s.mutateCaller(id, func(c *model.Caller) {
		c.TotalSubmissions++
		n = c.TotalSubmissions
	})
	return n, err
}

func (s *MemoryStore) SetCallerLevel(_ context.Context, id uuid.UUID, level string) (err error) {
	defer observe(memoryBackend, "set_caller_level", time.Now(), &err)
	return s.mutateCaller(id, func(c *model.Caller) { c.CurrentLevel = level })
}

func (s *MemoryStore) mutateCaller(id uuid.UUID, fn func(*model.Caller)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.callers[id]
	if !ok {
		return ErrNotFound
	}
	fn(c)
	return nil
}

func (s *MemoryStore) CreateSubmission(_ context.Context, sub model.Submission) (_ model.Submission, err error) {
	defer observe(memoryBackend, "create_submission", time.Now(), &err)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.callers[sub.CallerID]; !ok {
		return model.Submission{}, fmt.Errorf("%w: unknown caller %s", ErrInvalidInput, sub.CallerID)
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if _, ok := s.submissions[sub.ID]; ok {
		return model.Submission{}, ErrAlreadyExists
	}
	if sub.Status == "" {
		sub.Status = model.StatusCreated
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.opts.now()
	}
	stored := copySubmission(sub)
	s.submissions[sub.ID] = &stored
	s.byCaller[sub.CallerID] = append(s.byCaller[sub.CallerID], sub.ID)
	return copySubmission(sub), nil
}

func (s *MemoryStore) GetSubmission(_ context.Context, id uuid.UUID) (_ model.Submission, err error) {
	defer observe(memoryBackend, "get_submission", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	if !ok {
		return model.Submission{}, ErrNotFound
	}
	return copySubmission(*sub), nil
}

func (s *MemoryStore) UpdateSubmission(_ context.Context, sub model.Submission) (err error) {
	defer observe(memoryBackend, "update_submission", time.Now(), &err)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.submissions[sub.ID]
	if !ok {
		return ErrNotFound
	}
	next := copySubmission(sub)
	cur.Status = next.Status
	cur.OverallScore = next.OverallScore
	cur.Subscores = next.Subscores
	cur.CEFRLevel = next.CEFRLevel
	cur.Feedback = next.Feedback
	cur.EvaluatorComments = next.EvaluatorComments
	cur.EvaluationError = next.EvaluationError
	cur.EvaluatedAt = next.EvaluatedAt
	return nil
}

func (s *MemoryStore) RecentSubmissions(_ context.Context, callerID uuid.UUID, n int) (_ []model.Submission, err error) {
	defer observe(memoryBackend, "recent_submissions", time.Now(), &err)
	if n, err = clampRecent(n); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byCaller[callerID]
	out := make([]model.Submission, 0, min(n, len(ids)))
	for i := len(ids) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, copySubmission(*s.submissions[ids[i]]))
	}
	return out, nil
}

func (s *MemoryStore) CreateStudyPlan(_ context.Context, p model.StudyPlan) (_ model.StudyPlan, err error) {
	defer observe(memoryBackend, "create_study_plan", time.Now(), &err)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.callers[p.CallerID]; !ok {
		return model.StudyPlan{}, fmt.Errorf("%w: unknown caller %s", ErrInvalidInput, p.CallerID)
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.opts.now()
	}
	stored := p
	stored.Payload = append([]byte(nil), p.Payload...)
	s.plans[p.ID] = &stored
	s.plansBy[p.CallerID] = append(s.plansBy[p.CallerID], p.ID)
	return p, nil
}

func (s *MemoryStore) ActivePlans(_ context.Context, callerID uuid.UUID) (_ []model.StudyPlan, err error) {
	defer observe(memoryBackend, "active_plans", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.plansBy[callerID]
	out := make([]model.StudyPlan, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if p := s.plans[ids[i]]; p.Active {
			cp := *p
			cp.Payload = append([]byte(nil), p.Payload...)
			out = append(out, cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeactivatePlans(_ context.Context, callerID uuid.UUID) (n int, err error) {
	defer observe(memoryBackend, "deactivate_plans", time.Now(), &err)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.plansBy[callerID] {
		if p := s.plans[id]; p.Active {
			p.Active = false
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Callers:     int64(len(s.callers)),
		Submissions: int64(len(s.submissions)),
		StudyPlans:  int64(len(s.plans)),
	}, nil
}

func (s *MemoryStore) Close() error { return nil }

func copySubmission(s model.Submission) model.Submission {
	if s.OverallScore != nil {
		v := *s.OverallScore
		s.OverallScore = &v
	}
	if s.Subscores != nil {
		v := *s.Subscores
		s.Subscores = &v
	}
	if s.EvaluatedAt != nil {
		v := *s.EvaluatedAt
		s.EvaluatedAt = &v
	}
	s.Feedback = append([]byte(nil), s.Feedback...)
	return s
}
