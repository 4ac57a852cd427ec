// Package service wires the tutoring components together and implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/okian/detflow/internal/adapters/llm"
	"github.com/okian/detflow/internal/adapters/lock"
	"github.com/okian/detflow/internal/adapters/mq/queue"
	"github.com/okian/detflow/internal/adapters/mq/worker"
	"github.com/okian/detflow/internal/adapters/providers"
	"github.com/okian/detflow/internal/adapters/repository"
	"github.com/okian/detflow/internal/config"
	"github.com/okian/detflow/internal/domain/dedupe"
	"github.com/okian/detflow/internal/domain/model"
	"github.com/okian/detflow/internal/domain/orchestrator"
	"github.com/okian/detflow/internal/domain/selection"
	"github.com/okian/detflow/pkg/logger"
	"github.com/okian/detflow/pkg/metrics"
)

// Service owns the store, the model router, the orchestrator and the
// per-caller dispatcher.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	store      repository.Store
	ownsStore  bool
	locker     lock.Locker
	ownsLocker bool
	closers    []io.Closer
	completers map[string]llm.Completer

	selector   *selection.Selector
	deduper    dedupe.Deduper
	orch       *orchestrator.Orchestrator
	dispatcher *worker.Dispatcher

	runtimeEvery time.Duration
	started      bool
	stopCh       chan struct{}
	loopDone     chan struct{}

	logger logger.Logger
}

// New constructs a Service from cfg. Components are built by Start.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{
		cfg:          cfg,
		ownsStore:    true,
		completers:   make(map[string]llm.Completer),
		runtimeEvery: 15 * time.Second,
		logger:       logger.Get(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds every component and starts the workers. Starting a started
// service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting tutoring service...")

	if err := s.build(ctx); err != nil {
		s.closeAll()
		return err
	}

	s.dispatcher.Start(ctx)
	s.stopCh = make(chan struct{})
	s.loopDone = make(chan struct{})
	go s.runtimeLoop()

	s.started = true
	s.logger.Info(ctx, "tutoring service started",
		logger.Int("shards", s.dispatcher.Shards()),
		logger.Int("queueSize", s.cfg.QueueSize),
		logger.Int("dedupeSize", s.cfg.DedupeSize),
		logger.String("store", s.cfg.Store.Driver),
		logger.String("lock", s.cfg.Lock.Driver),
	)
	return nil
}

func (s *Service) build(ctx context.Context) error {
	if s.store == nil {
		store, err := openStore(ctx, s.cfg.Store, s.logger.Named("store"))
		if err != nil {
			return err
		}
		s.store = store
		s.ownsStore = true
	}

	if s.locker == nil {
		l, closer, err := openLocker(ctx, s.cfg.Lock)
		if err != nil {
			return err
		}
		s.locker = l
		s.ownsLocker = true
		if closer != nil {
			s.closers = append(s.closers, closer)
		}
	}

	sel, err := selection.New(s.cfg.SelectorOptions()...)
	if err != nil {
		return fmt.Errorf("model selector: %w", err)
	}
	s.selector = sel

	router, err := llm.NewRouter(sel, s.routerOptions()...)
	if err != nil {
		return fmt.Errorf("model router: %w", err)
	}

	plog := s.logger.Named("providers")
	var chatBackend providers.Backend
	if s.cfg.LLM.ChatReplies {
		chatBackend = router
	}
	orch, err := orchestrator.New(s.store,
		providers.NewEvaluator(router, providers.WithLogger(plog)),
		providers.NewPlanner(router, providers.WithLogger(plog)),
		providers.NewChatter(chatBackend, providers.WithLogger(plog)),
		providers.NewFormatter(),
		s.orchestratorOptions()...,
	)
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	s.orch = orch

	s.deduper = dedupe.NewWindow(
		dedupe.WithMaxSize(s.cfg.DedupeSize),
		dedupe.WithTTL(s.cfg.DedupeTTL),
	)
	s.dispatcher = worker.NewDispatcher(s.cfg.WorkerCount, s.cfg.QueueSize, orch,
		worker.WithLocker(s.locker),
		worker.WithJobTimeout(s.cfg.RequestTimeout),
		worker.WithLogger(s.logger.Named("worker")),
	)
	return nil
}

func (s *Service) routerOptions() []llm.RouterOption {
	c := s.cfg.LLM
	common := []llm.OpenAIOption{
		llm.WithTimeout(c.Timeout),
		llm.WithMaxRetries(c.MaxRetries),
		llm.WithTemperature(c.Temperature),
	}
	endpoints := map[string]config.Endpoint{c.DefaultProvider: {APIKey: c.APIKey, BaseURL: c.BaseURL}}
	for name, ep := range c.Providers {
		endpoints[name] = ep
	}

	opts := []llm.RouterOption{
		llm.WithDefaultProvider(c.DefaultProvider),
		llm.WithTracer(otel.Tracer("detflow/llm")),
		llm.WithRouterLogger(s.logger.Named("llm")),
	}
	for name, ep := range endpoints {
		if _, injected := s.completers[name]; injected {
			continue
		}
		eopts := append([]llm.OpenAIOption{llm.WithAPIKey(ep.APIKey), llm.WithBaseURL(ep.BaseURL)}, common...)
		opts = append(opts, llm.WithProvider(name, llm.NewOpenAI(eopts...)))
	}
	for name, comp := range s.completers {
		opts = append(opts, llm.WithProvider(name, comp))
	}
	return opts
}

func (s *Service) orchestratorOptions() []orchestrator.Option {
	o := s.cfg.Orchestrator
	return []orchestrator.Option{
		orchestrator.WithDefaults(orchestrator.Defaults{
			TaskType:     o.TaskType,
			TaskPrompt:   o.TaskPrompt,
			Level:        o.DefaultLevel,
			TargetScore:  o.DefaultTargetScore,
			HoursPerWeek: o.HoursPerWeek,
		}),
		orchestrator.WithSingleActivePlan(o.SingleActivePlan),
		orchestrator.WithWeaknessThreshold(o.WeaknessThreshold),
		orchestrator.WithHistoryWindow(o.HistoryWindow),
		orchestrator.WithLogger(s.logger.Named("orchestrator")),
		orchestrator.WithTracer(otel.Tracer("detflow/orchestrator")),
	}
}

// Stop drains the workers and releases what the service opened.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping tutoring service...")

	close(s.stopCh)
	<-s.loopDone

	err := s.dispatcher.Shutdown(ctx)
	s.closeAll()

	s.started = false
	s.logger.Info(ctx, "tutoring service stopped")
	return err
}

func (s *Service) closeAll() {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.logger.Warn(context.Background(), "close failed", logger.Error(err))
		}
	}
	s.closers = nil
	if s.ownsLocker {
		s.locker = nil
	}
	if s.ownsStore && s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(context.Background(), "store close failed", logger.Error(err))
		}
		s.store = nil
	}
}

// runtimeLoop refreshes process gauges until Stop.
func (s *Service) runtimeLoop() {
	defer close(s.loopDone)
	t := time.NewTicker(s.runtimeEvery)
	defer t.Stop()
	for {
		updateRuntimeGauges()
		select {
		case <-s.stopCh:
			return
		case <-t.C:
		}
	}
}

func updateRuntimeGauges() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.HeapInuse)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

// SeenAndRecord reports whether message id was already accepted.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	d := s.dedupe()
	if d == nil {
		return false
	}
	return d.SeenAndRecord(ctx, id)
}

// Unrecord forgets id so the message can be delivered again.
func (s *Service) Unrecord(ctx context.Context, id string) {
	if d := s.dedupe(); d != nil {
		d.Unrecord(ctx, id)
	}
}

// Size returns the number of remembered message ids.
func (s *Service) Size() int64 {
	d := s.dedupe()
	if d == nil {
		return 0
	}
	return d.Size()
}

func (s *Service) dedupe() dedupe.Deduper {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deduper
}

// HandleInbound queues msg on its caller's shard and waits for the reply.
func (s *Service) HandleInbound(ctx context.Context, msg model.InboundMessage) (model.Reply, error) {
	s.mu.RLock()
	d, started := s.dispatcher, s.started
	s.mu.RUnlock()
	if !started {
		return model.Reply{}, queue.ErrClosed
	}
	reply, err := d.Submit(ctx, msg)
	if errors.Is(err, worker.ErrNotStarted) {
		return model.Reply{}, queue.ErrClosed
	}
	return reply, err
}

// Caller returns the caller registered under address.
func (s *Service) Caller(ctx context.Context, address string) (model.Caller, error) {
	store, err := s.readStore()
	if err != nil {
		return model.Caller{}, err
	}
	return store.GetCallerByAddress(ctx, address)
}

// CallerSubmissions returns up to limit submissions of the caller at
// address, newest first.
func (s *Service) CallerSubmissions(ctx context.Context, address string, limit int) ([]model.Submission, error) {
	store, err := s.readStore()
	if err != nil {
		return nil, err
	}
	c, err := store.GetCallerByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	return store.RecentSubmissions(ctx, c.ID, limit)
}

// Submission returns one submission by id.
func (s *Service) Submission(ctx context.Context, id uuid.UUID) (model.Submission, error) {
	store, err := s.readStore()
	if err != nil {
		return model.Submission{}, err
	}
	return store.GetSubmission(ctx, id)
}

// Recommend runs the model selector over the configured catalog.
func (s *Service) Recommend(activity string, req *selection.Requirements) (selection.Result, error) {
	s.mu.RLock()
	sel := s.selector
	s.mu.RUnlock()
	if sel == nil {
		return selection.Result{}, queue.ErrClosed
	}
	res, err := sel.Recommend(activity, req, nil)
	metrics.RecordModelSelection(activity, res.SelectedModel, res.Outcome())
	return res, err
}

func (s *Service) readStore() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.store == nil {
		return nil, queue.ErrClosed
	}
	return s.store, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":    s.started,
		"queueSize":  s.cfg.QueueSize,
		"dedupeSize": s.cfg.DedupeSize,
		"store":      s.cfg.Store.Driver,
	}
	if !s.started {
		return stats
	}

	pending := s.dispatcher.Pending()
	stats["shards"] = s.dispatcher.Shards()
	stats["pending"] = pending
	stats["dedupeEntries"] = s.deduper.Size()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if st, err := s.store.Stats(ctx); err == nil {
		stats["callers"] = st.Callers
		stats["submissions"] = st.Submissions
		stats["studyPlans"] = st.StudyPlans
	} else {
		s.logger.Warn(ctx, "store stats unavailable", logger.Error(err))
	}
	metrics.UpdateWorkerCount(s.dispatcher.Shards())
	return stats
}
