// Package supervisor owns the worker pool's lifecycle: spawning
// workers, routing task submissions and results through two typed
// queues, and driving a cooperative, deadline-bounded shutdown.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/config"
	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/health"
	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/ipc"
	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/merrors"
	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/metrics"
	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/obslog"
	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/scheduler"
	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/worker"
)

const (
	taskQueueCapacity   = 1024
	resultQueueCapacity = 1024
	shutdownSendTimeout = 2 * time.Second
	stragglerGrace      = 2 * time.Second
)

// Supervisor spawns and supervises a fixed-size worker pool, exposing
// the only two points of contact a caller needs: submit a task, and
// collect results. Workers share nothing but these two queues.
type Supervisor struct {
	cfg     config.Config
	metrics *metrics.Registry
	log     obslog.Logger

	taskQueue   *ipc.Queue
	resultQueue *ipc.Queue

	health        *health.Server
	metricsServer *http.Server

	mu      sync.Mutex
	started bool
	workers []workerHandle

	executorFactory func() scheduler.StepExecutor
}

type workerHandle struct {
	tag    string
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Supervisor at construction.
type Option func(*Supervisor)

// WithExecutorFactory overrides the StepExecutor each worker's
// scheduler is built with. Called once per worker at Start.
func WithExecutorFactory(f func() scheduler.StepExecutor) Option {
	return func(s *Supervisor) { s.executorFactory = f }
}

// New builds a Supervisor bound to cfg. Queues are created eagerly;
// nothing runs until Start.
func New(cfg config.Config, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:         cfg,
		metrics:     metrics.New(),
		log:         obslog.Get("supervisor"),
		taskQueue:   ipc.NewQueue(taskQueueCapacity),
		resultQueue: ipc.NewQueue(resultQueueCapacity),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Metrics exposes the supervisor's metric registry, which its workers
// update and which Start already serves on /metrics when MetricsPort
// is non-zero.
func (s *Supervisor) Metrics() *metrics.Registry { return s.metrics }

// Start spawns cfg.NumWorkers worker goroutines and the health HTTP
// surface. Fails if called twice on an already-started Supervisor.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("supervisor already started")
	}

	obslog.Configure(s.cfg.LogLevel)

	s.health = &health.Server{
		Port:           s.cfg.HealthPort,
		ReadinessCheck: s.allWorkersAlive,
	}
	s.health.Start()
	s.startMetricsServer()

	for i := 0; i < s.cfg.NumWorkers; i++ {
		tag := fmt.Sprintf("monolith-worker-%d", i)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		var opts []scheduler.Option
		if s.executorFactory != nil {
			opts = append(opts, scheduler.WithExecutor(s.executorFactory()))
		}

		go func(ctx context.Context, tag string, done chan struct{}) {
			defer close(done)
			worker.Run(ctx, tag, s.taskQueue, s.resultQueue, worker.Config{
				QuantumMS:       s.cfg.QuantumMS,
				MemoryPoolBytes: s.cfg.MemoryPoolBytes,
			}, s.metrics, opts...)
		}(ctx, tag, done)

		s.workers = append(s.workers, workerHandle{tag: tag, cancel: cancel, done: done})
		s.log.Info().Str("worker", tag).Msg("worker spawned")
	}

	s.started = true
	s.log.Info().Int("num_workers", s.cfg.NumWorkers).Msg("supervisor started")
	return nil
}

// SubmitTask wraps payload in a TASK_SUBMIT message and enqueues it.
// Fails with "not started" if Start hasn't been called, or with
// ErrIPC if the send times out.
func (s *Supervisor) SubmitTask(payload map[string]any) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if !started {
		return errors.New("supervisor not started; call Start first")
	}

	msg := ipc.Message{Type: ipc.TaskSubmit, Payload: payload}
	if err := s.taskQueue.Send(msg, s.cfg.IPCSendTimeout); err != nil {
		return err
	}
	// monolith_tasks_submitted is incremented once, by the worker that
	// actually enqueues the task (scheduler.EnqueueFromPayload). Counting
	// it here too would double it, since supervisor and workers share one
	// registry now that worker processes collapsed to goroutines.
	return nil
}

// CollectResults drains up to maxResults TASK_RESULT payloads from
// the result queue, each with its own per-recv timeout, stopping
// early at the first empty-queue timeout.
func (s *Supervisor) CollectResults(timeout time.Duration, maxResults int) []map[string]any {
	results := make([]map[string]any, 0, maxResults)
	for i := 0; i < maxResults; i++ {
		msg, err := s.resultQueue.Recv(timeout)
		if err != nil {
			break
		}
		if msg.Type == ipc.TaskResult {
			results = append(results, msg.Payload)
		}
	}
	return results
}

// Stop broadcasts a shutdown control message to every worker, then
// joins each one within the shared timeout budget. Stragglers past
// their share of the budget are cancelled and given a short grace
// period to exit. Safe to call on a Supervisor that was never
// started.
func (s *Supervisor) Stop(timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	shutdown := ipc.Message{Type: ipc.Control, Payload: map[string]any{"action": "shutdown"}}
	for range s.workers {
		if err := s.taskQueue.Send(shutdown, shutdownSendTimeout); err != nil {
			s.log.Debug().Err(err).Msg("shutdown send failed, worker may already be gone")
		}
	}

	deadline := time.Now().Add(timeout)
	var stragglers []workerHandle
	for _, w := range s.workers {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		if !waitDone(w.done, remaining) {
			stragglers = append(stragglers, w)
		}
	}

	if len(stragglers) > 0 {
		for _, w := range stragglers {
			s.log.Warn().Str("worker", w.tag).Msg("worker did not stop; terminating")
			w.cancel()
		}
		graceCtx, cancel := context.WithTimeout(context.Background(), stragglerGrace)
		if err := joinAll(graceCtx, stragglers); err != nil {
			s.log.Warn().Err(err).Msg("one or more stragglers did not join within the grace period")
		}
		cancel()
	}

	s.workers = nil
	if s.health != nil {
		_ = s.health.Stop(context.Background())
	}
	if s.metricsServer != nil {
		_ = s.metricsServer.Shutdown(context.Background())
		s.metricsServer = nil
	}
	s.started = false
	s.log.Info().Msg("supervisor stopped")
}

// startMetricsServer exposes the registry's /metrics handler on the
// configured port; a zero port disables it entirely, matching the
// health server's own "0 = disabled" convention.
func (s *Supervisor) startMetricsServer() {
	if s.cfg.MetricsPort == 0 {
		return
	}
	r := chi.NewRouter()
	r.Handle("/metrics", s.metrics.Handler())

	s.metricsServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.MetricsPort),
		Handler: r,
	}
	go func() {
		_ = s.metricsServer.ListenAndServe()
	}()
}

// Run starts the supervisor, invokes fn, and guarantees Stop runs on
// every return path: success, error, or panic.
func (s *Supervisor) Run(ctx context.Context, stopTimeout time.Duration, fn func(ctx context.Context, s *Supervisor) error) (err error) {
	if startErr := s.Start(); startErr != nil {
		return startErr
	}
	defer s.Stop(stopTimeout)

	return fn(ctx, s)
}

func (s *Supervisor) allWorkersAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return false
	}
	for _, w := range s.workers {
		select {
		case <-w.done:
			return false
		default:
		}
	}
	return true
}

func waitDone(done chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// joinAll waits for every handle's done channel concurrently, bounded
// by ctx, returning a combined error naming any worker that never
// joined in time. Used to fan stragglers' grace-period joins out in
// parallel instead of burning stragglerGrace once per straggler.
func joinAll(ctx context.Context, handles []workerHandle) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range handles {
		w := w
		g.Go(func() error {
			select {
			case <-w.done:
				return nil
			case <-ctx.Done():
				return merrors.Wrapf(merrors.ErrIPC, "worker %s did not join before context cancellation", w.tag)
			}
		})
	}
	return g.Wait()
}
