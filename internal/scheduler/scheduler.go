// Package scheduler implements the cooperative, single-threaded
// priority scheduler that runs inside one worker: task selection,
// deadline cancellation, quantum-bounded step execution, and result
// emission onto the worker's outbound IPC queue.
package scheduler

import (
	"time"

	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/ipc"
	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/memory"
	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/merrors"
	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/metrics"
	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/obslog"
	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/task"
)

// StepExecutor advances one quantum of a task, mutating its state as
// appropriate. It is the sole extension point a domain interpreter
// plugs into; the scheduler itself has no opinion about task payloads.
type StepExecutor interface {
	Execute(t *task.Task) error
}

// NoopStepExecutor is the default StepExecutor: it does nothing, which
// combined with the default completion predicate means one step
// completes a task immediately.
type NoopStepExecutor struct{}

// Execute implements StepExecutor.
func (NoopStepExecutor) Execute(*task.Task) error { return nil }

const defaultResultSendTimeout = 5 * time.Second

// Scheduler owns one task list, one logical memory pool, and the
// result queue it emits TASK_RESULT messages onto. Not safe for
// concurrent use — exactly one worker goroutine drives it.
type Scheduler struct {
	tasks       []*task.Task
	resultQueue *ipc.Queue
	quantum     time.Duration
	memory      *memory.Pool
	metrics     *metrics.Registry
	executor    StepExecutor
	log         obslog.Logger

	resultSendTimeout time.Duration
	now               func() time.Time
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithExecutor overrides the default no-op StepExecutor.
func WithExecutor(e StepExecutor) Option {
	return func(s *Scheduler) { s.executor = e }
}

// WithResultSendTimeout overrides the default 5s result-emission timeout.
func WithResultSendTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.resultSendTimeout = d }
}

// New builds a Scheduler with a quantum budget, a memory pool of the
// given capacity, a result sink, and a metric registry to update.
func New(resultQueue *ipc.Queue, quantumMS int, memoryPoolBytes int, reg *metrics.Registry, opts ...Option) *Scheduler {
	s := &Scheduler{
		tasks:             nil,
		resultQueue:       resultQueue,
		quantum:           time.Duration(quantumMS) * time.Millisecond,
		memory:            memory.New(memoryPoolBytes),
		metrics:           reg,
		executor:          NoopStepExecutor{},
		log:               obslog.Get("scheduler"),
		resultSendTimeout: defaultResultSendTimeout,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Memory exposes the scheduler's owned pool, e.g. for a StepExecutor
// that needs to alloc/read/write regions on behalf of its task.
func (s *Scheduler) Memory() *memory.Pool { return s.memory }

// TaskCount returns the number of tasks currently held, matching the
// worker_queue_depth gauge's value after the last run_once call.
func (s *Scheduler) TaskCount() int { return len(s.tasks) }

// EnqueueFromPayload builds a PENDING task from a submission payload
// and appends it to the task list.
func (s *Scheduler) EnqueueFromPayload(payload map[string]any) *task.Task {
	t := task.FromSubmission(payload)
	s.tasks = append(s.tasks, t)
	s.metrics.TasksSubmitted.Inc()
	s.metrics.WorkerQueueDepth.Set(float64(len(s.tasks)))
	s.log.Debug().Str("task_id", t.Metadata.ID).Int32("priority", t.Metadata.Priority).Msg("task enqueued")
	return t
}

// RunOnce selects the highest-priority eligible task and runs one
// quantum of it. A no-op if no task is eligible.
func (s *Scheduler) RunOnce() error {
	now := s.now()

	idx, selected := s.selectReady()
	if selected == nil {
		return nil
	}

	if selected.PastDeadline(now) {
		selected.State = task.Cancelled
		s.log.Warn().Str("task_id", selected.Metadata.ID).Msg("task deadline exceeded")
		s.metrics.TasksCancelled.Inc()
		if err := s.emitResult(selected); err != nil {
			return err
		}
		s.memory.FreeTask(selected.Metadata.ID)
		s.removeAt(idx)
		s.refreshGauges()
		return nil
	}

	return s.runQuantum(selected)
}

// selectReady returns the index and pointer of the ready task (state
// PENDING or WAITING) maximizing (priority, -created_at); nil if none
// are eligible.
func (s *Scheduler) selectReady() (int, *task.Task) {
	bestIdx := -1
	var best *task.Task
	for i, t := range s.tasks {
		if t.State != task.Pending && t.State != task.Waiting {
			continue
		}
		if best == nil || higherPriority(t, best) {
			best = t
			bestIdx = i
		}
	}
	return bestIdx, best
}

// higherPriority reports whether candidate should be preferred over
// incumbent under the (priority desc, created_at asc) key.
func higherPriority(candidate, incumbent *task.Task) bool {
	if candidate.Metadata.Priority != incumbent.Metadata.Priority {
		return candidate.Metadata.Priority > incumbent.Metadata.Priority
	}
	return candidate.Metadata.CreatedAt.Before(incumbent.Metadata.CreatedAt)
}

func (s *Scheduler) runQuantum(t *task.Task) error {
	start := s.now()
	t.State = task.Running

	err := s.executor.Execute(t)
	var emitErr error
	switch {
	case err != nil:
		t.State = task.Failed
		t.LastError = err.Error()
		s.metrics.TasksFailed.Inc()
		s.log.Error().Str("task_id", t.Metadata.ID).Err(err).Msg("task failed")
		emitErr = s.emitResult(t)
		s.removeTask(t)
	case isComplete(t):
		t.State = task.Done
		s.metrics.TasksCompleted.Inc()
		emitErr = s.emitResult(t)
		s.removeTask(t)
	default:
		// The hook parked the task in WAITING; it stays in the task list
		// and is re-selected on a future RunOnce.
	}

	elapsed := s.now().Sub(start)
	if elapsed > s.quantum {
		s.metrics.SchedulerQuantumOverruns.Inc()
		s.log.Warn().
			Str("task_id", t.Metadata.ID).
			Float64("elapsed_ms", obslog.Since(start)).
			Int64("quantum_ms", s.quantum.Milliseconds()).
			Msg("quantum overrun")
	}
	s.refreshGauges()

	return emitErr
}

// isComplete is the default completion predicate: one step completes
// a task unless the hook explicitly parked it in WAITING.
func isComplete(t *task.Task) bool {
	return t.State != task.Waiting
}

func (s *Scheduler) emitResult(t *task.Task) error {
	lastError := any(nil)
	if t.LastError != "" {
		lastError = t.LastError
	}
	msg := ipc.Message{
		Type: ipc.TaskResult,
		Payload: map[string]any{
			"id":         t.Metadata.ID,
			"owner":      t.Metadata.Owner,
			"state":      string(t.State),
			"last_error": lastError,
		},
	}
	if err := s.resultQueue.Send(msg, s.resultSendTimeout); err != nil {
		return merrors.Wrapf(merrors.ErrIPC, "emit result for task %q: %v", t.Metadata.ID, err)
	}
	return nil
}

func (s *Scheduler) removeTask(target *task.Task) {
	if target.State.Terminal() {
		s.memory.FreeTask(target.Metadata.ID)
	}
	for i, t := range s.tasks {
		if t == target {
			s.removeAt(i)
			return
		}
	}
}

func (s *Scheduler) removeAt(idx int) {
	s.tasks = append(s.tasks[:idx], s.tasks[idx+1:]...)
}

func (s *Scheduler) refreshGauges() {
	s.metrics.WorkerQueueDepth.Set(float64(len(s.tasks)))
	s.metrics.MemoryUsedBytes.Set(float64(s.memory.UsedBytes()))
	s.metrics.MemoryRegionCount.Set(float64(s.memory.RegionCount()))
}
