package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/ipc"
	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/merrors"
	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/metrics"
	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/task"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestScheduler(opts ...Option) (*Scheduler, *ipc.Queue) {
	rq := ipc.NewQueue(16)
	reg := metrics.New()
	return New(rq, 10, 1024, reg, opts...), rq
}

func mustRecvResult(t *testing.T, rq *ipc.Queue) ipc.Message {
	t.Helper()
	msg, err := rq.Recv(time.Second)
	if err != nil {
		t.Fatalf("Recv result failed: %v", err)
	}
	if msg.Type != ipc.TaskResult {
		t.Fatalf("Recv message type = %v, want TaskResult", msg.Type)
	}
	return msg
}

/* ================= empty scheduler ================= */

func TestRunOnceOnEmptySchedulerIsNoop(t *testing.T) {
	s, rq := newTestScheduler()

	if err := s.RunOnce(); err != nil {
		t.Fatalf("RunOnce on empty scheduler returned error: %v", err)
	}
	if rq.Len() != 0 {
		t.Fatalf("a result was emitted from an empty scheduler")
	}
}

/* ================= priority selection ================= */

func TestRunOnceSelectsHigherPriority(t *testing.T) {
	s, rq := newTestScheduler()

	s.EnqueueFromPayload(map[string]any{"meta": map[string]any{"priority": 1}})
	time.Sleep(time.Millisecond)
	high := s.EnqueueFromPayload(map[string]any{"meta": map[string]any{"priority": 99}})

	if err := s.RunOnce(); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}

	msg := mustRecvResult(t, rq)
	if msg.Payload["id"] != high.Metadata.ID {
		t.Fatalf("RunOnce picked id %v, want high-priority task %v", msg.Payload["id"], high.Metadata.ID)
	}
	if msg.Payload["state"] != string(task.Done) {
		t.Fatalf("result state = %v, want DONE", msg.Payload["state"])
	}
}

func TestTiesBrokenByEarliestCreatedAt(t *testing.T) {
	s, rq := newTestScheduler()

	first := s.EnqueueFromPayload(map[string]any{"meta": map[string]any{"priority": 5}})
	second := s.EnqueueFromPayload(map[string]any{"meta": map[string]any{"priority": 5}})
	second.Metadata.CreatedAt = first.Metadata.CreatedAt.Add(time.Second)

	if err := s.RunOnce(); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}

	msg := mustRecvResult(t, rq)
	if msg.Payload["id"] != first.Metadata.ID {
		t.Fatalf("RunOnce picked id %v, want earliest-created task %v", msg.Payload["id"], first.Metadata.ID)
	}
}

/* ================= deadline cancellation ================= */

func TestDeadlineExceededCancelsBeforeExecution(t *testing.T) {
	s, rq := newTestScheduler()

	past := time.Now().Add(-time.Second)
	t1 := s.EnqueueFromPayload(map[string]any{"meta": map[string]any{}})
	t1.Metadata.Deadline = &past

	if err := s.RunOnce(); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}

	msg := mustRecvResult(t, rq)
	if msg.Payload["state"] != string(task.Cancelled) {
		t.Fatalf("result state = %v, want CANCELLED", msg.Payload["state"])
	}
	if s.TaskCount() != 0 {
		t.Fatalf("TaskCount() = %d after cancellation, want 0", s.TaskCount())
	}
}

/* ================= step failure ================= */

func TestStepFailureMarksTaskFailed(t *testing.T) {
	s, rq := newTestScheduler(WithExecutor(CountingExecutor{}))

	s.EnqueueFromPayload(map[string]any{"fail": true})

	if err := s.RunOnce(); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}

	msg := mustRecvResult(t, rq)
	if msg.Payload["state"] != string(task.Failed) {
		t.Fatalf("result state = %v, want FAILED", msg.Payload["state"])
	}
	if msg.Payload["last_error"] != "simulated failure" {
		t.Fatalf("last_error = %v, want %q", msg.Payload["last_error"], "simulated failure")
	}
}

/* ================= multi-step via WAITING ================= */

func TestMultiStepTaskStaysUntilStepsComplete(t *testing.T) {
	s, rq := newTestScheduler(WithExecutor(CountingExecutor{}))

	s.EnqueueFromPayload(map[string]any{"steps_required": 3})

	if err := s.RunOnce(); err != nil {
		t.Fatalf("RunOnce (1) returned error: %v", err)
	}
	if rq.Len() != 0 {
		t.Fatalf("result emitted before task completed its steps")
	}
	if s.TaskCount() != 1 {
		t.Fatalf("TaskCount() = %d, want 1 (task still in progress)", s.TaskCount())
	}

	if err := s.RunOnce(); err != nil {
		t.Fatalf("RunOnce (2) returned error: %v", err)
	}
	if err := s.RunOnce(); err != nil {
		t.Fatalf("RunOnce (3) returned error: %v", err)
	}

	msg := mustRecvResult(t, rq)
	if msg.Payload["state"] != string(task.Done) {
		t.Fatalf("result state = %v, want DONE", msg.Payload["state"])
	}
}

/* ================= gauges ================= */

func TestGaugesRefreshAfterRunOnce(t *testing.T) {
	s, rq := newTestScheduler()

	s.EnqueueFromPayload(map[string]any{"meta": map[string]any{}})
	if err := s.RunOnce(); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	mustRecvResult(t, rq)

	if s.TaskCount() != 0 {
		t.Fatalf("TaskCount() = %d after completion, want 0", s.TaskCount())
	}
	if got := testutil.ToFloat64(s.metrics.WorkerQueueDepth); got != 0 {
		t.Fatalf("worker_queue_depth gauge = %v after completion, want 0", got)
	}
}

func TestGaugesRefreshOnDeadlineCancellationToo(t *testing.T) {
	s, _ := newTestScheduler()

	past := time.Now().Add(-time.Second)
	t1 := s.EnqueueFromPayload(map[string]any{"meta": map[string]any{}})
	t1.Metadata.Deadline = &past

	if err := s.RunOnce(); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if s.memory.RegionCount() != 0 {
		t.Fatalf("RegionCount() = %d after cancellation, want 0", s.memory.RegionCount())
	}
	if got := testutil.ToFloat64(s.metrics.WorkerQueueDepth); got != 0 {
		t.Fatalf("worker_queue_depth gauge = %v after cancellation, want 0", got)
	}
}

/* ================= quantum overrun ================= */

func TestQuantumOverrunIncrementsCounter(t *testing.T) {
	rq := ipc.NewQueue(16)
	reg := metrics.New()
	slowExecutor := slowStepExecutor{delay: 20 * time.Millisecond}
	s := New(rq, 1, 1024, reg, WithExecutor(slowExecutor))

	s.EnqueueFromPayload(map[string]any{"meta": map[string]any{}})
	if err := s.RunOnce(); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}

	if got := testutil.ToFloat64(reg.SchedulerQuantumOverruns); got != 1 {
		t.Fatalf("quantum overrun counter = %v, want 1", got)
	}
}

type slowStepExecutor struct{ delay time.Duration }

func (s slowStepExecutor) Execute(*task.Task) error {
	time.Sleep(s.delay)
	return nil
}

/* ================= memory access from a step hook ================= */

type memWritingExecutor struct {
	sched *Scheduler
}

func (e memWritingExecutor) Execute(t *task.Task) error {
	pool := e.sched.Memory()
	if _, err := pool.Alloc(t.Metadata.ID, t.Metadata.ID, 8); err != nil {
		return err
	}
	return pool.Write(t.Metadata.ID, t.Metadata.ID, 0, []byte("12345678"))
}

func TestStepExecutorCanUseSchedulerMemory(t *testing.T) {
	s, rq := newTestScheduler()
	s.executor = memWritingExecutor{sched: s}

	s.EnqueueFromPayload(map[string]any{"meta": map[string]any{}})
	if err := s.RunOnce(); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	mustRecvResult(t, rq)

	if s.Memory().RegionCount() != 0 {
		t.Fatalf("RegionCount() = %d after task completion, want 0 (region freed on terminal state)", s.Memory().RegionCount())
	}
}

/* ================= result emission failure ================= */

func TestEmitResultFailurePropagates(t *testing.T) {
	rq := ipc.NewQueue(1)
	// Fill the queue so the scheduler's own send times out immediately.
	if err := rq.Send(ipc.Message{Type: ipc.Control}, 0); err != nil {
		t.Fatalf("priming Send failed: %v", err)
	}
	reg := metrics.New()
	s := New(rq, 10, 1024, reg, WithResultSendTimeout(0))

	s.EnqueueFromPayload(map[string]any{"meta": map[string]any{}})

	err := s.RunOnce()
	if !errors.Is(err, merrors.ErrIPC) {
		t.Fatalf("RunOnce error = %v, want ErrIPC", err)
	}
}
