package scheduler

import (
	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/merrors"
	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/task"
)

// CountingExecutor is a minimal StepExecutor used by tests and
// examples to exercise the extension point end to end without
// pulling in a real task-payload interpreter. Each call increments a
// per-task "steps" counter in the payload; a task whose payload
// carries a "steps_required" > 1 parks itself WAITING until enough
// quanta have run. A payload carrying "fail" == true always fails.
type CountingExecutor struct{}

// Execute implements StepExecutor.
func (CountingExecutor) Execute(t *task.Task) error {
	if fail, _ := t.Payload["fail"].(bool); fail {
		return merrors.Wrap(merrors.ErrTaskExecution, "simulated failure")
	}

	steps, _ := t.Payload["steps"].(int)
	steps++
	t.Payload["steps"] = steps

	required, _ := t.Payload["steps_required"].(int)
	if required <= 0 {
		required = 1
	}

	if steps < required {
		t.State = task.Waiting
	}
	return nil
}
