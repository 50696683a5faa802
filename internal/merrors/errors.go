// Package merrors defines the semantic error kinds shared across the
// Monolith runtime. Each kind is a sentinel value so callers can classify
// a failure with errors.Is instead of inspecting message text.
package merrors

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Attach one to a message with Wrap or Wrapf to add
// context while keeping errors.Is(err, ErrX) working.
var (
	// ErrTaskExecution marks a failure raised by a task's execute-step hook.
	ErrTaskExecution = errors.New("task execution error")

	// ErrMemoryLogical marks a logical memory pool violation: bad size,
	// OOM, unknown region, ownership mismatch, or out-of-bounds access.
	ErrMemoryLogical = errors.New("logical memory error")

	// ErrIPC marks a send/recv failure on a message queue: timeout or
	// closed queue.
	ErrIPC = errors.New("ipc error")
)

// Wrap attaches a sentinel kind to a message, preserving errors.Is(err, kind).
func Wrap(kind error, msg string) error {
	return &wrapped{kind: kind, msg: msg}
}

// Wrapf is Wrap with fmt-style formatting.
func Wrapf(kind error, format string, args ...any) error {
	return Wrap(kind, fmt.Sprintf(format, args...))
}

type wrapped struct {
	kind error
	msg  string
}

func (w *wrapped) Error() string { return w.msg }
func (w *wrapped) Unwrap() error { return w.kind }
