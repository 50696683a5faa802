// Package task defines the Task state machine and metadata carried
// through the scheduler, plus the constructor that turns a raw
// submission payload into a Task.
package task

import (
	"time"

	"github.com/google/uuid"
)

// State is the closed set of lifecycle states a Task passes through.
type State string

const (
	Pending   State = "PENDING"
	Running   State = "RUNNING"
	Waiting   State = "WAITING"
	Done      State = "DONE"
	Failed    State = "FAILED"
	Cancelled State = "CANCELLED"
)

// Terminal reports whether s is a terminal state: no further
// transitions are legal once a task reaches it.
func (s State) Terminal() bool {
	switch s {
	case Done, Failed, Cancelled:
		return true
	default:
		return false
	}
}

// Metadata carries the fleet-wide identity and scheduling attributes
// of a task. Assigned once at construction, except Deadline which the
// caller may omit.
type Metadata struct {
	ID            string
	Owner         string
	Priority      int32
	CreatedAt     time.Time
	Deadline      *time.Time
	Labels        map[string]string
	ResourceHints map[string]string
}

// Task owns its Metadata and an opaque payload; the scheduler never
// inspects Payload beyond passing it to the execute-step hook.
type Task struct {
	Metadata  Metadata
	Payload   map[string]any
	State     State
	LastError string
}

// FromSubmission builds a PENDING Task from a raw submission payload.
// A "meta" sub-mapping, if present, populates recognized Metadata
// fields (owner, priority, deadline, labels, resource_hints);
// unrecognized keys inside "meta" are ignored. The full payload
// (meta included) is retained so the execute-step hook has complete
// context.
func FromSubmission(payload map[string]any) *Task {
	meta := Metadata{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
	}

	if rawMeta, ok := payload["meta"].(map[string]any); ok {
		if owner, ok := rawMeta["owner"].(string); ok {
			meta.Owner = owner
		}
		if priority, ok := asInt32(rawMeta["priority"]); ok {
			meta.Priority = priority
		}
		if deadline, ok := asTime(rawMeta["deadline"]); ok {
			meta.Deadline = &deadline
		}
		if labels, ok := asStringMap(rawMeta["labels"]); ok {
			meta.Labels = labels
		}
		if hints, ok := asStringMap(rawMeta["resource_hints"]); ok {
			meta.ResourceHints = hints
		}
	}

	return &Task{
		Metadata: meta,
		Payload:  payload,
		State:    Pending,
	}
}

// PastDeadline reports whether the task's deadline, if set, is before now.
func (t *Task) PastDeadline(now time.Time) bool {
	return t.Metadata.Deadline != nil && now.After(*t.Metadata.Deadline)
}

func asInt32(v any) (int32, bool) {
	switch n := v.(type) {
	case int32:
		return n, true
	case int:
		return int32(n), true
	case int64:
		return int32(n), true
	case float64:
		return int32(n), true
	default:
		return 0, false
	}
}

func asTime(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d, true
	case float64:
		return time.Unix(0, int64(d*float64(time.Second))), true
	case int64:
		return time.Unix(d, 0), true
	default:
		return time.Time{}, false
	}
}

func asStringMap(v any) (map[string]string, bool) {
	raw, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		s, ok := val.(string)
		if !ok {
			return nil, false
		}
		out[k] = s
	}
	return out, true
}
