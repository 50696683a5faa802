// Package worker runs one worker's message loop: block on the inbound
// task queue, dispatch submissions and control messages, and drive the
// scheduler forward even when nothing new has arrived.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/ipc"
	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/merrors"
	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/metrics"
	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/obslog"
	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/scheduler"
)

const pollTick = time.Second

// Config is the subset of runtime configuration a worker needs to
// build its own Scheduler.
type Config struct {
	QuantumMS       int
	MemoryPoolBytes int
}

// Run executes the worker's message loop until ctx is cancelled or a
// CONTROL{action:"shutdown"} message arrives on taskQueue. It owns
// exactly one Scheduler (and, through it, one memory pool) for its
// entire lifetime; no state is shared with any other worker.
func Run(ctx context.Context, tag string, taskQueue, resultQueue *ipc.Queue, cfg Config, reg *metrics.Registry, opts ...scheduler.Option) {
	log := obslog.Get("worker").With().Str("worker", tag).Logger()
	sched := scheduler.New(resultQueue, cfg.QuantumMS, cfg.MemoryPoolBytes, reg, opts...)

	log.Info().Msg("worker started")
	defer log.Info().Msg("worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := taskQueue.Recv(pollTick)
		if err != nil {
			if errors.Is(err, merrors.ErrIPC) {
				// Poll-tick timeout: keep multi-step tasks moving even
				// without new submissions.
				runOnceLogged(&log, sched)
				continue
			}
			log.Error().Err(err).Msg("unrecoverable loop error")
			return
		}

		switch msg.Type {
		case ipc.TaskSubmit:
			sched.EnqueueFromPayload(msg.Payload)
			runOnceLogged(&log, sched)

		case ipc.Control:
			action, _ := msg.Payload["action"].(string)
			log.Info().Str("action", action).Msg("control message received")
			if action == "shutdown" {
				return
			}
			// Reserved for future reload/pause actions.

		default:
			log.Warn().Str("type", string(msg.Type)).Msg("unknown message type")
			runOnceLogged(&log, sched)
		}
	}
}

func runOnceLogged(log *obslog.Logger, sched *scheduler.Scheduler) {
	if err := sched.RunOnce(); err != nil {
		log.Error().Err(err).Msg("run_once failed to emit result")
	}
}
