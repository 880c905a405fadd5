// Package notifysidecar implements the fire-and-forget desktop-notification
// spawn of spec §6/§9: a short-lived child process invoking a system
// notifier, whose success or failure is never observed by the caller.
package notifysidecar

import (
	"context"
	"os/exec"

	"github.com/earlyoomd/earlyoomd/internal/control"
	"github.com/earlyoomd/earlyoomd/internal/obslog"
)

// Sidecar spawns "notify-send"-style child processes without blocking the
// control loop, reaping each child in its own goroutine so none accumulate
// as zombies (spec §5 "the core must install a reaper").
type Sidecar struct {
	// Command is the notifier to run; an empty Command disables spawning.
	Command string
}

// New returns a Sidecar using the given notifier command (e.g.
// "notify-send"). An empty command disables spawning: Notify becomes a
// no-op, for daemons built without `-n`.
func New(command string) *Sidecar {
	return &Sidecar{Command: command}
}

// Notify spawns the notifier with summary and body, in the background.
// Per spec §6: "success/failure of the notifier is not observed."
func (s *Sidecar) Notify(summary, body string) {
	if s == nil || s.Command == "" {
		return
	}

	cmd := exec.CommandContext(context.Background(), s.Command, summary, body)
	if err := cmd.Start(); err != nil {
		obslog.Logger.Debugw("notify sidecar failed to start", "error", err)
		return
	}

	go func() {
		// Reap unconditionally; the exit status is part of the contract we
		// deliberately do not observe.
		_ = cmd.Wait()
	}()
}

var _ control.Notifier = (*Sidecar)(nil)
