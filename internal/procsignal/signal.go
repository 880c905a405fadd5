// Package procsignal sends real Unix signals to PIDs, implementing the
// Signaler interfaces that internal/killer and internal/emergency depend
// on against the live kernel.
package procsignal

import (
	"errors"
	"syscall"

	"github.com/earlyoomd/earlyoomd/internal/config"
)

// Sender delivers signals via syscall.Kill.
type Sender struct{}

// Signal implements killer.Signaler and emergency.Signaler.
func (Sender) Signal(pid int, sig config.Signal) error {
	if sig == config.SigNone {
		// The self-test probe of spec §4.4/§4.6: kill(pid, 0) only checks
		// whether the process exists and is signalable.
		return syscall.Kill(pid, 0)
	}
	return syscall.Kill(pid, syscall.Signal(sig))
}

// IsPermission reports whether err is EPERM, for the kill escalator's
// one-second throttle (spec §4.4).
func IsPermission(err error) bool {
	return errors.Is(err, syscall.EPERM)
}

// IsNoSuchProcess reports whether err is ESRCH, treated as success per
// spec §7 ("victim already gone").
func IsNoSuchProcess(err error) bool {
	return errors.Is(err, syscall.ESRCH)
}
