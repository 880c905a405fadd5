package procread

import (
	"errors"
	"os"
	"strings"
)

// Error taxonomy for per-PID reads (spec §4.2): any failure causes the
// caller (the victim selector) to silently drop the candidate.
var (
	ErrNotFound   = errors.New("process not found")
	ErrPermission = errors.New("permission denied")
	ErrParse      = errors.New("unexpected /proc format")
)

// classify maps a raw os/exec-style error onto the taxonomy above so
// callers can branch with errors.Is, mirroring the teacher's string-sniffed
// classification in pkg/process/pids.go (gopsutil and plain os errors don't
// share a common error type on Linux).
func classify(err error) error {
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return wrap(ErrNotFound, err)
	}
	if os.IsPermission(err) {
		return wrap(ErrPermission, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such file"), strings.Contains(msg, "no such process"):
		return wrap(ErrNotFound, err)
	case strings.Contains(msg, "permission denied"):
		return wrap(ErrPermission, err)
	default:
		return err
	}
}

type wrapped struct {
	sentinel error
	cause    error
}

func wrap(sentinel, cause error) error {
	return &wrapped{sentinel: sentinel, cause: cause}
}

func (w *wrapped) Error() string { return w.cause.Error() }
func (w *wrapped) Is(target error) bool {
	return target == w.sentinel
}
func (w *wrapped) Unwrap() error { return w.cause }
