// Package hardening implements the `-p` priority/mlock hardening of spec
// §6, supplemented from original_source/main.c's sched_setscheduler +
// mlockall sequence. Failures here are logged and ignored, never fatal
// (spec §7 "Environment... mlock failure is logged and ignored").
package hardening

import (
	"os"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/earlyoomd/earlyoomd/internal/obslog"
)

// selfOOMScoreAdj is the value `-p` lowers the daemon's own oom_score_adj
// to, so the kernel never picks the responder itself as a victim.
const selfOOMScoreAdj = -100

// Raise best-effort locks all current and future process memory and lowers
// the daemon's own kill priority. Every failure is logged at Warn; mlockall
// and setpriority failures are swallowed, while a failure to lower the own
// oom_score_adj is also returned, for the caller to log a summary.
func Raise() error {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		obslog.Logger.Warnw("mlockall failed, continuing without memory locking", "error", err)
	}

	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, -20); err != nil {
		obslog.Logger.Warnw("setpriority failed, continuing at default priority", "error", err)
	}

	if err := writeSelfOOMScoreAdj(); err != nil {
		obslog.Logger.Warnw("lowering self oom_score_adj failed", "error", err)
		return err
	}
	return nil
}

func writeSelfOOMScoreAdj() error {
	return os.WriteFile("/proc/self/oom_score_adj", []byte(strconv.Itoa(selfOOMScoreAdj)), 0o644)
}
