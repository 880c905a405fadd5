// Package daemonsig wires OS signal delivery into the daemon's lifecycle,
// grounded on cmd/gpud/command/signals.go's signal.Notify/goroutine idiom.
package daemonsig

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"github.com/earlyoomd/earlyoomd/internal/config"
	"github.com/earlyoomd/earlyoomd/internal/obslog"
)

// Handle installs the signal set of spec §5/§7. The control loop runs
// forever by design (spec §4.6), so there is no in-process state to drain on
// shutdown: SIGTERM/SIGINT exit cleanly with 0, and SIGPIPE — the Self error
// kind of spec §7 — aborts immediately with exit code 99, unlike the
// teacher's gpud, which swallows SIGPIPE to avoid a signal storm on a dead
// stdout pipe.
func Handle() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGTERM, unix.SIGINT, unix.SIGPIPE)

	go func() {
		for s := range sigCh {
			if s == unix.SIGPIPE {
				obslog.Logger.Errorw("SIGPIPE on output stream, aborting", "exit_code", config.ExitSIGPIPE)
				os.Exit(config.ExitSIGPIPE)
			}
			obslog.Logger.Infow("received signal, shutting down", "signal", s)
			os.Exit(config.ExitOK)
		}
	}()
}
