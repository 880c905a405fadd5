// Package emergency implements C5: an unconditional, un-dryrunnable sweep
// that SIGKILLs every process matching a configured ordered name list.
package emergency

import (
	"github.com/earlyoomd/earlyoomd/internal/config"
	"github.com/earlyoomd/earlyoomd/internal/meminfo"
)

// ProcReader is the subset of process-table access emergency needs: PID
// enumeration and a byte-exact name read.
type ProcReader interface {
	AllPIDs() ([]int, error)
	Comm(pid int) (string, error)
}

// MemReader refreshes the memory snapshot between names, per spec §4.5 step
// 1.
type MemReader interface {
	Read() (meminfo.Snapshot, error)
}

// Signaler delivers SIGKILL. Never honours dryrun (spec §4.5: "by design,
// emergency is unconditional").
type Signaler interface {
	Signal(pid int, sig config.Signal) error
}

// Run implements the C5 contract of spec §4.5: iterate th.EmergencyNames in
// order, stopping early once mem_available_pct recovers above
// mem_high_pct, and kills every PID whose comm equals the current name.
// Returns the total kill count.
func Run(procs ProcReader, mem MemReader, sig Signaler, th *config.Thresholds) (int, error) {
	total := 0

	for _, name := range th.EmergencyNames {
		snap, err := mem.Read()
		if err != nil {
			return total, err
		}
		if snap.MemAvailablePct > th.MemHighPct {
			break
		}

		pids, err := procs.AllPIDs()
		if err != nil {
			return total, err
		}

		for _, pid := range pids {
			comm, err := procs.Comm(pid)
			if err != nil {
				continue // transient per-PID read failure, tolerated silently
			}
			if comm != name {
				continue
			}
			if err := sig.Signal(pid, config.SigKill); err == nil {
				total++
			}
		}
	}

	return total, nil
}
