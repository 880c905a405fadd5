// Package control implements C6: the control loop that ties every other
// component together into the poll/decide/act/sleep cycle.
package control

import (
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/earlyoomd/earlyoomd/internal/config"
	"github.com/earlyoomd/earlyoomd/internal/emergency"
	"github.com/earlyoomd/earlyoomd/internal/killer"
	"github.com/earlyoomd/earlyoomd/internal/meminfo"
	"github.com/earlyoomd/earlyoomd/internal/obslog"
	"github.com/earlyoomd/earlyoomd/internal/telemetry"
	"github.com/earlyoomd/earlyoomd/internal/victim"
)

// Status is one of the five words the status file's first line may hold
// (spec §6).
type Status string

const (
	StatusOK        Status = "ok"
	StatusTerm      Status = "term"
	StatusKill      Status = "kill"
	StatusEmergency Status = "emergency"
	StatusHigh      Status = "high"
)

const (
	emergencyCooldownMS = 30000
	emergencySleepMS    = 2000
	killSleepMS         = 50
	termSleepMS         = 500
	hidepidSleepMS      = 1000

	// Adaptive-sleep constants of spec §4.6: worst-observed fill rates
	// (6000 MiB/s RAM, 800 MiB/s swap). Do not tune these down silently.
	memFillKiBPerMS  = 6000
	swapFillKiBPerMS = 800
	minSleepMS       = 100
	maxSleepMS       = 1000
)

// MemReader refreshes the memory snapshot.
type MemReader interface {
	Read() (meminfo.Snapshot, error)
}

// StatusWriter persists the four-line status file of spec §6 every
// iteration.
type StatusWriter interface {
	Write(status Status, memAvailablePct, setpoint float64, unixSeconds int64) error
}

// Notifier fires the fire-and-forget desktop notification sidecar of spec
// §6, only ever called after a kill attempt.
type Notifier interface {
	Notify(summary, body string)
}

// Sleeper abstracts time.Sleep for virtual-time tests (spec §9).
type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// RealSleeper is the production Sleeper.
var RealSleeper Sleeper = realSleeper{}

// Deps bundles every collaborator the loop needs. Notify and Status may be
// nil to disable those side effects (e.g. in tests).
type Deps struct {
	Mem     MemReader
	Procs   victim.ProcReader
	Kill    killer.Deps
	Emerg   emergency.Signaler
	Status  StatusWriter
	Notify  Notifier
	Sleep   Sleeper
	SelfPID int
	Now     func() int64 // defaults to time.Now().Unix()
}

// Loop is the mutable C6 driver: ControlState plus its immutable
// Thresholds and collaborators.
type Loop struct {
	th    *config.Thresholds
	deps  Deps
	state config.State
}

// New constructs a Loop. ControlState starts with no hysteresis and no
// cooldown; the first periodic report is due one full report interval
// after start.
func New(th *config.Thresholds, deps Deps) *Loop {
	if deps.Sleep == nil {
		deps.Sleep = RealSleeper
	}
	if deps.Now == nil {
		deps.Now = func() int64 { return time.Now().Unix() }
	}
	return &Loop{
		th:   th,
		deps: deps,
		state: config.State{
			ReportCountdownMS: th.ReportIntervalMS,
		},
	}
}

// SelfTest implements spec §4.6's startup self-test: a single C3+C4 pass
// with signal=0, so a fatal misconfiguration surfaces immediately instead
// of after memory is locked.
func (l *Loop) SelfTest() error {
	result, err := victim.Select(l.deps.Procs, l.th, l.deps.SelfPID)
	if err != nil {
		return err
	}
	if result.Victim == nil {
		return nil
	}
	_, err = killer.Escalate(result.Victim.PID, config.SigNone, l.th, l.deps.Kill)
	return err
}

// Run executes the control loop forever. It only returns on a fatal error
// from a collaborator that the spec treats as fatal (Environment errors).
// A failed meminfo read, a failed victim scan, and a scan that finds no
// victim are logged and followed by a one-second sleep (spec §7).
func (l *Loop) Run() error {
	for {
		if err := l.iterate(); err != nil {
			return err
		}
	}
}

// Step runs exactly one iteration. Exported so tests can drive the loop
// deterministically without an infinite Run.
func (l *Loop) Step() error {
	return l.iterate()
}

func (l *Loop) iterate() error {
	snap, err := l.deps.Mem.Read()
	if err != nil {
		obslog.Logger.Errorw("meminfo read failed, retrying", "error", err)
		l.sleepAndAdvance(1000)
		return nil
	}

	telemetry.ObserveMemory(snap.MemAvailablePct, snap.SwapFreePct)

	sig, status, setpoint := l.decide(snap)
	l.state.CurrentSetpoint = setpoint

	if l.deps.Status != nil {
		if err := l.deps.Status.Write(status, snap.MemAvailablePct, setpoint, l.deps.Now()); err != nil {
			obslog.Logger.Warnw("status file write failed", "error", err)
		}
	}

	var sleepMS int64

	switch {
	case sig == config.SigNone:
		l.state.HysteresisSig = config.SigNone
		sleepMS = l.handleIdle(snap)

	case status == StatusEmergency:
		n, err := emergency.Run(l.deps.Procs, l.deps.Mem, l.deps.Emerg, l.th)
		if err != nil {
			obslog.Logger.Errorw("emergency sweep failed", "error", err)
		}
		obslog.Logger.Infow("emergency kill", "killed", n)
		telemetry.ObserveEmergency()
		l.state.EmergencyInvoked = true
		l.state.EmergencyCooldownMS = emergencyCooldownMS
		l.state.HysteresisSig = sig
		l.notifyAfterKill(status)
		sleepMS = emergencySleepMS

	default:
		escalated, attempted := l.selectAndKill(sig)
		l.state.HysteresisSig = sig
		if !attempted {
			sleepMS = hidepidSleepMS
			break
		}
		l.notifyAfterKill(status)
		// Spec §4.6 step 4: 50ms whenever this pass ends up delivering
		// SIGKILL, whether decided directly or escalated mid-wait.
		if sig == config.SigKill || escalated {
			sleepMS = killSleepMS
		} else {
			sleepMS = termSleepMS
		}
	}

	l.sleepAndAdvance(sleepMS)
	return nil
}

// decide applies the §4.6 step-2 priority chain, first match wins.
func (l *Loop) decide(snap meminfo.Snapshot) (sig config.Signal, status Status, setpoint float64) {
	th := l.th

	emergencyReady := len(th.EmergencyNames) > 0 &&
		l.state.EmergencyCooldownMS <= 0 &&
		snap.MemAvailablePct <= th.MemEmergPct &&
		snap.SwapFreePct <= th.SwapKillPct
	if emergencyReady {
		return config.SigKill, StatusEmergency, th.MemEmergPct
	}

	if snap.MemAvailablePct <= th.MemKillPct && snap.SwapFreePct <= th.SwapKillPct {
		return config.SigKill, StatusKill, th.MemKillPct
	}

	if snap.MemAvailablePct <= th.MemTermPct && snap.SwapFreePct <= th.SwapTermPct {
		return config.SigTerm, StatusTerm, th.MemTermPct
	}

	if l.state.HysteresisSig != config.SigNone && snap.MemAvailablePct <= th.MemHighPct {
		return l.state.HysteresisSig, StatusHigh, th.MemHighPct
	}

	return config.SigNone, StatusOK, 0
}

// selectAndKill runs C3 then C4 and reports whether the kill escalated to
// SIGKILL mid-wait, and whether a kill was attempted at all (false when the
// scan failed or found no victim).
func (l *Loop) selectAndKill(sig config.Signal) (escalated, attempted bool) {
	result, err := victim.Select(l.deps.Procs, l.th, l.deps.SelfPID)
	if err != nil {
		obslog.Logger.Errorw("victim scan failed", "error", err)
		return false, false
	}
	if result.Victim == nil {
		obslog.Logger.Warnw("no victim found", "scanned", result.Scanned)
		return false, false
	}

	out, err := killer.Escalate(result.Victim.PID, sig, l.th, l.deps.Kill)
	effective := sig
	if out.Escalated {
		effective = config.SigKill
	}
	telemetry.ObserveKill(effective)
	if err != nil {
		obslog.Logger.Warnw("kill escalation did not confirm exit", "pid", result.Victim.PID, "error", err)
	} else {
		obslog.Logger.Infow("killed victim", "pid", result.Victim.PID, "name", result.Victim.Name, "badness", result.Victim.Badness, "rss", humanize.IBytes(uint64(result.Victim.RSSKiB)*1024), "escalated", out.Escalated)
	}
	return out.Escalated, true
}

func (l *Loop) notifyAfterKill(status Status) {
	if l.deps.Notify == nil || !l.th.Notify {
		return
	}
	l.deps.Notify.Notify("earlyoomd", "low memory, killed a process ("+string(status)+")")
}

// handleIdle emits the periodic report (if due) and computes the next
// adaptive sleep (spec §4.6 step 5, §4.6 "Adaptive sleep").
func (l *Loop) handleIdle(snap meminfo.Snapshot) int64 {
	if l.th.ReportIntervalMS > 0 && l.state.ReportCountdownMS <= 0 {
		obslog.Logger.Infow("periodic memory report", "mem_available_pct", snap.MemAvailablePct, "swap_free_pct", snap.SwapFreePct)
		l.state.ReportCountdownMS = l.th.ReportIntervalMS
	}
	return AdaptiveSleepMS(snap, l.th)
}

// AdaptiveSleepMS implements spec §4.6's adaptive sleep formula, exported
// for direct property testing.
func AdaptiveSleepMS(snap meminfo.Snapshot, th *config.Thresholds) int64 {
	headroomMemKiB := math.Max(0, (snap.MemAvailablePct-th.MemTermPct)*10*float64(snap.MemTotalMiB))
	headroomSwapKiB := math.Max(0, (snap.SwapFreePct-th.SwapTermPct)*10*float64(snap.SwapTotalMiB))

	sleepMS := headroomMemKiB/memFillKiBPerMS + headroomSwapKiB/swapFillKiBPerMS

	if sleepMS < minSleepMS {
		return minSleepMS
	}
	if sleepMS > maxSleepMS {
		return maxSleepMS
	}
	return int64(sleepMS)
}

func (l *Loop) sleepAndAdvance(ms int64) {
	l.deps.Sleep.Sleep(time.Duration(ms) * time.Millisecond)
	l.state.AdvanceClock(ms)
}

// State exposes a read-only snapshot of ControlState, for tests and status
// reporting.
func (l *Loop) State() config.State {
	return l.state
}
