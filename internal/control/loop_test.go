package control

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/earlyoomd/earlyoomd/internal/config"
	"github.com/earlyoomd/earlyoomd/internal/killer"
	"github.com/earlyoomd/earlyoomd/internal/meminfo"
	"github.com/earlyoomd/earlyoomd/internal/procread"
)

type fixedMem struct {
	snap meminfo.Snapshot
}

func (f *fixedMem) Read() (meminfo.Snapshot, error) { return f.snap, nil }

type onePidProcs struct {
	pid   int
	rss   int64
	score int
}

func (p onePidProcs) AllPIDs() ([]int, error)                   { return []int{p.pid}, nil }
func (p onePidProcs) OOMScore(int) (int, error)                 { return p.score, nil }
func (p onePidProcs) OOMScoreAdj(int) (int, error)              { return 0, nil }
func (p onePidProcs) RSSKiB(int) (int64, error)                 { return p.rss, nil }
func (p onePidProcs) Comm(int) (string, error)                  { return "victim", nil }
func (p onePidProcs) UID(int) (int, error)                      { return 1000, nil }
func (p onePidProcs) Username(int) (string, error)              { return "user", nil }
func (p onePidProcs) Times(int) (procread.Times, error)         { return procread.Times{}, nil }

type noopSleeper struct{ slept []time.Duration }

func (s *noopSleeper) Sleep(d time.Duration) { s.slept = append(s.slept, d) }

type fakeSignaler struct{ signals []config.Signal }

func (f *fakeSignaler) Signal(pid int, sig config.Signal) error {
	f.signals = append(f.signals, sig)
	return nil
}

type alwaysDead struct{}

func (alwaysDead) IsAlive(int) bool { return false }

type capturedStatus struct {
	status   Status
	memPct   float64
	setpoint float64
}

type fakeStatusWriter struct{ writes []capturedStatus }

func (w *fakeStatusWriter) Write(status Status, memAvailablePct, setpoint float64, unixSeconds int64) error {
	w.writes = append(w.writes, capturedStatus{status, memAvailablePct, setpoint})
	return nil
}

func baseThresholds() *config.Thresholds {
	return &config.Thresholds{
		MemHighPct:  15,
		MemTermPct:  10,
		MemKillPct:  5,
		MemEmergPct: 2,
		SwapTermPct: 10,
		SwapKillPct: 5,
	}
}

func TestLoop_NoPressureIdlesAndClampsSleep(t *testing.T) {
	th := baseThresholds()
	status := &fakeStatusWriter{}
	sleeper := &noopSleeper{}

	l := New(th, Deps{
		Mem:    &fixedMem{snap: meminfo.Snapshot{MemAvailablePct: 60, SwapFreePct: 80, MemTotalMiB: 16000, SwapTotalMiB: 16000}},
		Procs:  onePidProcs{pid: 2, rss: 1000, score: 0},
		Status: status,
		Sleep:  sleeper,
		Now:    func() int64 { return 0 },
	})

	require.NoError(t, l.Step())
	require.Len(t, status.writes, 1)
	require.Equal(t, StatusOK, status.writes[0].status)
	require.Equal(t, 0.0, status.writes[0].setpoint)
	require.Equal(t, []time.Duration{1000 * time.Millisecond}, sleeper.slept)
}

func TestLoop_TermTriggerSendsSIGTERMAndArmsHysteresis(t *testing.T) {
	th := baseThresholds()
	status := &fakeStatusWriter{}
	sleeper := &noopSleeper{}
	sig := &fakeSignaler{}

	l := New(th, Deps{
		Mem:   &fixedMem{snap: meminfo.Snapshot{MemAvailablePct: 8, SwapFreePct: 5, MemTotalMiB: 1000, SwapTotalMiB: 1000}},
		Procs: onePidProcs{pid: 2, rss: 1000, score: 50},
		Kill: killer.Deps{
			Signaler: sig,
			Alive:    alwaysDead{},
			Mem:      &fixedMem{snap: meminfo.Snapshot{MemAvailablePct: 8, SwapFreePct: 5}},
			Sleep:    &killerNoopSleeper{},
		},
		Status: status,
		Sleep:  sleeper,
		Now:    func() int64 { return 0 },
	})

	require.NoError(t, l.Step())
	require.Equal(t, StatusTerm, status.writes[0].status)
	require.Equal(t, []config.Signal{config.SigTerm}, sig.signals)
	require.Equal(t, config.SigTerm, l.State().HysteresisSig)
	require.Equal(t, []time.Duration{termSleepMS * time.Millisecond}, sleeper.slept)
}

type killerNoopSleeper struct{}

func (killerNoopSleeper) Sleep(time.Duration) {}

func TestLoop_KillTriggerSendsSIGKILLDirectly(t *testing.T) {
	th := baseThresholds()
	status := &fakeStatusWriter{}
	sleeper := &noopSleeper{}
	sig := &fakeSignaler{}

	l := New(th, Deps{
		Mem:   &fixedMem{snap: meminfo.Snapshot{MemAvailablePct: 4, SwapFreePct: 3, MemTotalMiB: 1000, SwapTotalMiB: 1000}},
		Procs: onePidProcs{pid: 2, rss: 1000, score: 50},
		Kill: killer.Deps{
			Signaler: sig,
			Alive:    alwaysDead{},
			Mem:      &fixedMem{snap: meminfo.Snapshot{MemAvailablePct: 4, SwapFreePct: 3}},
			Sleep:    &killerNoopSleeper{},
		},
		Status: status,
		Sleep:  sleeper,
		Now:    func() int64 { return 0 },
	})

	require.NoError(t, l.Step())
	require.Equal(t, StatusKill, status.writes[0].status)
	require.Equal(t, []config.Signal{config.SigKill}, sig.signals)
	require.Equal(t, []time.Duration{killSleepMS * time.Millisecond}, sleeper.slept)
}

func TestLoop_HysteresisKeepsKillingUntilHighWatermark(t *testing.T) {
	th := baseThresholds()
	status := &fakeStatusWriter{}
	sleeper := &noopSleeper{}
	sig := &fakeSignaler{}

	l := New(th, Deps{
		Mem:   &fixedMem{snap: meminfo.Snapshot{MemAvailablePct: 12, SwapFreePct: 50, MemTotalMiB: 1000, SwapTotalMiB: 1000}},
		Procs: onePidProcs{pid: 2, rss: 1000, score: 50},
		Kill: killer.Deps{
			Signaler: sig,
			Alive:    alwaysDead{},
			Mem:      &fixedMem{snap: meminfo.Snapshot{MemAvailablePct: 12, SwapFreePct: 50}},
			Sleep:    &killerNoopSleeper{},
		},
		Status: status,
		Sleep:  sleeper,
		Now:    func() int64 { return 0 },
	})
	l.state.HysteresisSig = config.SigKill

	require.NoError(t, l.Step())
	require.Equal(t, StatusHigh, status.writes[0].status)
	require.Equal(t, th.MemHighPct, status.writes[0].setpoint)
	require.Equal(t, []config.Signal{config.SigKill}, sig.signals)
}

type namedProcs struct {
	pids []int
	comm map[int]string
}

func (p namedProcs) AllPIDs() ([]int, error)           { return p.pids, nil }
func (p namedProcs) OOMScore(int) (int, error)         { return 0, nil }
func (p namedProcs) OOMScoreAdj(int) (int, error)      { return 0, nil }
func (p namedProcs) RSSKiB(int) (int64, error)         { return 0, nil }
func (p namedProcs) Comm(pid int) (string, error)      { return p.comm[pid], nil }
func (p namedProcs) UID(int) (int, error)              { return 0, nil }
func (p namedProcs) Username(int) (string, error)      { return "", nil }
func (p namedProcs) Times(int) (procread.Times, error) { return procread.Times{}, nil }

type sequenceMem struct {
	readings []meminfo.Snapshot
	i        int
}

func (m *sequenceMem) Read() (meminfo.Snapshot, error) {
	s := m.readings[m.i]
	if m.i < len(m.readings)-1 {
		m.i++
	}
	return s, nil
}

func TestLoop_EmergencyInvokesSweepAndArmsCooldown(t *testing.T) {
	th := baseThresholds()
	th.EmergencyNames = []string{"doveadm", "php-cgi"}
	status := &fakeStatusWriter{}
	sleeper := &noopSleeper{}
	emergSig := &fakeSignaler{}

	mem := &sequenceMem{readings: []meminfo.Snapshot{
		{MemAvailablePct: 1, SwapFreePct: 0, MemTotalMiB: 1000, SwapTotalMiB: 1000}, // iteration decide() read
		{MemAvailablePct: 1, SwapFreePct: 0},                                       // emergency.Run's own first read
		{MemAvailablePct: 20, SwapFreePct: 50},                                     // recovers, stop before php-cgi
	}}

	l := New(th, Deps{
		Mem:   mem,
		Procs: namedProcs{pids: []int{10, 11}, comm: map[int]string{10: "doveadm", 11: "php-cgi"}},
		Emerg: emergSig,
		Status: status,
		Sleep:  sleeper,
		Now:    func() int64 { return 0 },
	})

	require.NoError(t, l.Step())
	require.Equal(t, StatusEmergency, status.writes[0].status)
	require.Equal(t, []config.Signal{config.SigKill}, emergSig.signals)
	require.True(t, l.State().EmergencyInvoked)
	// Armed at 30000ms, then advanced by this iteration's own 2000ms sleep.
	require.Equal(t, int64(emergencyCooldownMS-emergencySleepMS), l.State().EmergencyCooldownMS)
	require.Equal(t, []time.Duration{emergencySleepMS * time.Millisecond}, sleeper.slept)
}

func TestLoop_EmergencyDebounceBlocksSecondFire(t *testing.T) {
	th := baseThresholds()
	th.EmergencyNames = []string{"doveadm"}
	l := New(th, Deps{
		Mem:   &fixedMem{snap: meminfo.Snapshot{MemAvailablePct: 1, SwapFreePct: 0, MemTotalMiB: 1000, SwapTotalMiB: 1000}},
		Procs: onePidProcs{pid: 2, rss: 1000, score: 50},
		Kill: killer.Deps{
			Signaler: &fakeSignaler{},
			Alive:    alwaysDead{},
			Mem:      &fixedMem{snap: meminfo.Snapshot{MemAvailablePct: 1, SwapFreePct: 0}},
			Sleep:    &killerNoopSleeper{},
		},
		Sleep: &noopSleeper{},
		Now:   func() int64 { return 0 },
	})
	l.state.EmergencyCooldownMS = 5000

	sig, status, _ := l.decide(meminfo.Snapshot{MemAvailablePct: 1, SwapFreePct: 0})
	require.Equal(t, config.SigKill, sig)
	require.Equal(t, StatusKill, status, "emergency must not fire again during cooldown, falls through to the kill branch")
}

func TestAdaptiveSleep_ClampedAndMonotonic(t *testing.T) {
	th := baseThresholds()

	low := AdaptiveSleepMS(meminfo.Snapshot{MemAvailablePct: 20, SwapFreePct: 20, MemTotalMiB: 1, SwapTotalMiB: 1}, th)
	require.GreaterOrEqual(t, low, int64(minSleepMS))
	require.LessOrEqual(t, low, int64(maxSleepMS))

	high := AdaptiveSleepMS(meminfo.Snapshot{MemAvailablePct: 90, SwapFreePct: 90, MemTotalMiB: 100000, SwapTotalMiB: 100000}, th)
	require.Equal(t, int64(maxSleepMS), high)
	require.GreaterOrEqual(t, high, low)
}
