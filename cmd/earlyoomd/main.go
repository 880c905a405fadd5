// Command earlyoomd is the daemon entrypoint: parse flags and config, build
// the immutable threshold bundle, wire every component's concrete
// implementation into internal/control.Deps, and run the loop.
package main

import (
	"fmt"
	"os"
	"regexp"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/earlyoomd/earlyoomd/internal/cliflags"
	"github.com/earlyoomd/earlyoomd/internal/config"
	"github.com/earlyoomd/earlyoomd/internal/control"
	"github.com/earlyoomd/earlyoomd/internal/daemonsig"
	"github.com/earlyoomd/earlyoomd/internal/fileconfig"
	"github.com/earlyoomd/earlyoomd/internal/hardening"
	"github.com/earlyoomd/earlyoomd/internal/killer"
	"github.com/earlyoomd/earlyoomd/internal/meminfo"
	"github.com/earlyoomd/earlyoomd/internal/notifysidecar"
	"github.com/earlyoomd/earlyoomd/internal/obslog"
	"github.com/earlyoomd/earlyoomd/internal/procread"
	"github.com/earlyoomd/earlyoomd/internal/procsignal"
	"github.com/earlyoomd/earlyoomd/internal/statusfile"
	"github.com/earlyoomd/earlyoomd/internal/telemetry"
)

func main() {
	app := cliflags.New(run)
	_ = app.Run(os.Args)
}

// run builds and starts the daemon from parsed flags, returning the process
// exit code of spec §6. It never returns 0 in practice since control.Run
// loops forever; only startup failures return here.
func run(v cliflags.Values) int {
	level, err := obslog.ParseLevel(levelFor(v.Debug))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return config.ExitBadArgument
	}
	obslog.Configure(level, "")

	th, err := buildThresholds(v)
	if err != nil {
		obslog.Logger.Errorw("startup configuration failed", "error", err)
		if ec, ok := err.(*config.ExitError); ok {
			return ec.ExitCode()
		}
		return config.ExitBadArgument
	}

	if v.RaisePriority {
		if err := hardening.Raise(); err != nil {
			obslog.Logger.Warnw("hardening.Raise failed, continuing unprivileged", "error", err)
		}
	}

	procs, err := procread.New("/proc")
	if err != nil {
		obslog.Logger.Errorw("cannot open /proc", "error", err)
		return config.ExitCannotOpenProc
	}

	memReader, err := meminfo.New("/proc")
	if err != nil {
		obslog.Logger.Errorw("cannot open /proc for meminfo", "error", err)
		return config.ExitCannotOpenProc
	}

	if err := telemetry.Register(prometheus.DefaultRegisterer); err != nil {
		obslog.Logger.Warnw("telemetry registration failed, continuing without metrics", "error", err)
	}

	var notifier control.Notifier
	if th.Notify {
		notifier = notifysidecar.New(notifyCommand)
	}

	sender := procsignal.Sender{}

	deps := control.Deps{
		Mem:   memReader,
		Procs: procs,
		Kill: killer.Deps{
			Signaler:     sender,
			Alive:        procs,
			Mem:          memReader,
			Sleep:        killer.RealSleeper,
			IsPermission: procsignal.IsPermission,
			IsNoSuchProc: procsignal.IsNoSuchProcess,
		},
		Emerg:   sender,
		Status:  statusfile.New(statusfile.DefaultPath),
		Notify:  notifier,
		Sleep:   control.RealSleeper,
		SelfPID: os.Getpid(),
	}

	loop := control.New(th, deps)

	daemonsig.Handle()

	if err := loop.SelfTest(); err != nil {
		obslog.Logger.Errorw("startup self-test failed", "error", err)
		return config.ExitCannotEnterProc
	}

	if err := loop.Run(); err != nil {
		obslog.Logger.Errorw("control loop exited", "error", err)
		return config.ExitCannotOpenProc
	}
	return config.ExitOK
}

func levelFor(debug bool) string {
	if debug {
		return "debug"
	}
	return "info"
}

// Defaults matching upstream earlyoom's historical behavior, used only when
// neither the config file nor a CLI flag supplies a value.
const (
	defaultMemTermPct  = 10
	defaultSwapTermPct = 10
)

// buildThresholds applies the config file as the base layer, then lets an
// explicitly-given CLI flag override it field by field (the merge order
// recorded as a REDESIGN decision in SPEC_FULL.md §A.3: the spec's literal
// "config overrides CLI" reading is backwards from what the rest of §6 -
// "minimum of -m/-M wins" - assumes). The -m/-M minimum-wins rule is
// resolved within the CLI layer before it is compared against the file.
func buildThresholds(v cliflags.Values) (*config.Thresholds, error) {
	snap, err := meminfo.Read()
	if err != nil {
		return nil, &config.ExitError{Code: config.ExitCannotOpenProc, Err: err}
	}

	var fc *fileconfig.File
	if v.ConfigPath != "" {
		fc, err = fileconfig.Load(v.ConfigPath)
		if err != nil {
			return nil, &config.ExitError{Code: config.ExitCannotOpenConfig, Err: err}
		}
	}

	cliMemTerm, memTermGiven := mergeKiBPair(v.MemTermPct, v.MemTermKiB, snap.MemTotalKiB)
	cliMemKill, memKillGiven := mergeKiBPair(v.MemKillPct, v.MemKillKiB, snap.MemTotalKiB)
	cliSwapTerm, swapTermGiven := mergeKiBPair(v.SwapTermPct, v.SwapTermKiB, snap.SwapTotalKiB)
	cliSwapKill, swapKillGiven := mergeKiBPair(v.SwapKillPct, v.SwapKillKiB, snap.SwapTotalKiB)

	memTermPct := pick(memTermGiven, cliMemTerm, fc != nil && fc.HasMemLow, valOr(fc, func(f *fileconfig.File) float64 { return f.MemLowPct }), defaultMemTermPct)
	memKillPct := pick(memKillGiven, cliMemKill, fc != nil && fc.HasMemKill, valOr(fc, func(f *fileconfig.File) float64 { return f.MemKillPct }), -1)
	swapTermPct := pick(swapTermGiven, cliSwapTerm, fc != nil && fc.HasSwapLow, valOr(fc, func(f *fileconfig.File) float64 { return f.SwapLowPct }), defaultSwapTermPct)
	swapKillPct := pick(swapKillGiven, cliSwapKill, fc != nil && fc.HasSwapKill, valOr(fc, func(f *fileconfig.File) float64 { return f.SwapKillPct }), -1)

	preferRegex := pickString(v.PreferRegex != "", v.PreferRegex, fc != nil && fc.HasPreferRegex, valOr(fc, func(f *fileconfig.File) string { return f.PreferRegex }))
	avoidRegex := pickString(v.AvoidRegex != "", v.AvoidRegex, fc != nil && fc.HasAvoidRegex, valOr(fc, func(f *fileconfig.File) string { return f.AvoidRegex }))
	avoidUsers := valOr(fc, func(f *fileconfig.File) string { return f.AvoidUsers })
	preferOldRegex := valOr(fc, func(f *fileconfig.File) string { return f.PreferOldRegex })

	reportIntervalSec := pickInt(v.ReportIntervalSec != 0, v.ReportIntervalSec, fc != nil && fc.HasReportInterval, valOr(fc, func(f *fileconfig.File) int64 { return f.ReportIntervalSec }))

	ignoreAdj := v.IgnoreOOMScoreAdj || (fc != nil && fc.HasIgnoreOOMScoreAdj && fc.IgnoreOOMScoreAdj)
	notifyDBus := v.Notify || (fc != nil && fc.HasNotifyDBus && fc.NotifyDBus)

	var emergNames []string
	if fc != nil && fc.HasEmergKill {
		emergNames = fc.EmergKill
	}

	return finish(memTermPct, memKillPct, swapTermPct, swapKillPct, fc, preferRegex, avoidRegex, avoidUsers, preferOldRegex, emergNames, ignoreAdj, notifyDBus, v.DryRun, reportIntervalSec)
}

// mergeKiBPair resolves a single -m/-M-style watermark: minimum of the
// percentage flag and the KiB flag converted to a percentage (spec §6).
// given is false when neither was supplied.
func mergeKiBPair(pct float64, kib, totalKiB int64) (float64, bool) {
	given := pct >= 0 || kib >= 0
	if !given {
		return 0, false
	}
	if kib >= 0 && totalKiB > 0 {
		return config.MinPercent(pct, kibToPct(kib, totalKiB)), true
	}
	return pct, true
}

func pick(cliGiven bool, cliVal float64, fileGiven bool, fileVal, def float64) float64 {
	switch {
	case cliGiven:
		return cliVal
	case fileGiven:
		return fileVal
	default:
		return def
	}
}

func pickString(cliGiven bool, cliVal string, fileGiven bool, fileVal string) string {
	if cliGiven {
		return cliVal
	}
	if fileGiven {
		return fileVal
	}
	return ""
}

func pickInt(cliGiven bool, cliVal int64, fileGiven bool, fileVal int64) int64 {
	if cliGiven {
		return cliVal
	}
	if fileGiven {
		return fileVal
	}
	return 0
}

func valOr[T any](fc *fileconfig.File, get func(*fileconfig.File) T) T {
	var zero T
	if fc == nil {
		return zero
	}
	return get(fc)
}

func finish(memTermPct, memKillPct, swapTermPct, swapKillPct float64, fc *fileconfig.File, preferRegex, avoidRegex, avoidUsers, preferOldRegex string, emergNames []string, ignoreAdj, notifyDBus, dryRun bool, reportIntervalSec int64) (*config.Thresholds, error) {
	if memKillPct < 0 {
		memKillPct = config.DefaultKillPercent(memTermPct)
	}
	if swapKillPct < 0 {
		swapKillPct = swapTermPct / 2
	}

	memHighPct := memTermPct
	if fc != nil && fc.HasMemHigh {
		memHighPct = fc.MemHighPct
	}

	memEmergPct := memKillPct / 2
	if fc != nil && fc.HasMemEmerg {
		memEmergPct = fc.MemEmergPct
	}

	th := &config.Thresholds{
		MemHighPct:        memHighPct,
		MemTermPct:        memTermPct,
		MemKillPct:        memKillPct,
		MemEmergPct:       memEmergPct,
		SwapTermPct:       swapTermPct,
		SwapKillPct:       swapKillPct,
		EmergencyNames:    emergNames,
		IgnoreOOMScoreAdj: ignoreAdj,
		Notify:            notifyDBus,
		DryRun:            dryRun,
		ReportIntervalMS:  reportIntervalSec * 1000,
	}

	var err error
	th.PreferRegex, err = compileOptional(preferRegex)
	if err != nil {
		return nil, &config.ExitError{Code: config.ExitRegexCompile, Err: err}
	}
	th.AvoidRegex, err = compileOptional(avoidRegex)
	if err != nil {
		return nil, &config.ExitError{Code: config.ExitRegexCompile, Err: err}
	}
	th.AvoidUsersRegex, err = compileOptional(avoidUsers)
	if err != nil {
		return nil, &config.ExitError{Code: config.ExitRegexCompile, Err: err}
	}
	th.PreferOldRegex, err = compileOptional(preferOldRegex)
	if err != nil {
		return nil, &config.ExitError{Code: config.ExitRegexCompile, Err: err}
	}

	if err := th.Validate(); err != nil {
		return nil, &config.ExitError{Code: config.ExitBadArgument, Err: err}
	}
	return th, nil
}

func compileOptional(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile(pattern)
}

func kibToPct(kib, totalKiB int64) float64 {
	if totalKiB == 0 {
		return 0
	}
	return 100 * float64(kib) / float64(totalKiB)
}

const notifyCommand = "/usr/bin/notify-send"
