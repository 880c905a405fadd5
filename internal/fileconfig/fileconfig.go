// Package fileconfig parses the `-c` config file of spec §6: a line-
// oriented key=value format with no ecosystem analogue (not YAML/TOML/INI
// with sections), so this module reads it with bufio.Scanner rather than
// pulling in a structured-config library that doesn't fit the grammar.
package fileconfig

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/earlyoomd/earlyoomd/internal/obslog"
)

const (
	maxEmergencyNames   = 64
	maxEmergencyNameLen = 32
)

// File is the parsed key=value bag of spec §6. Zero value means "key
// absent"; callers merge Present fields onto CLI-derived values, since
// config flags override CLI when both are present.
type File struct {
	ReportIntervalSec int64
	HasReportInterval bool

	Nice    int
	HasNice bool

	IgnoreOOMScoreAdj    bool
	HasIgnoreOOMScoreAdj bool

	NotifyDBus    bool
	HasNotifyDBus bool

	MemHighPct, MemLowPct, MemKillPct, MemEmergPct float64
	HasMemHigh, HasMemLow, HasMemKill, HasMemEmerg bool

	SwapLowPct, SwapKillPct float64
	HasSwapLow, HasSwapKill bool

	PreferRegex, AvoidRegex, AvoidUsers, PreferOldRegex             string
	HasPreferRegex, HasAvoidRegex, HasAvoidUsers, HasPreferOldRegex bool

	EmergKill    []string
	HasEmergKill bool
}

var boolKeys = map[string]struct{}{
	"ignore_oom_score_adj": {},
	"notify_dbus":          {},
}

// Load opens path and parses it.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads the key=value grammar from r. Comments start with # or ;,
// blank lines are skipped, and unrecognized keys produce a warning and are
// otherwise ignored (spec §6).
func Parse(r io.Reader) (*File, error) {
	cfg := &File{}
	s := bufio.NewScanner(r)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("config line %d: expected key=value, got %q", lineNo, line)
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if err := apply(cfg, key, val); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNo, err)
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

func apply(cfg *File, key, val string) error {
	switch key {
	case "report_interval":
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("report_interval: %w", err)
		}
		cfg.ReportIntervalSec, cfg.HasReportInterval = n, true

	case "nice":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("nice: %w", err)
		}
		cfg.Nice, cfg.HasNice = n, true

	case "ignore_oom_score_adj":
		b, err := parseBool(val)
		if err != nil {
			return fmt.Errorf("ignore_oom_score_adj: %w", err)
		}
		cfg.IgnoreOOMScoreAdj, cfg.HasIgnoreOOMScoreAdj = b, true

	case "notify_dbus":
		b, err := parseBool(val)
		if err != nil {
			return fmt.Errorf("notify_dbus: %w", err)
		}
		cfg.NotifyDBus, cfg.HasNotifyDBus = b, true

	case "memory_high":
		v, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("memory_high: %w", err)
		}
		cfg.MemHighPct, cfg.HasMemHigh = v, true

	case "memory_low":
		v, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("memory_low: %w", err)
		}
		cfg.MemLowPct, cfg.HasMemLow = v, true

	case "memory_kill":
		v, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("memory_kill: %w", err)
		}
		cfg.MemKillPct, cfg.HasMemKill = v, true

	case "memory_emerg":
		v, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("memory_emerg: %w", err)
		}
		cfg.MemEmergPct, cfg.HasMemEmerg = v, true

	case "swap_low":
		v, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("swap_low: %w", err)
		}
		cfg.SwapLowPct, cfg.HasSwapLow = v, true

	case "swap_kill":
		v, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("swap_kill: %w", err)
		}
		cfg.SwapKillPct, cfg.HasSwapKill = v, true

	case "prefer_regex":
		cfg.PreferRegex, cfg.HasPreferRegex = val, true

	case "avoid_regex":
		cfg.AvoidRegex, cfg.HasAvoidRegex = val, true

	case "avoid_users":
		cfg.AvoidUsers, cfg.HasAvoidUsers = val, true

	case "prefer_old":
		cfg.PreferOldRegex, cfg.HasPreferOldRegex = val, true

	case "emerg_kill":
		names := splitNames(val)
		if len(names) > maxEmergencyNames {
			return fmt.Errorf("emerg_kill: %d entries exceeds max %d", len(names), maxEmergencyNames)
		}
		for _, n := range names {
			if len(n) > maxEmergencyNameLen {
				return fmt.Errorf("emerg_kill: name %q exceeds %d bytes", n, maxEmergencyNameLen)
			}
		}
		cfg.EmergKill, cfg.HasEmergKill = names, true

	default:
		obslog.Logger.Warnw("unrecognized config key, ignoring", "key", key)
	}
	return nil
}

func splitNames(val string) []string {
	parts := strings.Split(val, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			names = append(names, p)
		}
	}
	return names
}

func parseBool(val string) (bool, error) {
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("not a boolean: %q", val)
	}
}
