// Package procread implements C2: per-PID read-only accessors over /proc.
//
// Every accessor opens only the files it needs (one per accessor, except
// Times, which also reads /proc/uptime), so the victim selector's
// lazy-fetch contract (spec §4.3) is observable by counting calls. Enumeration of the PID table itself is delegated to
// "github.com/prometheus/procfs" (same library the teacher uses in
// pkg/file/descriptors_linux.go and pkg/uptime/uptime_linux.go), rooted at
// an arbitrary directory so tests can point it at a fixture tree instead of
// the real /proc.
package procread

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/prometheus/procfs"
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// ClockTicksPerSecond is sysconf(_SC_CLK_TCK) on every Linux platform this
// daemon targets. Reading it dynamically needs cgo; every other /proc-based
// tool in the example pack (temoto-peacemaker's sysconf_linux.go) hardcodes
// the same historical value, which this module keeps.
const ClockTicksPerSecond = 100

var pageSizeKiB = int64(os.Getpagesize()) / 1024

// Reader is a read-only view over a /proc-like directory tree.
type Reader struct {
	root string
	fs   procfs.FS

	reads atomic.Int64
}

// New opens a Reader rooted at root (pass "/proc" in production).
func New(root string) (*Reader, error) {
	fs, err := procfs.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("opening proc root %s: %w", root, err)
	}
	return &Reader{root: root, fs: fs}, nil
}

// ReadCount returns the number of /proc accesses performed so far: per-PID
// file reads, /proc/uptime reads, IsAlive stats and Username lookups.
// Exported purely for tests asserting the optimization contract of spec
// §4.3.
func (r *Reader) ReadCount() int64 { return r.reads.Load() }

// AllPIDs returns every PID currently in the process table, in the
// directory-iteration order procfs observed it — this is the selector's
// implicit tie-break key (spec §4.3).
func (r *Reader) AllPIDs() ([]int, error) {
	procs, err := r.fs.AllProcs()
	if err != nil {
		return nil, classify(err)
	}
	pids := make([]int, len(procs))
	for i, p := range procs {
		pids[i] = p.PID
	}
	return pids, nil
}

func (r *Reader) path(pid int, file string) string {
	return filepath.Join(r.root, strconv.Itoa(pid), file)
}

func (r *Reader) readFile(pid int, file string) ([]byte, error) {
	r.reads.Add(1)
	data, err := os.ReadFile(r.path(pid, file))
	if err != nil {
		return nil, classify(err)
	}
	return data, nil
}

// OOMScore reads /proc/[pid]/oom_score.
func (r *Reader) OOMScore(pid int) (int, error) {
	data, err := r.readFile(pid, "oom_score")
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: oom_score: %v", ErrParse, err)
	}
	return v, nil
}

// OOMScoreAdj reads /proc/[pid]/oom_score_adj. A value of -1000 means
// kernel-unkillable (spec §4.2).
func (r *Reader) OOMScoreAdj(pid int) (int, error) {
	data, err := r.readFile(pid, "oom_score_adj")
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: oom_score_adj: %v", ErrParse, err)
	}
	return v, nil
}

// RSSKiB reads /proc/[pid]/statm and returns resident set size in KiB.
// 0 means kernel thread (spec §4.2).
func (r *Reader) RSSKiB(pid int) (int64, error) {
	data, err := r.readFile(pid, "statm")
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return 0, fmt.Errorf("%w: statm: too few fields", ErrParse)
	}
	pages, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: statm rss: %v", ErrParse, err)
	}
	return pages * pageSizeKiB, nil
}

const maxCommBytes = 255

// Comm reads /proc/[pid]/comm. The kernel already truncates this to 15
// bytes; maxCommBytes is only a defensive cap (spec §3 ProcCandidate.name).
func (r *Reader) Comm(pid int) (string, error) {
	data, err := r.readFile(pid, "comm")
	if err != nil {
		return "", err
	}
	name := strings.TrimRight(string(data), "\n")
	if len(name) > maxCommBytes {
		name = name[:maxCommBytes]
	}
	return name, nil
}

// UID reads the real UID from /proc/[pid]/status ("Uid:" line).
func (r *Reader) UID(pid int) (int, error) {
	data, err := r.readFile(pid, "status")
	if err != nil {
		return 0, err
	}
	s := bufio.NewScanner(strings.NewReader(string(data)))
	for s.Scan() {
		line := s.Text()
		if !strings.HasPrefix(line, "Uid:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, fmt.Errorf("%w: status Uid line", ErrParse)
		}
		uid, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0, fmt.Errorf("%w: status Uid value: %v", ErrParse, err)
		}
		return uid, nil
	}
	return 0, fmt.Errorf("%w: status: no Uid line", ErrParse)
}

// Username resolves a UID to a username for the avoid_users match, via
// gopsutil (teacher pkg/process/pids.go already depends on
// "github.com/shirou/gopsutil/v4/process" for the same host-process
// surface). A lookup failure classifies like any other per-PID failure.
func (r *Reader) Username(pid int) (string, error) {
	r.reads.Add(1)
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return "", classify(err)
	}
	name, err := p.Username()
	if err != nil {
		return "", classify(err)
	}
	return name, nil
}

// Times is the §4.2 `times(pid)` tuple, in seconds.
type Times struct {
	Utime   float64
	Stime   float64
	Cutime  float64
	Cstime  float64
	Runtime float64
}

// statRegexp mirrors the /proc/[pid]/stat grammar: pid, a parenthesised
// comm (may itself contain spaces/parens), state, then numeric fields.
// Grounded on temoto-peacemaker/proc.go's reStat and original_source's
// proctime_t field list.
var statRegexp = regexp.MustCompile(`^` +
	`(\d+) \((.*)\) ([RSDZTWXxKPI]) (\d+) (\d+) (\d+) (-?\d+) ` +
	`(-?\d+) (\d+) (\d+) (\d+) (\d+) (\d+) ` +
	`(\d+) (\d+) (-?\d+) (-?\d+) (-?\d+) (-?\d+) (\d+) (\d+) ` +
	`(\d+) (\d+) (\d+).*`)

const (
	statFieldUtime     = 14
	statFieldStime     = 15
	statFieldCutime    = 16
	statFieldCstime    = 17
	statFieldStarttime = 22
)

// Times reads /proc/[pid]/stat and /proc/uptime to compute CPU and wall
// times in seconds. runtime = uptime - starttime/HZ, clamped >= 0 (spec
// §4.2).
func (r *Reader) Times(pid int) (Times, error) {
	data, err := r.readFile(pid, "stat")
	if err != nil {
		return Times{}, err
	}
	m := statRegexp.FindStringSubmatch(strings.TrimRight(string(data), "\n"))
	if m == nil {
		return Times{}, fmt.Errorf("%w: stat: unexpected format", ErrParse)
	}

	utime, _ := strconv.ParseFloat(m[statFieldUtime], 64)
	stime, _ := strconv.ParseFloat(m[statFieldStime], 64)
	cutime, _ := strconv.ParseFloat(m[statFieldCutime], 64)
	cstime, _ := strconv.ParseFloat(m[statFieldCstime], 64)
	starttime, _ := strconv.ParseFloat(m[statFieldStarttime], 64)

	uptime, err := r.uptimeSeconds()
	if err != nil {
		return Times{}, err
	}

	runtime := uptime - starttime/ClockTicksPerSecond
	if runtime < 0 {
		runtime = 0
	}

	return Times{
		Utime:   utime / ClockTicksPerSecond,
		Stime:   stime / ClockTicksPerSecond,
		Cutime:  cutime / ClockTicksPerSecond,
		Cstime:  cstime / ClockTicksPerSecond,
		Runtime: runtime,
	}, nil
}

func (r *Reader) uptimeSeconds() (float64, error) {
	r.reads.Add(1)
	data, err := os.ReadFile(filepath.Join(r.root, "uptime"))
	if err != nil {
		return 0, classify(err)
	}
	fields := strings.Fields(string(data))
	if len(fields) < 1 {
		return 0, fmt.Errorf("%w: uptime: empty", ErrParse)
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: uptime: %v", ErrParse, err)
	}
	return v, nil
}

// IsAlive reports whether the PID entry is still present (spec §4.2).
func (r *Reader) IsAlive(pid int) bool {
	r.reads.Add(1)
	_, err := os.Stat(filepath.Join(r.root, strconv.Itoa(pid)))
	return err == nil
}
