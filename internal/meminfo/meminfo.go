// Package meminfo implements C1: parsing the kernel's /proc/meminfo summary
// into an immutable snapshot.
package meminfo

import (
	"fmt"
	"strings"

	"github.com/prometheus/procfs"
)

// Snapshot is the immutable MemorySnapshot of spec §3.
type Snapshot struct {
	MemTotalKiB  int64
	SwapTotalKiB int64

	MemAvailablePct float64
	SwapFreePct     float64

	MemTotalMiB  int64
	SwapTotalMiB int64
}

// ParseError is returned when a mandatory key is missing from the meminfo
// source, per spec §4.1.
type ParseError struct {
	MissingKeys []string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("meminfo: missing mandatory keys: %s", strings.Join(e.MissingKeys, ", "))
}

const defaultRoot = "/proc"

// Reader parses /proc/meminfo via "github.com/prometheus/procfs" (the same
// library internal/procread roots at /proc for C2), rooted at an arbitrary
// directory so tests can point it at a fixture tree instead of the real
// /proc.
type Reader struct {
	fs procfs.FS
}

// New opens a Reader rooted at root (pass "/proc" in production).
func New(root string) (*Reader, error) {
	fs, err := procfs.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("opening proc root %s: %w", root, err)
	}
	return &Reader{fs: fs}, nil
}

// Read parses /proc/meminfo, rooted at the real /proc. Used once at startup
// to size the KiB/percent merge in cmd/earlyoomd before a long-lived Reader
// is constructed for the control loop's repeated reads.
func Read() (Snapshot, error) {
	r, err := New(defaultRoot)
	if err != nil {
		return Snapshot{}, err
	}
	return r.Read()
}

// Read reads the kernel's meminfo summary through procfs.FS.Meminfo and
// checks the mandatory keys of spec §4.1, the way the hand-rolled parser
// this replaced did: procfs.Meminfo's pointer fields are nil exactly when
// the kernel didn't report that key, which nil-checks into the same
// ParseError/MissingKeys contract.
func (r *Reader) Read() (Snapshot, error) {
	mi, err := r.fs.Meminfo()
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading meminfo: %w", err)
	}

	var missing []string
	if mi.MemTotal == nil {
		missing = append(missing, "MemTotal")
	}
	if mi.MemAvailable == nil {
		missing = append(missing, "MemAvailable")
	}
	if mi.SwapTotal == nil {
		missing = append(missing, "SwapTotal")
	}
	if mi.SwapFree == nil {
		missing = append(missing, "SwapFree")
	}
	if len(missing) > 0 {
		return Snapshot{}, &ParseError{MissingKeys: missing}
	}

	return build(int64(*mi.MemTotal), int64(*mi.MemAvailable), int64(*mi.SwapTotal), int64(*mi.SwapFree)), nil
}

// build's inputs are in kB, the unit procfs.Meminfo already reports them in
// (it parses the same "key: value kB" lines /proc/meminfo carries).
func build(memTotalKiB, memAvailableKiB, swapTotalKiB, swapFreeKiB int64) Snapshot {
	snap := Snapshot{
		MemTotalKiB:  memTotalKiB,
		SwapTotalKiB: swapTotalKiB,
		MemTotalMiB:  memTotalKiB / 1024,
		SwapTotalMiB: swapTotalKiB / 1024,
	}

	if memTotalKiB > 0 {
		snap.MemAvailablePct = 100 * float64(memAvailableKiB) / float64(memTotalKiB)
	}

	// Invariant (spec §3): if swap_total_kib == 0, swap_free_pct is defined
	// as 100 so swap conditions never block action.
	if swapTotalKiB == 0 {
		snap.SwapFreePct = 100
	} else {
		snap.SwapFreePct = 100 * float64(swapFreeKiB) / float64(swapTotalKiB)
	}

	return snap
}
