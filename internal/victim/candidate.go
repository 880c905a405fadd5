// Package victim implements C3: the single-pass victim selector.
package victim

import "github.com/earlyoomd/earlyoomd/internal/procread"

// Candidate is the spec §3 ProcCandidate. A Candidate is only ever returned
// once pid, badness and rss_kib have all been populated — partial
// candidates never escape Select.
type Candidate struct {
	PID         int
	UID         int
	Badness     int
	RSSKiB      int64
	Name        string
	Username    string
	Times       procread.Times
	OOMScoreAdj int
}

// ProcReader is the subset of procread.Reader the selector needs. An
// interface so tests can substitute a fixture-backed or failure-injecting
// fake without touching the real filesystem.
type ProcReader interface {
	AllPIDs() ([]int, error)
	OOMScore(pid int) (int, error)
	OOMScoreAdj(pid int) (int, error)
	RSSKiB(pid int) (int64, error)
	Comm(pid int) (string, error)
	UID(pid int) (int, error)
	Username(pid int) (string, error)
	Times(pid int) (procread.Times, error)
}

var _ ProcReader = (*procread.Reader)(nil)
