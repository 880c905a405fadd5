package victim

import (
	"github.com/earlyoomd/earlyoomd/internal/config"
)

// kernelUnkillableAdj is the oom_score_adj sentinel the kernel treats as
// "never kill" (spec §4.2).
const kernelUnkillableAdj = -1000

// preferOldDivisorSeconds implements badness += runtime_seconds/600 (spec
// §4.3 rule 6).
const preferOldDivisorSeconds = 600

// Result is the outcome of one full scan.
type Result struct {
	Victim  *Candidate
	Scanned int
}

// Select performs one full pass over the process table and returns at most
// one victim, per spec §4.3. selfPID is the daemon's own PID, used only for
// the hidepid detection (spec §4.3, §8 scenario 6).
func Select(procs ProcReader, th *config.Thresholds, selfPID int) (Result, error) {
	pids, err := procs.AllPIDs()
	if err != nil {
		return Result{}, err
	}

	if len(pids) == 1 && pids[0] == selfPID {
		return Result{}, nil
	}

	needName := th.PreferRegex != nil || th.AvoidRegex != nil || th.PreferOldRegex != nil
	needUsers := th.AvoidUsersRegex != nil

	var best *Candidate
	scanned := 0

	for _, pid := range pids {
		scanned++

		if pid <= 1 {
			continue
		}

		score, err := procs.OOMScore(pid)
		if err != nil {
			continue
		}
		badness := score

		var earlyAdj int
		haveEarlyAdj := false
		if th.IgnoreOOMScoreAdj {
			adj, err := procs.OOMScoreAdj(pid)
			if err != nil {
				continue
			}
			earlyAdj = adj
			haveEarlyAdj = true
			if adj == kernelUnkillableAdj {
				continue
			}
			if adj > 0 {
				badness -= adj
			}
		}

		var name, username string
		var runtime float64
		if needName {
			n, err := procs.Comm(pid)
			if err != nil {
				continue
			}
			name = n

			if th.PreferRegex != nil && th.PreferRegex.MatchString(name) {
				badness += 300
			}
			if th.AvoidRegex != nil && th.AvoidRegex.MatchString(name) {
				badness -= 300
			}
			if th.PreferOldRegex != nil && th.PreferOldRegex.MatchString(name) {
				// Always fetch times right now when prefer_old matches, so a
				// later match never inherits a stale reading left behind by
				// an earlier non-matching candidate (spec §9 open question).
				tm, err := procs.Times(pid)
				if err != nil {
					continue
				}
				runtime = tm.Runtime
				badness += int(runtime) / preferOldDivisorSeconds
			}
		}

		if needUsers {
			u, err := procs.Username(pid)
			if err != nil {
				continue
			}
			username = u
			if th.AvoidUsersRegex.MatchString(username) {
				badness -= 150
			}
		}

		isFirst := best == nil
		if !isFirst && badness < best.Badness {
			continue
		}

		rss, err := procs.RSSKiB(pid)
		if err != nil {
			continue
		}
		if rss == 0 {
			continue
		}

		adj := earlyAdj
		if !haveEarlyAdj {
			a, err := procs.OOMScoreAdj(pid)
			if err != nil {
				continue
			}
			adj = a
		}
		if adj == kernelUnkillableAdj {
			continue
		}

		uid, err := procs.UID(pid)
		if err != nil {
			continue
		}

		cand := &Candidate{
			PID:         pid,
			UID:         uid,
			Badness:     badness,
			RSSKiB:      rss,
			Name:        name,
			Username:    username,
			OOMScoreAdj: adj,
		}

		if isFirst {
			best = cand
			continue
		}
		if badness > best.Badness || (badness == best.Badness && rss > best.RSSKiB) {
			best = cand
		}
	}

	return Result{Victim: best, Scanned: scanned}, nil
}
