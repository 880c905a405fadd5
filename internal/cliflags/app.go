// Package cliflags declares earlyoomd's command-line surface, grounded on
// cmd/gpud/command/command.go's urfave/cli v1 App/flag idiom. Unlike gpud's
// subcommand tree, earlyoomd exposes a single flat flag surface (spec §6),
// so this App has no subcommands: everything lives on app.Flags and
// app.Action.
package cliflags

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/earlyoomd/earlyoomd/internal/config"
)

// Values holds the parsed, not-yet-merged CLI flag values. Percentages and
// KiB values default to -1 ("not given") so config.MinPercent can apply the
// -m/-M merge rule (spec §6).
type Values struct {
	MemTermPct, MemKillPct   float64
	MemTermKiB, MemKillKiB   int64
	SwapTermPct, SwapKillPct float64
	SwapTermKiB, SwapKillKiB int64

	IgnoreOOMScoreAdj bool
	Notify            bool
	Debug             bool
	ReportIntervalSec int64
	RaisePriority     bool
	ConfigPath        string
	PreferRegex       string
	AvoidRegex        string
	DryRun            bool
}

// New builds the App. action receives the parsed Values and returns the
// exit code to hand to os.Exit (cli already prints usage/version and exits
// 0 for -h/-v before action ever runs).
func New(action func(Values) int) *cli.App {
	app := cli.NewApp()
	app.Name = "earlyoomd"
	app.Usage = "early userspace OOM responder"
	app.Version = "0.1.0"

	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "mem,m", Usage: "RAM term%[,kill%] (default kill = term/2)"},
		cli.StringFlag{Name: "swap,s", Usage: "swap term%[,kill%]"},
		cli.StringFlag{Name: "mem-kib,M", Usage: "RAM term KiB[,kill KiB], minimum of -m/-M wins"},
		cli.StringFlag{Name: "swap-kib,S", Usage: "swap term KiB[,kill KiB], minimum of -s/-S wins"},
		cli.BoolFlag{Name: "ignore-oom-score-adj,i", Usage: "ignore positive oom_score_adj"},
		cli.BoolFlag{Name: "notify,n", Usage: "enable desktop notifications"},
		cli.StringFlag{Name: "notify-compat,N", Usage: "accepted and ignored, for compatibility"},
		cli.BoolFlag{Name: "debug,d", Usage: "debug logging"},
		cli.IntFlag{Name: "report-interval,r", Usage: "periodic report interval in seconds, 0 disables"},
		cli.BoolFlag{Name: "priority,p", Usage: "raise priority and lower own oom_score_adj to -100"},
		cli.StringFlag{Name: "config,c", Usage: "load config file"},
		cli.StringFlag{Name: "prefer", Usage: "regex of process names to prefer as victims"},
		cli.StringFlag{Name: "avoid", Usage: "regex of process names to avoid as victims"},
		cli.BoolFlag{Name: "dryrun", Usage: "log intended kills instead of sending real signals"},
	}

	app.Action = func(c *cli.Context) error {
		v, err := parse(c)
		if err != nil {
			return cli.NewExitError(err.Error(), config.ExitBadNumericArgument)
		}
		return cli.NewExitError("", action(v))
	}

	return app
}

func parse(c *cli.Context) (Values, error) {
	v := Values{
		MemTermPct: -1, MemKillPct: -1,
		MemTermKiB: -1, MemKillKiB: -1,
		SwapTermPct: -1, SwapKillPct: -1,
		SwapTermKiB: -1, SwapKillKiB: -1,
	}

	var err error
	if s := c.String("mem"); s != "" {
		v.MemTermPct, v.MemKillPct, err = parsePair(s)
		if err != nil {
			return v, fmt.Errorf("-m: %w", err)
		}
	}
	if s := c.String("swap"); s != "" {
		v.SwapTermPct, v.SwapKillPct, err = parsePair(s)
		if err != nil {
			return v, fmt.Errorf("-s: %w", err)
		}
	}
	if s := c.String("mem-kib"); s != "" {
		a, b, err := parsePairInt(s)
		if err != nil {
			return v, fmt.Errorf("-M: %w", err)
		}
		v.MemTermKiB, v.MemKillKiB = a, b
	}
	if s := c.String("swap-kib"); s != "" {
		a, b, err := parsePairInt(s)
		if err != nil {
			return v, fmt.Errorf("-S: %w", err)
		}
		v.SwapTermKiB, v.SwapKillKiB = a, b
	}

	v.IgnoreOOMScoreAdj = c.Bool("ignore-oom-score-adj")
	v.Notify = c.Bool("notify")
	v.Debug = c.Bool("debug")
	v.ReportIntervalSec = int64(c.Int("report-interval"))
	v.RaisePriority = c.Bool("priority")
	v.ConfigPath = c.String("config")
	v.PreferRegex = c.String("prefer")
	v.AvoidRegex = c.String("avoid")
	v.DryRun = c.Bool("dryrun")

	return v, nil
}

func parsePair(s string) (float64, float64, error) {
	return splitNumberPair(s, parseFloat)
}

func parsePairInt(s string) (int64, int64, error) {
	return splitNumberPairInt(s, parseInt)
}
