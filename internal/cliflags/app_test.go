package cliflags

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

func run(t *testing.T, args []string) Values {
	t.Helper()
	var got Values
	app := New(func(v Values) int {
		got = v
		return 0
	})
	app.Writer = testWriter{}
	// The real binary relies on urfave/cli's default ExitErrHandler calling
	// os.Exit with the action's return code; tests override it so Run
	// returns the error instead of killing the test process.
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"earlyoomd"}, args...))
	require.IsType(t, &cli.ExitError{}, err)
	return got
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestParse_MemPairWithBothValues(t *testing.T) {
	v := run(t, []string{"-m", "10,5"})
	require.Equal(t, 10.0, v.MemTermPct)
	require.Equal(t, 5.0, v.MemKillPct)
}

func TestParse_MemPairWithOnlyTermGiven(t *testing.T) {
	v := run(t, []string{"-m", "10"})
	require.Equal(t, 10.0, v.MemTermPct)
	require.Equal(t, -1.0, v.MemKillPct)
}

func TestParse_UnspecifiedFlagsDefaultToSentinel(t *testing.T) {
	v := run(t, []string{})
	require.Equal(t, -1.0, v.MemTermPct)
	require.Equal(t, int64(-1), v.MemTermKiB)
}

func TestParse_BoolAndStringFlags(t *testing.T) {
	v := run(t, []string{"-i", "-n", "-d", "--dryrun", "--prefer", "^foo$", "--avoid", "^bar$", "-c", "/etc/earlyoomd.conf"})
	require.True(t, v.IgnoreOOMScoreAdj)
	require.True(t, v.Notify)
	require.True(t, v.Debug)
	require.True(t, v.DryRun)
	require.Equal(t, "^foo$", v.PreferRegex)
	require.Equal(t, "^bar$", v.AvoidRegex)
	require.Equal(t, "/etc/earlyoomd.conf", v.ConfigPath)
}
