package fileconfig

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sample = `
# a comment
; also a comment
report_interval = 60
nice=-5
ignore_oom_score_adj = true
notify_dbus=no
memory_high=15
memory_kill = 5
swap_kill=5
prefer_regex=^(chrome|firefox)$
avoid_users = root,daemon
emerg_kill = doveadm, php-cgi
unknown_key = 1
`

func TestParse_AllRecognizedKeys(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	require.True(t, cfg.HasReportInterval)
	require.Equal(t, int64(60), cfg.ReportIntervalSec)

	require.True(t, cfg.HasNice)
	require.Equal(t, -5, cfg.Nice)

	require.True(t, cfg.HasIgnoreOOMScoreAdj)
	require.True(t, cfg.IgnoreOOMScoreAdj)

	require.True(t, cfg.HasNotifyDBus)
	require.False(t, cfg.NotifyDBus)

	require.True(t, cfg.HasMemHigh)
	require.Equal(t, 15.0, cfg.MemHighPct)

	require.True(t, cfg.HasMemKill)
	require.Equal(t, 5.0, cfg.MemKillPct)

	require.True(t, cfg.HasSwapKill)
	require.Equal(t, 5.0, cfg.SwapKillPct)

	require.Equal(t, "^(chrome|firefox)$", cfg.PreferRegex)
	require.Equal(t, "root,daemon", cfg.AvoidUsers)

	require.True(t, cfg.HasEmergKill)
	require.Equal(t, []string{"doveadm", "php-cgi"}, cfg.EmergKill)
}

func TestParse_UnrecognizedKeyIsIgnoredNotFatal(t *testing.T) {
	_, err := Parse(strings.NewReader("totally_bogus_key=1\n"))
	require.NoError(t, err)
}

func TestParse_MalformedLineIsFatal(t *testing.T) {
	_, err := Parse(strings.NewReader("not a key value line\n"))
	require.Error(t, err)
}

func TestParse_EmergKillRejectsOverlongName(t *testing.T) {
	long := strings.Repeat("x", 33)
	_, err := Parse(strings.NewReader("emerg_kill=" + long + "\n"))
	require.Error(t, err)
}

func TestParse_BadNumberIsFatal(t *testing.T) {
	_, err := Parse(strings.NewReader("memory_high=not-a-number\n"))
	require.Error(t, err)
}
