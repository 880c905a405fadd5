package statusfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/earlyoomd/earlyoomd/internal/control"
)

func TestWrite_FourLineFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status")
	w := New(path)

	require.NoError(t, w.Write(control.StatusTerm, 8.1234, 10.0, 1700000000))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "term\n8.12\n10.00\n1700000000\n", string(data))
}

func TestWrite_TruncatesPreviousContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status")
	w := New(path)

	require.NoError(t, w.Write(control.StatusKill, 99.999, 50.0, 1))
	require.NoError(t, w.Write(control.StatusOK, 1.0, 0, 2))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "ok\n1.00\n0.00\n2\n", string(data))
}
