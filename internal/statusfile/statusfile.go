// Package statusfile implements the §6 status file: four lines, rewritten
// every control-loop iteration, no locking, readers accept torn reads
// (spec §5 "Shared resources").
package statusfile

import (
	"fmt"
	"os"

	"github.com/earlyoomd/earlyoomd/internal/control"
)

// DefaultPath is where the production daemon writes its status file.
const DefaultPath = "/var/run/earlyoom/status"

// Writer implements control.StatusWriter by truncating and rewriting a
// single file path every call.
type Writer struct {
	Path string
}

// New returns a Writer for path. Pass DefaultPath in production.
func New(path string) *Writer {
	return &Writer{Path: path}
}

// Write implements control.StatusWriter.
func (w *Writer) Write(status control.Status, memAvailablePct, setpoint float64, unixSeconds int64) error {
	f, err := os.OpenFile(w.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("opening status file %s: %w", w.Path, err)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "%s\n%.2f\n%.2f\n%d\n", status, memAvailablePct, setpoint, unixSeconds)
	return err
}

var _ control.StatusWriter = (*Writer)(nil)
