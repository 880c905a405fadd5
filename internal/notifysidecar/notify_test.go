package notifysidecar

import (
	"testing"
	"time"
)

func TestNotify_EmptyCommandIsNoop(t *testing.T) {
	s := New("")
	s.Notify("summary", "body") // must not panic or block
}

func TestNotify_SpawnsAndReaps(t *testing.T) {
	s := New("true") // coreutils no-op, present on every Linux host
	s.Notify("summary", "body")
	// give the reaper goroutine a moment; nothing to assert beyond "no panic".
	time.Sleep(10 * time.Millisecond)
}
