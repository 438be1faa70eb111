package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/sitecms/internal/clock"
	"github.com/roach88/sitecms/internal/ids"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// createTestStore opens a fresh database in a temp dir with a fake clock
// at testEpoch and sequential ids.
func createTestStore(t *testing.T) (*Store, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(testEpoch)
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(clk), WithIDGenerator(ids.NewSequential("id")))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, clk
}
