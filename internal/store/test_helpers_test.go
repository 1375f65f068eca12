package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/skimmer/internal/spot"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testStart = time.Date(2015, time.March, 1, 12, 0, 0, 0, time.UTC)

func createTestSession(id string) Session {
	return Session{
		ID:      id,
		Cluster: "RBN",
		Host:    "telnet.reversebeacon.net",
		Port:    7000,
		Started: testStart,
	}
}

func createTestSpot(call string, freq float64) spot.Spot {
	return spot.Spot{
		Zulu:      "1234Z",
		Spotter:   "W1AW",
		Frequency: freq,
		Callsign:  call,
		SNR:       "20",
		WPM:       20,
	}
}
