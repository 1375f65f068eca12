package spot

import (
	"time"

	"github.com/roach88/skimmer/internal/fsm"
)

// DefaultLastSpottedTTL is how long a sighting stays reportable.
const DefaultLastSpottedTTL = time.Hour

// Sighting is the most recent spot of a callsign.
type Sighting struct {
	Frequency float64   `json:"frequency"`
	At        time.Time `json:"at"`
}

// Tracker remembers recent sightings and rate-limits notifications per
// callsign. Not safe for concurrent use.
type Tracker struct {
	clock    fsm.Clock
	renotify time.Duration
	ttl      time.Duration

	last     map[string]Sighting
	swept    time.Time
	notified map[string]time.Time // callsign -> earliest renotification
}

// NewTracker creates a tracker. renotify is the quiet period after a
// notification during which the same callsign is not notified again.
func NewTracker(clock fsm.Clock, renotify time.Duration) *Tracker {
	if clock == nil {
		clock = fsm.SystemClock{}
	}
	return &Tracker{
		clock:    clock,
		renotify: renotify,
		ttl:      DefaultLastSpottedTTL,
		swept:    clock.Now(),
		last:     make(map[string]Sighting),
		notified: make(map[string]time.Time),
	}
}

// Observe records s as the latest sighting of its callsign. At most once
// per TTL it also forgets every expired sighting.
func (t *Tracker) Observe(s Spot) {
	now := t.clock.Now()
	if now.Sub(t.swept) >= t.ttl {
		for call, seen := range t.last {
			if now.Sub(seen.At) > t.ttl {
				delete(t.last, call)
			}
		}
		t.swept = now
	}
	t.last[s.Callsign] = Sighting{Frequency: s.Frequency, At: now}
}

// LastSpotted returns the latest sighting of callsign. Sightings older than
// the TTL are forgotten on lookup.
func (t *Tracker) LastSpotted(callsign string) (Sighting, bool) {
	s, ok := t.last[callsign]
	if !ok {
		return Sighting{}, false
	}
	if t.clock.Now().Sub(s.At) > t.ttl {
		delete(t.last, callsign)
		return Sighting{}, false
	}
	return s, true
}

// ShouldNotify reports whether callsign is due a notification, and if so
// starts its quiet period. Expired quiet periods are pruned first.
func (t *Tracker) ShouldNotify(callsign string) bool {
	now := t.clock.Now()
	for call, until := range t.notified {
		if now.After(until) {
			delete(t.notified, call)
		}
	}
	if _, quiet := t.notified[callsign]; quiet {
		return false
	}
	t.notified[callsign] = now.Add(t.renotify)
	return true
}

// Len returns the number of remembered sightings.
func (t *Tracker) Len() int {
	return len(t.last)
}
