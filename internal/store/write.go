package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/skimmer/internal/spot"
)

// Session is one established feed session.
type Session struct {
	ID        string     `json:"id"`
	Cluster   string     `json:"cluster"`
	Host      string     `json:"host"`
	Port      int        `json:"port"`
	Started   time.Time  `json:"started"`
	Ended     *time.Time `json:"ended,omitempty"`
	EndReason string     `json:"end_reason,omitempty"`
}

// SpotRecord is a stored spot.
type SpotRecord struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	Received  time.Time `json:"received"`
	Band      int       `json:"band"`
	spot.Spot
}

// Rejection is a stored malformed line.
type Rejection struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id,omitempty"`
	Received  time.Time       `json:"received"`
	Code      spot.RejectCode `json:"code"`
	Line      string          `json:"line"`
}

// WriteSession inserts a session. Uses ON CONFLICT(id) DO NOTHING for
// idempotency - writing the same session twice is not an error.
func (s *Store) WriteSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, cluster, host, port, started_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		sess.Cluster,
		sess.Host,
		sess.Port,
		toMillis(sess.Started),
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// EndSession records when and why a session ended. Ending an unknown or
// already ended session is a no-op.
func (s *Store) EndSession(ctx context.Context, id string, at time.Time, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET ended_at = ?, end_reason = ?
		WHERE id = ? AND ended_at IS NULL
	`, toMillis(at), reason, id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// WriteSpot appends a spot and returns its row id. sessionID may be empty
// for spots parsed offline; otherwise the session must exist (foreign key).
func (s *Store) WriteSpot(ctx context.Context, sessionID string, received time.Time, sp spot.Spot) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO spots
		(session_id, received_at, zulu, spotter, frequency, callsign, snr, wpm, band)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		nullString(sessionID),
		toMillis(received),
		sp.Zulu,
		sp.Spotter,
		sp.Frequency,
		sp.Callsign,
		sp.SNR,
		sp.WPM,
		sp.Band(),
	)
	if err != nil {
		return 0, fmt.Errorf("write spot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("write spot: last insert id: %w", err)
	}
	return id, nil
}

// WriteRejection appends a rejected line.
func (s *Store) WriteRejection(ctx context.Context, sessionID string, received time.Time, rej *spot.RejectError) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rejections (session_id, received_at, code, line)
		VALUES (?, ?, ?, ?)
	`,
		nullString(sessionID),
		toMillis(received),
		string(rej.Code),
		rej.Line,
	)
	if err != nil {
		return fmt.Errorf("write rejection: %w", err)
	}
	return nil
}
