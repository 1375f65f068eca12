package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SpotQuery selects stored spots. Zero fields do not filter.
type SpotQuery struct {
	Callsign  string
	SessionID string
	Band      int

	// Limit keeps only the most recent Limit spots. Results are still
	// returned oldest first.
	Limit int
}

// ReadSpots returns spots matching q in insertion order.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadSpots(ctx context.Context, q SpotQuery) ([]SpotRecord, error) {
	var where []string
	var args []any
	if q.Callsign != "" {
		where = append(where, "callsign = ?")
		args = append(args, strings.ToUpper(q.Callsign))
	}
	if q.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, q.SessionID)
	}
	if q.Band != 0 {
		where = append(where, "band = ?")
		args = append(args, q.Band)
	}

	query := `SELECT id, session_id, received_at, zulu, spotter, frequency, callsign, snr, wpm, band FROM spots`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query spots: %w", err)
	}
	defer rows.Close()

	records := []SpotRecord{}
	for rows.Next() {
		rec, err := scanSpot(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spots: %w", err)
	}

	// newest first from SQL, oldest first to the caller
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

func scanSpot(rows *sql.Rows) (SpotRecord, error) {
	var rec SpotRecord
	var session sql.NullString
	var received int64
	err := rows.Scan(
		&rec.ID,
		&session,
		&received,
		&rec.Zulu,
		&rec.Spotter,
		&rec.Frequency,
		&rec.Callsign,
		&rec.SNR,
		&rec.WPM,
		&rec.Band,
	)
	if err != nil {
		return SpotRecord{}, fmt.Errorf("scan spot: %w", err)
	}
	rec.SessionID = session.String
	rec.Received = fromMillis(received)
	return rec, nil
}

// ReadRejections returns rejected lines in insertion order, optionally
// limited to one session.
func (s *Store) ReadRejections(ctx context.Context, sessionID string) ([]Rejection, error) {
	query := `SELECT id, session_id, received_at, code, line FROM rejections`
	var args []any
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rejections: %w", err)
	}
	defer rows.Close()

	out := []Rejection{}
	for rows.Next() {
		var r Rejection
		var session sql.NullString
		var received int64
		if err := rows.Scan(&r.ID, &session, &received, &r.Code, &r.Line); err != nil {
			return nil, fmt.Errorf("scan rejection: %w", err)
		}
		r.SessionID = session.String
		r.Received = fromMillis(received)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rejections: %w", err)
	}
	return out, nil
}

// ReadSessions returns all sessions ordered by start time, then id.
func (s *Store) ReadSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cluster, host, port, started_at, ended_at, end_reason
		FROM sessions
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := []Session{}
	for rows.Next() {
		var sess Session
		var started int64
		var ended sql.NullInt64
		if err := rows.Scan(&sess.ID, &sess.Cluster, &sess.Host, &sess.Port, &started, &ended, &sess.EndReason); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.Started = fromMillis(started)
		if ended.Valid {
			t := fromMillis(ended.Int64)
			sess.Ended = &t
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// CountSpots returns the number of stored spots.
func (s *Store) CountSpots(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM spots").Scan(&n); err != nil {
		return 0, fmt.Errorf("count spots: %w", err)
	}
	return n, nil
}
