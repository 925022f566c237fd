package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"io"
	"sync"
	"time"

	"ocular/pkg/db"
	"ocular/pkg/model"
)

// Store composes all sub-interfaces for full store access.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	CacheStore
	RemoteFieldStore
	IncidentStore
	TripStore
	StateStore

	// Close closes the store connection.
	Close() error
}

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Cache ---

func (s *SQLiteStore) GetCache(ctx context.Context, key string) ([]byte, bool) {
	var val []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM cache WHERE key = ?", key).Scan(&val)
	if err != nil {
		return nil, false
	}

	// Transparent decompression
	if len(val) > 2 && val[0] == 0x1f && val[1] == 0x8b {
		if decompressed, err := decompress(val); err == nil {
			return decompressed, true
		}
	}
	return val, true
}

var (
	gzipWriterPool = sync.Pool{
		New: func() interface{} {
			return gzip.NewWriter(io.Discard)
		},
	}
	bufferPool = sync.Pool{
		New: func() interface{} {
			return new(bytes.Buffer)
		},
	}
)

func compress(data []byte) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	w := gzipWriterPool.Get().(*gzip.Writer)
	defer gzipWriterPool.Put(w)
	w.Reset(buf)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	// buf goes back to the pool
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *SQLiteStore) SetCache(ctx context.Context, key string, val []byte) error {
	if compressed, err := compress(val); err == nil {
		val = compressed
	}
	query := `INSERT OR REPLACE INTO cache (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now().UTC())
	return err
}

// --- Remote fields ---

func (s *SQLiteStore) GetRemoteField(ctx context.Context, field string) ([]byte, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM remote_fields WHERE field = ?", field).Scan(&val)
	if err != nil {
		return nil, false
	}
	return []byte(val), true
}

func (s *SQLiteStore) SetRemoteFields(ctx context.Context, fields map[string][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO remote_fields (field, value, updated_at) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for k, v := range fields {
		if _, err := stmt.ExecContext(ctx, k, string(v), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// --- Incidents ---

func (s *SQLiteStore) SaveIncident(ctx context.Context, inc *model.Incident) error {
	var ended sql.NullTime
	if !inc.EndedAt.IsZero() {
		ended = sql.NullTime{Time: inc.EndedAt.UTC(), Valid: true}
	}
	query := `INSERT OR REPLACE INTO incidents (id, reason, lat, lon, started_at, ended_at, end_reason, max_threshold, escalated, helper)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		inc.ID, inc.Reason, inc.Lat, inc.Lon, inc.StartedAt.UTC(), ended,
		inc.EndReason, inc.MaxThreshold, inc.Escalated, inc.Helper)
	return err
}

const incidentColumns = `id, reason, lat, lon, started_at, ended_at, end_reason, max_threshold, escalated, helper`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*model.Incident, error) {
	var inc model.Incident
	var ended sql.NullTime
	var endReason, helper sql.NullString
	if err := row.Scan(&inc.ID, &inc.Reason, &inc.Lat, &inc.Lon, &inc.StartedAt, &ended,
		&endReason, &inc.MaxThreshold, &inc.Escalated, &helper); err != nil {
		return nil, err
	}
	if ended.Valid {
		inc.EndedAt = ended.Time
	}
	inc.EndReason = endReason.String
	inc.Helper = helper.String
	return &inc, nil
}

func (s *SQLiteStore) GetIncident(ctx context.Context, id string) (*model.Incident, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+incidentColumns+" FROM incidents WHERE id = ?", id)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	return inc, err
}

// OpenIncident returns the most recent incident that has not been closed, or nil.
func (s *SQLiteStore) OpenIncident(ctx context.Context) (*model.Incident, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+incidentColumns+" FROM incidents WHERE ended_at IS NULL ORDER BY started_at DESC LIMIT 1")
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return inc, err
}

func (s *SQLiteStore) ListIncidents(ctx context.Context, since time.Time) ([]*model.Incident, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+incidentColumns+" FROM incidents WHERE started_at >= ? ORDER BY started_at ASC", since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// --- Trips ---

func (s *SQLiteStore) SaveTrip(ctx context.Context, trip *model.Trip) error {
	query := `INSERT OR REPLACE INTO trips (id, destination, origin_lat, origin_lon, steps, completed, outcome, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		trip.ID, trip.Destination, trip.OriginLat, trip.OriginLon, trip.Steps, trip.Completed,
		trip.Outcome, trip.StartedAt.UTC(), trip.EndedAt.UTC())
	return err
}

func (s *SQLiteStore) ListTrips(ctx context.Context, limit int) ([]*model.Trip, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, destination, origin_lat, origin_lon, steps, completed, outcome, started_at, ended_at
		 FROM trips ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Trip
	for rows.Next() {
		var tr model.Trip
		if err := rows.Scan(&tr.ID, &tr.Destination, &tr.OriginLat, &tr.OriginLon, &tr.Steps,
			&tr.Completed, &tr.Outcome, &tr.StartedAt, &tr.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, &tr)
	}
	return out, rows.Err()
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM persistent_state WHERE key = ?", key).Scan(&val)
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	query := `INSERT OR REPLACE INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now().UTC())
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM persistent_state WHERE key = ?", key)
	return err
}
