// Package sqlstore persists feature vectors in SQLite or Postgres.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // registers "postgres"
	_ "modernc.org/sqlite" // registers "sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS feature_vectors (
	location_id  TEXT NOT NULL,
	date         TEXT NOT NULL,
	lon          DOUBLE PRECISION NOT NULL,
	lat          DOUBLE PRECISION NOT NULL,
	complete     BOOLEAN NOT NULL,
	generated_at TEXT NOT NULL,
	vector       TEXT NOT NULL,
	PRIMARY KEY (location_id, date)
)`

const upsert = `
INSERT INTO feature_vectors (location_id, date, lon, lat, complete, generated_at, vector)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (location_id, date) DO UPDATE SET
	lon = excluded.lon,
	lat = excluded.lat,
	complete = excluded.complete,
	generated_at = excluded.generated_at,
	vector = excluded.vector`

// Store implements domain.FeatureStore and pipeline.BatchLoader. Vectors
// are kept as self-describing JSON keyed by (location_id, date).
type Store struct {
	db *sqlx.DB
}

// Open connects with driver ("sqlite" or "postgres") and creates the table
// if needed.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// SQLite allows one writer; an in-memory database also exists per connection.
		db.SetMaxOpenConns(1)
	}
	s, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database and applies the schema.
func New(ctx context.Context, db *sqlx.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("migrate feature store: %w", err)
	}
	return &Store{db: db}, nil
}

type row struct {
	LocationID  string  `db:"location_id"`
	Date        string  `db:"date"`
	Lon         float64 `db:"lon"`
	Lat         float64 `db:"lat"`
	Complete    bool    `db:"complete"`
	GeneratedAt string  `db:"generated_at"`
	Vector      string  `db:"vector"`
}

func toRow(fv domain.FeatureVector) (row, error) {
	data, err := json.Marshal(fv)
	if err != nil {
		return row{}, fmt.Errorf("encode vector: %w", err)
	}
	loc := fv.Location()
	return row{
		LocationID:  loc.ID,
		Date:        fv.Date().Format(time.DateOnly),
		Lon:         loc.Lon,
		Lat:         loc.Lat,
		Complete:    fv.Complete(),
		GeneratedAt: fv.GeneratedAt().Format(time.RFC3339Nano),
		Vector:      string(data),
	}, nil
}

// Store upserts fv under (loc, date). The vector must carry the same key.
func (s *Store) Store(ctx context.Context, loc domain.Location, date time.Time, fv domain.FeatureVector) error {
	if fv.Location().ID != loc.ID || !fv.Date().Equal(date) {
		return domain.ConfigErrorf("vector", "key %s/%s does not match vector %s/%s",
			loc.ID, date.Format(time.DateOnly), fv.Location().ID, fv.Date().Format(time.DateOnly))
	}
	r, err := toRow(fv)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(upsert),
		r.LocationID, r.Date, r.Lon, r.Lat, r.Complete, r.GeneratedAt, r.Vector); err != nil {
		return fmt.Errorf("store vector %s/%s: %w", r.LocationID, r.Date, err)
	}
	return nil
}

// LoadBatch upserts every vector in one transaction.
func (s *Store) LoadBatch(ctx context.Context, vectors []domain.FeatureVector) (err error) {
	if len(vectors) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(upsert))
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i := range vectors {
		r, err := toRow(vectors[i])
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			r.LocationID, r.Date, r.Lon, r.Lat, r.Complete, r.GeneratedAt, r.Vector); err != nil {
			return fmt.Errorf("store vector %s/%s: %w", r.LocationID, r.Date, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load returns the vector stored under (loc, date), or domain.ErrNotFound.
func (s *Store) Load(ctx context.Context, loc domain.Location, date time.Time) (domain.FeatureVector, error) {
	var data string
	err := s.db.GetContext(ctx, &data,
		s.db.Rebind(`SELECT vector FROM feature_vectors WHERE location_id = ? AND date = ?`),
		loc.ID, date.Format(time.DateOnly))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FeatureVector{}, fmt.Errorf("vector %s/%s: %w", loc.ID, date.Format(time.DateOnly), domain.ErrNotFound)
	}
	if err != nil {
		return domain.FeatureVector{}, fmt.Errorf("load vector: %w", err)
	}
	var fv domain.FeatureVector
	if err := json.Unmarshal([]byte(data), &fv); err != nil {
		return domain.FeatureVector{}, fmt.Errorf("decode vector %s: %w", loc.ID, err)
	}
	return fv, nil
}

// Summary describes one stored vector without decoding it.
type Summary struct {
	Date        string `db:"date" json:"date"`
	Complete    bool   `db:"complete" json:"complete"`
	GeneratedAt string `db:"generated_at" json:"generated_at"`
}

// List returns the stored dates of a location in ascending order.
func (s *Store) List(ctx context.Context, locationID string) ([]Summary, error) {
	var out []Summary
	err := s.db.SelectContext(ctx, &out,
		s.db.Rebind(`SELECT date, complete, generated_at FROM feature_vectors WHERE location_id = ? ORDER BY date`),
		locationID)
	if err != nil {
		return nil, fmt.Errorf("list vectors: %w", err)
	}
	return out, nil
}

// Ping checks the connection. It satisfies a readiness check.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }
