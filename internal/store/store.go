package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/abdullahx404/startsmart/internal/suitability"
)

// ErrNotFound is returned when a recommendation id has no row.
var ErrNotFound = errors.New("recommendation not found")

// HistoryStore persists completed recommendations to SQLite so past
// evaluations of a cell can be listed and re-fetched.
type HistoryStore struct {
	db *sqlx.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS recommendations (
	id                TEXT PRIMARY KEY,
	cell_id           TEXT NOT NULL,
	latitude          REAL NOT NULL,
	longitude         REAL NOT NULL,
	radius_m          INTEGER NOT NULL,
	category          TEXT NOT NULL,
	mode              TEXT NOT NULL,
	contextual_status TEXT NOT NULL,
	best_category     TEXT NOT NULL,
	best_score        REAL NOT NULL,
	result            TEXT NOT NULL,
	created_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recommendations_cell ON recommendations (cell_id, created_at);
CREATE INDEX IF NOT EXISTS idx_recommendations_created ON recommendations (created_at);
`

func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &HistoryStore{db: db}, nil
}

func (s *HistoryStore) Close() error { return s.db.Close() }

// Entry is one persisted recommendation. Result holds the full
// CombinedRecommendation as stored JSON.
type Entry struct {
	ID               string    `db:"id" json:"id"`
	CellID           string    `db:"cell_id" json:"cell_id"`
	Latitude         float64   `db:"latitude" json:"latitude"`
	Longitude        float64   `db:"longitude" json:"longitude"`
	RadiusMeters     int       `db:"radius_m" json:"radius_meters"`
	Category         string    `db:"category" json:"category"`
	Mode             string    `db:"mode" json:"mode"`
	ContextualStatus string    `db:"contextual_status" json:"contextual_status"`
	BestCategory     string    `db:"best_category" json:"best_category"`
	BestScore        float64   `db:"best_score" json:"best_score"`
	Result           string    `db:"result" json:"-"`
	CreatedAt        time.Time `db:"-" json:"created_at"`

	CreatedAtRaw string `db:"created_at" json:"-"`
}

// Save persists a completed recommendation and returns its id.
func (s *HistoryStore) Save(ctx context.Context, req suitability.Request, rec *suitability.CombinedRecommendation) (string, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal recommendation: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recommendations
			(id, cell_id, latitude, longitude, radius_m, category, mode, contextual_status, best_category, best_score, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.CellID, req.Latitude, req.Longitude, req.RadiusMeters, req.Category,
		string(rec.Mode), string(rec.ContextualStatus), rec.Best.Category, rec.Best.Score,
		string(payload), rec.GeneratedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("insert recommendation: %w", err)
	}
	return id, nil
}

// Get fetches one entry with its stored result decoded.
func (s *HistoryStore) Get(ctx context.Context, id string) (*Entry, *suitability.CombinedRecommendation, error) {
	var e Entry
	err := s.db.GetContext(ctx, &e, `SELECT * FROM recommendations WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("select recommendation: %w", err)
	}
	if err := e.decodeTime(); err != nil {
		return nil, nil, err
	}
	var rec suitability.CombinedRecommendation
	if err := json.Unmarshal([]byte(e.Result), &rec); err != nil {
		return nil, nil, fmt.Errorf("decode stored result: %w", err)
	}
	return &e, &rec, nil
}

// List returns newest-first entries, optionally filtered to one cell.
func (s *HistoryStore) List(ctx context.Context, cellID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var entries []Entry
	var err error
	if cellID != "" {
		err = s.db.SelectContext(ctx, &entries,
			`SELECT * FROM recommendations WHERE cell_id = ? ORDER BY created_at DESC LIMIT ?`, cellID, limit)
	} else {
		err = s.db.SelectContext(ctx, &entries,
			`SELECT * FROM recommendations ORDER BY created_at DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	for i := range entries {
		if err := entries[i].decodeTime(); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (e *Entry) decodeTime() error {
	t, err := time.Parse(time.RFC3339Nano, e.CreatedAtRaw)
	if err != nil {
		return fmt.Errorf("decode created_at: %w", err)
	}
	e.CreatedAt = t
	return nil
}
