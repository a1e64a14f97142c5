package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/neuroidss/ToolArtifact/internal/logging"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tool_vectors (
	id TEXT PRIMARY KEY,
	document TEXT NOT NULL,
	embedding BLOB NOT NULL,
	metadata TEXT NOT NULL,
	created_at TEXT NOT NULL
);`

// SQLiteStore keeps records in a single SQLite table. The modernc driver
// ("sqlite") ranks with the vector_distance_cos SQL function; the mattn
// driver ("sqlite3") ranks in Go unless built with sqlite_vec.
type SQLiteStore struct {
	db       *sql.DB
	driver   string
	distance string
}

// NewSQLiteStore opens (or creates) the database at path with the named driver.
func NewSQLiteStore(driverName, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite store path is required")
	}
	if driverName == "" {
		driverName = "sqlite"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store open: %w", err)
	}
	// One connection keeps writes ordered and avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", sqliteSchema} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite store init (%s): %w", strings.Fields(stmt)[0], err)
		}
	}

	s := &SQLiteStore{db: db, driver: driverName, distance: distanceFuncs[driverName]}
	logging.StoreDebug("SQLite store ready: driver=%s path=%s sql_ranking=%v", driverName, path, s.distance != "")
	return s, nil
}

// Get returns the record with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	if id == "" {
		return Record{}, ErrEmptyID
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, document, embedding, metadata FROM tool_vectors WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("sqlite get %s: %w", id, err)
	}
	return rec, nil
}

// Add inserts rec; a conflicting id leaves the existing row untouched.
func (s *SQLiteStore) Add(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return ErrEmptyID
	}
	if len(rec.Embedding) == 0 {
		return fmt.Errorf("add %s: embedding is empty", rec.ID)
	}
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata for %s: %w", rec.ID, err)
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO tool_vectors (id, document, embedding, metadata, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`,
		rec.ID, rec.Document, encodeFloat32(rec.Embedding), string(meta), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite insert %s: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite insert %s: %w", rec.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, rec.ID)
	}
	logging.StoreDebug("SQLite: added %s", rec.ID)
	return nil
}

// Query returns the k nearest records. Equal distances keep insertion order.
func (s *SQLiteStore) Query(ctx context.Context, embedding []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	if s.distance != "" {
		return s.querySQL(ctx, embedding, k)
	}
	return s.queryScan(ctx, embedding, k)
}

// querySQL ranks in the database. Rows of another dimension are filtered
// out before the distance function sees them, as queryScan skips them.
func (s *SQLiteStore) querySQL(ctx context.Context, embedding []float32, k int) ([]Match, error) {
	q := fmt.Sprintf(`
SELECT id, document, embedding, metadata, %s(embedding, ?) AS dist
FROM tool_vectors
WHERE length(embedding) = ?
ORDER BY dist ASC, rowid ASC
LIMIT ?`, s.distance)

	blob := encodeFloat32(embedding)
	rows, err := s.db.QueryContext(ctx, q, blob, len(blob), k)
	if err != nil {
		return nil, fmt.Errorf("sqlite query: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			rec      Record
			blob     []byte
			meta     string
			distance float64
		)
		if err := rows.Scan(&rec.ID, &rec.Document, &blob, &meta, &distance); err != nil {
			return nil, fmt.Errorf("sqlite scan: %w", err)
		}
		if err := fillRecord(&rec, blob, meta); err != nil {
			return nil, err
		}
		matches = append(matches, Match{Record: rec, Similarity: float32(1 - distance)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite rows: %w", err)
	}
	return matches, nil
}

func (s *SQLiteStore) queryScan(ctx context.Context, embedding []float32, k int) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document, embedding, metadata FROM tool_vectors ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan: %w", err)
		}
		if len(rec.Embedding) != len(embedding) {
			logging.Get(logging.CategoryStore).Warn("SQLite: skipping %s, dimension %d != %d", rec.ID, len(rec.Embedding), len(embedding))
			continue
		}
		matches = append(matches, Match{Record: rec, Similarity: cosine(embedding, rec.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite rows: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Count returns the number of stored rows.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tool_vectors`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite count: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec  Record
		blob []byte
		meta string
	)
	if err := row.Scan(&rec.ID, &rec.Document, &blob, &meta); err != nil {
		return Record{}, err
	}
	if err := fillRecord(&rec, blob, meta); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func fillRecord(rec *Record, blob []byte, meta string) error {
	vec, err := decodeFloat32(blob)
	if err != nil {
		return fmt.Errorf("decode embedding for %s: %w", rec.ID, err)
	}
	rec.Embedding = vec
	if meta != "" && meta != "null" {
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return fmt.Errorf("decode metadata for %s: %w", rec.ID, err)
		}
	}
	return nil
}
