package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no profile exists for the given ID.
var ErrNotFound = errors.New("profile not found")

// Store persists bank profiles across imports.
type Store interface {
	Get(ctx context.Context, id string) (*Profile, error)
	List(ctx context.Context) ([]*Profile, error)
	Put(ctx context.Context, p *Profile) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// MemoryStore keeps profiles in process memory. Backed by go-cache so
// profiles age out on their own in long-running processes.
type MemoryStore struct {
	c *cache.Cache
}

// NewMemoryStore builds a store whose entries expire after ttl of disuse.
// ttl <= 0 keeps profiles forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &MemoryStore{c: cache.New(ttl, 10*time.Minute)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Profile, error) {
	v, ok := s.c.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return v.(*Profile), nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Profile, error) {
	items := s.c.Items()
	out := make([]*Profile, 0, len(items))
	for _, item := range items {
		out = append(out, item.Object.(*Profile))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsedAt.After(out[j].LastUsedAt) })
	return out, nil
}

func (s *MemoryStore) Put(_ context.Context, p *Profile) error {
	s.c.SetDefault(p.ID, p)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.c.Delete(id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// SQLiteStore persists profiles in a local sqlite database. Profiles are
// stored as JSON documents; the schema only indexes what queries need.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS bank_profiles (
	id           TEXT PRIMARY KEY,
	fingerprint  TEXT NOT NULL,
	payload      TEXT NOT NULL,
	usage_count  INTEGER NOT NULL DEFAULT 0,
	last_used_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bank_profiles_fingerprint ON bank_profiles (fingerprint);
`

// NewSQLiteStore opens (and migrates) the profile database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open profile db: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate profile db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Profile, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM bank_profiles WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", id, err)
	}
	return decodeProfile(payload)
}

func (s *SQLiteStore) List(ctx context.Context) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM bank_profiles ORDER BY last_used_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []*Profile
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		p, err := decodeProfile(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Put(ctx context.Context, p *Profile) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", p.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bank_profiles (id, fingerprint, payload, usage_count, last_used_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			payload = excluded.payload,
			usage_count = excluded.usage_count,
			last_used_at = excluded.last_used_at`,
		p.ID, p.Fingerprint, string(payload), p.UsageCount, p.LastUsedAt)
	if err != nil {
		return fmt.Errorf("put profile %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bank_profiles WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete profile %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func decodeProfile(payload string) (*Profile, error) {
	var p Profile
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}
