package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avatarctic/offline-cache/internal/core/domain/cache"
	"github.com/avatarctic/offline-cache/internal/core/ports"
	"github.com/avatarctic/offline-cache/internal/infrastructure/codec"
	"github.com/avatarctic/offline-cache/internal/infrastructure/db"
)

// CacheStorageRepository implements ports.CacheStorage on PostgreSQL.
// Deleting a namespace cascades to its entries.
type CacheStorageRepository struct {
	db    *db.Database
	codec *codec.EntryCodec
}

// NewCacheStorageRepository creates a Postgres-backed cache storage
func NewCacheStorageRepository(database *db.Database, c *codec.EntryCodec) *CacheStorageRepository {
	return &CacheStorageRepository{db: database, codec: c}
}

type entryRow struct {
	URL        string    `db:"url"`
	Status     int       `db:"status"`
	StatusText string    `db:"status_text"`
	Header     []byte    `db:"header"`
	Body       []byte    `db:"body"`
	Encoding   string    `db:"encoding"`
	StoredAt   time.Time `db:"stored_at"`
}

func (r *CacheStorageRepository) Open(ctx context.Context, name string) (ports.CacheNamespace, error) {
	query := `INSERT INTO cache_namespaces (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`
	if _, err := r.db.DB.ExecContext(ctx, query, name); err != nil {
		return nil, fmt.Errorf("failed to open cache namespace %s: %w", name, err)
	}
	return &pgNamespace{repo: r, name: name}, nil
}

func (r *CacheStorageRepository) Has(ctx context.Context, name string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM cache_namespaces WHERE name = $1)`
	if err := r.db.DB.GetContext(ctx, &exists, query, name); err != nil {
		return false, fmt.Errorf("failed to check cache namespace: %w", err)
	}
	return exists, nil
}

func (r *CacheStorageRepository) Delete(ctx context.Context, name string) (bool, error) {
	res, err := r.db.DB.ExecContext(ctx, `DELETE FROM cache_namespaces WHERE name = $1`, name)
	if err != nil {
		return false, fmt.Errorf("failed to delete cache namespace %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete cache namespace %s: %w", name, err)
	}
	return n > 0, nil
}

func (r *CacheStorageRepository) Names(ctx context.Context) ([]string, error) {
	var names []string
	if err := r.db.DB.SelectContext(ctx, &names, `SELECT name FROM cache_namespaces ORDER BY seq`); err != nil {
		return nil, fmt.Errorf("failed to list cache namespaces: %w", err)
	}
	return names, nil
}

func (r *CacheStorageRepository) Match(ctx context.Context, key string) (*cache.Entry, bool, error) {
	query := `
		SELECT e.url, e.status, e.status_text, e.header, e.body, e.encoding, e.stored_at
		FROM cache_entries e
		JOIN cache_namespaces n ON n.name = e.namespace
		WHERE e.url = $1
		ORDER BY n.seq
		LIMIT 1`
	return r.getEntry(ctx, query, key)
}

func (r *CacheStorageRepository) getEntry(ctx context.Context, query string, args ...any) (*cache.Entry, bool, error) {
	var row entryRow
	if err := r.db.DB.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get cache entry: %w", err)
	}
	body, err := r.codec.DecompressBody(row.Body, row.Encoding)
	if err != nil {
		return nil, false, err
	}
	var header http.Header
	if len(row.Header) > 0 {
		if err := json.Unmarshal(row.Header, &header); err != nil {
			return nil, false, fmt.Errorf("failed to decode cache entry header: %w", err)
		}
	}
	return &cache.Entry{
		URL:        row.URL,
		Status:     row.Status,
		StatusText: row.StatusText,
		Header:     header,
		Body:       body,
		StoredAt:   row.StoredAt,
	}, true, nil
}

type pgNamespace struct {
	repo *CacheStorageRepository
	name string
}

func (n *pgNamespace) Name() string { return n.name }

func (n *pgNamespace) Match(ctx context.Context, key string) (*cache.Entry, bool, error) {
	query := `
		SELECT url, status, status_text, header, body, encoding, stored_at
		FROM cache_entries
		WHERE namespace = $1 AND url = $2`
	return n.repo.getEntry(ctx, query, n.name, key)
}

func (n *pgNamespace) Put(ctx context.Context, entry *cache.Entry) error {
	header, err := json.Marshal(entry.Header)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry header: %w", err)
	}
	body, encoding := n.repo.codec.CompressBody(entry.Body)
	if body == nil {
		body = []byte{}
	}
	query := `
		INSERT INTO cache_entries (namespace, url, status, status_text, header, body, encoding, stored_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (namespace, url) DO UPDATE SET
			status = EXCLUDED.status,
			status_text = EXCLUDED.status_text,
			header = EXCLUDED.header,
			body = EXCLUDED.body,
			encoding = EXCLUDED.encoding,
			stored_at = EXCLUDED.stored_at`
	_, err = n.repo.db.DB.ExecContext(ctx, query,
		n.name, entry.URL, entry.Status, entry.StatusText, header, body, encoding, entry.StoredAt)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

func (n *pgNamespace) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	query := `SELECT url FROM cache_entries WHERE namespace = $1 ORDER BY url`
	if err := n.repo.db.DB.SelectContext(ctx, &keys, query, n.name); err != nil {
		return nil, fmt.Errorf("failed to list cache entry keys: %w", err)
	}
	return keys, nil
}
