// Package store provides a thin bbolt wrapper for sonarboard's optional
// response cache.
//
// The cache only ever holds backend responses for history queries, keyed by
// the full query. It is off unless --cache is given and is never the source
// of truth: `cache clear` can drop it at any time.
//
// Buckets:
//
//	history: raw /api/historico payloads keyed by query
//	grouped: raw /api/consultar_periodo_agrupado payloads keyed by query
//	_meta:   schema version, created_at
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/derickschaefer/sonarboard/internal/model"
)

// Current schema version. Bump when bucket layout or key format changes.
const schemaVersion = 1

// Bucket name constants.
var (
	bucketHistory  = []byte("history")
	bucketGrouped  = []byte("grouped")
	bucketInternal = []byte("_meta")
)

// AllBuckets lists every user-facing bucket for stats and clear operations.
var AllBuckets = []string{"history", "grouped"}

// Store wraps a bbolt database.
type Store struct {
	db   *bolt.DB
	path string
}

// Open opens (or creates) the bbolt database at path.
// Parent directories are created automatically.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	return s, nil
}

func openDB(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening db %s: %w", path, err)
	}
	return db, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the open database.
func (s *Store) Path() string {
	return s.path
}

// ─── Migrations ───────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketHistory, bucketGrouped, bucketInternal} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		meta := tx.Bucket(bucketInternal)
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", schemaVersion))); err != nil {
				return err
			}
			if err := meta.Put([]byte("created_at"), []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
				return err
			}
		}
		return nil
	})
}

// ─── Keys ─────────────────────────────────────────────────────────────────────

// QueryKey builds the canonical cache key for a query.
// Format: component:<c>|metrics:<m1,m2>|from:<d>|to:<d>|<extra...>
// Empty optional fields are omitted.
func QueryKey(component string, metrics []string, from, to string, extra ...string) string {
	key := "component:" + component
	if len(metrics) > 0 {
		key += "|metrics:" + strings.Join(metrics, ",")
	}
	if from != "" {
		key += "|from:" + from
	}
	if to != "" {
		key += "|to:" + to
	}
	for _, e := range extra {
		if e != "" {
			key += "|" + e
		}
	}
	return key
}

// ─── Entries ──────────────────────────────────────────────────────────────────

// envelope is the on-disk wrapper around every cached payload.
type envelope struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Payload   json.RawMessage `json:"payload"`
}

func (s *Store) put(bucket []byte, key string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s entry: %w", bucket, err)
	}
	b, err := json.Marshal(envelope{FetchedAt: time.Now().UTC(), Payload: payload})
	if err != nil {
		return fmt.Errorf("encoding %s entry: %w", bucket, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), b)
	})
}

// get decodes the entry under key into v.
// Returns (fetchedAt, true, nil) if found, (zero, false, nil) if not found.
func (s *Store) get(bucket []byte, key string, v interface{}) (time.Time, bool, error) {
	var env envelope
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		found = true
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		return json.Unmarshal(env.Payload, v)
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("decoding %s entry %q: %w", bucket, key, err)
	}
	return env.FetchedAt, found, nil
}

// PutHistory caches a history payload.
func (s *Store) PutHistory(key string, resp *model.HistoryResponse) error {
	return s.put(bucketHistory, key, resp)
}

// GetHistory returns a cached history payload.
func (s *Store) GetHistory(key string) (*model.HistoryResponse, time.Time, bool, error) {
	var resp model.HistoryResponse
	at, ok, err := s.get(bucketHistory, key, &resp)
	if err != nil || !ok {
		return nil, at, false, err
	}
	return &resp, at, true, nil
}

// PutGrouped caches a grouped-history payload.
func (s *Store) PutGrouped(key string, resp *model.GroupedResponse) error {
	return s.put(bucketGrouped, key, resp)
}

// GetGrouped returns a cached grouped-history payload.
func (s *Store) GetGrouped(key string) (*model.GroupedResponse, time.Time, bool, error) {
	var resp model.GroupedResponse
	at, ok, err := s.get(bucketGrouped, key, &resp)
	if err != nil || !ok {
		return nil, at, false, err
	}
	return &resp, at, true, nil
}

// ─── Stats & Maintenance ──────────────────────────────────────────────────────

// BucketStats holds row count and byte size for a single bucket.
type BucketStats struct {
	Name  string
	Count int
	Bytes int64
}

// Stats returns row counts and approximate sizes for all buckets, in
// AllBuckets order.
func (s *Store) Stats() ([]BucketStats, error) {
	var stats []BucketStats
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, name := range AllBuckets {
			b := tx.Bucket([]byte(name))
			if b == nil {
				continue
			}
			st := BucketStats{Name: name}
			if err := b.ForEach(func(k, v []byte) error {
				st.Count++
				st.Bytes += int64(len(k) + len(v))
				return nil
			}); err != nil {
				return err
			}
			stats = append(stats, st)
		}
		return nil
	})
	return stats, err
}

// ClearBucket deletes all entries in the named bucket.
func (s *Store) ClearBucket(name string) error {
	if !isUserBucket(name) {
		return fmt.Errorf("unknown bucket %q (valid: %s)", name, strings.Join(AllBuckets, ", "))
	}
	bname := []byte(name)
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bname); err != nil {
			return fmt.Errorf("clearing bucket %s: %w", name, err)
		}
		_, err := tx.CreateBucket(bname)
		return err
	})
}

// ClearAll deletes all entries from every user-facing bucket.
func (s *Store) ClearAll() error {
	for _, name := range AllBuckets {
		if err := s.ClearBucket(name); err != nil {
			return err
		}
	}
	return nil
}

// Compact rewrites the database into a fresh file and swaps it in, returning
// the file sizes before and after. The Store stays usable afterwards.
func (s *Store) Compact() (before, after int64, err error) {
	before, err = fileSize(s.path)
	if err != nil {
		return 0, 0, err
	}

	tmpPath := s.path + ".compact"
	_ = os.Remove(tmpPath)
	dst, err := openDB(tmpPath)
	if err != nil {
		return 0, 0, err
	}
	if err := bolt.Compact(dst, s.db, 1<<20); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return 0, 0, fmt.Errorf("compacting: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, 0, err
	}
	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, 0, err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		// Reopen the original so the Store remains usable.
		if db, oerr := openDB(s.path); oerr == nil {
			s.db = db
		}
		return 0, 0, fmt.Errorf("replacing database: %w", err)
	}
	db, err := openDB(s.path)
	if err != nil {
		return 0, 0, err
	}
	s.db = db

	after, err = fileSize(s.path)
	return before, after, err
}

func isUserBucket(name string) bool {
	for _, b := range AllBuckets {
		if b == name {
			return true
		}
	}
	return false
}

func fileSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return fi.Size(), nil
}
