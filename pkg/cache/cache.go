// Package cache stores raw schedule pages on disk, addressed by a hash of the
// normalized query and bounded by a TTL.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/schedscope/schedscope/internal/utils"
	"github.com/schedscope/schedscope/pkg/schedule"
)

const (
	DefaultTTL  = 24 * time.Hour
	DefaultDir  = "schedscope_cache"
	entrySuffix = ".json"
	tmpSuffix   = ".tmp"
	lockSuffix  = ".lock"
	lockTimeout = 10 * time.Second
)

// ErrMiss is returned by Get when no valid entry exists for a key.
var ErrMiss = errors.New("cache miss")

// Key is the content address of a query.
type Key string

// ComputeKey hashes the normalized query tuple. Each field is length-prefixed
// so that distinct tuples never serialize to the same bytes.
func ComputeKey(q schedule.Query) Key {
	q = q.Normalized()
	var b strings.Builder
	for _, f := range []string{q.Group, q.Date, strconv.Itoa(q.Week)} {
		b.WriteString(strconv.Itoa(len(f)))
		b.WriteByte(':')
		b.WriteString(f)
		b.WriteByte(';')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return Key(hex.EncodeToString(sum[:]))
}

// Entry is one persisted page.
type Entry struct {
	RawContent string         `json:"raw_content"`
	FetchedAt  time.Time      `json:"fetched_at"`
	Query      schedule.Query `json:"query"`
}

// Error describes a failed cache operation. Cache errors are never fatal to
// callers; they degrade to a miss or to skipping persistence.
type Error struct {
	Op  string
	Key Key
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Store is a directory of JSON entries, one file per key.
type Store struct {
	dir string
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	locks map[Key]*sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides the default 24h TTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open creates the cache directory if needed.
func Open(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	s := &Store{
		dir:   dir,
		ttl:   DefaultTTL,
		now:   time.Now,
		locks: make(map[Key]*sync.Mutex),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) TTL() time.Duration { return s.ttl }

func (s *Store) path(key Key) string {
	return filepath.Join(s.dir, string(key)+entrySuffix)
}

// Get returns the stored raw content for key, or ErrMiss when there is no
// entry or it is older than the TTL.
func (s *Store) Get(key Key) (string, error) {
	e, err := s.read(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrMiss
		}
		return "", &Error{Op: "get", Key: key, Err: err}
	}
	if s.expired(e) {
		return "", ErrMiss
	}
	return e.RawContent, nil
}

// Put persists content for key, replacing any previous entry. The entry is
// written to a temporary file and renamed into place so readers never see a
// partial write.
func (s *Store) Put(key Key, q schedule.Query, content string) error {
	l, err := s.lockKey(key)
	if err != nil {
		return &Error{Op: "put", Key: key, Err: err}
	}
	defer l.unlock()

	data, err := json.Marshal(Entry{
		RawContent: content,
		FetchedAt:  s.now().UTC(),
		Query:      q.Normalized(),
	})
	if err != nil {
		return &Error{Op: "put", Key: key, Err: err}
	}

	tmp, err := os.CreateTemp(s.dir, string(key)+".*"+tmpSuffix)
	if err != nil {
		return &Error{Op: "put", Key: key, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &Error{Op: "put", Key: key, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &Error{Op: "put", Key: key, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &Error{Op: "put", Key: key, Err: err}
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return &Error{Op: "put", Key: key, Err: err}
	}
	return nil
}

// CleanupExpired removes every entry older than the TTL and returns how many
// were removed. Unreadable entries are skipped. Temp files of interrupted
// writes and lock files of removed entries are swept as well.
func (s *Store) CleanupExpired() (int, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, &Error{Op: "cleanup", Err: err}
	}

	keys := make(map[Key]bool)
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		if key, ok := keyOf(f.Name()); ok {
			keys[key] = true
		}
	}

	removed := 0
	for key := range keys {
		if s.sweep(key) {
			removed++
		}
	}
	return removed, nil
}

// keyOf returns the key an entry, temp or lock file belongs to.
func keyOf(name string) (Key, bool) {
	if !strings.HasSuffix(name, entrySuffix) &&
		!strings.HasSuffix(name, entrySuffix+lockSuffix) &&
		!strings.HasSuffix(name, tmpSuffix) {
		return "", false
	}
	i := strings.IndexByte(name, '.')
	if i <= 0 {
		return "", false
	}
	return Key(name[:i]), true
}

// sweep cleans up one key under its lock and reports whether an expired
// entry was removed.
func (s *Store) sweep(key Key) bool {
	l, err := s.lockKey(key)
	if err != nil {
		return false
	}

	// Put removes or renames its temp file before unlocking, so any left
	// now belongs to an interrupted write.
	tmps, _ := filepath.Glob(filepath.Join(s.dir, string(key)+".*"+tmpSuffix))
	for _, tmp := range tmps {
		os.Remove(tmp)
	}

	// Re-read under the lock: a writer may have refreshed the entry.
	e, err := s.read(s.path(key))
	switch {
	case errors.Is(err, os.ErrNotExist):
		l.discard()
		return false
	case err != nil || !s.expired(e):
		l.unlock()
		return false
	}
	if err := os.Remove(s.path(key)); err != nil {
		l.unlock()
		return false
	}
	l.discard()
	return true
}

func (s *Store) expired(e Entry) bool {
	return s.now().Sub(e.FetchedAt) > s.ttl
}

func (s *Store) read(path string) (Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("corrupt entry %s: %w", filepath.Base(path), err)
	}
	if e.FetchedAt.IsZero() {
		return Entry{}, fmt.Errorf("corrupt entry %s: missing fetched_at", filepath.Base(path))
	}
	return e, nil
}

type keyLock struct {
	file *utils.FileLock
	mu   *sync.Mutex
}

func (l *keyLock) unlock() {
	l.file.Unlock()
	l.mu.Unlock()
}

// discard deletes the lock file of a key whose entry is gone, then unlocks.
func (l *keyLock) discard() {
	l.file.Remove()
	l.unlock()
}

// lockKey serializes writers of one key within this process and across
// processes sharing the directory.
func (s *Store) lockKey(key Key) (*keyLock, error) {
	s.mu.Lock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	s.mu.Unlock()
	m.Lock()

	fl, err := utils.NewFileLock(s.path(key))
	if err != nil {
		m.Unlock()
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	if err := fl.Lock(ctx); err != nil {
		m.Unlock()
		return nil, err
	}
	return &keyLock{file: fl, mu: m}, nil
}
