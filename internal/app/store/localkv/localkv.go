// internal/app/store/localkv/localkv.go
package localkv

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/spf13/afero"
)

var (
	// ErrNotFound is returned by Get for a key that has never been set.
	ErrNotFound = errors.New("localkv: key not found")
	// ErrInvalidKey is returned for keys that are not safe file names.
	ErrInvalidKey = errors.New("localkv: invalid key")
)

// Store is a small string-keyed value store, one file per key. It has no
// indexes and no transactions beyond atomic replacement of a single key.
type Store struct {
	fs  afero.Fs
	dir string
	mu  sync.Mutex
}

// New creates a Store rooted at dir on fs, creating dir if needed.
// Production code passes afero.NewOsFs(); tests use afero.NewMemMapFs().
func New(fs afero.Fs, dir string) (*Store, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create local store directory: %w", err)
	}
	return &Store{fs: fs, dir: dir}, nil
}

// Get returns the value stored under key.
func (s *Store) Get(key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := afero.ReadFile(s.fs, p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Set replaces the value stored under key. The new value is written to a
// temporary file first and renamed over the old one.
func (s *Store) Set(key string, value []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := p + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, value, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := s.fs.Rename(tmp, p); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Update applies fn to the current value of key (nil when unset) and stores
// the result while holding the store lock.
func (s *Store) Update(key string, fn func(current []byte) ([]byte, error)) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := afero.ReadFile(s.fs, p)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, next, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := s.fs.Rename(tmp, p); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}
	return nil
}

func (s *Store) path(key string) (string, error) {
	if key == "" || len(key) > 128 {
		return "", ErrInvalidKey
	}
	for _, c := range key {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			return "", ErrInvalidKey
		}
	}
	if key == "." || key == ".." {
		return "", ErrInvalidKey
	}
	return path.Join(s.dir, key+".json"), nil
}
