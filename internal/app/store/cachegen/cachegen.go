// internal/app/store/cachegen/cachegen.go
package cachegen

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dalemusser/campushub/internal/domain/models"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/blake3"
	bolt "go.etcd.io/bbolt"
)

// BustParam is the reserved query key pages and the agent use to defeat caches.
// It is stripped from cache keys so a busted request and its bare URL share
// one entry.
const BustParam = "_"

// Bodies at or above this size are stored zstd-compressed.
const compressThreshold = 8 * 1024

var (
	// ErrNotFound is returned by Match when no entry exists for the key.
	ErrNotFound = errors.New("cachegen: entry not found")
	// ErrEmptyName is returned when a generation name is blank.
	ErrEmptyName = errors.New("cachegen: generation name is empty")
)

// entry is the stored form of one cached response.
type entry struct {
	Status     int                 `msgpack:"status"`
	Header     map[string][]string `msgpack:"header"`
	Body       []byte              `msgpack:"body"`
	Compressed bool                `msgpack:"compressed"`
	Digest     string              `msgpack:"digest"` // BLAKE3 of the uncompressed body
	Type       string              `msgpack:"type"`
	URL        string              `msgpack:"url"`
	StoredAt   int64               `msgpack:"stored_at"`
}

// Storage holds every cache generation in one bbolt file. Each generation is
// a top-level bucket named after it.
type Storage struct {
	db  *bolt.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
	now func() time.Time
}

// Open opens or creates the cache storage file at path.
func Open(path string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := bolt.Open(path, 0644, &bolt.Options{
		Timeout:      10 * time.Second,
		FreelistType: bolt.FreelistArrayType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache storage: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &Storage{db: db, enc: enc, dec: dec, now: time.Now}, nil
}

// Close releases the encoder, decoder and database.
func (s *Storage) Close() error {
	_ = s.enc.Close()
	s.dec.Close()
	return s.db.Close()
}

// DB returns the underlying bbolt handle.
func (s *Storage) DB() *bolt.DB {
	return s.db
}

// Names lists every generation, sorted.
func (s *Storage) Names() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	sort.Strings(names)
	return names, err
}

// Has reports whether a generation exists.
func (s *Storage) Has(name string) (bool, error) {
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket([]byte(name)) != nil
		return nil
	})
	return ok, err
}

// Open returns the named generation, creating it if absent.
func (s *Storage) Open(name string) (*Generation, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open generation %s: %w", name, err)
	}
	return &Generation{s: s, name: name}, nil
}

// Generation returns a handle on the named generation without creating it.
// Reads treat a missing generation as empty; Put creates it.
func (s *Storage) Generation(name string) *Generation {
	return &Generation{s: s, name: name}
}

// Delete removes a generation and all of its entries. It reports whether the
// generation existed.
func (s *Storage) Delete(name string) (bool, error) {
	var existed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(name)) == nil {
			return nil
		}
		existed = true
		return tx.DeleteBucket([]byte(name))
	})
	return existed, err
}

// Generation is one named bucket of stored responses.
type Generation struct {
	s    *Storage
	name string
}

// Name returns the generation name.
func (g *Generation) Name() string {
	return g.name
}

// Match returns the entry stored under key. Entries whose body fails the
// digest check or cannot be decoded are deleted and reported as ErrNotFound.
func (g *Generation) Match(key string) (*models.CachedResponse, error) {
	var raw []byte
	err := g.s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(g.name))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrNotFound
	}

	resp, storedAt, err := g.s.decode(raw)
	if err != nil {
		_, _ = g.Delete(key)
		return nil, ErrNotFound
	}
	return &models.CachedResponse{Key: key, Response: resp, StoredAt: storedAt}, nil
}

// Put stores resp under key, replacing any previous entry.
func (g *Generation) Put(key string, resp *models.Response) error {
	data, err := g.s.encode(resp)
	if err != nil {
		return fmt.Errorf("failed to encode entry %s: %w", key, err)
	}
	return g.s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(g.name))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

// Delete removes one entry and reports whether it existed.
func (g *Generation) Delete(key string) (bool, error) {
	var existed bool
	err := g.s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(g.name))
		if b == nil || b.Get([]byte(key)) == nil {
			return nil
		}
		existed = true
		return b.Delete([]byte(key))
	})
	return existed, err
}

// Keys lists the stored keys in byte order.
func (g *Generation) Keys() ([]string, error) {
	var keys []string
	err := g.s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(g.name))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// DeleteMatching removes every entry whose key satisfies match, in a single
// transaction, and returns how many were removed.
func (g *Generation) DeleteMatching(match func(key string) bool) (int, error) {
	removed := 0
	err := g.s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(g.name))
		if b == nil {
			return nil
		}
		var doomed [][]byte
		if err := b.ForEach(func(k, _ []byte) error {
			if match(string(k)) {
				doomed = append(doomed, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(doomed)
		return nil
	})
	return removed, err
}

func (s *Storage) encode(resp *models.Response) ([]byte, error) {
	e := entry{
		Status:   resp.Status,
		Header:   map[string][]string(resp.Header.Clone()),
		Digest:   digest(resp.Body),
		Type:     string(resp.Type),
		URL:      resp.URL,
		StoredAt: s.now().UTC().UnixMilli(),
	}
	if len(resp.Body) >= compressThreshold {
		e.Body = s.enc.EncodeAll(resp.Body, nil)
		e.Compressed = true
	} else {
		e.Body = resp.Body
	}
	return msgpack.Marshal(&e)
}

func (s *Storage) decode(raw []byte) (*models.Response, time.Time, error) {
	var e entry
	if err := msgpack.Unmarshal(raw, &e); err != nil {
		return nil, time.Time{}, err
	}
	body := e.Body
	if e.Compressed {
		var err error
		body, err = s.dec.DecodeAll(e.Body, nil)
		if err != nil {
			return nil, time.Time{}, err
		}
	}
	if digest(body) != e.Digest {
		return nil, time.Time{}, errors.New("cachegen: body digest mismatch")
	}
	header := http.Header(e.Header)
	if header == nil {
		header = http.Header{}
	}
	if body == nil {
		body = []byte{}
	}
	return &models.Response{
		Status: e.Status,
		Header: header,
		Body:   body,
		Type:   models.ResponseType(e.Type),
		URL:    e.URL,
	}, time.UnixMilli(e.StoredAt).UTC(), nil
}

func digest(body []byte) string {
	sum := blake3.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Key returns the cache key for u: the absolute URL without its fragment and
// without the BustParam query key. Other query parameters keep their order
// unless BustParam had to be removed.
func Key(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	if c.RawQuery != "" {
		q := c.Query()
		if _, ok := q[BustParam]; ok {
			q.Del(BustParam)
			c.RawQuery = q.Encode()
		}
	}
	c.ForceQuery = false
	return c.String()
}
