// Package bytecodecache implements spec.md §4.8's bytecode cache: a
// persistent, keyed store of compiled Bytecode that survives process
// restarts, separate from the in-memory template cache (§4.7) an
// Environment keeps in front of it. Grounded on the teacher's cached.go
// (TemplateCache's disk-backed variant) for the write-to-temp-then-rename
// durability pattern, generalized from the teacher's gob-of-the-whole-tree
// approach to use compiler.Bytecode's own MarshalBinary/UnmarshalBinary.
package bytecodecache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kilnjinja/kiln/compiler"
)

// Cache persists compiled Bytecode keyed by an opaque bucket key — typically
// a hash of the template name plus its source, so a source edit naturally
// misses rather than serving stale bytecode.
type Cache interface {
	// LoadBucket returns the cached Bytecode for key, or found=false if no
	// entry exists (not an error: a cache miss is the expected common case).
	LoadBucket(key string) (bc *compiler.Bytecode, found bool, err error)
	// DumpBucket persists bc under key, overwriting any existing entry.
	DumpBucket(key string, bc *compiler.Bytecode) error
	// Clear removes every entry the cache holds.
	Clear() error
}

// Key derives a bucket key from a template name and its current source text,
// so a cache entry is naturally invalidated the moment the source changes —
// matching Jinja2's own bytecode cache key (sha1 of name+source, here sha256
// since this package isn't trying to match Jinja2's on-disk format byte for
// byte, only its invalidation semantics).
func Key(templateName, source string) string {
	h := sha256.New()
	h.Write([]byte(templateName))
	h.Write([]byte{0})
	h.Write([]byte(source))
	return hex.EncodeToString(h.Sum(nil))
}

// FileCache is the one concrete, testable Cache implementation spec.md §4.8
// calls for: each bucket is one file under Dir, named by its key, written by
// staging to a sibling temp file and renaming over the final path so a
// process killed mid-write never leaves a half-written bucket for the next
// reader to trip over — the same pattern the teacher's cached.go uses for
// its own disk persistence.
type FileCache struct {
	Dir string
}

// NewFileCache returns a FileCache rooted at dir, creating it if absent.
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("bytecodecache: %w", err)
	}
	return &FileCache{Dir: dir}, nil
}

func (c *FileCache) path(key string) string {
	return filepath.Join(c.Dir, key+".bin")
}

func (c *FileCache) LoadBucket(key string) (*compiler.Bytecode, bool, error) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("bytecodecache: load %s: %w", key, err)
	}
	bc := &compiler.Bytecode{}
	if err := bc.UnmarshalBinary(data); err != nil {
		return nil, false, fmt.Errorf("bytecodecache: decode %s: %w", key, err)
	}
	return bc, true, nil
}

func (c *FileCache) DumpBucket(key string, bc *compiler.Bytecode) error {
	data, err := bc.MarshalBinary()
	if err != nil {
		return fmt.Errorf("bytecodecache: encode %s: %w", key, err)
	}
	final := c.path(key)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("bytecodecache: write %s: %w", key, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("bytecodecache: rename %s: %w", key, err)
	}
	return nil
}

func (c *FileCache) Clear() error {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("bytecodecache: clear: %w", err)
	}
	for _, e := range entries {
		if err := os.Remove(filepath.Join(c.Dir, e.Name())); err != nil {
			return fmt.Errorf("bytecodecache: clear: %w", err)
		}
	}
	return nil
}

// NullCache discards every write and never finds anything — the default
// when an Environment is constructed without a bytecode cache directory.
type NullCache struct{}

func (NullCache) LoadBucket(string) (*compiler.Bytecode, bool, error) { return nil, false, nil }
func (NullCache) DumpBucket(string, *compiler.Bytecode) error         { return nil }
func (NullCache) Clear() error                                       { return nil }
