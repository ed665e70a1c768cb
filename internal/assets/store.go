// Package assets keeps fetched media bytes addressable by a local handle so
// that rendering layers can display them without the remote credential.
package assets

import (
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"mediachat/internal/logger"
)

// DefaultMaxEntries bounds the in-memory store.
const DefaultMaxEntries = 64

// ErrNotFound is returned for unknown asset ids.
var ErrNotFound = errors.New("asset not found")

// Asset is a stored media payload.
type Asset struct {
	ID       string
	MIMEType string
	Data     []byte
}

// Store keeps assets and hands out local handles for them.
type Store interface {
	// Put stores data and returns its local handle.
	Put(mimeType string, data []byte) (string, error)
	// Get returns the asset with the given id.
	Get(id string) (Asset, error)
}

// Retainer is implemented by stores that evict old entries. Handles are the
// values returned by Put.
type Retainer interface {
	// Retain protects the asset behind handle from eviction, or lifts that
	// protection.
	Retain(handle string, retained bool)
	// Release drops the asset behind handle.
	Release(handle string)
}

// MemoryStore keeps the most recent assets in memory. Handles are URL paths
// under a prefix served by the HTTP rendering layer, e.g. /assets/<id>.
type MemoryStore struct {
	prefix string
	cache  *lruCache
}

// NewMemoryStore creates a memory store holding at most maxEntries assets.
func NewMemoryStore(prefix string, maxEntries int) *MemoryStore {
	if prefix == "" {
		prefix = "/assets/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &MemoryStore{prefix: prefix, cache: newLRUCache(maxEntries)}
}

// Put stores data and returns prefix+id.
func (s *MemoryStore) Put(mimeType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("refusing to store empty asset")
	}
	id := uuid.New().String()
	s.cache.Set(id, Asset{ID: id, MIMEType: mimeType, Data: data})

	logger.Debug("Asset stored", "id", id, "mime_type", mimeType, "bytes", len(data), "entries", s.cache.Size())
	return s.prefix + id, nil
}

// Get returns a stored asset.
func (s *MemoryStore) Get(id string) (Asset, error) {
	asset, ok := s.cache.Get(id)
	if !ok {
		return Asset{}, ErrNotFound
	}
	return asset, nil
}

// Retain implements Retainer.
func (s *MemoryStore) Retain(handle string, retained bool) {
	if id, ok := s.idOf(handle); ok {
		s.cache.SetPinned(id, retained)
	}
}

// Release implements Retainer.
func (s *MemoryStore) Release(handle string) {
	if id, ok := s.idOf(handle); ok {
		s.cache.Delete(id)
		logger.Debug("Asset released", "id", id, "entries", s.cache.Size())
	}
}

func (s *MemoryStore) idOf(handle string) (string, bool) {
	id, ok := strings.CutPrefix(handle, s.prefix)
	return id, ok && id != ""
}

// DiskStore writes assets to a directory. Handles are file:// URLs, which
// terminal users can open directly.
type DiskStore struct {
	dir string
}

// NewDiskStore creates the directory if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create asset directory: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve asset directory: %w", err)
	}
	return &DiskStore{dir: abs}, nil
}

// Put writes data to <dir>/<id><ext> and returns its file URL.
func (s *DiskStore) Put(mimeType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("refusing to store empty asset")
	}
	id := uuid.New().String()
	path := filepath.Join(s.dir, id+extensionFor(mimeType))

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write asset: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return "", fmt.Errorf("failed to write asset: %w", err)
	}

	logger.Debug("Asset written", "id", id, "path", path, "bytes", len(data))
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(), nil
}

// Get reads an asset back by id.
func (s *DiskStore) Get(id string) (Asset, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Asset{}, ErrNotFound
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, id+"*"))
	if err != nil || len(matches) == 0 {
		return Asset{}, ErrNotFound
	}
	path := matches[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return Asset{}, fmt.Errorf("failed to read asset: %w", err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return Asset{ID: id, MIMEType: mimeType, Data: data}, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
