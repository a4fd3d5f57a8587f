package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/liamg/memoryfs"
)

// MemoryBackend implements BlobStore using an in-memory filesystem.
// Useful for integration testing without a real bucket.
// Thread-safe for concurrent use.
type MemoryBackend struct {
	fs *memoryfs.FS
	mu sync.RWMutex // Protects fs operations
}

// NewMemoryBackend creates a new in-memory storage backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		fs: memoryfs.New(),
	}
}

// PresignUpload returns a memory:// URL carrying the key, method and expiry,
// plus the bound size when one is given.
func (m *MemoryBackend) PresignUpload(ctx context.Context, key, contentType string, size int64, ttl time.Duration) (string, error) {
	u := m.presign(key, "PUT", ttl)
	if size > 0 {
		u += "&size=" + strconv.FormatInt(size, 10)
	}
	return u, nil
}

// PresignDownload returns a memory:// URL. The object does not have to exist yet,
// matching how signed S3 URLs behave.
func (m *MemoryBackend) PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return m.presign(key, "GET", ttl), nil
}

func (m *MemoryBackend) presign(key, method string, ttl time.Duration) string {
	q := url.Values{}
	q.Set("method", method)
	q.Set("expires", fmt.Sprintf("%d", time.Now().Add(ttl).Unix()))
	return "memory:///" + key + "?" + q.Encode()
}

// Put stores content at key, replacing any existing object.
func (m *MemoryBackend) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.write(key, buf.Bytes())
}

// write must be called with mu held.
func (m *MemoryBackend) write(key string, data []byte) error {
	if dir := path.Dir(key); dir != "." {
		if err := m.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := m.fs.WriteFile(key, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Open returns a reader for the object at key.
func (m *MemoryBackend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	content, err := m.fs.ReadFile(key)
	m.mu.RUnlock()
	if err != nil {
		if isNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return io.NopCloser(bytes.NewReader(content)), nil
}

// Stat returns object metadata without reading it.
func (m *MemoryBackend) Stat(ctx context.Context, key string) (FileInfo, error) {
	m.mu.RLock()
	info, err := m.fs.Stat(key)
	m.mu.RUnlock()
	if err != nil {
		if isNotExist(err) {
			return FileInfo{}, ErrNotFound
		}
		return FileInfo{}, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return FileInfo{}, ErrNotFound
	}

	return FileInfo{
		Key:     key,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Delete removes an object. Returns nil if it doesn't exist (idempotent).
func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	err := m.fs.Remove(key)
	m.mu.Unlock()
	if err != nil && !isNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// DeletePrefix removes every object whose key starts with prefix.
func (m *MemoryBackend) DeletePrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, key := range m.keysLocked() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if err := m.fs.Remove(key); err != nil && !isNotExist(err) {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Copy duplicates src to dst.
func (m *MemoryBackend) Copy(ctx context.Context, src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	content, err := m.fs.ReadFile(src)
	if err != nil {
		if isNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read source: %w", err)
	}
	return m.write(dst, content)
}

// HealthCheck verifies the backend is reachable.
// For memory backend, always returns nil (no external dependencies).
func (m *MemoryBackend) HealthCheck(ctx context.Context) error {
	return nil
}

// List returns the stored keys under prefix in lexical order.
func (m *MemoryBackend) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for _, key := range m.keysLocked() {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Keys returns every stored key in lexical order.
// Useful for testing.
func (m *MemoryBackend) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.keysLocked()
}

func (m *MemoryBackend) keysLocked() []string {
	var keys []string
	_ = fs.WalkDir(m.fs, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			keys = append(keys, p)
		}
		return nil
	})
	sort.Strings(keys)
	return keys
}

// Exists reports whether an object is stored at key.
func (m *MemoryBackend) Exists(key string) bool {
	_, err := m.Stat(context.Background(), key)
	return err == nil
}

// Clear removes all objects from the memory backend.
// Useful for test cleanup.
func (m *MemoryBackend) Clear() {
	m.mu.Lock()
	m.fs = memoryfs.New()
	m.mu.Unlock()
}

// isNotExist checks if an error indicates the file doesn't exist.
func isNotExist(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	// memoryfs wraps errors, so check the error message
	errStr := err.Error()
	return strings.Contains(errStr, "file does not exist") ||
		strings.Contains(errStr, "no such file")
}
