package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrNotFound is returned when an object does not exist in the store.
var ErrNotFound = errors.New("object not found")

// batchConcurrency bounds in-flight object operations for a single batch.
const batchConcurrency = 8

// FileInfo describes a stored object.
type FileInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// BlobStore is the key-addressed object store behind the portal. Keys are
// derived by the helpers in keys.go. Implementations must be safe for
// concurrent use.
type BlobStore interface {
	// PresignUpload returns a time-limited URL the client can PUT the object to.
	// A positive size is bound into the signature as the content length.
	PresignUpload(ctx context.Context, key, contentType string, size int64, ttl time.Duration) (string, error)
	// PresignDownload returns a time-limited URL for reading the object.
	PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Put stores content directly, bypassing signed URLs.
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Stat(ctx context.Context, key string) (FileInfo, error)
	// List returns every key starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes one object. Missing objects are not an error.
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every object whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	// Copy duplicates src to dst. The source is left untouched.
	Copy(ctx context.Context, src, dst string) error
	HealthCheck(ctx context.Context) error
}

// Move relocates src to dst by copying then deleting the source. A failed
// copy leaves the source intact. A failed source delete after a successful
// copy is reported; both keys then hold the object.
func Move(ctx context.Context, store BlobStore, src, dst string) error {
	if src == dst {
		return nil
	}
	if err := store.Copy(ctx, src, dst); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	if err := store.Delete(ctx, src); err != nil {
		return fmt.Errorf("delete source %s after copy: %w", src, err)
	}
	return nil
}

// MovePair is one src to dst relocation in a batch.
type MovePair struct {
	Src string
	Dst string
}

// BatchMove runs every move concurrently and waits for all of them to settle.
// Failures do not cancel the remaining moves and nothing is rolled back; the
// returned error joins every individual failure.
func BatchMove(ctx context.Context, store BlobStore, moves []MovePair) error {
	if len(moves) == 0 {
		return nil
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(batchConcurrency)

	for _, m := range moves {
		g.Go(func() error {
			if err := Move(ctx, store, m.Src, m.Dst); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}
