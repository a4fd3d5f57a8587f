package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

func put(t *testing.T, b *MemoryBackend, key, content string) {
	t.Helper()
	if err := b.Put(context.Background(), key, strings.NewReader(content), "text/plain"); err != nil {
		t.Fatalf("Put(%s) failed: %v", key, err)
	}
}

func TestNewMemoryBackend(t *testing.T) {
	backend := NewMemoryBackend()
	if backend == nil {
		t.Fatal("NewMemoryBackend returned nil")
	}
	if backend.fs == nil {
		t.Fatal("MemoryBackend fs is nil")
	}
}

func TestMemoryBackend_PutAndStat(t *testing.T) {
	backend := NewMemoryBackend()
	key := SentKey(3, nil, "invoice.pdf")
	put(t, backend, key, "Hello, portal!")

	info, err := backend.Stat(context.Background(), key)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size != int64(len("Hello, portal!")) {
		t.Errorf("Expected size %d, got %d", len("Hello, portal!"), info.Size)
	}
	if info.Key != key {
		t.Errorf("Expected key %s, got %s", key, info.Key)
	}
}

func TestMemoryBackend_Stat_NonExistent(t *testing.T) {
	backend := NewMemoryBackend()

	_, err := backend.Stat(context.Background(), "user-uploads/1/sent/missing.txt")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemoryBackend_StatDirectoryIsNotFound(t *testing.T) {
	backend := NewMemoryBackend()
	put(t, backend, "user-uploads/1/sent/4/a.txt", "a")

	if _, err := backend.Stat(context.Background(), "user-uploads/1/sent/4"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a directory, got %v", err)
	}
}

func TestMemoryBackend_Open(t *testing.T) {
	backend := NewMemoryBackend()
	put(t, backend, "a/b.txt", "content")

	rc, err := backend.Open(context.Background(), "a/b.txt")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	if string(data) != "content" {
		t.Errorf("Expected content, got %q", data)
	}

	if _, err := backend.Open(context.Background(), "a/missing.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemoryBackend_Delete(t *testing.T) {
	backend := NewMemoryBackend()
	put(t, backend, "x/y.txt", "y")

	if err := backend.Delete(context.Background(), "x/y.txt"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if backend.Exists("x/y.txt") {
		t.Error("File should not exist after deletion")
	}

	// Idempotent
	if err := backend.Delete(context.Background(), "x/y.txt"); err != nil {
		t.Errorf("Deleting missing file should not error: %v", err)
	}
}

func TestMemoryBackend_List(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()
	for _, key := range []string{"user-uploads/1/sent/5/b.pdf", "user-uploads/1/sent/5/a.pdf", "user-uploads/1/sent/50/c.pdf", "user-uploads/1/sent/x.pdf"} {
		if err := backend.Put(ctx, key, strings.NewReader("x"), ""); err != nil {
			t.Fatalf("Put %s failed: %v", key, err)
		}
	}

	keys, err := backend.List(ctx, "user-uploads/1/sent/5/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"user-uploads/1/sent/5/a.pdf", "user-uploads/1/sent/5/b.pdf"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Errorf("List = %v, want %v", keys, want)
	}

	keys, err = backend.List(ctx, "user-uploads/2/")
	if err != nil || len(keys) != 0 {
		t.Errorf("List of an empty prefix = %v, %v", keys, err)
	}
}

func TestMemoryBackend_DeletePrefix(t *testing.T) {
	backend := NewMemoryBackend()
	put(t, backend, "user-uploads/1/sent/9/a.txt", "a")
	put(t, backend, "user-uploads/1/sent/9/b.txt", "b")
	put(t, backend, "user-uploads/1/sent/90/c.txt", "c")
	put(t, backend, "user-uploads/1/sent/d.txt", "d")

	if err := backend.DeletePrefix(context.Background(), FolderPrefix(SentBase(1), 9)); err != nil {
		t.Fatalf("DeletePrefix failed: %v", err)
	}

	keys := backend.Keys()
	want := []string{"user-uploads/1/sent/90/c.txt", "user-uploads/1/sent/d.txt"}
	if fmt.Sprint(keys) != fmt.Sprint(want) {
		t.Errorf("Keys after DeletePrefix = %v, want %v", keys, want)
	}
}

func TestMemoryBackend_Copy(t *testing.T) {
	backend := NewMemoryBackend()
	put(t, backend, "src/a.txt", "payload")

	if err := backend.Copy(context.Background(), "src/a.txt", "dst/nested/a.txt"); err != nil {
		t.Fatalf("Copy failed: %v", err)
	}
	if !backend.Exists("src/a.txt") || !backend.Exists("dst/nested/a.txt") {
		t.Error("Both source and destination should exist after copy")
	}

	if err := backend.Copy(context.Background(), "src/missing.txt", "dst/x.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound copying a missing source, got %v", err)
	}
}

func TestMemoryBackend_Presign(t *testing.T) {
	backend := NewMemoryBackend()

	u, err := backend.PresignUpload(context.Background(), "user-uploads/1/sent/a.pdf", "application/pdf", 2048, 3*time.Minute)
	if err != nil {
		t.Fatalf("PresignUpload failed: %v", err)
	}
	if !strings.HasPrefix(u, "memory:///user-uploads/1/sent/a.pdf?") || !strings.Contains(u, "method=PUT") {
		t.Errorf("unexpected upload URL %q", u)
	}
	if !strings.Contains(u, "size=2048") {
		t.Errorf("upload URL %q does not carry the bound size", u)
	}

	unsized, err := backend.PresignUpload(context.Background(), "user-uploads/1/sent/b.pdf", "", 0, 3*time.Minute)
	if err != nil {
		t.Fatalf("PresignUpload failed: %v", err)
	}
	if strings.Contains(unsized, "size=") {
		t.Errorf("unexpected size in unsized upload URL %q", unsized)
	}

	d, err := backend.PresignDownload(context.Background(), "user-uploads/1/sent/a.pdf", time.Hour)
	if err != nil {
		t.Fatalf("PresignDownload failed: %v", err)
	}
	if !strings.Contains(d, "method=GET") {
		t.Errorf("unexpected download URL %q", d)
	}
}

func TestMemoryBackend_HealthCheck(t *testing.T) {
	backend := NewMemoryBackend()

	if err := backend.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck should always succeed: %v", err)
	}
}

func TestMemoryBackend_InterfaceCompliance(t *testing.T) {
	var _ BlobStore = (*MemoryBackend)(nil)
	var _ BlobStore = (*S3Backend)(nil)
}

func TestMemoryBackend_ConcurrentPut(t *testing.T) {
	backend := NewMemoryBackend()
	const numFiles = 10

	var wg sync.WaitGroup
	errs := make(chan error, numFiles)
	for i := 0; i < numFiles; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("user-uploads/1/sent/%d/file.txt", i)
			errs <- backend.Put(context.Background(), key, strings.NewReader("x"), "")
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Concurrent put failed: %v", err)
		}
	}
	if got := len(backend.Keys()); got != numFiles {
		t.Errorf("Expected %d keys, got %d", numFiles, got)
	}
}

func TestMemoryBackend_Clear(t *testing.T) {
	backend := NewMemoryBackend()
	put(t, backend, "a.txt", "a")
	put(t, backend, "b/c.txt", "c")

	backend.Clear()

	if got := len(backend.Keys()); got != 0 {
		t.Errorf("Expected 0 keys after Clear, got %d", got)
	}
}
