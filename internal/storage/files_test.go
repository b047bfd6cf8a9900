package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestImageFileName(t *testing.T) {
	tests := []struct {
		key, original, wantPrefix, wantExt string
	}{
		{"1001", "face1.jpg", "1001_", ".jpg"},
		{"1001", "FACE.PNG", "1001_", ".png"},
		{"1001", "noext", "1001_", ".jpg"},
		{"1001", "", "1001_", ".jpg"},
		{"../etc", "x.jpeg", "___etc_", ".jpeg"},
		{"", "x.webp", "worker_", ".webp"},
	}
	for _, tt := range tests {
		got := ImageFileName(tt.key, tt.original)
		if !strings.HasPrefix(got, tt.wantPrefix) || !strings.HasSuffix(got, tt.wantExt) {
			t.Errorf("ImageFileName(%q, %q) = %q, want %s*%s", tt.key, tt.original, got, tt.wantPrefix, tt.wantExt)
		}
		if !ValidRef(got) {
			t.Errorf("ImageFileName(%q, %q) = %q is not a flat ref", tt.key, tt.original, got)
		}
	}

	if a, b := ImageFileName("1001", "a.jpg"), ImageFileName("1001", "a.jpg"); a == b {
		t.Errorf("expected unique names, got %q twice", a)
	}
}

func TestFileImageStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileImageStore(dir)
	if err != nil {
		t.Fatalf("NewFileImageStore: %v", err)
	}

	ref, err := s.Save(ctx, "1001_abc.jpg", []byte{0xFF, 0xD8}, "image/jpeg")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ref)); err != nil {
		t.Fatalf("saved file missing: %v", err)
	}

	ok, err := s.Exists(ctx, ref)
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	data, err := s.Read(ctx, ref)
	if err != nil || len(data) != 2 {
		t.Fatalf("Read = %v, %v", data, err)
	}

	if err := s.Remove(ctx, ref); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove(ctx, ref); err != nil {
		t.Fatalf("second Remove should be a no-op: %v", err)
	}
	if _, err := s.Read(ctx, ref); !errors.Is(err, ErrImageNotFound) {
		t.Fatalf("Read after remove = %v, want ErrImageNotFound", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected empty dir, found %d entries", len(entries))
	}

	if _, err := s.Save(ctx, "../escape.jpg", nil, ""); err == nil {
		t.Error("expected traversal ref to be rejected")
	}
}
