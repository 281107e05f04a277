package storage

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
)

func TestLocalStore_SaveLoadDelete(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	payload := []byte("hello blobs")
	key, err := store.Save(ctx, payload, "text/plain")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if key == "" {
		t.Fatal("expected a storage key")
	}

	got, err := store.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Load = %q, want %q", got, payload)
	}

	exists, err := store.Exists(ctx, key)
	if err != nil || !exists {
		t.Errorf("Exists = %v, %v; want true", exists, err)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	exists, err = store.Exists(ctx, key)
	if err != nil || exists {
		t.Errorf("Exists after delete = %v, %v; want false", exists, err)
	}
	if _, err := store.Load(ctx, key); err == nil {
		t.Error("Load after delete should fail")
	}
}

func TestLocalStore_DeleteMissingKey(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	if err := store.Delete(context.Background(), "no-such-key"); err != nil {
		t.Errorf("deleting a missing key should be a no-op, got %v", err)
	}
}

func TestLocalStore_Sharding(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	key, err := store.Save(context.Background(), []byte("x"), "")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	want := filepath.Join(root, key[:2], key)
	if got := store.path(key); got != want {
		t.Errorf("path = %q, want %q", got, want)
	}
}

func TestLocalStore_CancelledContext(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Save(ctx, []byte("x"), ""); err == nil {
		t.Error("Save with cancelled context should fail")
	}
	if _, err := store.Load(ctx, "any"); err == nil {
		t.Error("Load with cancelled context should fail")
	}
}

func TestNewBlobStore(t *testing.T) {
	store, err := NewBlobStore(&Config{Backend: "local", Root: t.TempDir()})
	if err != nil {
		t.Fatalf("NewBlobStore: %v", err)
	}
	if _, ok := store.(*LocalStore); !ok {
		t.Errorf("expected *LocalStore, got %T", store)
	}

	if _, err := NewBlobStore(&Config{Backend: "ftp"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
