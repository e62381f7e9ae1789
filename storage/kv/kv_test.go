package kv

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.GetItem(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetItem(missing) err = %v, want ErrNotFound", err)
	}

	if err := store.SetItem(ctx, "k", "v1"); err != nil {
		t.Fatalf("SetItem: %v", err)
	}
	if v, err := store.GetItem(ctx, "k"); err != nil || v != "v1" {
		t.Errorf("GetItem = (%q, %v), want (v1, nil)", v, err)
	}

	if err := store.SetItem(ctx, "k", "v2"); err != nil {
		t.Fatalf("SetItem overwrite: %v", err)
	}
	if v, _ := store.GetItem(ctx, "k"); v != "v2" {
		t.Errorf("GetItem after overwrite = %q, want v2", v)
	}

	if err := store.RemoveItem(ctx, "k"); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if _, err := store.GetItem(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetItem after remove err = %v, want ErrNotFound", err)
	}

	// Removing an absent key is not an error.
	if err := store.RemoveItem(ctx, "k"); err != nil {
		t.Errorf("RemoveItem(absent) = %v, want nil", err)
	}
}

func TestMemoryStoreContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewMemoryStore()
	if err := store.SetItem(ctx, "k", "v"); err == nil {
		t.Error("SetItem with canceled context should fail")
	}
	if _, err := store.GetItem(ctx, "k"); err == nil {
		t.Error("GetItem with canceled context should fail")
	}
}
