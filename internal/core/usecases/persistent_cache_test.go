package usecases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/samirrijal/studyspot/internal/core/usecases"
)

type cachedThing struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestPersistentCache_RoundTrip(t *testing.T) {
	store := newMemStore()
	c := usecases.NewPersistentCache(store, "app")
	ctx := context.Background()

	var got cachedThing
	if c.Get(ctx, "things:1", &got) {
		t.Fatal("expected miss on empty store")
	}

	if err := c.Set(ctx, "things:1", cachedThing{Name: "desk", Count: 3}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok := store.data["app:things:1"]; !ok {
		t.Error("expected key to be namespaced with the prefix")
	}
	if !c.Get(ctx, "things:1", &got) || got.Name != "desk" || got.Count != 3 {
		t.Fatalf("unexpected value %+v", got)
	}

	if err := c.Delete(ctx, "things:1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if c.Get(ctx, "things:1", &got) {
		t.Error("expected miss after delete")
	}
}

func TestPersistentCache_ReadErrorsAreMisses(t *testing.T) {
	store := newMemStore()
	c := usecases.NewPersistentCache(store, "")
	ctx := context.Background()
	_ = c.Set(ctx, "k", cachedThing{Name: "x"})

	store.getErr = errBoom
	var got cachedThing
	if c.Get(ctx, "k", &got) {
		t.Fatal("storage failure must read as not found")
	}
	if _, err := c.Lookup(ctx, "k", &got); !errors.Is(err, errBoom) {
		t.Errorf("Lookup must surface the storage error, got %v", err)
	}
}

func TestPersistentCache_CorruptValueIsAMiss(t *testing.T) {
	store := newMemStore()
	store.data["k"] = []byte("{not json")
	c := usecases.NewPersistentCache(store, "")

	var got cachedThing
	if c.Get(context.Background(), "k", &got) {
		t.Error("corrupt value must read as not found")
	}
}

func TestPersistentCache_WriteErrorsPropagate(t *testing.T) {
	store := newMemStore()
	store.failWrites(errBoom)
	c := usecases.NewPersistentCache(store, "")

	if err := c.Set(context.Background(), "k", 1); !errors.Is(err, errBoom) {
		t.Errorf("expected write error, got %v", err)
	}
}
