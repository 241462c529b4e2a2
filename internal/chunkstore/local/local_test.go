package local

import (
	"errors"
	"testing"

	"distcompute/internal/chunkstore"
)

func TestPutGetDelete(t *testing.T) {
	dir := t.TempDir()
	factory := NewFactory()
	store, err := factory(map[string]string{ParamDir: dir}, nil)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}

	key := chunkstore.Key{FileName: "input", ChunkNumber: 0, Extension: ".line"}
	data := []byte("a b a\n")

	if err := store.Put(key, data); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Get = %q, want %q", got, data)
	}

	if err := store.Delete(key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(key); !errors.Is(err, chunkstore.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestFactoryRequiresDir(t *testing.T) {
	factory := NewFactory()
	if _, err := factory(map[string]string{}, nil); err == nil {
		t.Fatal("expected error for missing dir parameter")
	}
}

func TestOpenThroughRegistry(t *testing.T) {
	dir := t.TempDir()
	store, err := chunkstore.Open("local", map[string]string{ParamDir: dir}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	key := chunkstore.Key{FileName: "f", ChunkNumber: 1, Extension: ".kv"}
	if err := store.Put(key, []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
}
