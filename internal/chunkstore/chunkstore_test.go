package chunkstore_test

import (
	"errors"
	"log/slog"
	"testing"

	"distcompute/internal/chunkstore"
)

func TestKeyName(t *testing.T) {
	k := chunkstore.Key{FileName: "words", ChunkNumber: 3, Extension: ".line"}
	if got, want := k.Name(), "words-3.line"; got != want {
		t.Errorf("Name() = %q, want %q", got, want)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := chunkstore.Open("no-such-backend-xyz", nil, nil)
	if err == nil {
		t.Fatal("Open with unknown backend name: want error, got nil")
	}
}

type fakeStore struct{}

func (fakeStore) Put(chunkstore.Key, []byte) error  { return nil }
func (fakeStore) Get(chunkstore.Key) ([]byte, error) { return nil, chunkstore.ErrNotFound }
func (fakeStore) Delete(chunkstore.Key) error       { return nil }

func TestRegisterAndOpen(t *testing.T) {
	var gotParams map[string]string
	chunkstore.Register("test-fake", func(params map[string]string, _ *slog.Logger) (chunkstore.Store, error) {
		gotParams = params
		return fakeStore{}, nil
	})

	store, err := chunkstore.Open("test-fake", map[string]string{"k": "v"}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := store.(fakeStore); !ok {
		t.Fatalf("Open returned %T, want fakeStore", store)
	}
	if gotParams["k"] != "v" {
		t.Errorf("factory did not receive params: got %v", gotParams)
	}

	_, err = store.Get(chunkstore.Key{FileName: "f", ChunkNumber: 0, Extension: ".line"})
	if !errors.Is(err, chunkstore.ErrNotFound) {
		t.Errorf("Get: err = %v, want ErrNotFound", err)
	}
}
