package cache

import (
	"path/filepath"
	"testing"
	"time"
)

func stores(t *testing.T) map[string]PartitionStore {
	t.Helper()
	return map[string]PartitionStore{
		"memory": NewMemoryStore(),
		"sqlite": NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db")),
	}
}

func TestPutGet(t *testing.T) {
	for name, store := range stores(t) {
		entry := Entry{Key: "GET /a.css", ReceivedAt: time.Unix(1000, 0), Bytes: []byte("response")}
		if err := store.Put("static-v1", "GET /a.css", entry); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		got, ok, err := store.Get("static-v1", "GET /a.css")
		if err != nil || !ok {
			t.Fatalf("%s: ok=%v err=%v", name, ok, err)
		}
		if string(got.Bytes) != "response" {
			t.Fatalf("%s: bytes are %s", name, got.Bytes)
		}
		if !got.ReceivedAt.Equal(entry.ReceivedAt) {
			t.Fatalf("%s: received at %v", name, got.ReceivedAt)
		}
		if _, ok, _ := store.Get("static-v2", "GET /a.css"); ok {
			t.Fatalf("%s: entry leaked into another partition", name)
		}
	}
}

func TestPutOverwrites(t *testing.T) {
	for name, store := range stores(t) {
		store.Put("p", "k", Entry{Key: "k", ReceivedAt: time.Unix(1, 0), Bytes: []byte("old")})
		store.Put("p", "k", Entry{Key: "k", ReceivedAt: time.Unix(2, 0), Bytes: []byte("new")})
		got, ok, err := store.Get("p", "k")
		if err != nil || !ok {
			t.Fatalf("%s: ok=%v err=%v", name, ok, err)
		}
		if string(got.Bytes) != "new" {
			t.Fatalf("%s: bytes are %s", name, got.Bytes)
		}
	}
}

func TestMatchPrefersNewest(t *testing.T) {
	for name, store := range stores(t) {
		store.Put("static-v1", "k", Entry{Key: "k", ReceivedAt: time.Unix(100, 0), Bytes: []byte("older")})
		store.Put("runtime-v1", "k", Entry{Key: "k", ReceivedAt: time.Unix(200, 0), Bytes: []byte("newer")})
		got, ok, err := store.Match("k")
		if err != nil || !ok {
			t.Fatalf("%s: ok=%v err=%v", name, ok, err)
		}
		if string(got.Bytes) != "newer" {
			t.Fatalf("%s: bytes are %s", name, got.Bytes)
		}
		if _, ok, _ := store.Match("unknown"); ok {
			t.Fatalf("%s: matched an unknown key", name)
		}
	}
}

func TestPartitionsAndDelete(t *testing.T) {
	for name, store := range stores(t) {
		entry := Entry{Key: "k", ReceivedAt: time.Now(), Bytes: []byte("x")}
		store.Put("static-v1", "k", entry)
		store.Put("runtime-v1", "k", entry)
		store.Put("static-v2", "k", entry)

		names, err := store.Partitions()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(names) != 3 {
			t.Fatalf("%s: partitions are %v", name, names)
		}

		if err := store.DeletePartition("static-v1"); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if _, ok, _ := store.Get("static-v1", "k"); ok {
			t.Fatalf("%s: entry survived partition delete", name)
		}
		if _, ok, _ := store.Get("runtime-v1", "k"); !ok {
			t.Fatalf("%s: delete removed the wrong partition", name)
		}
	}
}

func TestPurgeAll(t *testing.T) {
	for name, store := range stores(t) {
		entry := Entry{Key: "k", ReceivedAt: time.Now(), Bytes: []byte("x")}
		store.Put("static-v1", "k", entry)
		store.Put("runtime-v1", "k", entry)

		if err := store.PurgeAll(); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		names, err := store.Partitions()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(names) != 0 {
			t.Fatalf("%s: partitions after purge: %v", name, names)
		}
	}
}
