package session_test

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	sessionmodel "github.com/docpal/docpal/internal/model/session"
	sessionstore "github.com/docpal/docpal/internal/service/session"
)

func newStore(t *testing.T) (*sessionstore.FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.json")
	return sessionstore.NewFileStore(path), path
}

func TestLoadMissingFileInitializesEmpty(t *testing.T) {
	store, path := newStore(t)

	collection := store.Load()
	if len(collection) != 0 {
		t.Fatalf("expected empty collection, got %d records", len(collection))
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected storage to be created: %v", err)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	store, _ := newStore(t)

	record := sessionmodel.Record{
		UserID:       "5511999990000",
		IndexPath:    "data/indices/5511999990000/index.json",
		DocumentName: "contract.pdf",
	}
	if err := store.Put(record.UserID, record); err != nil {
		t.Fatalf("Put err: %v", err)
	}

	got, ok := store.Get(record.UserID)
	if !ok {
		t.Fatal("expected record to exist")
	}
	if got != record {
		t.Fatalf("round-trip mismatch: got %+v want %+v", got, record)
	}
}

func TestReloadFromDiskAfterRestart(t *testing.T) {
	store, path := newStore(t)

	record := sessionmodel.Record{UserID: "u1", IndexPath: "idx/u1/index.json", DocumentName: "a.pdf"}
	if err := store.Put(record.UserID, record); err != nil {
		t.Fatalf("Put err: %v", err)
	}

	// A fresh store over the same file simulates a process restart.
	reopened := sessionstore.NewFileStore(path)
	got, ok := reopened.Get("u1")
	if !ok || got != record {
		t.Fatalf("expected record to survive restart, got %+v ok=%v", got, ok)
	}
}

func TestPutOverwritesPriorRecord(t *testing.T) {
	store, _ := newStore(t)

	first := sessionmodel.Record{UserID: "u1", IndexPath: "idx/u1/index.json", DocumentName: "first.pdf"}
	second := sessionmodel.Record{UserID: "u1", IndexPath: "idx/u1/index.json", DocumentName: "second.pdf"}

	if err := store.Put("u1", first); err != nil {
		t.Fatalf("Put err: %v", err)
	}
	if err := store.Put("u1", second); err != nil {
		t.Fatalf("Put err: %v", err)
	}

	got, _ := store.Get("u1")
	if got.DocumentName != "second.pdf" {
		t.Fatalf("expected overwrite, got %+v", got)
	}
	if len(store.Load()) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(store.Load()))
	}
}

func TestCorruptFileFallsBackToEmpty(t *testing.T) {
	store, path := newStore(t)

	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	if collection := store.Load(); len(collection) != 0 {
		t.Fatalf("expected empty collection for corrupt storage, got %d", len(collection))
	}

	// The store must still accept writes after the fallback.
	if err := store.Put("u1", sessionmodel.Record{UserID: "u1"}); err != nil {
		t.Fatalf("Put after corrupt load err: %v", err)
	}
}

func TestConcurrentPutsDoNotLoseRecords(t *testing.T) {
	store, _ := newStore(t)

	const users = 8
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", i)
			record := sessionmodel.Record{
				UserID:       userID,
				IndexPath:    fmt.Sprintf("idx/%s/index.json", userID),
				DocumentName: fmt.Sprintf("doc-%d.pdf", i),
			}
			if err := store.Put(userID, record); err != nil {
				t.Errorf("Put %s err: %v", userID, err)
			}
		}(i)
	}
	wg.Wait()

	collection := store.Load()
	if len(collection) != users {
		t.Fatalf("expected %d records to survive concurrent puts, got %d", users, len(collection))
	}
	for i := 0; i < users; i++ {
		userID := fmt.Sprintf("user-%d", i)
		if _, ok := collection[userID]; !ok {
			t.Fatalf("record for %s was lost", userID)
		}
	}
}
