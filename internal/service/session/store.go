package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	sessionmodel "github.com/docpal/docpal/internal/model/session"
)

// FileStore persists the whole session collection as a single JSON file.
// Every read reloads from disk so the service survives process restarts and
// can be scaled onto multiple processes sharing the same storage; records
// are small enough that the extra read per request does not matter.
type FileStore struct {
	path string

	// mu serializes the load-mutate-save cycle so concurrent Puts never
	// lose each other's records.
	mu sync.Mutex

	lockMu    sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewFileStore returns a store backed by the JSON file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:      path,
		userLocks: make(map[string]*sync.Mutex),
	}
}

// Load reads the collection from disk. A missing file is created empty; an
// unreadable or corrupt file is logged and treated as empty so an inbound
// event never fails on session state.
func (s *FileStore) Load() sessionmodel.Collection {
	collection, missing := s.read()
	if missing {
		if err := s.Save(sessionmodel.Collection{}); err != nil {
			log.Printf("[session] initialize %s: %v", s.path, err)
		}
	}
	return collection
}

// read loads without initializing missing storage, so callers already
// holding the store lock can use it.
func (s *FileStore) read() (collection sessionmodel.Collection, missing bool) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return sessionmodel.Collection{}, true
	}
	if err != nil {
		log.Printf("[session] read %s: %v, starting with empty sessions", s.path, err)
		return sessionmodel.Collection{}, false
	}

	if len(data) == 0 {
		return sessionmodel.Collection{}, false
	}

	if err := json.Unmarshal(data, &collection); err != nil {
		log.Printf("[session] decode %s: %v, starting with empty sessions", s.path, err)
		return sessionmodel.Collection{}, false
	}
	if collection == nil {
		collection = sessionmodel.Collection{}
	}
	return collection, false
}

// Save replaces the persisted collection. The write goes to a temp file
// first and is renamed into place so a concurrent reader never observes a
// partially written file.
func (s *FileStore) Save(collection sessionmodel.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(collection)
}

// Get returns the record for userID, reloading the collection from disk.
func (s *FileStore) Get(userID string) (sessionmodel.Record, bool) {
	record, ok := s.Load()[userID]
	return record, ok
}

// Put stores the record for userID and persists the whole collection.
// Mutation is serialized per user and the reload-mutate-save runs under the
// store lock, so concurrent ingestions for different users cannot clobber
// each other.
func (s *FileStore) Put(userID string, record sessionmodel.Record) error {
	userLock := s.lockFor(userID)
	userLock.Lock()
	defer userLock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	collection, _ := s.read()
	collection[userID] = record
	return s.writeLocked(collection)
}

func (s *FileStore) writeLocked(collection sessionmodel.Collection) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	data, err := json.MarshalIndent(collection, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write sessions: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace sessions: %w", err)
	}
	return nil
}

func (s *FileStore) lockFor(userID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	return lock
}
