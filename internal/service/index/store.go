package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/docpal/docpal/internal/model/doc"
)

const indexFileName = "index.json"

// Store builds, persists and loads per-user indices on durable storage.
// Each user owns exactly one index under <baseDir>/<userID>/index.json;
// rebuilding for the same user replaces it wholesale. Writes take the
// user's lock exclusively and loads take it shared, so a query never
// reads an index mid-overwrite.
type Store struct {
	embedder embedding.Embedder
	baseDir  string

	lockMu    sync.Mutex
	userLocks map[string]*sync.RWMutex
}

// NewStore returns a store that embeds through embedder and persists
// indices under baseDir.
func NewStore(embedder embedding.Embedder, baseDir string) *Store {
	return &Store{
		embedder:  embedder,
		baseDir:   baseDir,
		userLocks: make(map[string]*sync.RWMutex),
	}
}

// Build embeds the chunks and persists a fresh index for userID, replacing
// any previous one. It returns the index location.
func (s *Store) Build(ctx context.Context, userID string, chunks []doc.Chunk) (string, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := s.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return "", fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return "", fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	dimension := 0
	for _, v := range vectors {
		if dimension == 0 {
			dimension = len(v)
		}
		if len(v) == 0 || len(v) != dimension {
			return "", fmt.Errorf("embedder returned inconsistent vector dimensions")
		}
		normalize(v)
	}

	idx := Index{Dimension: dimension, Chunks: chunks, Vectors: vectors}
	data, err := json.Marshal(&idx)
	if err != nil {
		return "", fmt.Errorf("encode index: %w", err)
	}

	lock := s.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Join(s.baseDir, userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create index dir: %w", err)
	}

	path := filepath.Join(dir, indexFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("replace index: %w", err)
	}

	log.Printf("[index] built index for user=%s chunks=%d dim=%d at %s", userID, len(chunks), dimension, path)
	return path, nil
}

// Load reads and validates a persisted index from its location.
func (s *Store) Load(path string) (*Index, error) {
	// The location is <baseDir>/<userID>/index.json; share the owner's lock.
	lock := s.lockFor(filepath.Base(filepath.Dir(path)))
	lock.RLock()
	defer lock.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}

	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	if err := idx.validate(); err != nil {
		return nil, fmt.Errorf("validate index: %w", err)
	}
	return &idx, nil
}

// Retrieve embeds the query and returns the k most similar chunks from idx
// in descending relevance order.
func (s *Store) Retrieve(ctx context.Context, idx *Index, query string, k int) ([]doc.Chunk, error) {
	vectors, err := s.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}
	normalize(vectors[0])

	if k <= 0 {
		k = 3
	}
	scored := idx.search(vectors[0], k)
	chunks := make([]doc.Chunk, len(scored))
	for i, sc := range scored {
		chunks[i] = sc.Chunk
	}
	return chunks, nil
}

func (s *Store) lockFor(userID string) *sync.RWMutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.RWMutex{}
		s.userLocks[userID] = lock
	}
	return lock
}
