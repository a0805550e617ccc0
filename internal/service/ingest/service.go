package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/docpal/docpal/internal/model/doc"
	sessionmodel "github.com/docpal/docpal/internal/model/session"
)

// ErrIngestion marks any failure while turning a downloaded document into a
// retrievable index. Callers convert it to a user-facing message; it never
// crashes the dispatcher.
var ErrIngestion = errors.New("document ingestion failed")

// IndexBuilder is the slice of the index store the pipeline needs.
type IndexBuilder interface {
	Build(ctx context.Context, userID string, chunks []doc.Chunk) (string, error)
}

// SessionRecorder persists the session record produced by an ingestion.
type SessionRecorder interface {
	Put(userID string, record sessionmodel.Record) error
}

// Service is the document ingestion pipeline: extract text, chunk it, build
// the user's index and record the resulting session.
type Service struct {
	extractor Extractor
	chunker   *Chunker
	indexes   IndexBuilder
	sessions  SessionRecorder
}

// NewService wires the pipeline collaborators together.
func NewService(extractor Extractor, chunker *Chunker, indexes IndexBuilder, sessions SessionRecorder) *Service {
	return &Service{
		extractor: extractor,
		chunker:   chunker,
		indexes:   indexes,
		sessions:  sessions,
	}
}

// Ingest processes the downloaded file at filePath for userID and returns
// the location of the freshly built index. A repeat ingestion for the same
// user overwrites both the index and the session record; partial artifacts
// from a failed run are left for the next successful run to replace.
func (s *Service) Ingest(ctx context.Context, userID, filePath, docName string) (string, error) {
	blocks, err := s.extractor.ExtractText(filePath)
	if err != nil {
		return "", fmt.Errorf("%w: extract %q: %v", ErrIngestion, docName, err)
	}

	chunks := s.chunker.Chunk(blocks)
	if len(chunks) == 0 {
		return "", fmt.Errorf("%w: %q contains no extractable text", ErrIngestion, docName)
	}
	log.Printf("[ingest] user=%s doc=%q split into %d chunks", userID, docName, len(chunks))

	indexPath, err := s.indexes.Build(ctx, userID, chunks)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIngestion, err)
	}

	record := sessionmodel.Record{
		UserID:       userID,
		IndexPath:    indexPath,
		DocumentName: docName,
	}
	if err := s.sessions.Put(userID, record); err != nil {
		return "", fmt.Errorf("%w: record session: %v", ErrIngestion, err)
	}

	return indexPath, nil
}
