package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/docpal/docpal/internal/model/doc"
	sessionmodel "github.com/docpal/docpal/internal/model/session"
	"github.com/docpal/docpal/internal/service/ingest"
)

type fakeExtractor struct {
	blocks []string
	err    error
}

func (f fakeExtractor) ExtractText(string) ([]string, error) {
	return f.blocks, f.err
}

type fakeBuilder struct {
	err    error
	called bool
	chunks []doc.Chunk
}

func (f *fakeBuilder) Build(_ context.Context, userID string, chunks []doc.Chunk) (string, error) {
	f.called = true
	f.chunks = chunks
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("idx/%s/index.json", userID), nil
}

type fakeSessions struct {
	records map[string]sessionmodel.Record
	err     error
}

func (f *fakeSessions) Put(userID string, record sessionmodel.Record) error {
	if f.err != nil {
		return f.err
	}
	if f.records == nil {
		f.records = make(map[string]sessionmodel.Record)
	}
	f.records[userID] = record
	return nil
}

func newService(extractor ingest.Extractor, builder ingest.IndexBuilder, sessions ingest.SessionRecorder) *ingest.Service {
	return ingest.NewService(extractor, ingest.NewChunker(1000, 150), builder, sessions)
}

func TestIngestRecordsSession(t *testing.T) {
	builder := &fakeBuilder{}
	sessions := &fakeSessions{}
	svc := newService(fakeExtractor{blocks: []string{"some document text"}}, builder, sessions)

	path, err := svc.Ingest(context.Background(), "user-1", "/tmp/abc_report.pdf", "report.pdf")
	if err != nil {
		t.Fatalf("Ingest err: %v", err)
	}
	if path != "idx/user-1/index.json" {
		t.Fatalf("unexpected index path %q", path)
	}

	record, ok := sessions.records["user-1"]
	if !ok {
		t.Fatal("expected session record")
	}
	if record.IndexPath != path || record.DocumentName != "report.pdf" {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestIngestExtractionFailure(t *testing.T) {
	builder := &fakeBuilder{}
	svc := newService(fakeExtractor{err: errors.New("encrypted file")}, builder, &fakeSessions{})

	_, err := svc.Ingest(context.Background(), "user-1", "/tmp/f.pdf", "f.pdf")
	if !errors.Is(err, ingest.ErrIngestion) {
		t.Fatalf("expected ErrIngestion, got %v", err)
	}
	if builder.called {
		t.Fatal("index must not be built when extraction fails")
	}
}

func TestIngestEmptyDocumentFails(t *testing.T) {
	builder := &fakeBuilder{}
	svc := newService(fakeExtractor{blocks: []string{"   ", ""}}, builder, &fakeSessions{})

	_, err := svc.Ingest(context.Background(), "user-1", "/tmp/f.pdf", "f.pdf")
	if !errors.Is(err, ingest.ErrIngestion) {
		t.Fatalf("expected ErrIngestion, got %v", err)
	}
	if builder.called {
		t.Fatal("index must not be built for an empty document")
	}
}

func TestIngestBuildFailureLeavesSessionUntouched(t *testing.T) {
	sessions := &fakeSessions{}
	svc := newService(fakeExtractor{blocks: []string{"content"}}, &fakeBuilder{err: errors.New("embedding quota")}, sessions)

	_, err := svc.Ingest(context.Background(), "user-1", "/tmp/f.pdf", "f.pdf")
	if !errors.Is(err, ingest.ErrIngestion) {
		t.Fatalf("expected ErrIngestion, got %v", err)
	}
	if len(sessions.records) != 0 {
		t.Fatal("session must not be recorded when the build fails")
	}
}

func TestReingestOverwritesRecord(t *testing.T) {
	builder := &fakeBuilder{}
	sessions := &fakeSessions{}

	first := newService(fakeExtractor{blocks: []string{"first document"}}, builder, sessions)
	if _, err := first.Ingest(context.Background(), "user-1", "/tmp/a.pdf", "first.pdf"); err != nil {
		t.Fatalf("Ingest err: %v", err)
	}

	second := newService(fakeExtractor{blocks: []string{"second document"}}, builder, sessions)
	if _, err := second.Ingest(context.Background(), "user-1", "/tmp/b.pdf", "second.pdf"); err != nil {
		t.Fatalf("Ingest err: %v", err)
	}

	if len(sessions.records) != 1 {
		t.Fatalf("expected one active record, got %d", len(sessions.records))
	}
	if sessions.records["user-1"].DocumentName != "second.pdf" {
		t.Fatalf("expected overwrite, got %+v", sessions.records["user-1"])
	}
}
