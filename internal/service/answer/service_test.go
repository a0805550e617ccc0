package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/docpal/docpal/internal/model/doc"
	sessionmodel "github.com/docpal/docpal/internal/model/session"
	"github.com/docpal/docpal/internal/service/index"
)

type fakeSessions map[string]sessionmodel.Record

func (f fakeSessions) Get(userID string) (sessionmodel.Record, bool) {
	record, ok := f[userID]
	return record, ok
}

type fakeIndexes struct {
	loadErr     error
	retrieveErr error
	chunks      []doc.Chunk
	loadedPath  string
}

func (f *fakeIndexes) Load(path string) (*index.Index, error) {
	f.loadedPath = path
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return &index.Index{}, nil
}

func (f *fakeIndexes) Retrieve(_ context.Context, _ *index.Index, _ string, _ int) ([]doc.Chunk, error) {
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	return f.chunks, nil
}

// fakeChain substitutes the compiled eino chain in tests.
type fakeChain struct {
	invoke func(ctx context.Context, input map[string]any) (*schema.Message, error)
}

func (f fakeChain) Invoke(ctx context.Context, input map[string]any, _ ...compose.Option) (*schema.Message, error) {
	return f.invoke(ctx, input)
}

func (f fakeChain) Stream(context.Context, map[string]any, ...compose.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func (f fakeChain) Collect(context.Context, *schema.StreamReader[map[string]any], ...compose.Option) (*schema.Message, error) {
	return nil, errors.New("not implemented")
}

func (f fakeChain) Transform(context.Context, *schema.StreamReader[map[string]any], ...compose.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func testRecord() sessionmodel.Record {
	return sessionmodel.Record{
		UserID:       "user-1",
		IndexPath:    "idx/user-1/index.json",
		DocumentName: "report.pdf",
	}
}

func TestAnswerNoSession(t *testing.T) {
	svc := &Service{sessions: fakeSessions{}, indexes: &fakeIndexes{}, topK: 3}

	_, err := svc.Answer(context.Background(), "stranger", "what is this about?")
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestAnswerBlankIndexPathIsNoSession(t *testing.T) {
	sessions := fakeSessions{"user-1": {UserID: "user-1"}}
	svc := &Service{sessions: sessions, indexes: &fakeIndexes{}, topK: 3}

	_, err := svc.Answer(context.Background(), "user-1", "question")
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestAnswerIndexUnavailable(t *testing.T) {
	sessions := fakeSessions{"user-1": testRecord()}
	indexes := &fakeIndexes{loadErr: errors.New("file vanished")}
	svc := &Service{sessions: sessions, indexes: indexes, topK: 3}

	_, err := svc.Answer(context.Background(), "user-1", "question")
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
	if indexes.loadedPath != "idx/user-1/index.json" {
		t.Fatalf("expected load from session path, got %q", indexes.loadedPath)
	}
}

func TestAnswerGenerationFailure(t *testing.T) {
	sessions := fakeSessions{"user-1": testRecord()}
	indexes := &fakeIndexes{chunks: []doc.Chunk{{Text: "context"}}}
	svc := &Service{
		sessions: sessions,
		indexes:  indexes,
		topK:     3,
		chain: fakeChain{invoke: func(context.Context, map[string]any) (*schema.Message, error) {
			return nil, errors.New("model overloaded")
		}},
	}

	_, err := svc.Answer(context.Background(), "user-1", "question")
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
	if !strings.Contains(err.Error(), "model overloaded") {
		t.Fatalf("expected underlying cause in error, got %v", err)
	}
}

func TestAnswerGroundsPromptInRetrievedChunks(t *testing.T) {
	sessions := fakeSessions{"user-1": testRecord()}
	indexes := &fakeIndexes{chunks: []doc.Chunk{
		{Index: 4, Text: "Clause 7 sets the termination notice at 30 days."},
		{Index: 9, Text: "Clause 8 covers renewals."},
	}}

	var gotInput map[string]any
	svc := &Service{
		sessions: sessions,
		indexes:  indexes,
		topK:     3,
		chain: fakeChain{invoke: func(_ context.Context, input map[string]any) (*schema.Message, error) {
			gotInput = input
			return schema.AssistantMessage("30 days of notice are required.", nil), nil
		}},
	}

	got, err := svc.Answer(context.Background(), "user-1", "how much notice is required?")
	if err != nil {
		t.Fatalf("Answer err: %v", err)
	}
	if got != "30 days of notice are required." {
		t.Fatalf("unexpected answer %q", got)
	}

	contextText, _ := gotInput["context"].(string)
	if !strings.Contains(contextText, "Clause 7") || !strings.Contains(contextText, "Clause 8") {
		t.Fatalf("retrieved chunks missing from prompt context: %q", contextText)
	}
	if q, _ := gotInput["question"].(string); q != "how much notice is required?" {
		t.Fatalf("literal question missing from prompt input: %q", q)
	}
}
