package answer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/docpal/docpal/internal/model/doc"
	sessionmodel "github.com/docpal/docpal/internal/model/session"
	"github.com/docpal/docpal/internal/service/index"
)

var (
	// ErrNoSession means the user has never successfully ingested a
	// document; the remediation is first-time onboarding.
	ErrNoSession = errors.New("no document session for user")

	// ErrIndexUnavailable means a session exists but its index could not
	// be loaded; the remediation is re-sending the document.
	ErrIndexUnavailable = errors.New("document index unavailable")

	// ErrGeneration wraps failures of the answer generation call. It is
	// not retried automatically.
	ErrGeneration = errors.New("answer generation failed")
)

// NotFoundReply is the sentinel the model is instructed to return when the
// retrieved context does not contain the answer.
const NotFoundReply = "That information is not found in the document."

const systemPrompt = `You are an AI assistant specialized in document analysis.
Answer the user's question based exclusively on the provided document context.
If the answer is not in the context, reply exactly: "` + NotFoundReply + `"
If the question asks for a summary, synthesize the main points of the context instead of quoting it verbatim.
Do not invent information outside the context.`

// SessionLookup resolves a user's current session record.
type SessionLookup interface {
	Get(userID string) (sessionmodel.Record, bool)
}

// IndexSearcher loads persisted indices and retrieves relevant chunks.
type IndexSearcher interface {
	Load(path string) (*index.Index, error)
	Retrieve(ctx context.Context, idx *index.Index, query string, k int) ([]doc.Chunk, error)
}

// Service answers user questions grounded in their ingested document. The
// prompt-plus-model chain is compiled once at construction and invoked once
// per question; there is no multi-turn memory.
type Service struct {
	sessions SessionLookup
	indexes  IndexSearcher
	topK     int
	chain    compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles the generation chain around chatModel.
func NewService(ctx context.Context, chatModel model.ChatModel, sessions SessionLookup, indexes IndexSearcher, topK int) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage("Document context:\n{context}\n\nUser question:\n{question}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile answer chain: %w", err)
	}

	return &Service{
		sessions: sessions,
		indexes:  indexes,
		topK:     topK,
		chain:    runnable,
	}, nil
}

// Answer loads the user's index, retrieves the most relevant chunks for the
// question and generates a grounded answer.
func (s *Service) Answer(ctx context.Context, userID, question string) (string, error) {
	record, ok := s.sessions.Get(userID)
	if !ok || record.IndexPath == "" {
		return "", ErrNoSession
	}

	idx, err := s.indexes.Load(record.IndexPath)
	if err != nil {
		log.Printf("[answer] load index for user=%s: %v", userID, err)
		return "", fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	chunks, err := s.indexes.Retrieve(ctx, idx, question, s.topK)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	response, err := s.chain.Invoke(ctx, map[string]any{
		"context":  joinChunks(chunks),
		"question": question,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	log.Printf("[answer] user=%s doc=%q answered, length=%d", userID, record.DocumentName, len(response.Content))
	return response.Content, nil
}

func joinChunks(chunks []doc.Chunk) string {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	return strings.Join(texts, "\n\n")
}
