package webhook

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	sessionmodel "github.com/docpal/docpal/internal/model/session"
	"github.com/docpal/docpal/internal/service/answer"
	"github.com/docpal/docpal/internal/service/messaging"
	"github.com/docpal/docpal/pkg/utils"
)

const (
	processingNotice  = "Got your document. Processing it for analysis, one moment..."
	downloadFailedMsg = "I could not download your document. Please check the file or try again."
	onboardingPrompt  = "Hello! 👋 To get started, please send me the PDF document you would like to talk about."
	reingestPrompt    = "Something went wrong loading your document data. Please send the document again so I can rebuild it."
)

// Ingestor runs the document ingestion pipeline.
type Ingestor interface {
	Ingest(ctx context.Context, userID, filePath, docName string) (string, error)
}

// Answerer produces a grounded answer for a user question.
type Answerer interface {
	Answer(ctx context.Context, userID, question string) (string, error)
}

// Deliverer sends an arbitrary-length answer as ordered message parts.
type Deliverer interface {
	Deliver(ctx context.Context, recipient, text string) error
}

// SessionLookup reports whether a user has an active document session.
type SessionLookup interface {
	Get(userID string) (sessionmodel.Record, bool)
}

// Config carries the dispatcher's operational settings.
type Config struct {
	// TempDir receives downloaded attachments before ingestion.
	TempDir string
	// SelfNumber is the service's own number without the whatsapp:
	// prefix; messages from it are ignored.
	SelfNumber string

	DownloadTimeout time.Duration
	IngestTimeout   time.Duration
	AnswerTimeout   time.Duration
}

// Handler routes inbound webhook events to the ingestion pipeline or the
// query orchestrator. It is stateless across events except through the
// session store.
type Handler struct {
	sessions   SessionLookup
	ingestor   Ingestor
	answerer   Answerer
	deliverer  Deliverer
	sender     messaging.Sender
	downloader messaging.Downloader
	cfg        Config
}

// New wires the dispatcher to its collaborators.
func New(sessions SessionLookup, ingestor Ingestor, answerer Answerer, deliverer Deliverer, sender messaging.Sender, downloader messaging.Downloader, cfg Config) *Handler {
	return &Handler{
		sessions:   sessions,
		ingestor:   ingestor,
		answerer:   answerer,
		deliverer:  deliverer,
		sender:     sender,
		downloader: downloader,
		cfg:        cfg,
	}
}

// RegisterRoutes mounts the webhook endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/webhook", h.handleEvent)
}

// handleEvent classifies one inbound event as document or text and handles
// it synchronously. It always answers 200: every failure becomes a
// user-facing message instead, so the transport does not retry the event.
func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid form payload")
		return
	}

	sender := strings.TrimSpace(r.PostFormValue("From"))
	if sender == "" {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ignored payload without sender"})
		return
	}
	sender = strings.TrimPrefix(sender, "whatsapp:")

	if sender == h.cfg.SelfNumber {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ignored message from self"})
		return
	}

	userID := strings.TrimSpace(r.PostFormValue("WaId"))
	if userID == "" {
		userID = sender
	}

	body := strings.TrimSpace(r.PostFormValue("Body"))
	mediaURL := r.PostFormValue("MediaUrl0")
	numMedia, _ := strconv.Atoi(r.PostFormValue("NumMedia"))

	var status string
	if numMedia > 0 && mediaURL != "" {
		log.Printf("[webhook] user=%s document event", userID)
		status = h.handleDocument(r.Context(), sender, userID, mediaURL)
	} else {
		log.Printf("[webhook] user=%s text event", userID)
		status = h.handleText(r.Context(), sender, userID, body)
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (h *Handler) handleDocument(ctx context.Context, sender, userID, mediaURL string) string {
	h.send(ctx, sender, processingNotice)

	docName := documentName(mediaURL)
	localPath := filepath.Join(h.cfg.TempDir, uuid.NewString()+"_"+docName)

	downloadCtx, cancel := context.WithTimeout(ctx, h.cfg.DownloadTimeout)
	defer cancel()
	if err := h.downloader.Download(downloadCtx, mediaURL, localPath); err != nil {
		log.Printf("[webhook] download for user=%s: %v", userID, err)
		h.send(ctx, sender, downloadFailedMsg)
		return "download failed"
	}
	defer func() {
		if err := os.Remove(localPath); err != nil {
			log.Printf("[webhook] remove temp file %s: %v", localPath, err)
		}
	}()

	ingestCtx, cancel := context.WithTimeout(ctx, h.cfg.IngestTimeout)
	defer cancel()
	if _, err := h.ingestor.Ingest(ingestCtx, userID, localPath, docName); err != nil {
		log.Printf("[webhook] ingestion for user=%s: %v", userID, err)
		h.send(ctx, sender, fmt.Sprintf("I could not process your document. Please try sending another file. Detail: %v", err))
		return "ingestion failed"
	}

	h.send(ctx, sender, fmt.Sprintf("Your document %q was processed successfully! ✅\n\nYou can now ask me questions about its content.", docName))
	return "document ingested"
}

func (h *Handler) handleText(ctx context.Context, sender, userID, question string) string {
	record, ok := h.sessions.Get(userID)
	if !ok || record.IndexPath == "" {
		h.send(ctx, sender, onboardingPrompt)
		return "onboarding sent"
	}

	answerCtx, cancel := context.WithTimeout(ctx, h.cfg.AnswerTimeout)
	defer cancel()
	text, err := h.answerer.Answer(answerCtx, userID, question)
	switch {
	case errors.Is(err, answer.ErrNoSession):
		h.send(ctx, sender, onboardingPrompt)
		return "onboarding sent"
	case errors.Is(err, answer.ErrIndexUnavailable):
		h.send(ctx, sender, reingestPrompt)
		return "reingest requested"
	case err != nil:
		log.Printf("[webhook] answer for user=%s: %v", userID, err)
		h.send(ctx, sender, fmt.Sprintf("Sorry, an error occurred while answering your question: %v", err))
		return "answer failed"
	}

	// Delivery sends the full response itself; no extra reply here.
	if err := h.deliverer.Deliver(ctx, sender, text); err != nil {
		log.Printf("[webhook] delivery to %s: %v", sender, err)
		return "delivery failed"
	}
	return "answer delivered"
}

// send pushes a single notice to the user, logging instead of failing the
// event when the transport rejects it.
func (h *Handler) send(ctx context.Context, to, text string) {
	if err := h.sender.SendText(ctx, to, text); err != nil {
		log.Printf("[webhook] send to %s: %v", to, err)
	}
}

// documentName derives a human-readable name from the media URL: the last
// path segment with any query string stripped.
func documentName(mediaURL string) string {
	if i := strings.Index(mediaURL, "?"); i >= 0 {
		mediaURL = mediaURL[:i]
	}
	name := path.Base(mediaURL)
	if name == "." || name == "/" || name == "" {
		name = "document"
	}
	return name
}
