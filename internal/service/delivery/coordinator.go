package delivery

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/docpal/docpal/internal/service/messaging"
)

// Coordinator sends an arbitrary-length answer as an ordered sequence of
// size-limited parts, pacing consecutive parts so the transport keeps them
// in order on the client.
type Coordinator struct {
	sender messaging.Sender
	maxLen int
	pause  time.Duration
}

// NewCoordinator returns a coordinator sending through sender with the
// given per-message size limit and inter-part pause.
func NewCoordinator(sender messaging.Sender, maxLen int, pause time.Duration) *Coordinator {
	return &Coordinator{sender: sender, maxLen: maxLen, pause: pause}
}

// Deliver splits text and sends the parts strictly in order. A single part
// goes out unannotated; multiple parts carry a "(Part i/N)" marker. The
// size limit leaves headroom under the transport ceiling for that marker.
// Sending is best-effort per part: a failed part is logged and the next one
// is still attempted. Deliver errors only when the context is cancelled or
// every part failed.
func (c *Coordinator) Deliver(ctx context.Context, recipient, text string) error {
	parts := Split(text, c.maxLen)
	if len(parts) == 0 {
		return nil
	}

	sent := 0
	for i, part := range parts {
		body := part
		if len(parts) > 1 {
			body = fmt.Sprintf("(Part %d/%d)\n%s", i+1, len(parts), part)
		}

		if err := c.sender.SendText(ctx, recipient, body); err != nil {
			log.Printf("[delivery] part %d/%d to %s failed: %v", i+1, len(parts), recipient, err)
		} else {
			sent++
		}

		if i < len(parts)-1 && c.pause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.pause):
			}
		}
	}

	if sent == 0 {
		return fmt.Errorf("delivery to %s failed for all %d parts", recipient, len(parts))
	}
	return nil
}
