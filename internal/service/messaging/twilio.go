package messaging

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Sender delivers one outbound text message to a recipient identity.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
}

// TwilioSender sends WhatsApp texts through the Twilio REST API.
type TwilioSender struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioSender builds a sender for the given account. from is the
// service's WhatsApp number, including the whatsapp: prefix.
func NewTwilioSender(accountSID, authToken, from string) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{client: client, from: from}
}

// SendText sends body to the recipient, normalizing the whatsapp: prefix.
func (s *TwilioSender) SendText(_ context.Context, to, body string) error {
	if !strings.HasPrefix(to, "whatsapp:") {
		to = "whatsapp:" + to
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetFrom(s.from)
	params.SetTo(to)
	params.SetBody(body)

	message, err := s.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send to %s: %w", to, err)
	}
	if message.Sid != nil {
		log.Printf("[messaging] sent message sid=%s to=%s", *message.Sid, to)
	}
	return nil
}
