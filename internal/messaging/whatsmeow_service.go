package messaging

import (
	"context"
	"log/slog"
	"sync"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/kindatcart/cartcheck/internal/models"
	"github.com/kindatcart/cartcheck/internal/whatsapp"
)

// WhatsmeowService implements Service using a direct whatsmeow connection.
// Incoming messages, including cart photos with inline media, are delivered
// on the Responses channel so no webhook is required.
type WhatsmeowService struct {
	client    *whatsapp.Client
	responses chan models.IncomingMessage
	done      chan struct{}
	stopOnce  sync.Once
}

// NewWhatsmeowService creates a service wrapping the given whatsmeow client.
func NewWhatsmeowService(client *whatsapp.Client) *WhatsmeowService {
	return &WhatsmeowService{
		client:    client,
		responses: make(chan models.IncomingMessage, DefaultChannelBufferSize),
		done:      make(chan struct{}),
	}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp
// phone number.
func (s *WhatsmeowService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeRecipient(recipient)
}

// SendMessage sends a WhatsApp text message through the whatsmeow client.
func (s *WhatsmeowService) SendMessage(ctx context.Context, to string, body string) error {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if body == "" {
		return models.ErrEmptyBody
	}
	return s.client.SendMessage(ctx, canonicalTo, body)
}

// DownloadMedia is unsupported by media ID: whatsmeow downloads media eagerly
// in the event handler and delivers it inline on the incoming message.
func (s *WhatsmeowService) DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	return nil, "", ErrMediaNotSupported
}

// Start registers the event handler that feeds incoming messages to Responses.
func (s *WhatsmeowService) Start(ctx context.Context) error {
	if s.client == nil || s.client.GetClient() == nil {
		slog.Debug("WhatsmeowService no client available, skipping event handling")
		return nil
	}

	s.client.GetClient().AddEventHandler(func(evt interface{}) {
		if msg, ok := evt.(*events.Message); ok {
			s.handleIncomingMessage(ctx, msg)
		}
	})
	slog.Debug("WhatsmeowService event handler registered")
	return nil
}

// Stop closes the responses channel and disconnects from WhatsApp.
func (s *WhatsmeowService) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)
		close(s.responses)
		s.client.Disconnect()
	})
	return nil
}

// Responses returns the channel of incoming messages.
func (s *WhatsmeowService) Responses() <-chan models.IncomingMessage {
	return s.responses
}

// handleIncomingMessage converts a whatsmeow message event into an
// IncomingMessage, downloading image attachments inline.
func (s *WhatsmeowService) handleIncomingMessage(ctx context.Context, evt *events.Message) {
	if evt.Message == nil || evt.Info.IsFromMe {
		return
	}

	msg := models.IncomingMessage{
		From: evt.Info.Sender.User,
		Name: evt.Info.PushName,
		Time: evt.Info.Timestamp.Unix(),
	}

	switch {
	case evt.Message.GetImageMessage() != nil:
		img := evt.Message.GetImageMessage()
		data, mediaType, err := s.client.DownloadImage(ctx, img)
		if err != nil {
			slog.Error("WhatsmeowService image download failed", "error", err, "from", msg.From)
			return
		}
		msg.Kind = models.MessageKindImage
		msg.MediaData = data
		msg.MediaType = mediaType
		msg.Text = img.GetCaption()
	case evt.Message.GetConversation() != "":
		msg.Kind = models.MessageKindText
		msg.Text = evt.Message.GetConversation()
	case evt.Message.GetExtendedTextMessage().GetText() != "":
		msg.Kind = models.MessageKindText
		msg.Text = evt.Message.GetExtendedTextMessage().GetText()
	default:
		slog.Debug("WhatsmeowService ignoring unsupported message type", "from", msg.From)
		return
	}

	select {
	case s.responses <- msg:
		slog.Debug("WhatsmeowService message queued", "from", msg.From, "kind", msg.Kind)
	case <-s.done:
	default:
		slog.Warn("WhatsmeowService responses channel full, dropping message", "from", msg.From)
	}
}
