package messaging

import (
	"context"
	"time"

	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"

	"github.com/BTreeMap/VisitDesk/internal/models"
	"github.com/BTreeMap/VisitDesk/internal/whatsapp"
)

// eventSource is implemented by clients that deliver whatsmeow events.
type eventSource interface {
	AddEventHandler(fn func(evt interface{})) uint32
	RemoveEventHandler(id uint32)
}

// WhatsAppService implements Service on top of a whatsmeow client.
type WhatsAppService struct {
	*emitter
	client    whatsapp.Sender
	source    eventSource
	handlerID uint32
}

// NewWhatsAppService wraps client. Inbound events are only received when the
// client is also an event source, as *whatsapp.Client is.
func NewWhatsAppService(client whatsapp.Sender, logger *zap.Logger) *WhatsAppService {
	s := &WhatsAppService{
		emitter: newEmitter("whatsapp_service", logger),
		client:  client,
	}
	if src, ok := client.(eventSource); ok {
		s.source = src
	}
	return s
}

// ValidateAndCanonicalizeRecipient reduces a phone number to its digits.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// Start registers the event handler.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.source == nil {
		s.logger.Debug("WhatsAppService client has no event source, inbound messages disabled")
		return nil
	}
	s.handlerID = s.source.AddEventHandler(s.handleEvent)
	s.logger.Info("WhatsAppService event handler registered")
	return nil
}

// Stop unregisters the event handler and closes the channels.
func (s *WhatsAppService) Stop() error {
	if s.source != nil && s.handlerID != 0 {
		s.source.RemoveEventHandler(s.handlerID)
	}
	if s.stop() {
		s.logger.Info("WhatsAppService stopped and channels closed")
	}
	return nil
}

// SendMessage sends body and emits a sent receipt.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := s.client.SendMessage(ctx, canonical, body); err != nil {
		s.logger.Error("WhatsAppService SendMessage failed", zap.String("to", canonical), zap.Error(err))
		return err
	}
	s.emitReceipt(models.Receipt{To: canonical, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

func (s *WhatsAppService) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		s.handleIncomingMessage(v)
	case *events.Receipt:
		s.handleReceipt(v)
	}
}

// handleIncomingMessage forwards direct text messages from other users.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}
	var text string
	switch {
	case evt.Message.Conversation != nil:
		text = evt.Message.GetConversation()
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		text = evt.Message.ExtendedTextMessage.GetText()
	default:
		s.logger.Debug("WhatsAppService ignoring non-text message", zap.String("from", evt.Info.Sender.User))
		return
	}

	s.emitResponse(models.Response{
		ID:   string(evt.Info.ID),
		From: evt.Info.Sender.User,
		Body: text,
		Time: evt.Info.Timestamp.Unix(),
	})
}

func (s *WhatsAppService) handleReceipt(evt *events.Receipt) {
	var status models.MessageStatus
	switch evt.Type {
	case events.ReceiptTypeDelivered:
		status = models.MessageStatusDelivered
	case events.ReceiptTypeRead:
		status = models.MessageStatusRead
	default:
		return
	}
	s.emitReceipt(models.Receipt{
		To:     evt.MessageSource.Chat.User,
		Status: status,
		Time:   evt.Timestamp.Unix(),
	})
}
