package messaging

import (
	"context"
	"net/http"
	"strings"
	"time"

	twilioclient "github.com/twilio/twilio-go/client"
	"go.uber.org/zap"

	"github.com/BTreeMap/VisitDesk/internal/models"
	"github.com/BTreeMap/VisitDesk/internal/twiliowhatsapp"
)

// SignatureHeader carries the Twilio request signature.
const SignatureHeader = "X-Twilio-Signature"

// emptyTwiML acknowledges a webhook without sending an automatic reply.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// TwilioOpts configures the Twilio service.
type TwilioOpts struct {
	// AuthToken enables webhook signature validation when set.
	AuthToken string
	// WebhookURL is the public URL Twilio posts to. When empty it is rebuilt
	// from the request, which is wrong behind most proxies.
	WebhookURL string
	Logger     *zap.Logger
}

// TwilioService implements Service with the Twilio REST API for sending and a
// webhook for receiving.
type TwilioService struct {
	*emitter
	client     twiliowhatsapp.Sender
	validator  *twilioclient.RequestValidator
	webhookURL string
}

// NewTwilioService wraps client.
func NewTwilioService(client twiliowhatsapp.Sender, opts TwilioOpts) *TwilioService {
	s := &TwilioService{
		emitter:    newEmitter("twilio_service", opts.Logger),
		client:     client,
		webhookURL: opts.WebhookURL,
	}
	if opts.AuthToken != "" {
		v := twilioclient.NewRequestValidator(opts.AuthToken)
		s.validator = &v
	}
	return s
}

// ValidateAndCanonicalizeRecipient reduces a phone number, with or without the
// whatsapp: prefix, to its digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(strings.TrimPrefix(recipient, twiliowhatsapp.WhatsAppPrefix))
}

// Start is a no-op; inbound messages arrive through the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the channels.
func (s *TwilioService) Stop() error {
	if s.stop() {
		s.logger.Info("TwilioService stopped and channels closed")
	}
	return nil
}

// SendMessage sends body and emits a sent receipt.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		s.logger.Error("TwilioService SendMessage validation error", zap.String("to", to), zap.Error(err))
		return err
	}
	if err := s.client.SendMessage(ctx, canonical, body); err != nil {
		return err
	}
	s.emitReceipt(models.Receipt{To: canonical, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

// WebhookHandler accepts inbound Twilio message webhooks and emits them on Responses.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.logger.Warn("Failed to parse Twilio webhook form", zap.Error(err))
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if s.validator != nil && !s.validSignature(r) {
		s.logger.Warn("Twilio webhook signature rejected", zap.String("remote", r.RemoteAddr))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	from := r.PostForm.Get("From")
	body := r.PostForm.Get("Body")
	if from == "" || body == "" {
		s.logger.Warn("Twilio webhook missing fields", zap.Bool("from_set", from != ""), zap.Bool("body_set", body != ""))
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	s.emitResponse(models.Response{
		ID:   r.PostForm.Get("MessageSid"),
		From: from,
		Body: body,
		Time: time.Now().Unix(),
	})

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}

func (s *TwilioService) validSignature(r *http.Request) bool {
	params := make(map[string]string, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return s.validator.Validate(s.requestURL(r), params, r.Header.Get(SignatureHeader))
}

func (s *TwilioService) requestURL(r *http.Request) string {
	if s.webhookURL != "" {
		return s.webhookURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
