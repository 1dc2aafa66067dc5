package messaging

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/BTreeMap/VisitDesk/internal/models"
	"github.com/BTreeMap/VisitDesk/internal/twiliowhatsapp"
	"github.com/BTreeMap/VisitDesk/internal/whatsapp"
)

func TestServicesImplementService(t *testing.T) {
	var _ Service = (*WhatsAppService)(nil)
	var _ Service = (*TwilioService)(nil)
}

func TestCanonicalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"+1 (555) 123-4567", "15551234567", true},
		{"whatsapp:+15551234567", "15551234567", true},
		{"123456", "123456", true},
		{"12345", "", false},
		{"+999 123 456 789 012", "999123456789012", true},
		{"9991234567890123", "", false},
		{"12345678901234567890", "", false},
		{"abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := CanonicalizePhone(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestWhatsAppServiceSendMessageEmitsReceipt(t *testing.T) {
	client := whatsapp.NewMockClient()
	svc := NewWhatsAppService(client, nil)

	require.NoError(t, svc.SendMessage(context.Background(), "+1 555 123 4567", "hello"))

	assert.Equal(t, []whatsapp.SentMessage{{To: "15551234567", Body: "hello"}}, client.Sent())
	select {
	case r := <-svc.Receipts():
		assert.Equal(t, "15551234567", r.To)
		assert.Equal(t, models.MessageStatusSent, r.Status)
	default:
		t.Fatal("expected a sent receipt")
	}
}

func TestWhatsAppServiceSendMessageError(t *testing.T) {
	client := whatsapp.NewMockClient()
	client.Err = errors.New("offline")
	svc := NewWhatsAppService(client, nil)

	assert.Error(t, svc.SendMessage(context.Background(), "15551234567", "hello"))
	assert.Len(t, svc.Receipts(), 0)
}

func TestWhatsAppServiceStartStop(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient(), nil)
	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, svc.Stop())
	require.NoError(t, svc.Stop())

	_, ok := <-svc.Receipts()
	assert.False(t, ok)
	_, ok = <-svc.Responses()
	assert.False(t, ok)
	assert.ErrorIs(t, svc.SendMessage(context.Background(), "15551234567", "x"), ErrServiceStopped)
}

func textMessage(sender, body string) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Sender: types.NewJID(sender, types.DefaultUserServer),
				Chat:   types.NewJID(sender, types.DefaultUserServer),
			},
			ID:        "MSG1",
			Timestamp: time.Unix(1700000000, 0),
		},
		Message: &waE2E.Message{Conversation: &body},
	}
}

func TestWhatsAppServiceForwardsTextMessages(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient(), nil)

	svc.handleEvent(textMessage("15551234567", "/start"))

	select {
	case r := <-svc.Responses():
		assert.Equal(t, "15551234567", r.From)
		assert.Equal(t, "/start", r.Body)
		assert.Equal(t, "MSG1", r.ID)
		assert.Equal(t, int64(1700000000), r.Time)
	default:
		t.Fatal("expected an inbound message")
	}
}

func TestWhatsAppServiceIgnoresOwnAndGroupMessages(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient(), nil)

	own := textMessage("15551234567", "hi")
	own.Info.IsFromMe = true
	svc.handleEvent(own)

	group := textMessage("15551234567", "hi")
	group.Info.IsGroup = true
	svc.handleEvent(group)

	svc.handleEvent(&events.Message{Message: &waE2E.Message{}})

	assert.Len(t, svc.Responses(), 0)
}

func TestWhatsAppServiceReceipts(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient(), nil)
	svc.handleEvent(&events.Receipt{
		MessageSource: types.MessageSource{Chat: types.NewJID("15551234567", types.DefaultUserServer)},
		Type:          events.ReceiptTypeRead,
		Timestamp:     time.Unix(1700000000, 0),
	})
	r := <-svc.Receipts()
	assert.Equal(t, models.MessageStatusRead, r.Status)
	assert.Equal(t, "15551234567", r.To)
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestTwilioWebhookEmitsResponse(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient(), TwilioOpts{})
	form := url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"John Smith"}, "MessageSid": {"SM1"}}

	w := httptest.NewRecorder()
	svc.WebhookHandler(w, postForm("/webhooks/twilio", form))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Response>")
	r := <-svc.Responses()
	assert.Equal(t, "whatsapp:+15551234567", r.From)
	assert.Equal(t, "John Smith", r.Body)
	assert.Equal(t, "SM1", r.ID)

	key, err := svc.ValidateAndCanonicalizeRecipient(r.From)
	require.NoError(t, err)
	assert.Equal(t, "15551234567", key)
}

func TestTwilioWebhookRejectsMissingFields(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient(), TwilioOpts{})
	w := httptest.NewRecorder()
	svc.WebhookHandler(w, postForm("/webhooks/twilio", url.Values{"From": {"whatsapp:+15551234567"}}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, svc.Responses(), 0)
}

// sign computes the X-Twilio-Signature for a form post.
func sign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestTwilioWebhookSignature(t *testing.T) {
	const token = "secret-token"
	const hook = "https://clinic.example.com/webhooks/twilio"
	svc := NewTwilioService(twiliowhatsapp.NewMockClient(), TwilioOpts{AuthToken: token, WebhookURL: hook})
	form := url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"/start"}}

	req := postForm("/webhooks/twilio", form)
	req.Header.Set(SignatureHeader, sign(token, hook, form))
	w := httptest.NewRecorder()
	svc.WebhookHandler(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = postForm("/webhooks/twilio", form)
	req.Header.Set(SignatureHeader, sign("wrong", hook, form))
	w = httptest.NewRecorder()
	svc.WebhookHandler(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	assert.Len(t, svc.Responses(), 1)
}

func TestTwilioServiceSendMessage(t *testing.T) {
	client := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(client, TwilioOpts{})

	require.NoError(t, svc.SendMessage(context.Background(), "whatsapp:+15551234567", "hi"))
	assert.Equal(t, []twiliowhatsapp.SentMessage{{To: "15551234567", Body: "hi"}}, client.Sent())

	require.NoError(t, svc.Stop())
	assert.ErrorIs(t, svc.SendMessage(context.Background(), "15551234567", "hi"), ErrServiceStopped)
}
