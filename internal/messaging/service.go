// Package messaging connects chat transports to the intake conversations.
package messaging

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/BTreeMap/VisitDesk/internal/models"
)

const (
	// DefaultChannelBufferSize is the buffer size for receipt and response channels.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds a blocked channel send before the event is dropped.
	DefaultChannelTimeout = 1 * time.Second
	// MinPhoneDigits is the shortest accepted phone number.
	MinPhoneDigits = 6
	// MaxPhoneDigits is the longest E.164 number.
	MaxPhoneDigits = 15
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

var phoneNumberRegex = regexp.MustCompile(`\D`)

// Service is a pluggable chat transport.
type Service interface {
	// ValidateAndCanonicalizeRecipient returns the canonical form of a sender or recipient.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)
	// SendMessage sends a text message to a canonical recipient.
	SendMessage(ctx context.Context, to string, body string) error
	// Start begins background processing.
	Start(ctx context.Context) error
	// Stop ends background processing and closes the event channels.
	Stop() error
	// Receipts delivers sent, delivered and read events.
	Receipts() <-chan models.Receipt
	// Responses delivers inbound operator messages.
	Responses() <-chan models.Response
}

// CanonicalizePhone strips every non-digit and checks the remaining length.
func CanonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", errors.New("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", errors.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < MinPhoneDigits {
		return "", errors.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, MinPhoneDigits)
	}
	if len(canonical) > MaxPhoneDigits {
		return "", errors.Errorf("invalid phone number: %q is too long (maximum %d digits allowed)", canonical, MaxPhoneDigits)
	}
	return canonical, nil
}

// emitter owns the event channels shared by every Service implementation.
// Channels are closed once, on stop, and sends after that are dropped.
type emitter struct {
	name      string
	logger    *zap.Logger
	receipts  chan models.Receipt
	responses chan models.Response

	mu      sync.RWMutex
	stopped bool
}

func newEmitter(name string, logger *zap.Logger) *emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &emitter{
		name:      name,
		logger:    logger.Named(name),
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.Response, DefaultChannelBufferSize),
	}
}

func (e *emitter) isStopped() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stopped
}

// stop closes the channels. It reports false if already stopped.
func (e *emitter) stop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return false
	}
	e.stopped = true
	close(e.receipts)
	close(e.responses)
	return true
}

// The read lock is held across the send so stop cannot close the channel underneath it.
func (e *emitter) emitReceipt(r models.Receipt) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		return
	}
	select {
	case e.receipts <- r:
	case <-time.After(DefaultChannelTimeout):
		e.logger.Warn("Receipts channel blocked, dropping receipt", zap.String("to", r.To), zap.String("status", string(r.Status)))
	}
}

func (e *emitter) emitResponse(r models.Response) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		e.logger.Warn("Dropping inbound message, service stopped", zap.String("from", r.From))
		return
	}
	select {
	case e.responses <- r:
		e.logger.Debug("Inbound message forwarded", zap.String("from", r.From))
	case <-time.After(DefaultChannelTimeout):
		e.logger.Warn("Responses channel blocked, dropping message", zap.String("from", r.From), zap.Duration("timeout", DefaultChannelTimeout))
	}
}

// Receipts returns the receipt channel.
func (e *emitter) Receipts() <-chan models.Receipt { return e.receipts }

// Responses returns the inbound message channel.
func (e *emitter) Responses() <-chan models.Response { return e.responses }
