// Package whatsapp wraps the Whatsmeow client used as the VisitDesk chat transport.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mdp/qrterminal/v3"
	"github.com/pkg/errors"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"

	"github.com/BTreeMap/VisitDesk/internal/store"
)

const (
	// DefaultSQLitePath is the default whatsmeow session database.
	DefaultSQLitePath = "/var/lib/visitdesk/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID server for regular users.
	JIDSuffix = "s.whatsapp.net"
	// DefaultLogLevel is passed to the whatsmeow loggers.
	DefaultLogLevel = "INFO"
)

// Sender sends a text message to a canonical phone number.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts holds configuration for the WhatsApp client.
type Opts struct {
	DBDSN       string // whatsmeow session database
	QRPath      string // where to write the login QR code; stdout when empty
	NumericCode bool   // print the raw pairing code instead of a QR block
	LogLevel    string
	Logger      *zap.Logger
}

// Option configures the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow session database.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) { o.DBDSN = dsn }
}

// WithQRCodeOutput writes the login QR code to path.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) { o.QRPath = path }
}

// WithNumericCode prints the pairing code as text.
func WithNumericCode() Option {
	return func(o *Opts) { o.NumericCode = true }
}

// WithLogLevel sets the whatsmeow log level (DEBUG, INFO, WARN, ERROR).
func WithLogLevel(level string) Option {
	return func(o *Opts) { o.LogLevel = strings.ToUpper(level) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Opts) { o.Logger = l }
}

// Client wraps a connected whatsmeow client.
type Client struct {
	waClient *whatsmeow.Client
	logger   *zap.Logger
}

// NewClient opens the session database, logs in if needed, and connects.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := Opts{LogLevel: DefaultLogLevel}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("whatsapp")

	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		logger.Debug("No WhatsApp database DSN provided, using default SQLite path", zap.String("path", dbDSN))
	}
	driver := store.DetectDSNType(dbDSN)
	if driver == store.DSNTypeSQLite && !hasForeignKeys(dbDSN) {
		logger.Warn("SQLite database for WhatsApp does not enable foreign keys; whatsmeow recommends them",
			zap.String("dsn_example", "file:"+dbDSN+"?_foreign_keys=on"))
	}

	container, err := sqlstore.New(ctx, driver, dbDSN, waLog.Stdout("Database", cfg.LogLevel, true))
	if err != nil {
		logger.Error("Failed to initialize WhatsApp DB store", zap.Error(err))
		return nil, errors.Wrap(err, "failed to initialize WhatsApp database store")
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		logger.Error("Failed to get first device from store", zap.Error(err))
		return nil, errors.Wrap(err, "failed to get device from WhatsApp store")
	}

	waClient := whatsmeow.NewClient(device, waLog.Stdout("Client", cfg.LogLevel, true))
	if waClient.Store.ID == nil {
		logger.Info("WhatsApp login required; starting QR code flow")
		if err := login(ctx, waClient, cfg, logger); err != nil {
			return nil, err
		}
	} else if err := waClient.Connect(); err != nil {
		logger.Error("Failed to connect to WhatsApp server", zap.Error(err))
		return nil, errors.Wrap(err, "failed to connect to WhatsApp server")
	}
	logger.Info("WhatsApp client connected successfully")
	return &Client{waClient: waClient, logger: logger}, nil
}

func login(ctx context.Context, waClient *whatsmeow.Client, cfg Opts, logger *zap.Logger) error {
	qrChan, _ := waClient.GetQRChannel(ctx)
	if err := waClient.Connect(); err != nil {
		logger.Error("Failed to connect to WhatsApp during login", zap.Error(err))
		return errors.Wrap(err, "failed to connect to WhatsApp during login")
	}

	writer := io.Writer(os.Stdout)
	if cfg.QRPath != "" {
		f, err := os.Create(cfg.QRPath)
		if err != nil {
			return errors.Wrap(err, "failed to create QR file")
		}
		defer f.Close()
		writer = f
	}
	for evt := range qrChan {
		if evt.Event != "code" {
			logger.Info("WhatsApp login event", zap.String("event", evt.Event))
			continue
		}
		if cfg.NumericCode {
			fmt.Fprintln(writer, evt.Code)
		} else {
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
		}
	}
	return nil
}

func hasForeignKeys(dsn string) bool {
	return strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "foreign_keys")
}

// SendMessage sends a plain text message to the phone number to.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if c.waClient == nil || c.waClient.Store == nil {
		return errors.New("whatsapp client not initialized")
	}
	if to == "" {
		return errors.New("recipient cannot be empty")
	}
	if body == "" {
		return errors.New("message body cannot be empty")
	}

	jid := types.NewJID(to, JIDSuffix)
	if _, err := c.waClient.SendMessage(ctx, jid, &waE2E.Message{Conversation: &body}); err != nil {
		c.logger.Error("Failed to send WhatsApp message", zap.String("to", to), zap.Error(err))
		return errors.Wrapf(err, "failed to send message to %s", to)
	}
	c.logger.Debug("WhatsApp message sent", zap.String("to", to), zap.Int("body_length", len(body)))
	return nil
}

// AddEventHandler registers fn for whatsmeow events.
func (c *Client) AddEventHandler(fn func(evt interface{})) uint32 {
	return c.waClient.AddEventHandler(fn)
}

// RemoveEventHandler unregisters a handler added with AddEventHandler.
func (c *Client) RemoveEventHandler(id uint32) {
	c.waClient.RemoveEventHandler(id)
}

// Disconnect closes the websocket.
func (c *Client) Disconnect() {
	c.waClient.Disconnect()
}

// SentMessage is one message recorded by MockClient.
type SentMessage struct {
	To   string
	Body string
}

// MockClient records messages instead of sending them.
type MockClient struct {
	mu   sync.Mutex
	sent []SentMessage
	Err  error
}

// NewMockClient returns an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// SendMessage records the message, or returns m.Err when set.
func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, SentMessage{To: to, Body: body})
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *MockClient) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}
