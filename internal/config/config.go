// Package config resolves VisitDesk settings from flags, environment
// variables and an optional .env file, in that order of precedence.
package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Backends.
const (
	BackendWhatsApp = "whatsapp"
	BackendTwilio   = "twilio"
)

// Defaults.
const (
	DefaultStateDir        = "/var/lib/visitdesk"
	DefaultDBFileName      = "visitdesk.db"
	DefaultWhatsAppDBName  = "whatsmeow.db"
	DefaultAPIAddr         = ":8080"
	DefaultMaxAttempts     = 3
	DefaultIdleTimeout     = 30 * time.Minute
	DefaultWriteTimeout    = 5 * time.Second
	DefaultLogLevel        = "info"
	DefaultTwilioRateLimit = 60
)

// MinJWTSecretLength matches the report API's minimum HMAC secret.
const MinJWTSecretLength = 32

// Keys double as flag names.
const (
	KeyStateDir            = "state-dir"
	KeyDBDSN               = "db-dsn"
	KeyAPIAddr             = "api-addr"
	KeyAPIJWTSecret        = "api-jwt-secret"
	KeyBackend             = "backend"
	KeyMaxAttempts         = "max-attempts"
	KeyRequireConfirmation = "require-confirmation"
	KeyIdleTimeout         = "idle-timeout"
	KeyWriteTimeout        = "write-timeout"
	KeyLogLevel            = "log-level"
	KeyLogFile             = "log-file"
	KeyOpenAIKey           = "openai-api-key"
	KeyOpenAIModel         = "openai-model"
	KeyWhatsAppDBDSN       = "whatsapp-db-dsn"
	KeyQROutput            = "qr-output"
	KeyNumericCode         = "numeric-code"
	KeyTwilioAccountSID    = "twilio-account-sid"
	KeyTwilioAuthToken     = "twilio-auth-token"
	KeyTwilioFrom          = "twilio-from"
	KeyTwilioWebhookURL    = "twilio-webhook-url"
	KeyTwilioRateLimit     = "twilio-rate-limit"
)

// envNames maps keys to environment variables. The database, OpenAI and
// Twilio names follow the conventions those tools already use.
var envNames = map[string]string{
	KeyStateDir:            "VISITDESK_STATE_DIR",
	KeyDBDSN:               "DATABASE_URL",
	KeyAPIAddr:             "API_ADDR",
	KeyAPIJWTSecret:        "API_JWT_SECRET",
	KeyBackend:             "MESSAGING_BACKEND",
	KeyMaxAttempts:         "VISITDESK_MAX_ATTEMPTS",
	KeyRequireConfirmation: "VISITDESK_REQUIRE_CONFIRMATION",
	KeyIdleTimeout:         "VISITDESK_IDLE_TIMEOUT",
	KeyWriteTimeout:        "VISITDESK_WRITE_TIMEOUT",
	KeyLogLevel:            "LOG_LEVEL",
	KeyLogFile:             "LOG_FILE",
	KeyOpenAIKey:           "OPENAI_API_KEY",
	KeyOpenAIModel:         "OPENAI_MODEL",
	KeyWhatsAppDBDSN:       "WHATSAPP_DB_DSN",
	KeyQROutput:            "WHATSAPP_QR_OUTPUT",
	KeyNumericCode:         "WHATSAPP_NUMERIC_CODE",
	KeyTwilioAccountSID:    "TWILIO_ACCOUNT_SID",
	KeyTwilioAuthToken:     "TWILIO_AUTH_TOKEN",
	KeyTwilioFrom:          "TWILIO_FROM_NUMBER",
	KeyTwilioWebhookURL:    "TWILIO_WEBHOOK_URL",
	KeyTwilioRateLimit:     "TWILIO_RATE_LIMIT",
}

// Config is the resolved process configuration.
type Config struct {
	StateDir            string
	DatabaseDSN         string
	APIAddr             string
	// APIJWTSecret signs operator report tokens; empty keeps the report endpoints off.
	APIJWTSecret        string
	Backend             string
	MaxAttempts         int
	RequireConfirmation bool
	IdleTimeout         time.Duration
	WriteTimeout        time.Duration
	LogLevel            string
	LogFile             string

	OpenAIKey   string
	OpenAIModel string

	WhatsApp WhatsApp
	Twilio   Twilio
}

// WhatsApp holds whatsmeow settings.
type WhatsApp struct {
	DBDSN       string
	QROutput    string
	NumericCode bool
}

// Twilio holds Twilio settings.
type Twilio struct {
	AccountSID string
	AuthToken  string
	From       string
	WebhookURL string
	// RateLimit is the webhook request budget per minute and client IP.
	RateLimit int
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are not an error.
func LoadDotEnv(logger *zap.Logger, files ...string) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := godotenv.Load(files...); err != nil {
		logger.Debug("No .env file loaded", zap.Error(err))
		return
	}
	logger.Debug("Loaded .env file", zap.Strings("files", files))
}

// RegisterFlags adds every setting to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(KeyStateDir, DefaultStateDir, "state directory (env VISITDESK_STATE_DIR)")
	fs.String(KeyDBDSN, "", "patient database DSN, SQLite path or Postgres URL; empty means <state-dir>/"+DefaultDBFileName+" (env DATABASE_URL)")
	fs.String(KeyAPIAddr, DefaultAPIAddr, "HTTP listen address (env API_ADDR)")
	fs.String(KeyAPIJWTSecret, "", "HMAC secret for operator report tokens, at least 32 bytes; empty disables the report API (env API_JWT_SECRET)")
	fs.String(KeyBackend, BackendWhatsApp, "messaging backend: whatsapp or twilio (env MESSAGING_BACKEND)")
	fs.Int(KeyMaxAttempts, DefaultMaxAttempts, "invalid answers allowed per field before returning to the menu")
	fs.Bool(KeyRequireConfirmation, false, "ask the operator to confirm before saving a patient")
	fs.Duration(KeyIdleTimeout, DefaultIdleTimeout, "discard unfinished intakes after this much inactivity, 0 disables")
	fs.Duration(KeyWriteTimeout, DefaultWriteTimeout, "timeout for saving a patient")
	fs.String(KeyLogLevel, DefaultLogLevel, "log level: debug, info, warn or error (env LOG_LEVEL)")
	fs.String(KeyLogFile, "", "also write JSON logs to this rotated file (env LOG_FILE)")
	fs.String(KeyOpenAIKey, "", "OpenAI API key enabling the weekly digest (env OPENAI_API_KEY)")
	fs.String(KeyOpenAIModel, "", "OpenAI chat model for the weekly digest (env OPENAI_MODEL)")
	fs.String(KeyWhatsAppDBDSN, "", "whatsmeow session store DSN; empty means <state-dir>/"+DefaultWhatsAppDBName+" (env WHATSAPP_DB_DSN)")
	fs.String(KeyQROutput, "", "write the WhatsApp login QR code to this file")
	fs.Bool(KeyNumericCode, false, "log in to WhatsApp with a numeric pairing code")
	fs.String(KeyTwilioAccountSID, "", "Twilio account SID (env TWILIO_ACCOUNT_SID)")
	fs.String(KeyTwilioAuthToken, "", "Twilio auth token, also used to verify webhooks (env TWILIO_AUTH_TOKEN)")
	fs.String(KeyTwilioFrom, "", "Twilio WhatsApp sender number (env TWILIO_FROM_NUMBER)")
	fs.String(KeyTwilioWebhookURL, "", "public URL of the Twilio webhook, used for signature checks (env TWILIO_WEBHOOK_URL)")
	fs.Int(KeyTwilioRateLimit, DefaultTwilioRateLimit, "Twilio webhook requests per minute per client IP")
}

// NewViper returns a viper instance with the environment bound and, when fs
// is not nil, its flags bound too.
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	for key, env := range envNames {
		if err := v.BindEnv(key, env); err != nil {
			return nil, errors.Wrapf(err, "bind env %s", env)
		}
	}
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, errors.Wrap(err, "bind flags")
		}
	}
	return v, nil
}

// Load resolves and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		StateDir:            v.GetString(KeyStateDir),
		DatabaseDSN:         v.GetString(KeyDBDSN),
		APIAddr:             v.GetString(KeyAPIAddr),
		APIJWTSecret:        v.GetString(KeyAPIJWTSecret),
		Backend:             strings.ToLower(strings.TrimSpace(v.GetString(KeyBackend))),
		MaxAttempts:         v.GetInt(KeyMaxAttempts),
		RequireConfirmation: v.GetBool(KeyRequireConfirmation),
		IdleTimeout:         v.GetDuration(KeyIdleTimeout),
		WriteTimeout:        v.GetDuration(KeyWriteTimeout),
		LogLevel:            v.GetString(KeyLogLevel),
		LogFile:             v.GetString(KeyLogFile),
		OpenAIKey:           v.GetString(KeyOpenAIKey),
		OpenAIModel:         v.GetString(KeyOpenAIModel),
		WhatsApp: WhatsApp{
			DBDSN:       v.GetString(KeyWhatsAppDBDSN),
			QROutput:    v.GetString(KeyQROutput),
			NumericCode: v.GetBool(KeyNumericCode),
		},
		Twilio: Twilio{
			AccountSID: v.GetString(KeyTwilioAccountSID),
			AuthToken:  v.GetString(KeyTwilioAuthToken),
			From:       v.GetString(KeyTwilioFrom),
			WebhookURL: v.GetString(KeyTwilioWebhookURL),
			RateLimit:  v.GetInt(KeyTwilioRateLimit),
		},
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}
	if c.DatabaseDSN == "" {
		c.DatabaseDSN = filepath.Join(c.StateDir, DefaultDBFileName)
	}
	if c.WhatsApp.DBDSN == "" {
		c.WhatsApp.DBDSN = WhatsAppSQLiteDSN(c.StateDir)
	}
	if c.APIAddr == "" {
		c.APIAddr = DefaultAPIAddr
	}
	if c.Backend == "" {
		c.Backend = BackendWhatsApp
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Twilio.RateLimit == 0 {
		c.Twilio.RateLimit = DefaultTwilioRateLimit
	}
}

// WhatsAppSQLiteDSN is the default whatsmeow store in stateDir, with the
// foreign keys whatsmeow needs.
func WhatsAppSQLiteDSN(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultWhatsAppDBName) + "?_foreign_keys=on"
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendWhatsApp:
	case BackendTwilio:
		if c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" || c.Twilio.From == "" {
			return errors.New("twilio backend requires account SID, auth token and sender number")
		}
	default:
		return errors.Errorf("unknown messaging backend %q", c.Backend)
	}
	if c.APIJWTSecret != "" && len(c.APIJWTSecret) < MinJWTSecretLength {
		return errors.Errorf("api jwt secret must be at least %d bytes", MinJWTSecretLength)
	}
	if c.MaxAttempts < 1 {
		return errors.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.IdleTimeout < 0 {
		return errors.Errorf("idle timeout must not be negative, got %s", c.IdleTimeout)
	}
	if c.WriteTimeout < 0 {
		return errors.Errorf("write timeout must not be negative, got %s", c.WriteTimeout)
	}
	if c.Twilio.RateLimit < 0 {
		return errors.Errorf("twilio rate limit must not be negative, got %d", c.Twilio.RateLimit)
	}
	return nil
}
