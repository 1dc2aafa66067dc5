package flow

import (
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxAttempts is the number of invalid inputs allowed per field before the intake resets.
	DefaultMaxAttempts = 3
	// DefaultWriteTimeout bounds a single patient write.
	DefaultWriteTimeout = 5 * time.Second
	// DefaultIdleTimeout discards conversations that have been silent this long.
	DefaultIdleTimeout = 30 * time.Minute
	// DefaultSweepInterval is how often the manager looks for idle conversations.
	DefaultSweepInterval = time.Minute
	// DefaultDigestTimeout bounds the optional weekly narrative call.
	DefaultDigestTimeout = 15 * time.Second
)

// Opts holds configuration for the intake core.
type Opts struct {
	MaxAttempts         int
	RequireConfirmation bool
	WriteTimeout        time.Duration
	IdleTimeout         time.Duration
	SweepInterval       time.Duration
	DigestTimeout       time.Duration
	Clock               func() time.Time
	Logger              *zap.Logger
	Digester            Digester
}

// Option configures the intake core.
type Option func(*Opts)

// WithMaxAttempts sets the per-field retry limit. Values below 1 keep the default.
func WithMaxAttempts(n int) Option {
	return func(o *Opts) {
		if n > 0 {
			o.MaxAttempts = n
		}
	}
}

// WithRequireConfirmation enables the explicit confirmation step before a record is saved.
func WithRequireConfirmation(enabled bool) Option {
	return func(o *Opts) { o.RequireConfirmation = enabled }
}

// WithWriteTimeout sets the bound on a single patient write.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *Opts) {
		if d > 0 {
			o.WriteTimeout = d
		}
	}
}

// WithIdleTimeout sets the inactivity window after which a conversation is discarded.
// Zero disables expiry.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *Opts) {
		if d >= 0 {
			o.IdleTimeout = d
		}
	}
}

// WithSweepInterval sets how often idle conversations are collected.
func WithSweepInterval(d time.Duration) Option {
	return func(o *Opts) {
		if d > 0 {
			o.SweepInterval = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		if now != nil {
			o.Clock = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Opts) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithDigester attaches a narrative generator to the weekly report.
func WithDigester(d Digester) Option {
	return func(o *Opts) { o.Digester = d }
}

func buildOpts(opts []Option) Opts {
	cfg := Opts{
		MaxAttempts:   DefaultMaxAttempts,
		WriteTimeout:  DefaultWriteTimeout,
		IdleTimeout:   DefaultIdleTimeout,
		SweepInterval: DefaultSweepInterval,
		DigestTimeout: DefaultDigestTimeout,
		Clock:         time.Now,
		Logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
