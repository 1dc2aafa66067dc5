// Package store provides storage backends for VisitDesk patient records.
//
// Three backends share one contract: an in-memory store for tests and
// ephemeral runs, and SQLite and PostgreSQL stores for durable deployments.
// All of them are safe for concurrent use.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/BTreeMap/VisitDesk/internal/models"
)

// WeeklyWindowDays is how far back the weekly histogram reaches from today.
// Both ends are inclusive.
const WeeklyWindowDays = 7

// DSN types returned by DetectDSNType. They double as database/sql driver names.
const (
	DSNTypeSQLite   = "sqlite3"
	DSNTypePostgres = "postgres"
)

// ErrDSNNotSet is returned when a database store is created without a DSN.
var ErrDSNNotSet = errors.New("database DSN not set")

// Store persists patient records and answers the owner reports.
type Store interface {
	AddPatient(ctx context.Context, fullName string, birthDate, visitDate time.Time, ownerID int64) (models.PatientRecord, error)
	GetTodayPatients(ctx context.Context, ownerID int64) ([]models.TodayPatient, error)
	GetWeeklyStats(ctx context.Context, ownerID int64) ([]models.WeekdayCount, error)
	Close() error
}

// Opts holds configuration for store backends.
type Opts struct {
	DSN    string
	Clock  func() time.Time
	Logger *zap.Logger
}

// Option configures a store backend.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithClock overrides the clock that defines "today" for the reports.
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

func buildOpts(opts []Option) Opts {
	cfg := Opts{Clock: time.Now, Logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// DetectDSNType reports whether dsn addresses PostgreSQL or a SQLite file.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DSNTypePostgres
	}
	// libpq key/value form: "host=... dbname=..."
	pairs := 0
	for _, field := range strings.Fields(lower) {
		if strings.HasPrefix(field, "host=") {
			return DSNTypePostgres
		}
		if strings.Contains(field, "=") {
			pairs++
		}
	}
	if pairs >= 2 {
		return DSNTypePostgres
	}
	return DSNTypeSQLite
}

// Open returns the backend addressed by dsn. An empty dsn selects the
// in-memory store.
func Open(ctx context.Context, dsn string, opts ...Option) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return NewInMemoryStore(opts...), nil
	}
	if DetectDSNType(dsn) == DSNTypePostgres {
		s, err := NewPostgresStore(ctx, append(opts, WithPostgresDSN(dsn))...)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := NewSQLiteStore(ctx, append(opts, WithSQLiteDSN(dsn))...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// weeklyWindow returns the first and last dates counted by GetWeeklyStats.
func weeklyWindow(now time.Time) (from, to time.Time) {
	to = models.DateOnly(now)
	return to.AddDate(0, 0, -WeeklyWindowDays), to
}

// newRecord validates the inputs and normalizes both dates to calendar days.
func newRecord(fullName string, birthDate, visitDate time.Time, ownerID int64) (models.PatientRecord, error) {
	rec := models.PatientRecord{
		FullName:  fullName,
		BirthDate: models.DateOnly(birthDate),
		VisitDate: models.DateOnly(visitDate),
		OwnerID:   ownerID,
	}
	if err := rec.Validate(); err != nil {
		return models.PatientRecord{}, errors.Wrap(err, "invalid patient record")
	}
	return rec, nil
}

// parseDate reads a stored YYYY-MM-DD value as midnight in loc.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(models.DateLayout, s, loc)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse stored date %q", s)
	}
	return t, nil
}
