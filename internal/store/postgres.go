package store

import (
	"context"
	"database/sql"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/BTreeMap/VisitDesk/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore stores records in PostgreSQL DATE columns.
type PostgresStore struct {
	db     *sql.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewPostgresStore connects to PostgreSQL and applies the schema.
func NewPostgresStore(ctx context.Context, opts ...Option) (*PostgresStore, error) {
	cfg := buildOpts(opts)
	logger := cfg.Logger.Named("store.postgres")
	if cfg.DSN == "" {
		logger.Error("PostgresStore DSN not set")
		return nil, ErrDSNNotSet
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		logger.Error("Failed to open Postgres connection", zap.Error(err))
		return nil, errors.Wrap(err, "open postgres")
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		logger.Error("Postgres ping failed", zap.Error(err))
		return nil, errors.Wrap(err, "ping postgres")
	}
	if _, err := db.ExecContext(ctx, postgresMigrations); err != nil {
		db.Close()
		logger.Error("Failed to run migrations", zap.Error(err))
		return nil, errors.Wrap(err, "failed to run migrations")
	}
	logger.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db, now: cfg.Clock, logger: logger}, nil
}

// AddPatient inserts a record and returns it with its generated ID.
func (s *PostgresStore) AddPatient(ctx context.Context, fullName string, birthDate, visitDate time.Time, ownerID int64) (models.PatientRecord, error) {
	rec, err := newRecord(fullName, birthDate, visitDate, ownerID)
	if err != nil {
		return models.PatientRecord{}, err
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO patients (full_name, birth_date, visit_date, owner_id)
		 VALUES ($1, $2::date, $3::date, $4) RETURNING id`,
		rec.FullName, rec.BirthDate.Format(models.DateLayout), rec.VisitDate.Format(models.DateLayout), rec.OwnerID,
	).Scan(&rec.ID)
	if err != nil {
		s.logger.Error("PostgresStore AddPatient failed", zap.Int64("owner_id", ownerID), zap.Error(err))
		return models.PatientRecord{}, errors.Wrapf(err, "failed to insert patient for owner %d", ownerID)
	}
	s.logger.Debug("PostgresStore AddPatient succeeded", zap.Int64("id", rec.ID), zap.Int64("owner_id", ownerID))
	return rec, nil
}

// GetTodayPatients returns today's records for ownerID in insertion order.
func (s *PostgresStore) GetTodayPatients(ctx context.Context, ownerID int64) ([]models.TodayPatient, error) {
	now := s.now()
	rows, err := s.db.QueryContext(ctx,
		`SELECT full_name, to_char(birth_date, 'YYYY-MM-DD')
		 FROM patients WHERE owner_id = $1 AND visit_date = $2::date ORDER BY id`,
		ownerID, models.DateOnly(now).Format(models.DateLayout))
	if err != nil {
		s.logger.Error("PostgresStore GetTodayPatients query failed", zap.Int64("owner_id", ownerID), zap.Error(err))
		return nil, errors.Wrap(err, "failed to query today's patients")
	}
	defer rows.Close()

	var out []models.TodayPatient
	for rows.Next() {
		var name, birth string
		if err := rows.Scan(&name, &birth); err != nil {
			return nil, errors.Wrap(err, "failed to scan patient row")
		}
		bd, err := parseDate(birth, now.Location())
		if err != nil {
			return nil, err
		}
		out = append(out, models.TodayPatient{FullName: name, BirthDate: bd})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate patient rows")
	}
	s.logger.Debug("PostgresStore GetTodayPatients succeeded", zap.Int64("owner_id", ownerID), zap.Int("count", len(out)))
	return out, nil
}

// GetWeeklyStats groups ownerID's visits in the weekly window by weekday.
func (s *PostgresStore) GetWeeklyStats(ctx context.Context, ownerID int64) ([]models.WeekdayCount, error) {
	from, to := weeklyWindow(s.now())
	rows, err := s.db.QueryContext(ctx, `
		SELECT EXTRACT(DOW FROM visit_date)::int AS weekday, COUNT(*)
		FROM patients
		WHERE owner_id = $1 AND visit_date BETWEEN $2::date AND $3::date
		GROUP BY weekday
		ORDER BY weekday`,
		ownerID, from.Format(models.DateLayout), to.Format(models.DateLayout))
	if err != nil {
		s.logger.Error("PostgresStore GetWeeklyStats query failed", zap.Int64("owner_id", ownerID), zap.Error(err))
		return nil, errors.Wrap(err, "failed to query weekly stats")
	}
	defer rows.Close()
	return scanWeekdayCounts(rows)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close Postgres database", zap.Error(err))
		return err
	}
	return nil
}
