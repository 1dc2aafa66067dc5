package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/BTreeMap/VisitDesk/internal/models"
)

// DefaultDirPermissions is used when creating the database directory.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore stores records in a SQLite file. Dates are kept as YYYY-MM-DD text.
type SQLiteStore struct {
	db     *sql.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewSQLiteStore opens (creating if needed) the database file named by the DSN
// and applies the schema.
func NewSQLiteStore(ctx context.Context, opts ...Option) (*SQLiteStore, error) {
	cfg := buildOpts(opts)
	logger := cfg.Logger.Named("store.sqlite")
	if cfg.DSN == "" {
		logger.Error("SQLiteStore DSN not set")
		return nil, ErrDSNNotSet
	}

	if cfg.DSN != ":memory:" {
		dir := filepath.Dir(cfg.DSN)
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			logger.Error("Failed to create database directory", zap.String("dir", dir), zap.Error(err))
			return nil, errors.Wrap(err, "failed to create database directory")
		}
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		logger.Error("Failed to open SQLite connection", zap.Error(err))
		return nil, errors.Wrap(err, "open sqlite")
	}
	// SQLite allows a single writer; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		logger.Error("SQLite ping failed", zap.Error(err))
		return nil, errors.Wrap(err, "ping sqlite")
	}
	if _, err := db.ExecContext(ctx, sqliteMigrations); err != nil {
		db.Close()
		logger.Error("Failed to run migrations", zap.Error(err))
		return nil, errors.Wrap(err, "failed to run migrations")
	}
	logger.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db, now: cfg.Clock, logger: logger}, nil
}

// AddPatient inserts a record and returns it with its row ID.
func (s *SQLiteStore) AddPatient(ctx context.Context, fullName string, birthDate, visitDate time.Time, ownerID int64) (models.PatientRecord, error) {
	rec, err := newRecord(fullName, birthDate, visitDate, ownerID)
	if err != nil {
		return models.PatientRecord{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO patients (full_name, birth_date, visit_date, owner_id) VALUES (?, ?, ?, ?)`,
		rec.FullName, rec.BirthDate.Format(models.DateLayout), rec.VisitDate.Format(models.DateLayout), rec.OwnerID)
	if err != nil {
		s.logger.Error("SQLiteStore AddPatient failed", zap.Int64("owner_id", ownerID), zap.Error(err))
		return models.PatientRecord{}, errors.Wrapf(err, "failed to insert patient for owner %d", ownerID)
	}
	rec.ID, err = res.LastInsertId()
	if err != nil {
		return models.PatientRecord{}, errors.Wrap(err, "read inserted patient id")
	}
	s.logger.Debug("SQLiteStore AddPatient succeeded", zap.Int64("id", rec.ID), zap.Int64("owner_id", ownerID))
	return rec, nil
}

// GetTodayPatients returns today's records for ownerID in insertion order.
func (s *SQLiteStore) GetTodayPatients(ctx context.Context, ownerID int64) ([]models.TodayPatient, error) {
	now := s.now()
	rows, err := s.db.QueryContext(ctx,
		`SELECT full_name, birth_date FROM patients WHERE owner_id = ? AND visit_date = ? ORDER BY id`,
		ownerID, models.DateOnly(now).Format(models.DateLayout))
	if err != nil {
		s.logger.Error("SQLiteStore GetTodayPatients query failed", zap.Int64("owner_id", ownerID), zap.Error(err))
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
	s.logger.Debug("SQLiteStore GetTodayPatients succeeded", zap.Int64("owner_id", ownerID), zap.Int("count", len(out)))
	return out, nil
}

// GetWeeklyStats groups ownerID's visits in the weekly window by weekday.
func (s *SQLiteStore) GetWeeklyStats(ctx context.Context, ownerID int64) ([]models.WeekdayCount, error) {
	from, to := weeklyWindow(s.now())
	rows, err := s.db.QueryContext(ctx, `
		SELECT CAST(strftime('%w', visit_date) AS INTEGER) AS weekday, COUNT(*)
		FROM patients
		WHERE owner_id = ? AND visit_date BETWEEN ? AND ?
		GROUP BY weekday
		ORDER BY weekday`,
		ownerID, from.Format(models.DateLayout), to.Format(models.DateLayout))
	if err != nil {
		s.logger.Error("SQLiteStore GetWeeklyStats query failed", zap.Int64("owner_id", ownerID), zap.Error(err))
		return nil, errors.Wrap(err, "failed to query weekly stats")
	}
	defer rows.Close()
	return scanWeekdayCounts(rows)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close SQLite database", zap.Error(err))
		return err
	}
	return nil
}

func scanWeekdayCounts(rows *sql.Rows) ([]models.WeekdayCount, error) {
	out := []models.WeekdayCount{}
	for rows.Next() {
		var wc models.WeekdayCount
		if err := rows.Scan(&wc.Weekday, &wc.Count); err != nil {
			return nil, errors.Wrap(err, "failed to scan weekday row")
		}
		out = append(out, wc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate weekday rows")
	}
	return out, nil
}
