package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BTreeMap/VisitDesk/internal/models"
)

// InMemoryStore keeps records in a slice guarded by a mutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []models.PatientRecord
	nextID  int64
	now     func() time.Time
	logger  *zap.Logger
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	cfg := buildOpts(opts)
	return &InMemoryStore{now: cfg.Clock, logger: cfg.Logger.Named("store.memory")}
}

// AddPatient appends a record with the next ID.
func (s *InMemoryStore) AddPatient(ctx context.Context, fullName string, birthDate, visitDate time.Time, ownerID int64) (models.PatientRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.PatientRecord{}, err
	}
	rec, err := newRecord(fullName, birthDate, visitDate, ownerID)
	if err != nil {
		return models.PatientRecord{}, err
	}

	s.mu.Lock()
	// A caller that gave up while waiting for the lock must not find its record stored.
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return models.PatientRecord{}, err
	}
	s.nextID++
	rec.ID = s.nextID
	s.records = append(s.records, rec)
	s.mu.Unlock()

	s.logger.Debug("InMemoryStore AddPatient succeeded", zap.Int64("id", rec.ID), zap.Int64("owner_id", ownerID))
	return rec, nil
}

// GetTodayPatients returns today's records for ownerID in insertion order.
func (s *InMemoryStore) GetTodayPatients(ctx context.Context, ownerID int64) ([]models.TodayPatient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	today := models.DateOnly(s.now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.TodayPatient
	for _, r := range s.records {
		if r.OwnerID == ownerID && models.DaysBetween(r.VisitDate, today) == 0 {
			out = append(out, models.TodayPatient{FullName: r.FullName, BirthDate: r.BirthDate})
		}
	}
	return out, nil
}

// GetWeeklyStats counts ownerID's visits in the weekly window by weekday.
func (s *InMemoryStore) GetWeeklyStats(ctx context.Context, ownerID int64) ([]models.WeekdayCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	from, to := weeklyWindow(s.now())

	counts := make(map[int]int)
	s.mu.RLock()
	for _, r := range s.records {
		if r.OwnerID != ownerID {
			continue
		}
		if models.DaysBetween(from, r.VisitDate) < 0 || models.DaysBetween(r.VisitDate, to) < 0 {
			continue
		}
		counts[int(r.VisitDate.Weekday())]++
	}
	s.mu.RUnlock()

	out := make([]models.WeekdayCount, 0, len(counts))
	for day, n := range counts {
		out = append(out, models.WeekdayCount{Weekday: day, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weekday < out[j].Weekday })
	return out, nil
}

// Len returns the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }
