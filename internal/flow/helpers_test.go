package flow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/VisitDesk/internal/models"
)

// fakeStore records writes and serves canned report rows.
type fakeStore struct {
	mu       sync.Mutex
	records  []models.PatientRecord
	addErr   error
	block    chan struct{}
	today    []models.TodayPatient
	weekly   []models.WeekdayCount
	queryErr error
}

func (s *fakeStore) AddPatient(ctx context.Context, fullName string, birthDate, visitDate time.Time, ownerID int64) (models.PatientRecord, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addErr != nil {
		return models.PatientRecord{}, s.addErr
	}
	rec := models.PatientRecord{
		ID:        int64(len(s.records) + 1),
		FullName:  fullName,
		BirthDate: birthDate,
		VisitDate: visitDate,
		OwnerID:   ownerID,
	}
	s.records = append(s.records, rec)
	return rec, nil
}

func (s *fakeStore) GetTodayPatients(ctx context.Context, ownerID int64) ([]models.TodayPatient, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.today, nil
}

func (s *fakeStore) GetWeeklyStats(ctx context.Context, ownerID int64) ([]models.WeekdayCount, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.weekly, nil
}

func (s *fakeStore) saved() []models.PatientRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PatientRecord(nil), s.records...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeDigester struct {
	text string
	err  error
}

func (d fakeDigester) WeeklyDigest(ctx context.Context, stats []models.WeekdayCount) (string, error) {
	return d.text, d.err
}

// testNow is 2024-01-01 (a Monday) at midday.
var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, store PatientStore, opts ...Option) (*Manager, *fakeClock) {
	t.Helper()
	clock := newFakeClock(testNow)
	all := append([]Option{WithClock(clock.Now)}, opts...)
	return NewManager(store, all...), clock
}

func conversation(t *testing.T, m *Manager, key string) *Conversation {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	require.True(t, ok, "no session %q", key)
	return s.conv
}

func texts(replies []Reply) []string {
	var out []string
	for _, r := range replies {
		if r.Kind == ReplyText {
			out = append(out, r.Text)
		}
	}
	return out
}

func last(replies []Reply) Reply {
	if len(replies) == 0 {
		return Reply{}
	}
	return replies[len(replies)-1]
}
