package flow

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/VisitDesk/internal/models"
)

func TestIdleConversationExpiresOnNextEvent(t *testing.T) {
	store := &fakeStore{}
	m, clock := newTestManager(t, store, WithIdleTimeout(30*time.Minute))
	startIntake(t, m, "s1")
	say(m, "s1", "John Smith")

	clock.Advance(31 * time.Minute)
	replies := say(m, "s1", "2020-01-01")

	assert.Equal(t, StateIdle, conversation(t, m, "s1").State())
	require.Len(t, replies, 2)
	assert.Equal(t, msgExpired, replies[0].Text)
	assert.Equal(t, ReplyMainMenu, replies[1].Kind)
	assert.Empty(t, store.saved())
}

func TestActivityKeepsConversationAlive(t *testing.T) {
	m, clock := newTestManager(t, &fakeStore{}, WithIdleTimeout(30*time.Minute))
	startIntake(t, m, "s1")

	clock.Advance(20 * time.Minute)
	say(m, "s1", "John Smith")
	clock.Advance(20 * time.Minute)
	replies := say(m, "s1", "2020-01-01")

	assert.NotContains(t, texts(replies), msgExpired)
	assert.Equal(t, StateIdle, conversation(t, m, "s1").State())
}

func TestIdleTimeoutDisabled(t *testing.T) {
	m, clock := newTestManager(t, &fakeStore{}, WithIdleTimeout(0))
	startIntake(t, m, "s1")

	clock.Advance(48 * time.Hour)
	say(m, "s1", "John Smith")
	assert.Equal(t, StateAwaitingBirthDate, conversation(t, m, "s1").State())
	assert.Equal(t, 0, m.sweep(clock.Now()))
	assert.NoError(t, m.Run(context.Background()))
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	m, clock := newTestManager(t, &fakeStore{}, WithIdleTimeout(time.Minute))
	startIntake(t, m, "old")
	clock.Advance(2 * time.Minute)
	startIntake(t, m, "fresh")

	assert.Equal(t, 1, m.sweep(clock.Now()))
	assert.Equal(t, 1, m.Len())
	_, ok := m.State("old")
	assert.False(t, ok)
	state, ok := m.State("fresh")
	assert.True(t, ok)
	assert.Equal(t, StateAwaitingName, state)

	// An evicted key starts over from Idle.
	replies := say(m, "old", "John Smith")
	assert.Equal(t, ReplyMainMenu, last(replies).Kind)
	state, _ = m.State("old")
	assert.Equal(t, StateIdle, state)
}

func TestSweepSkipsBusySessions(t *testing.T) {
	m, clock := newTestManager(t, &fakeStore{}, WithIdleTimeout(time.Minute))
	startIntake(t, m, "s1")

	m.mu.Lock()
	s := m.sessions["s1"]
	m.mu.Unlock()
	s.mu.Lock()
	evicted := m.sweep(clock.Now().Add(time.Hour))
	s.mu.Unlock()

	assert.Equal(t, 0, evicted)
	assert.Equal(t, 1, m.Len())
}

func TestRunStopsOnCancel(t *testing.T) {
	m, _ := newTestManager(t, &fakeStore{}, WithIdleTimeout(time.Minute), WithSweepInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStateReportsExpiredIntakeAsIdle(t *testing.T) {
	m, clock := newTestManager(t, &fakeStore{}, WithIdleTimeout(30*time.Minute))
	startIntake(t, m, "s1")

	state, ok := m.State("s1")
	require.True(t, ok)
	assert.Equal(t, StateAwaitingName, state)

	clock.Advance(31 * time.Minute)
	state, ok = m.State("s1")
	require.True(t, ok)
	assert.Equal(t, StateIdle, state)
	assert.Equal(t, StateAwaitingName, conversation(t, m, "s1").State(), "State must not reset the conversation")
}

func TestStateUnknownKey(t *testing.T) {
	m, _ := newTestManager(t, &fakeStore{})
	_, ok := m.State("nobody")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestReportsDoNotChangeState(t *testing.T) {
	store := &fakeStore{today: []models.TodayPatient{{FullName: "John Smith", BirthDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}}}
	m, _ := newTestManager(t, store)
	startIntake(t, m, "s1")

	replies := m.Dispatch(context.Background(), "s1", owner, Event{Kind: EventTodayPatients})

	assert.Equal(t, StateAwaitingName, conversation(t, m, "s1").State())
	assert.Equal(t, []string{msgTodayHeader + "\n👤 John Smith (🎂 Birth date: 2020-01-01)"}, texts(replies))
	assert.Equal(t, ReplyMainMenu, last(replies).Kind)
}

func TestTodayReport(t *testing.T) {
	r := NewReports(&fakeStore{})
	replies := r.Today(context.Background(), owner)
	assert.Equal(t, []string{msgTodayEmpty}, texts(replies))

	r = NewReports(&fakeStore{queryErr: errors.New("db down")})
	replies = r.Today(context.Background(), owner)
	assert.Equal(t, []string{msgReportError}, texts(replies))
	assert.Equal(t, ReplyMainMenu, last(replies).Kind)
}

func TestWeekReport(t *testing.T) {
	store := &fakeStore{weekly: []models.WeekdayCount{{Weekday: 0, Count: 2}, {Weekday: 3, Count: 1}}}
	replies := NewReports(store).Week(context.Background(), owner)
	want := msgWeekHeader + "\n📅 Sunday: 2 patient(s)\n📅 Wednesday: 1 patient(s)"
	assert.Equal(t, []string{want}, texts(replies))

	replies = NewReports(&fakeStore{}).Week(context.Background(), owner)
	assert.Equal(t, []string{msgWeekEmpty}, texts(replies))

	replies = NewReports(&fakeStore{queryErr: errors.New("db down")}).Week(context.Background(), owner)
	assert.Equal(t, []string{msgReportError}, texts(replies))
}

func TestWeekReportDigest(t *testing.T) {
	store := &fakeStore{weekly: []models.WeekdayCount{{Weekday: 1, Count: 4}}}

	replies := NewReports(store, WithDigester(fakeDigester{text: " Busy Monday. "})).Week(context.Background(), owner)
	txt := texts(replies)
	require.Len(t, txt, 2)
	assert.Equal(t, "Busy Monday.", txt[1])

	replies = NewReports(store, WithDigester(fakeDigester{err: errors.New("quota")})).Week(context.Background(), owner)
	assert.Len(t, texts(replies), 1)
	assert.Equal(t, ReplyMainMenu, last(replies).Kind)
}

func TestWeekdayName(t *testing.T) {
	assert.Equal(t, "Sunday", WeekdayName(0))
	assert.Equal(t, "Saturday", WeekdayName(6))
	assert.Equal(t, "day 9", WeekdayName(9))
}
