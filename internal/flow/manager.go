package flow

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BTreeMap/VisitDesk/internal/metrics"
)

type session struct {
	mu      sync.Mutex
	conv    *Conversation
	evicted bool
}

// Manager owns every live conversation. Events for one session key are
// handled one at a time; different keys run concurrently.
type Manager struct {
	intake        *Intake
	reports       *Reports
	idleTimeout   time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	logger        *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewManager creates a Manager whose intakes and reports use store.
func NewManager(store PatientStore, opts ...Option) *Manager {
	cfg := buildOpts(opts)
	return &Manager{
		intake:        newIntake(store, cfg),
		reports:       newReports(store, cfg),
		idleTimeout:   cfg.IdleTimeout,
		sweepInterval: cfg.SweepInterval,
		now:           cfg.Clock,
		logger:        cfg.Logger,
		sessions:      make(map[string]*session),
	}
}

// Dispatch handles one event for the session identified by key and returns
// the replies to deliver, in order.
func (m *Manager) Dispatch(ctx context.Context, key string, ownerID int64, ev Event) []Reply {
	metrics.InboundMessages.WithLabelValues(string(ev.Kind)).Inc()
	for {
		s := m.session(key, ownerID)
		s.mu.Lock()
		if s.evicted {
			// Swept between lookup and lock; the next lookup creates a fresh one.
			s.mu.Unlock()
			continue
		}
		replies := m.handle(ctx, s.conv, ev)
		s.mu.Unlock()
		return replies
	}
}

func (m *Manager) session(key string, ownerID int64) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		s = &session{conv: NewConversation(key, ownerID, m.logger)}
		s.conv.touch(m.now())
		m.sessions[key] = s
	}
	return s
}

func (m *Manager) handle(ctx context.Context, conv *Conversation, ev Event) []Reply {
	now := m.now()
	var replies []Reply
	if m.expired(conv, now) {
		m.logger.Info("Manager conversation expired", zap.String("session", conv.Key), zap.String("state", string(conv.State())))
		metrics.SessionsExpired.Inc()
		if err := conv.reset(ctx); err != nil {
			m.logger.Error("Manager reset failed", zap.String("session", conv.Key), zap.Error(err))
		}
		replies = append(replies, textReply(msgExpired))
	}
	conv.touch(now)

	switch ev.Kind {
	case EventStart:
		if err := conv.reset(ctx); err != nil {
			m.logger.Error("Manager reset failed", zap.String("session", conv.Key), zap.Error(err))
		}
		replies = append(replies, menuReply())
	case EventAddPatient:
		replies = append(replies, m.intake.Start(ctx, conv)...)
	case EventTodayPatients:
		replies = append(replies, m.reports.Today(ctx, conv.OwnerID)...)
	case EventWeekStats:
		replies = append(replies, m.reports.Week(ctx, conv.OwnerID)...)
	case EventText:
		replies = append(replies, m.intake.HandleText(ctx, conv, ev.Text)...)
	default:
		m.logger.Warn("Manager unknown event", zap.String("session", conv.Key), zap.String("kind", string(ev.Kind)))
		replies = append(replies, menuReply())
	}
	return replies
}

func (m *Manager) expired(conv *Conversation, now time.Time) bool {
	return m.idleTimeout > 0 && conv.State() != StateIdle && now.Sub(conv.LastActive()) > m.idleTimeout
}

// State reports the state of the conversation for key, if one exists. An
// intake past the idle timeout reports Idle, since the next event discards it.
func (m *Manager) State(key string) (State, bool) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	m.mu.Unlock()
	if !ok {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.expired(s.conv, m.now()) {
		return StateIdle, true
	}
	return s.conv.State(), true
}

// Len returns the number of tracked conversations.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Run evicts idle conversations until ctx is cancelled. It returns
// immediately when the idle timeout is disabled.
func (m *Manager) Run(ctx context.Context) error {
	if m.idleTimeout <= 0 {
		return nil
	}
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.sweep(m.now()); n > 0 {
				m.logger.Debug("Manager sweep evicted conversations", zap.Int("count", n))
			}
		}
	}
}

// sweep drops conversations idle longer than the timeout. Sessions busy
// handling an event are skipped until the next pass.
func (m *Manager) sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for key, s := range m.sessions {
		if !s.mu.TryLock() {
			continue
		}
		if now.Sub(s.conv.LastActive()) > m.idleTimeout {
			if s.conv.State() != StateIdle {
				metrics.SessionsExpired.Inc()
			}
			s.evicted = true
			delete(m.sessions, key)
			evicted++
		}
		s.mu.Unlock()
	}
	return evicted
}
