package flow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/BTreeMap/VisitDesk/internal/models"
	"github.com/BTreeMap/VisitDesk/internal/validation"
)

// Conversation is one session's intake state. It is not safe for concurrent
// use; the Manager serializes access per session key.
type Conversation struct {
	Key     string
	OwnerID int64
	// IntakeID identifies the intake in progress, empty when idle.
	IntakeID string
	Pending  models.PendingRecord

	attempts   map[validation.Field]int
	lastActive time.Time
	machine    *fsm.FSM
	logger     *zap.Logger
}

// NewConversation creates an idle conversation for key.
func NewConversation(key string, ownerID int64, logger *zap.Logger) *Conversation {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Conversation{
		Key:      key,
		OwnerID:  ownerID,
		attempts: make(map[validation.Field]int),
		logger:   logger.With(zap.String("session", key)),
	}
	c.Pending.OwnerID = ownerID
	active := []string{string(StateAwaitingName), string(StateAwaitingBirthDate), string(StateConfirming)}
	c.machine = fsm.NewFSM(
		string(StateIdle),
		fsm.Events{
			{Name: eventStartIntake, Src: append([]string{string(StateIdle)}, active...), Dst: string(StateAwaitingName)},
			{Name: eventNameAccepted, Src: []string{string(StateAwaitingName)}, Dst: string(StateAwaitingBirthDate)},
			{Name: eventBirthDateAccepted, Src: []string{string(StateAwaitingBirthDate)}, Dst: string(StateIdle)},
			{Name: eventAwaitConfirmation, Src: []string{string(StateAwaitingBirthDate)}, Dst: string(StateConfirming)},
			{Name: eventConfirmed, Src: []string{string(StateConfirming)}, Dst: string(StateIdle)},
			{Name: eventReset, Src: active, Dst: string(StateIdle)},
		},
		fsm.Callbacks{
			"enter_" + string(StateIdle): func(_ context.Context, _ *fsm.Event) {
				c.clear()
			},
			"enter_state": func(_ context.Context, e *fsm.Event) {
				c.logger.Debug("Conversation transition", zap.String("event", e.Event), zap.String("from", e.Src), zap.String("to", e.Dst))
			},
		},
	)
	return c
}

// State returns the current state.
func (c *Conversation) State() State {
	return State(c.machine.Current())
}

// Attempts returns the failure count recorded for field.
func (c *Conversation) Attempts(field validation.Field) int {
	return c.attempts[field]
}

// LastActive returns the time of the last handled event.
func (c *Conversation) LastActive() time.Time {
	return c.lastActive
}

func (c *Conversation) touch(now time.Time) {
	c.lastActive = now
}

// begin discards any pending data and moves to AwaitingName.
func (c *Conversation) begin(ctx context.Context) error {
	c.clear()
	c.IntakeID = uuid.NewString()
	return c.fire(ctx, eventStartIntake)
}

// reset returns the conversation to Idle with pending data and counters cleared.
func (c *Conversation) reset(ctx context.Context) error {
	if c.State() == StateIdle {
		c.clear()
		return nil
	}
	return c.fire(ctx, eventReset)
}

func (c *Conversation) clear() {
	c.Pending = models.PendingRecord{OwnerID: c.OwnerID}
	c.IntakeID = ""
	for field := range c.attempts {
		delete(c.attempts, field)
	}
}

func (c *Conversation) clearAttempts(field validation.Field) {
	delete(c.attempts, field)
}

// fire applies a machine event. Self-transitions are not errors.
func (c *Conversation) fire(ctx context.Context, event string) error {
	err := c.machine.Event(ctx, event)
	if err == nil {
		return nil
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	return errors.Wrapf(err, "conversation %s: event %s in state %s", c.Key, event, c.machine.Current())
}
