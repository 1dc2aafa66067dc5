package flow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BTreeMap/VisitDesk/internal/metrics"
	"github.com/BTreeMap/VisitDesk/internal/validation"
)

// Outcome is the result of registering a failed attempt.
type Outcome int

const (
	// OutcomeRetry means the conversation stays in its state and re-prompts.
	OutcomeRetry Outcome = iota
	// OutcomeReset means the limit was reached and the conversation is back to Idle.
	OutcomeReset
)

// resetNotices is the terminal notice shown per field when the limit is hit.
var resetNotices = map[validation.Field]string{
	validation.FieldName:      msgNameReset,
	validation.FieldBirthDate: msgBirthReset,
}

// AttemptTracker applies the bounded-retry policy shared by every validated field.
type AttemptTracker struct {
	Max int
}

// NewAttemptTracker returns a tracker allowing max failures per field.
func NewAttemptTracker(max int) AttemptTracker {
	if max < 1 {
		max = DefaultMaxAttempts
	}
	return AttemptTracker{Max: max}
}

// Register counts one failure for field. Below the limit it returns the
// field warning and the remaining-attempts notice. At the limit it resets
// the conversation and returns the reset notice followed by the main menu.
func (t AttemptTracker) Register(ctx context.Context, conv *Conversation, field validation.Field, warning string) (Outcome, []Reply) {
	conv.attempts[field]++
	count := conv.attempts[field]

	if count < t.Max {
		return OutcomeRetry, []Reply{
			textReply(warning),
			textReply(fmt.Sprintf(msgAttemptsLeft, t.Max-count)),
		}
	}

	if err := conv.reset(ctx); err != nil {
		conv.logger.Error("AttemptTracker reset failed", zap.Error(err))
	}
	metrics.IntakesAbandoned.WithLabelValues(string(field)).Inc()
	conv.logger.Info("AttemptTracker limit reached", zap.String("field", string(field)), zap.Int("attempts", count))

	notice, ok := resetNotices[field]
	if !ok {
		notice = msgGenericReset
	}
	return OutcomeReset, []Reply{textReply(notice), menuReply()}
}
