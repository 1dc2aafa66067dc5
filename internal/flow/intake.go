package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/BTreeMap/VisitDesk/internal/metrics"
	"github.com/BTreeMap/VisitDesk/internal/models"
	"github.com/BTreeMap/VisitDesk/internal/validation"
)

// Intake drives the name and birth date steps and hands completed records to the store.
type Intake struct {
	store               PatientStore
	tracker             AttemptTracker
	now                 func() time.Time
	writeTimeout        time.Duration
	requireConfirmation bool
	logger              *zap.Logger
}

func newIntake(store PatientStore, cfg Opts) *Intake {
	return &Intake{
		store:               store,
		tracker:             NewAttemptTracker(cfg.MaxAttempts),
		now:                 cfg.Clock,
		writeTimeout:        cfg.WriteTimeout,
		requireConfirmation: cfg.RequireConfirmation,
		logger:              cfg.Logger.Named("intake"),
	}
}

// Start begins a new intake, abandoning any intake already in progress.
func (in *Intake) Start(ctx context.Context, conv *Conversation) []Reply {
	if err := conv.begin(ctx); err != nil {
		in.logger.Error("Intake Start failed", zap.String("session", conv.Key), zap.Error(err))
		return []Reply{textReply(msgIntakeFailure), menuReply()}
	}
	metrics.IntakesStarted.Inc()
	in.logger.Debug("Intake Start succeeded", zap.String("session", conv.Key), zap.String("intake_id", conv.IntakeID))
	return []Reply{textReply(msgAskName)}
}

// HandleText feeds free text to the step the conversation is waiting on.
// Text received while idle just shows the main menu.
func (in *Intake) HandleText(ctx context.Context, conv *Conversation, text string) []Reply {
	switch conv.State() {
	case StateAwaitingName:
		return in.handleName(ctx, conv, text)
	case StateAwaitingBirthDate:
		return in.handleBirthDate(ctx, conv, text)
	case StateConfirming:
		return in.handleConfirmation(ctx, conv, text)
	default:
		return []Reply{menuReply()}
	}
}

func (in *Intake) handleName(ctx context.Context, conv *Conversation, text string) []Reply {
	name, err := validation.ValidateName(text)
	if err != nil {
		return in.reject(ctx, conv, err)
	}

	conv.Pending.SetFullName(name)
	conv.clearAttempts(validation.FieldName)
	if err := conv.fire(ctx, eventNameAccepted); err != nil {
		return in.abort(ctx, conv, err)
	}
	return []Reply{textReply(msgAskBirthDate)}
}

func (in *Intake) handleBirthDate(ctx context.Context, conv *Conversation, text string) []Reply {
	now := in.now()
	birth, err := validation.ValidateBirthDate(text, now)
	if err != nil {
		return in.reject(ctx, conv, err)
	}

	conv.Pending.SetBirthDate(birth, now)
	conv.clearAttempts(validation.FieldBirthDate)
	rec, err := conv.Pending.Complete()
	if err != nil {
		return in.abort(ctx, conv, err)
	}

	if in.requireConfirmation {
		if err := conv.fire(ctx, eventAwaitConfirmation); err != nil {
			return in.abort(ctx, conv, err)
		}
		return []Reply{textReply(fmt.Sprintf(msgConfirmPrompt, rec.FullName, rec.BirthDate.Format(models.DateLayout)))}
	}

	intakeID := conv.IntakeID
	if err := conv.fire(ctx, eventBirthDateAccepted); err != nil {
		return in.abort(ctx, conv, err)
	}
	in.persist(ctx, conv.Key, intakeID, rec)
	return []Reply{textReply(summary(rec)), menuReply()}
}

func (in *Intake) handleConfirmation(ctx context.Context, conv *Conversation, text string) []Reply {
	rec, completeErr := conv.Pending.Complete()
	intakeID := conv.IntakeID
	if err := conv.fire(ctx, eventConfirmed); err != nil {
		return in.abort(ctx, conv, err)
	}

	answer := strings.ToLower(strings.TrimSpace(text))
	if completeErr != nil || !affirmatives[answer] {
		metrics.IntakesCompleted.WithLabelValues(metrics.OutcomeDiscarded).Inc()
		in.logger.Info("Intake discarded", zap.String("session", conv.Key), zap.String("intake_id", intakeID))
		return []Reply{textReply(msgDiscarded), menuReply()}
	}

	in.persist(ctx, conv.Key, intakeID, rec)
	return []Reply{textReply(summary(rec)), menuReply()}
}

// reject routes a validation failure through the attempt tracker.
func (in *Intake) reject(ctx context.Context, conv *Conversation, err error) []Reply {
	var verr *validation.Error
	if !errors.As(err, &verr) {
		return in.abort(ctx, conv, err)
	}
	metrics.ValidationFailures.WithLabelValues(string(verr.Field), string(verr.Kind)).Inc()
	in.logger.Debug("Intake input rejected",
		zap.String("session", conv.Key),
		zap.String("field", string(verr.Field)),
		zap.String("kind", string(verr.Kind)))

	_, replies := in.tracker.Register(ctx, conv, verr.Field, warningFor(verr))
	return replies
}

// abort resets a conversation that hit an unexpected error.
func (in *Intake) abort(ctx context.Context, conv *Conversation, err error) []Reply {
	in.logger.Error("Intake aborted", zap.String("session", conv.Key), zap.String("state", string(conv.State())), zap.Error(err))
	if resetErr := conv.reset(ctx); resetErr != nil {
		in.logger.Error("Intake reset failed", zap.String("session", conv.Key), zap.Error(resetErr))
	}
	return []Reply{textReply(msgIntakeFailure), menuReply()}
}

type writeResult struct {
	rec models.PatientRecord
	err error
}

// persist writes rec with a bounded timeout. Failures are logged and counted
// but never reach the conversation. A timed-out write is reported as failed
// even though a SQL engine may still commit a statement already in flight.
func (in *Intake) persist(ctx context.Context, session, intakeID string, rec models.PatientRecord) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), in.writeTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan writeResult, 1)
	go func() {
		saved, err := in.store.AddPatient(wctx, rec.FullName, rec.BirthDate, rec.VisitDate, rec.OwnerID)
		done <- writeResult{rec: saved, err: err}
	}()

	var res writeResult
	select {
	case res = <-done:
	case <-wctx.Done():
		res.err = errors.Wrap(wctx.Err(), "patient write timed out")
	}
	metrics.PersistDuration.Observe(time.Since(start).Seconds())

	if res.err != nil {
		metrics.PersistFailures.Inc()
		metrics.IntakesCompleted.WithLabelValues(metrics.OutcomeFailed).Inc()
		in.logger.Error("Intake persist failed",
			zap.String("session", session),
			zap.String("intake_id", intakeID),
			zap.Int64("owner_id", rec.OwnerID),
			zap.Error(res.err))
		return
	}
	metrics.IntakesCompleted.WithLabelValues(metrics.OutcomeSaved).Inc()
	in.logger.Info("Intake persist succeeded",
		zap.String("session", session),
		zap.String("intake_id", intakeID),
		zap.Int64("patient_id", res.rec.ID),
		zap.Int64("owner_id", rec.OwnerID))
}

func summary(rec models.PatientRecord) string {
	return fmt.Sprintf(msgPatientAdded, rec.FullName, rec.BirthDate.Format(models.DateLayout))
}

func warningFor(verr *validation.Error) string {
	switch verr.Kind {
	case validation.KindTooLong:
		return fmt.Sprintf(msgNameTooLong, validation.MaxNameLength)
	case validation.KindEmpty:
		return msgBirthEmpty
	case validation.KindFormat:
		return msgBirthFormat
	case validation.KindFutureDate:
		return msgBirthFuture
	case validation.KindTooOld:
		return fmt.Sprintf(msgBirthTooOld, models.MaxAgeYears)
	default:
		return msgNameInvalid
	}
}
