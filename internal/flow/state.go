// Package flow defines the intake conversation state machine and its collaborators.
package flow

import (
	"context"
	"time"

	"github.com/BTreeMap/VisitDesk/internal/models"
)

// State is the position of one conversation in the intake flow.
type State string

const (
	// StateIdle is the initial state; the operator sees the main menu.
	StateIdle State = "idle"
	// StateAwaitingName waits for the patient's full name.
	StateAwaitingName State = "awaiting_name"
	// StateAwaitingBirthDate waits for the patient's birth date.
	StateAwaitingBirthDate State = "awaiting_birth_date"
	// StateConfirming waits for the operator to accept or discard the summary.
	StateConfirming State = "confirming"
)

// Machine event names.
const (
	eventStartIntake       = "start_intake"
	eventNameAccepted      = "name_accepted"
	eventBirthDateAccepted = "birth_date_accepted"
	eventAwaitConfirmation = "await_confirmation"
	eventConfirmed         = "confirmation_received"
	eventReset             = "reset"
)

// EventKind is the closed set of inbound events the core understands.
type EventKind string

const (
	// EventStart shows the main menu and abandons any intake in progress.
	EventStart EventKind = "start"
	// EventAddPatient begins a new intake.
	EventAddPatient EventKind = "add_patient"
	// EventTodayPatients lists today's visits for the owner.
	EventTodayPatients EventKind = "today_patients"
	// EventWeekStats shows the weekday histogram for the last seven days.
	EventWeekStats EventKind = "week_stats"
	// EventText is free text answering the current prompt.
	EventText EventKind = "text"
)

// Event is one inbound message after routing.
type Event struct {
	Kind EventKind
	Text string
}

// ReplyKind distinguishes plain text from the main menu control surface.
type ReplyKind int

const (
	// ReplyText is a plain text message.
	ReplyText ReplyKind = iota
	// ReplyMainMenu asks the transport to render the main menu.
	ReplyMainMenu
)

// Reply is one outbound effect produced while handling an event.
type Reply struct {
	Kind ReplyKind
	Text string
}

func textReply(text string) Reply { return Reply{Kind: ReplyText, Text: text} }

func menuReply() Reply { return Reply{Kind: ReplyMainMenu} }

// PatientStore is the persistence contract the core depends on. Implementations
// must be safe for concurrent use by different conversations.
type PatientStore interface {
	// AddPatient appends a new record and returns it with its assigned ID.
	AddPatient(ctx context.Context, fullName string, birthDate, visitDate time.Time, ownerID int64) (models.PatientRecord, error)
	// GetTodayPatients returns the owner's visits dated today, in insertion order.
	GetTodayPatients(ctx context.Context, ownerID int64) ([]models.TodayPatient, error)
	// GetWeeklyStats returns visit counts per weekday for today and the seven days before it.
	GetWeeklyStats(ctx context.Context, ownerID int64) ([]models.WeekdayCount, error)
}

// Digester produces a short narrative for a weekly histogram.
type Digester interface {
	WeeklyDigest(ctx context.Context, stats []models.WeekdayCount) (string, error)
}
