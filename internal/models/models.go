// Package models defines the core data structures for VisitDesk.
//
// It includes patient visit records, report rows, inbound chat messages and the
// JSON envelope used by the operator API. These types are shared across modules.
package models

import (
	"time"

	"github.com/pkg/errors"
)

// DateLayout is the calendar date format used for input, storage and display.
const DateLayout = "2006-01-02"

// MaxAgeYears is the oldest patient age accepted at intake, in whole years.
const MaxAgeYears = 100

// Error variables for record validation
var (
	ErrEmptyFullName     = errors.New("full name cannot be empty")
	ErrMissingBirthDate  = errors.New("birth date is required")
	ErrMissingVisitDate  = errors.New("visit date is required")
	ErrBirthAfterVisit   = errors.New("birth date is after visit date")
	ErrAgeExceedsMaximum = errors.New("age at visit exceeds maximum")
	ErrInvalidOwnerID    = errors.New("owner id must be positive")
	ErrIncompleteIntake  = errors.New("pending record is incomplete")
)

// PatientRecord is one persisted clinic visit. Records are created only when an
// intake conversation completes and are never mutated afterwards.
type PatientRecord struct {
	ID        int64     `json:"id"`
	FullName  string    `json:"full_name"`
	BirthDate time.Time `json:"birth_date"`
	VisitDate time.Time `json:"visit_date"`
	OwnerID   int64     `json:"owner_id"`
}

// Validate checks the record invariants that every store relies on.
func (r PatientRecord) Validate() error {
	if r.FullName == "" {
		return ErrEmptyFullName
	}
	if r.BirthDate.IsZero() {
		return ErrMissingBirthDate
	}
	if r.VisitDate.IsZero() {
		return ErrMissingVisitDate
	}
	if r.OwnerID <= 0 {
		return ErrInvalidOwnerID
	}
	birth, visit := DateOnly(r.BirthDate), DateOnly(r.VisitDate)
	if birth.After(visit) {
		return ErrBirthAfterVisit
	}
	if AgeInYears(birth, visit) > MaxAgeYears {
		return ErrAgeExceedsMaximum
	}
	return nil
}

// PendingRecord accumulates intake fields. Each field has a set flag so a later
// step can never observe a value an earlier step has not written.
type PendingRecord struct {
	FullName     string
	BirthDate    time.Time
	VisitDate    time.Time
	OwnerID      int64
	hasName      bool
	hasBirthDate bool
}

// SetFullName stores the validated name.
func (p *PendingRecord) SetFullName(name string) {
	p.FullName = name
	p.hasName = true
}

// SetBirthDate stores the validated birth date together with the visit date.
// The visit date is only ever set here, after the birth date has passed validation.
func (p *PendingRecord) SetBirthDate(birth, visit time.Time) {
	p.BirthDate = DateOnly(birth)
	p.VisitDate = DateOnly(visit)
	p.hasBirthDate = true
}

// HasFullName reports whether the name step has completed.
func (p PendingRecord) HasFullName() bool { return p.hasName }

// HasBirthDate reports whether the birth date step has completed.
func (p PendingRecord) HasBirthDate() bool { return p.hasBirthDate }

// Complete converts the pending data into a record ready for the store.
func (p PendingRecord) Complete() (PatientRecord, error) {
	if !p.hasName || !p.hasBirthDate {
		return PatientRecord{}, ErrIncompleteIntake
	}
	rec := PatientRecord{
		FullName:  p.FullName,
		BirthDate: p.BirthDate,
		VisitDate: p.VisitDate,
		OwnerID:   p.OwnerID,
	}
	if err := rec.Validate(); err != nil {
		return PatientRecord{}, errors.Wrap(err, "pending record failed validation")
	}
	return rec, nil
}

// TodayPatient is one row of the today's-visits report.
type TodayPatient struct {
	FullName  string    `json:"full_name"`
	BirthDate time.Time `json:"birth_date"`
}

// WeekdayCount is one bucket of the weekly histogram. Weekday uses
// time.Weekday numbering: 0 = Sunday .. 6 = Saturday.
type WeekdayCount struct {
	Weekday int `json:"weekday"`
	Count   int `json:"count"`
}

// DateOnly truncates t to midnight in its own location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysBetween returns the number of calendar days from a to b, ignoring clock time.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// AgeInYears approximates age as whole days elapsed divided by 365.
func AgeInYears(birth, on time.Time) int {
	days := DaysBetween(birth, on)
	if days < 0 {
		return 0
	}
	return days / 365
}

// MessageStatus represents the delivery status of a message.
type MessageStatus string

const (
	// MessageStatusSent indicates the message was sent.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered indicates the message was delivered.
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusRead indicates the message was read.
	MessageStatusRead MessageStatus = "read"
	// MessageStatusFailed indicates the message failed to send.
	MessageStatusFailed MessageStatus = "failed"
)

// Receipt is a delivery event for an outbound message.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Response represents an incoming chat message from an operator.
type Response struct {
	ID   string `json:"id,omitempty"`
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
