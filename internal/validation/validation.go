// Package validation implements the input rules applied at each intake step.
//
// The rules are pure functions: they never touch conversation state. A failed
// check returns an *Error whose Kind selects the warning shown to the operator.
package validation

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/BTreeMap/VisitDesk/internal/models"
)

// MaxNameLength bounds the full name in runes.
const MaxNameLength = 200

// Field identifies which intake field a rule validates.
type Field string

const (
	// FieldName is the patient's full name.
	FieldName Field = "name"
	// FieldBirthDate is the patient's birth date.
	FieldBirthDate Field = "birthdate"
)

// Kind classifies a validation failure.
type Kind string

const (
	// KindEmptyOrInvalidChars means the name was blank or had characters other than letters and spaces.
	KindEmptyOrInvalidChars Kind = "empty_or_invalid_chars"
	// KindTooLong means the name exceeded MaxNameLength.
	KindTooLong Kind = "too_long"
	// KindEmpty means the birth date input was blank.
	KindEmpty Kind = "empty"
	// KindFormat means the birth date was not a YYYY-MM-DD calendar date.
	KindFormat Kind = "format"
	// KindFutureDate means the birth date is after today.
	KindFutureDate Kind = "future_date"
	// KindTooOld means the patient would be older than models.MaxAgeYears.
	KindTooOld Kind = "too_old"
)

// Error is returned by the rules in this package.
type Error struct {
	Field Field
	Kind  Kind
	Input string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s (%s): %q", e.Field, e.Kind, e.Input)
}

// ValidateName trims the input and checks that it is a non-empty string of
// letters and spaces. It returns the trimmed name.
func ValidateName(input string) (string, error) {
	name := strings.TrimSpace(input)
	if name == "" {
		return "", &Error{Field: FieldName, Kind: KindEmptyOrInvalidChars, Input: input}
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", &Error{Field: FieldName, Kind: KindTooLong, Input: input}
	}
	for _, r := range name {
		if r == ' ' || unicode.IsLetter(r) {
			continue
		}
		return "", &Error{Field: FieldName, Kind: KindEmptyOrInvalidChars, Input: input}
	}
	return name, nil
}

// ValidateBirthDate parses a YYYY-MM-DD birth date and checks it against today.
// Age is floor(days/365), so the boundary drifts by the number of leap days.
func ValidateBirthDate(input string, now time.Time) (time.Time, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return time.Time{}, &Error{Field: FieldBirthDate, Kind: KindEmpty, Input: input}
	}
	birth, err := time.ParseInLocation(models.DateLayout, text, now.Location())
	if err != nil {
		return time.Time{}, &Error{Field: FieldBirthDate, Kind: KindFormat, Input: input}
	}
	today := models.DateOnly(now)
	if birth.After(today) {
		return time.Time{}, &Error{Field: FieldBirthDate, Kind: KindFutureDate, Input: input}
	}
	if models.AgeInYears(birth, today) > models.MaxAgeYears {
		return time.Time{}, &Error{Field: FieldBirthDate, Kind: KindTooOld, Input: input}
	}
	return birth, nil
}
