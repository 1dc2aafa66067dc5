package models

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(DateLayout, s)
	require.NoError(t, err)
	return d
}

func TestPatientRecordValidate(t *testing.T) {
	valid := PatientRecord{
		FullName:  "John Smith",
		BirthDate: date(t, "2020-01-01"),
		VisitDate: date(t, "2024-01-01"),
		OwnerID:   7,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(r *PatientRecord)
		want   error
	}{
		{"empty name", func(r *PatientRecord) { r.FullName = "" }, ErrEmptyFullName},
		{"missing birth date", func(r *PatientRecord) { r.BirthDate = time.Time{} }, ErrMissingBirthDate},
		{"missing visit date", func(r *PatientRecord) { r.VisitDate = time.Time{} }, ErrMissingVisitDate},
		{"zero owner", func(r *PatientRecord) { r.OwnerID = 0 }, ErrInvalidOwnerID},
		{"birth after visit", func(r *PatientRecord) { r.BirthDate = date(t, "2024-01-02") }, ErrBirthAfterVisit},
		{"over one hundred", func(r *PatientRecord) { r.BirthDate = date(t, "1900-01-01") }, ErrAgeExceedsMaximum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			assert.ErrorIs(t, r.Validate(), tt.want)
		})
	}
}

func TestPendingRecordComplete(t *testing.T) {
	var p PendingRecord
	p.OwnerID = 7

	_, err := p.Complete()
	assert.ErrorIs(t, err, ErrIncompleteIntake)

	p.SetFullName("John Smith")
	assert.True(t, p.HasFullName())
	assert.False(t, p.HasBirthDate())
	_, err = p.Complete()
	assert.ErrorIs(t, err, ErrIncompleteIntake)

	visit := time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC)
	p.SetBirthDate(date(t, "2020-01-01"), visit)
	rec, err := p.Complete()
	require.NoError(t, err)
	assert.Equal(t, "John Smith", rec.FullName)
	assert.Equal(t, date(t, "2024-01-01"), rec.VisitDate)
	assert.Equal(t, int64(7), rec.OwnerID)
}

func TestPendingRecordCompleteRejectsInvalidOwner(t *testing.T) {
	var p PendingRecord
	p.SetFullName("Jane Doe")
	p.SetBirthDate(date(t, "1990-05-05"), date(t, "2024-01-01"))

	_, err := p.Complete()
	assert.True(t, errors.Is(err, ErrInvalidOwnerID))
}

func TestAgeInYearsUsesDayApproximation(t *testing.T) {
	birth := date(t, "2020-01-01")
	// 2020 is a leap year, so 365 days later is 2020-12-31.
	assert.Equal(t, 0, AgeInYears(birth, date(t, "2020-12-30")))
	assert.Equal(t, 1, AgeInYears(birth, date(t, "2020-12-31")))
	assert.Equal(t, 4, AgeInYears(birth, date(t, "2024-01-01")))
	assert.Equal(t, 0, AgeInYears(birth, date(t, "2019-01-01")))
}

func TestDaysBetweenIgnoresClockTime(t *testing.T) {
	a := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)
	b := time.Date(2024, 3, 2, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysBetween(a, b))
	assert.Equal(t, -1, DaysBetween(b, a))
}

func TestAPIResponseHelpers(t *testing.T) {
	ok := Success([]int{1})
	assert.Equal(t, "ok", ok.Status)
	assert.Equal(t, []int{1}, ok.Result)

	bad := Error("boom")
	assert.Equal(t, "error", bad.Status)
	assert.Equal(t, "boom", bad.Message)
	assert.Nil(t, bad.Result)
}
