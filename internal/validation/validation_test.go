package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kindOf(t *testing.T, err error) Kind {
	t.Helper()
	var verr *Error
	require.True(t, errors.As(err, &verr), "expected *validation.Error, got %v", err)
	return verr.Kind
}

func TestValidateNameAccepts(t *testing.T) {
	for _, in := range []string{
		"John Smith",
		"  John Smith  ",
		"Иван Петров",
		"Пётр Ёлкин",
		"José Álvarez",
		"X",
	} {
		name, err := ValidateName(in)
		require.NoError(t, err, in)
		assert.Equal(t, strings.TrimSpace(in), name, in)
	}
}

func TestValidateNameTrims(t *testing.T) {
	name, err := ValidateName("  John Smith \t")
	require.NoError(t, err)
	assert.Equal(t, "John Smith", name)
}

func TestValidateNameRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"   ",
		"John123",
		"John_Smith",
		"John-Smith",
		"O'Brien",
		"John\tSmith",
		"Анна!",
		"7",
	} {
		_, err := ValidateName(in)
		require.Error(t, err, in)
		assert.Equal(t, KindEmptyOrInvalidChars, kindOf(t, err), in)
	}
}

func TestValidateNameRejectsDigitsAndSymbolsAnywhere(t *testing.T) {
	for _, c := range "0123456789!@#$%^&*()_+=[]{};:,.<>/?\\|`~\"" {
		in := "Ann" + string(c) + "a"
		_, err := ValidateName(in)
		assert.Error(t, err, in)
	}
}

func TestValidateNameLengthBound(t *testing.T) {
	long := make([]rune, MaxNameLength)
	for i := range long {
		long[i] = 'я'
	}
	_, err := ValidateName(string(long))
	require.NoError(t, err)

	_, err = ValidateName(string(long) + "я")
	require.Error(t, err)
	assert.Equal(t, KindTooLong, kindOf(t, err))
}

func TestValidateBirthDate(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input string
		kind  Kind
	}{
		{"empty", "   ", KindEmpty},
		{"wrong layout", "01.01.2020", KindFormat},
		{"not a date", "yesterday", KindFormat},
		{"impossible day", "2020-02-30", KindFormat},
		{"tomorrow", "2024-01-02", KindFutureDate},
		{"far future", "2030-01-01", KindFutureDate},
		{"way too old", "1900-01-01", KindTooOld},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateBirthDate(tt.input, now)
			require.Error(t, err)
			assert.Equal(t, tt.kind, kindOf(t, err))
		})
	}
}

func TestValidateBirthDateAccepts(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for _, in := range []string{"2020-01-01", "2024-01-01", " 1990-06-15 ", "1950-01-01"} {
		birth, err := ValidateBirthDate(in, now)
		require.NoError(t, err, in)
		assert.False(t, birth.After(now), in)
	}
}

func TestValidateBirthDateAgeBoundary(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// 101*365 days back is exactly age 101 under the days/365 rule.
	tooOld := now.AddDate(0, 0, -101*365).Format("2006-01-02")
	_, err := ValidateBirthDate(tooOld, now)
	require.Error(t, err)
	assert.Equal(t, KindTooOld, kindOf(t, err))

	// One day younger still counts as 100.
	justOK := now.AddDate(0, 0, -101*365+1).Format("2006-01-02")
	_, err = ValidateBirthDate(justOK, now)
	assert.NoError(t, err)
}

func TestErrorMessage(t *testing.T) {
	_, err := ValidateName("John123")
	assert.Contains(t, err.Error(), "name")
	assert.Contains(t, err.Error(), "John123")
}
