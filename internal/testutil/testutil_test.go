package testutil

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecodeEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.WriteString(`{"status":"ok","result":[{"weekday":0,"count":2}]}`)

	env := DecodeEnvelope(t, rr)
	assert.Equal(t, "ok", env.Status)

	var rows []struct {
		Weekday int `json:"weekday"`
		Count   int `json:"count"`
	}
	DecodeResult(t, env, &rows)
	assert.Equal(t, 2, rows[0].Count)
}

func TestTempSQLiteDSN(t *testing.T) {
	dsn := TempSQLiteDSN(t)
	assert.Equal(t, "visitdesk.db", filepath.Base(dsn))
	info, err := os.Stat(filepath.Dir(dsn))
	assert.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestClock(t *testing.T) {
	at := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)
	now := Clock(at)
	assert.Equal(t, at, now())
	assert.Equal(t, at, now())
}
