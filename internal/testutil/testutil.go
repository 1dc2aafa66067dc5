// Package testutil holds helpers shared by VisitDesk tests.
package testutil

import (
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

// Envelope mirrors models.APIResponse with the result left raw for decoding
// into a concrete type.
type Envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// DecodeEnvelope decodes a JSON API response and fails the test if it is not one.
func DecodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode JSON response %q: %v", rr.Body.String(), err)
	}
	if env.Status == "" {
		t.Fatalf("response missing status field: %s", rr.Body.String())
	}
	return env
}

// DecodeResult decodes env.Result into v.
func DecodeResult(t *testing.T, env Envelope, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Result, v); err != nil {
		t.Fatalf("decode result %s: %v", env.Result, err)
	}
}

// TempSQLiteDSN returns a SQLite path inside a directory removed after the test.
func TempSQLiteDSN(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "visitdesk.db")
}

// Clock returns a clock frozen at at.
func Clock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
