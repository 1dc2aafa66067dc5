package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/BTreeMap/VisitDesk/internal/models"
)

// fallbackErrorResponse is sent when a response body cannot be marshaled.
var fallbackErrorResponse []byte

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("marshal fallback error response: %v", err))
	}
}

// writeJSONResponse marshals response before touching the headers so an
// encoding failure can still become a 500.
func writeJSONResponse(logger *zap.Logger, w http.ResponseWriter, statusCode int, response interface{}) {
	data, err := json.Marshal(response)
	if err != nil {
		logger.Error("Server writeJSONResponse marshal failed", zap.Error(err))
		data = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(data); err != nil {
		logger.Warn("Server writeJSONResponse write failed", zap.Error(err))
	}
}
