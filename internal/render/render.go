// Package render writes the JSON envelopes used by every API response:
// {"data": ...} on success and {"error": {"code", "message"}} on failure.
package render

import (
	"encoding/json"
	"net/http"

	"github.com/agjmills/clientvault/internal/apperror"
	"github.com/agjmills/clientvault/internal/logger"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON writes data inside the success envelope.
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, map[string]any{"data": data})
}

// Error maps err onto its status and writes the error envelope. Causes of
// server-side failures are logged and never sent to the client.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperror.FromError(err)
	if appErr.Status >= http.StatusInternalServerError {
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"code", appErr.Code,
			"error", err,
		)
	}
	write(w, appErr.Status, map[string]any{
		"error": errorBody{Code: appErr.Code, Message: appErr.Message},
	})
}

func write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
