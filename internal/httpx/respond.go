package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/jogardn/coffee-storefront/pkg/models"
)

func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		code = http.StatusInternalServerError
		response = []byte(`{"success":false,"error":"Failed to encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, models.ErrorResponse{
		Success: false,
		Error:   message,
	})
}

// RespondWithServerError answers 500. The underlying error text is only
// exposed when detailed is set (development mode).
func RespondWithServerError(w http.ResponseWriter, message string, err error, detailed bool) {
	resp := models.ErrorResponse{
		Success: false,
		Error:   message,
	}
	if detailed && err != nil {
		resp.Error = message + ": " + err.Error()
	}
	RespondWithJSON(w, http.StatusInternalServerError, resp)
}
