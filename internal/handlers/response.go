package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/drivebidrent/internal/auction"
)

const maxBodyBytes = 1 << 20

// Response is the envelope every API endpoint answers with.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}

func writeSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, Response{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Success: false, Message: message})
}

// writeServiceError answers with the status matching a core error. Unknown
// errors are logged and hidden behind a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("Request failed")
		writeError(w, status, "Internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, auction.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auction.ErrInvalidAmount),
		errors.Is(err, auction.ErrInvalidInput),
		errors.Is(err, auction.ErrInvalidParticipant):
		return http.StatusBadRequest
	case errors.Is(err, auction.ErrBlocked):
		return http.StatusForbidden
	case errors.Is(err, auction.ErrInvalidState),
		errors.Is(err, auction.ErrAlreadyStarted):
		return http.StatusConflict
	case errors.Is(err, auction.ErrNotEligible):
		return http.StatusUnprocessableEntity
	case errors.Is(err, auction.ErrPartialFailure):
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes the request body into dst. An empty body is allowed
// when optional is set.
func decodeJSON(r *http.Request, dst interface{}, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}
