package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/drip-engine/internal/errors"
	"github.com/unclebandit/drip-engine/internal/service"
)

// ErrorLog receives unexpected (500) errors. Replaced in main.
var ErrorLog logrus.FieldLogger = logrus.StandardLogger()

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// StatusFor maps application errors onto HTTP status codes.
func StatusFor(err error) int {
	var (
		validation *appErrors.ValidationError
		notFound   *appErrors.NotFoundError
		conflict   *appErrors.ConcurrencyConflictError
		transition *appErrors.InvalidTransitionError
		paused     *appErrors.EnrollmentPausedError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &conflict), errors.As(err, &transition):
		return http.StatusConflict
	case errors.As(err, &paused):
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}

func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		ErrorLog.WithError(err).WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Error("request failed")
		msg = "internal error"
	}
	WriteJSON(w, status, map[string]string{"error": msg})
}

// writeContact writes the contact, or the contact with a warning when err is
// an EnrollmentPausedError (the write went through but the contact is paused).
func writeContact(w http.ResponseWriter, r *http.Request, status int, view *service.ContactView, err error) {
	var paused *appErrors.EnrollmentPausedError
	switch {
	case err == nil:
		WriteJSON(w, status, view)
	case errors.As(err, &paused) && view != nil:
		WriteJSON(w, http.StatusAccepted, map[string]any{"data": view, "warning": err.Error()})
	default:
		WriteError(w, r, err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return appErrors.NewValidation("body", "invalid JSON: "+err.Error())
	}
	return nil
}
