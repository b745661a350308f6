package mockserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"inferclient/pkg/types"
)

// HTTPError allows models and the registry to choose the status code for an
// error.
type HTTPError interface {
	error
	StatusCode() int
}

// unknownModelError is reported for names or versions the registry does not
// hold. The text matches what Triton sends so clients can classify it.
type unknownModelError struct {
	model   string
	version string
	stats   bool
}

func (e unknownModelError) Error() string {
	switch {
	case e.version != "":
		return fmt.Sprintf("Request for unknown model: '%s' version %s is not found", e.model, e.version)
	case e.stats:
		return fmt.Sprintf("Request for unknown model: '%s' has no available versions", e.model)
	default:
		return fmt.Sprintf("Request for unknown model: '%s' is not found", e.model)
	}
}

func (unknownModelError) StatusCode() int { return http.StatusBadRequest }

// IsUnknownModel reports whether err names a model the registry lacks.
func IsUnknownModel(err error) bool {
	var e unknownModelError
	return errors.As(err, &e)
}

// inputError is a request the model cannot accept.
type inputError struct{ msg string }

func (e inputError) Error() string { return e.msg }

func (inputError) StatusCode() int { return http.StatusBadRequest }

func invalidInput(format string, a ...any) error {
	return inputError{msg: fmt.Sprintf(format, a...)}
}

// httpError carries an explicit status.
type httpError struct {
	status int
	msg    string
}

func (e httpError) Error() string { return e.msg }

func (e httpError) StatusCode() int { return e.status }

// tooBusyError signals queue timeout for 429 mapping.
type tooBusyError struct{ model string }

func (e tooBusyError) Error() string {
	return fmt.Sprintf("model '%s' is too busy, request waited too long in queue", e.model)
}

func (tooBusyError) StatusCode() int { return http.StatusTooManyRequests }

// IsTooBusy reports whether err indicates backpressure.
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

// statusOf maps an error to its HTTP status, 500 when it carries none.
func statusOf(err error) int {
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeJSONError writes the v2 error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg})
}
