package client

import (
	"errors"
	"fmt"
	"strings"
)

// UnknownModelPrefix starts every server message reporting a model that is
// not loaded.
const UnknownModelPrefix = "Request for unknown model"

// ErrInvalidArgument marks calls rejected before anything was sent.
var ErrInvalidArgument = errors.New("invalid argument")

// ConnectionError reports that the endpoint could not be reached when the
// client was dialed.
type ConnectionError struct {
	URL string
	Err error
}

func (e ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.URL, e.Err)
}

func (e ConnectionError) Unwrap() error { return e.Err }

// TransportError reports a network or TLS failure during a call, including
// deadline expiry.
type TransportError struct {
	Op  string
	Err error
}

func (e TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
}

func (e TransportError) Unwrap() error { return e.Err }

// ModelNotFoundError reports that the server does not know the model.
// Error returns the server message unchanged.
type ModelNotFoundError struct {
	Model      string
	Message    string
	StatusCode int
}

func (e ModelNotFoundError) Error() string { return e.Message }

// ServerError carries any other server-reported fault.
type ServerError struct {
	Message    string
	StatusCode int
}

func (e ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned HTTP %d", e.StatusCode)
	}
	return e.Message
}

// StatisticsCountError reports a statistics query for one model that did
// not yield exactly one entry.
type StatisticsCountError struct {
	Model string
	Count int
}

func (e StatisticsCountError) Error() string {
	return fmt.Sprintf("expected exactly one statistics entry for model '%s', got %d", e.Model, e.Count)
}

// IsModelNotFound reports whether err indicates an unknown model.
func IsModelNotFound(err error) bool {
	var e ModelNotFoundError
	return errors.As(err, &e)
}

// IsTransport reports whether err is a mid-call network or TLS failure.
func IsTransport(err error) bool {
	var e TransportError
	return errors.As(err, &e)
}

// IsConnection reports whether err is a dial-time connection failure.
func IsConnection(err error) bool {
	var e ConnectionError
	return errors.As(err, &e)
}

// IsServer reports whether err is a generic server-side fault.
func IsServer(err error) bool {
	var e ServerError
	return errors.As(err, &e)
}

// IsStatisticsCount reports whether err is a statistics entry count mismatch.
func IsStatisticsCount(err error) bool {
	var e StatisticsCountError
	return errors.As(err, &e)
}

// Message extracts the server-facing message of err: the raw server text for
// ModelNotFoundError and ServerError, err.Error() otherwise.
func Message(err error) string {
	var nf ModelNotFoundError
	if errors.As(err, &nf) {
		return nf.Message
	}
	var se ServerError
	if errors.As(err, &se) {
		return se.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// classify maps a non-2xx answer to a typed error.
func classify(status int, msg, model string) error {
	msg = strings.TrimSpace(msg)
	if strings.HasPrefix(msg, UnknownModelPrefix) {
		return ModelNotFoundError{Model: model, Message: msg, StatusCode: status}
	}
	if status == 404 && model != "" {
		if msg == "" || strings.Contains(strings.ToLower(msg), "not found") {
			return ModelNotFoundError{
				Model:      model,
				Message:    fmt.Sprintf("%s: '%s' is not found", UnknownModelPrefix, model),
				StatusCode: status,
			}
		}
	}
	return ServerError{Message: msg, StatusCode: status}
}

func invalidArg(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, a...))
}
