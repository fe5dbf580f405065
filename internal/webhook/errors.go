package webhook

import (
	"errors"
	"fmt"
)

// ConfigurationError means no webhook URL is set. No request was attempted.
type ConfigurationError struct{}

func (e *ConfigurationError) Error() string {
	return "webhook URL is not configured"
}

// HTTPError is a reply with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Body       string // short excerpt of the reply body
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("webhook request failed with status: %d", e.StatusCode)
}

// TransportError wraps network-level failures: DNS, refused connections,
// resets, or a body that could not be read.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("webhook unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError is a 2xx reply whose body is not JSON.
type ParseError struct {
	Err     error
	Excerpt string
}

func (e *ParseError) Error() string {
	if e.Excerpt == "" {
		return fmt.Sprintf("webhook reply is not valid JSON: %v", e.Err)
	}
	return fmt.Sprintf("webhook reply is not valid JSON: %v (body: %q)", e.Err, e.Excerpt)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Outcome labels used for metrics and logs.
const (
	OutcomeOK        = "ok"
	OutcomeConfig    = "config"
	OutcomeHTTP      = "http"
	OutcomeTransport = "transport"
	OutcomeParse     = "parse"
)

// Outcome classifies err into one of the Outcome* labels.
func Outcome(err error) string {
	var (
		cfgErr   *ConfigurationError
		httpErr  *HTTPError
		transErr *TransportError
		parseErr *ParseError
	)
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &cfgErr):
		return OutcomeConfig
	case errors.As(err, &httpErr):
		return OutcomeHTTP
	case errors.As(err, &parseErr):
		return OutcomeParse
	case errors.As(err, &transErr):
		return OutcomeTransport
	default:
		return OutcomeTransport
	}
}
