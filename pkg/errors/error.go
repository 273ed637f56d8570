// Package errors defines the proxy's error taxonomy: each category carries
// the HTTP status a reviewer-facing or upstream-facing response should use,
// so handlers can translate an error straight into a response without
// re-deriving its severity.
package errors

import (
	"fmt"
	"net/http"
)

// MalformedInputError represents a request the proxy could not parse or
// classify: invalid GraphQL, a body that doesn't match its declared
// Content-Type, an unparseable OpenAPI document. Maps to 400.
type MalformedInputError struct {
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// NewMalformedInputError creates a new MalformedInputError with the provided message and cause.
func NewMalformedInputError(message string, err error) *MalformedInputError {
	return &MalformedInputError{Message: message, Err: err}
}

func (e *MalformedInputError) Error() string {
	return fmt.Errorf("%s: %w", e.Message, e.Err).Error()
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

// StatusCode implements statusCoder.
func (e *MalformedInputError) StatusCode() int {
	return http.StatusBadRequest
}

// PolicyRejectionError represents a request the policy store or a live
// reviewer rejected: no matching allow pattern, or an explicit reject
// decision. Maps to 403.
type PolicyRejectionError struct {
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// NewPolicyRejectionError creates a new PolicyRejectionError with the provided message and cause.
func NewPolicyRejectionError(message string, err error) *PolicyRejectionError {
	return &PolicyRejectionError{Message: message, Err: err}
}

func (e *PolicyRejectionError) Error() string {
	return fmt.Errorf("%s: %w", e.Message, e.Err).Error()
}

func (e *PolicyRejectionError) Unwrap() error {
	return e.Err
}

// StatusCode implements statusCoder.
func (e *PolicyRejectionError) StatusCode() int {
	return http.StatusForbidden
}

// ConfigurationError represents a gap in the proxy's own setup: no
// certificate available for a requested host, an unreadable policy file, a
// malformed OpenAPI index entry. Maps to 500.
type ConfigurationError struct {
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// NewConfigurationError creates a new ConfigurationError with the provided message and cause.
func NewConfigurationError(message string, err error) *ConfigurationError {
	return &ConfigurationError{Message: message, Err: err}
}

func (e *ConfigurationError) Error() string {
	return fmt.Errorf("%s: %w", e.Message, e.Err).Error()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// StatusCode implements statusCoder.
func (e *ConfigurationError) StatusCode() int {
	return http.StatusInternalServerError
}

// UpstreamError represents a failure dialing or reading from the
// destination host once a request was approved for forwarding. Maps to 502.
type UpstreamError struct {
	Message  string         `json:"message"`
	Response *http.Response `json:"-"`
	Err      error          `json:"-"`
}

// NewUpstreamError creates a new UpstreamError with the provided message, response, and cause.
func NewUpstreamError(message string, resp *http.Response, err error) *UpstreamError {
	return &UpstreamError{Message: message, Response: resp, Err: err}
}

func (e *UpstreamError) Error() string {
	return fmt.Errorf("%s: %w", e.Message, e.Err).Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// StatusCode implements statusCoder.
func (e *UpstreamError) StatusCode() int {
	return http.StatusBadGateway
}

// statusCoder is implemented by every error in this package; WriteError uses
// it to pick a response status without a type switch per call site.
type statusCoder interface {
	error
	StatusCode() int
}

// WriteError writes err as a plain-text HTTP response using its StatusCode
// when it implements statusCoder, falling back to 500 for any other error
// (a defensive bug backstop, not an expected path).
func WriteError(w http.ResponseWriter, err error) {
	sc, ok := err.(statusCoder)
	if !ok {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Error(w, sc.Error(), sc.StatusCode())
}
