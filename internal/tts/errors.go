package tts

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common backend failures.
var (
	ErrTextEmpty             = errors.New("tts: text cannot be empty")
	ErrSourceAudioEmpty      = errors.New("tts: source audio cannot be empty")
	ErrVoiceSampleEmpty      = errors.New("tts: voice sample cannot be empty")
	ErrEmptyAudio            = errors.New("tts: received empty audio data")
	ErrUnexpectedContentType = errors.New("tts: unexpected content type")
	ErrServiceUnavailable    = errors.New("tts: service unavailable")
	ErrNotWAV                = errors.New("tts: backend did not return WAV audio")
	ErrUnknownVoice          = errors.New("tts: unknown voice")
	ErrBackendNotConfigured  = errors.New("tts: backend not configured")
	ErrBackendExists         = errors.New("tts: backend already registered")
	ErrConverterMissing      = errors.New("tts: voice converter not configured")
	ErrCommandNotConfigured  = errors.New("tts: command binary not configured")
)

// APIError represents an error response from a speech API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the API.
	Message string

	// Code is the error code from the API (if provided).
	Code string

	// Provider identifies which backend returned the error.
	Provider string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tts [%s]: API error %d (%s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}

	return fmt.Sprintf("tts [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= http.StatusInternalServerError && e.StatusCode < 600
}

// IsUnauthorized returns true for rejected credentials (HTTP 401/403).
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// ProviderError wraps an error with backend context.
type ProviderError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("tts [%s]: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with backend context.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}

	return &ProviderError{Provider: provider, Err: err}
}
