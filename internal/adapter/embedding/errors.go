package embedding

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ProviderError is a failed call to an embedding API.
type ProviderError struct {
	Provider    string
	StatusCode  int
	Message     string
	RateLimited bool
	Cause       error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: API returned status %d: %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Provider, msg)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// IsRateLimited reports whether err is a throttling response from a provider
// or the vector index. A typed error with a status decides on its own; the
// message text is only consulted for untyped errors.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.RateLimited
	}
	var se interface{ HTTPStatus() int }
	if errors.As(err, &se) {
		return se.HTTPStatus() == http.StatusTooManyRequests
	}
	return looksRateLimited(err.Error())
}

func looksRateLimited(text string) bool {
	return strings.Contains(text, "status 429") ||
		strings.Contains(text, "429 Too Many Requests") ||
		strings.Contains(text, "Resource has been exhausted") ||
		strings.Contains(text, "RESOURCE_EXHAUSTED")
}

// statusError builds a ProviderError from a non-200 response body.
func statusError(provider string, status int, body []byte) *ProviderError {
	msg := apiErrorMessage(body)
	return &ProviderError{
		Provider:    provider,
		StatusCode:  status,
		Message:     msg,
		RateLimited: status == http.StatusTooManyRequests || looksRateLimited(msg),
	}
}

// apiErrorMessage pulls error.message out of the common provider error
// envelope, falling back to a body preview.
func apiErrorMessage(body []byte) string {
	var envelope struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error != nil && envelope.Error.Message != "" {
			return envelope.Error.Message
		}
		if envelope.Detail != "" {
			return envelope.Detail
		}
	}
	return preview(body)
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
