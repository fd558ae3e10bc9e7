package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/genai"

	"github.com/zen-systems/mindgate/pkg/registry"
)

// ErrMalformedResponse marks a reply that could not be interpreted.
var ErrMalformedResponse = errors.New("malformed response")

// ErrorKind classifies provider failures for fallback decisions.
type ErrorKind string

const (
	KindTimeout           ErrorKind = "timeout"
	KindRateLimited       ErrorKind = "rate_limited"
	KindAuthFailed        ErrorKind = "auth_failed"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindUnavailable       ErrorKind = "unavailable"
	KindCanceled          ErrorKind = "canceled"
)

// ProviderError wraps a provider failure with status metadata.
type ProviderError struct {
	Provider registry.Provider
	Model    string
	Kind     ErrorKind
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}
	msg := fmt.Sprintf("%s/%s: %s", e.Provider, e.Model, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status=%d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Wrap converts any adapter failure into a *ProviderError.
// Errors that already are ProviderErrors keep their kind.
func Wrap(provider registry.Provider, model string, err error) *ProviderError {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Provider == "" {
			pe.Provider = provider
		}
		if pe.Model == "" {
			pe.Model = model
		}
		return pe
	}
	return &ProviderError{
		Provider: provider,
		Model:    model,
		Kind:     Classify(err),
		Status:   StatusOf(err),
		Err:      err,
	}
}

// malformed builds a malformed_response error for a provider.
func malformed(provider registry.Provider, model string, format string, args ...any) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Model:    model,
		Kind:     KindMalformedResponse,
		Err:      fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...)),
	}
}

// StatusOf extracts an HTTP status from SDK or adapter errors, or 0.
func StatusOf(err error) int {
	if err == nil {
		return 0
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Status != 0 {
		return pe.Status
	}
	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return antErr.StatusCode
	}
	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		return oaiErr.StatusCode
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	return 0
}

// Classify maps an error to the fallback taxonomy.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Kind != "" {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, ErrMalformedResponse) {
		return KindMalformedResponse
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return KindMalformedResponse
	}

	switch status := StatusOf(err); {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthFailed
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	}
	return KindUnavailable
}

// IsTransient reports whether an error would likely succeed on a later call.
func IsTransient(err error) bool {
	switch Classify(err) {
	case KindTimeout, KindRateLimited:
		return true
	case KindUnavailable:
		status := StatusOf(err)
		return status >= 500 && status <= 599
	}
	return false
}
