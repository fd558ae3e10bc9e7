package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"

	"github.com/zen-systems/mindgate/pkg/registry"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	var syntaxErr error = &json.SyntaxError{}

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindTimeout},
		{"canceled", context.Canceled, KindCanceled},
		{"net timeout", timeoutErr{}, KindTimeout},
		{"rate limited status", &ProviderError{Status: 429}, KindRateLimited},
		{"unauthorized", &ProviderError{Status: 401}, KindAuthFailed},
		{"forbidden", &ProviderError{Status: 403}, KindAuthFailed},
		{"gateway timeout", &ProviderError{Status: 504}, KindTimeout},
		{"server error", &ProviderError{Status: 503}, KindUnavailable},
		{"explicit kind", &ProviderError{Kind: KindMalformedResponse, Status: 200}, KindMalformedResponse},
		{"malformed sentinel", fmt.Errorf("x: %w", ErrMalformedResponse), KindMalformedResponse},
		{"json syntax", syntaxErr, KindMalformedResponse},
		{"genai rate limit", fmt.Errorf("google API error: %w", genai.APIError{Code: 429}), KindRateLimited},
		{"opaque", errors.New("boom"), KindUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(&ProviderError{Status: 429}))
	assert.True(t, IsTransient(&ProviderError{Status: 502}))
	assert.False(t, IsTransient(&ProviderError{Status: 401}))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(nil))
}

func TestWrapKeepsExistingProviderError(t *testing.T) {
	orig := &ProviderError{Kind: KindRateLimited, Status: 429}
	wrapped := Wrap(registry.ProviderOpenAI, "gpt", fmt.Errorf("ctx: %w", orig))

	assert.Same(t, orig, wrapped)
	assert.Equal(t, registry.ProviderOpenAI, wrapped.Provider)
	assert.Equal(t, "gpt", wrapped.Model)
	assert.Contains(t, wrapped.Error(), "rate_limited")
	assert.Contains(t, wrapped.Error(), "status=429")
}

func TestWrapClassifiesPlainErrors(t *testing.T) {
	pe := Wrap(registry.ProviderGoogle, "gemini", context.DeadlineExceeded)
	assert.Equal(t, KindTimeout, pe.Kind)
	assert.ErrorIs(t, pe, context.DeadlineExceeded)
	assert.Nil(t, Wrap(registry.ProviderGoogle, "gemini", nil))
}
