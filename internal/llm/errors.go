package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"

	"git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
)

// classifyStatus maps a non-200 response to a classified provider error.
// 408, 429, 5xx and Anthropic's 529 are transient.
func classifyStatus(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()

	msg := fmt.Sprintf("%s API error %d", provider, resp.StatusCode)
	b := errors.NewError(errors.CategoryProvider, msg).
		WithContext("provider", provider).
		WithContext("status", resp.StatusCode).
		WithContext("body", string(body))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		b = b.RateLimit()
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode >= 500:
		b = b.Retryable()
	}
	return b.Build()
}

// classifyTransport wraps a transport failure. Context cancellation is not
// retried.
func classifyTransport(provider string, err error) error {
	if stderrors.Is(err, context.Canceled) {
		return errors.WrapError(err, errors.CategoryCanceled, provider+" request canceled").Info().Build()
	}
	return errors.WrapError(err, errors.CategoryProvider, provider+" request failed").
		Retryable().
		WithContext("provider", provider).
		Build()
}
