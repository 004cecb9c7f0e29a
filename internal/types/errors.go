package types

import (
	"errors"
	"fmt"
)

// ProviderError reports that the news search provider was unreachable or
// answered with an error status.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// EmptyResultError reports a successful search that returned no snippets.
type EmptyResultError struct {
	Query string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("no news found for query %q", e.Query)
}

// LLMError is the only error the pipeline recovers from.
type LLMError struct {
	Provider string
	Model    string
	Err      error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm %s/%s failed: %v", e.Provider, e.Model, e.Err)
}

func (e *LLMError) Unwrap() error { return e.Err }

type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery via %s failed: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

var ErrEmptyCompletion = errors.New("empty completion")

func IsLLMError(err error) bool {
	var llmErr *LLMError
	return errors.As(err, &llmErr)
}
