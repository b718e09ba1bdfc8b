package services

import (
	"errors"
	"fmt"
)

// ConfigurationError means a required credential or setting is missing. It is
// never retried.
type ConfigurationError struct{ Message string }

func (e *ConfigurationError) Error() string { return e.Message }

// ValidationError covers both bad caller input and model output that does not
// match its schema. ModelOutput marks the second kind.
type ValidationError struct {
	Message     string
	Fields      map[string]string
	ModelOutput bool
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return "Validation error"
	}
	return e.Message
}

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

// ProviderError wraps a transport or upstream failure from an external API.
type ProviderError struct {
	Provider string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s returned status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type RateLimitError struct{ Message string }

func (e *RateLimitError) Error() string { return e.Message }

// IsConfigurationError reports whether err (or anything it wraps) is a
// *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
