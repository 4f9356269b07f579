package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrLockHeld       = errors.New("lock already held")
	ErrConfiguration  = errors.New("configuration error")
	ErrNotReady       = errors.New("oracle not ready")
	ErrBatchAborted   = errors.New("batch aborted")
	ErrRoundUnderflow = errors.New("round sequence underflow")
	ErrAccountBusy    = errors.New("signing account busy")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrRateLimited    = errors.New("rate limited")
)

// ConfigurationError reports an unsupported sport, method or provider
// mapping. It is raised before any transaction is attempted.
type ConfigurationError struct {
	Field string
	Value string
	Msg   string
}

// Configurationf builds a ConfigurationError for field/value.
func Configurationf(field, value, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Value: value, Msg: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("%s %q: %s", e.Field, e.Value, e.Msg)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// NotReadyError means the oracle has not published an observation at or
// after the requested resolution time.
type NotReadyError struct {
	Coin           string
	Feed           string
	ResolutionTime int64
	UpdatedAt      int64
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("oracle update for %s (%s) has not occurred yet: resolution time %d, last update %d",
		e.Coin, e.Feed, e.ResolutionTime, e.UpdatedAt)
}

func (e *NotReadyError) Unwrap() error { return ErrNotReady }

// BatchAbortError is returned by the strict resolve policy when a coin could
// not be resolved. No transaction has been submitted when it is returned.
type BatchAbortError struct {
	Coin string
	Err  error
}

func (e *BatchAbortError) Error() string {
	if e.Coin == "" {
		return fmt.Sprintf("batch aborted: %v", e.Err)
	}
	return fmt.Sprintf("batch aborted on coin %s: %v", e.Coin, e.Err)
}

func (e *BatchAbortError) Unwrap() []error { return []error{ErrBatchAborted, e.Err} }
