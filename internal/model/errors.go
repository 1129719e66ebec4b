package model

import (
	"errors"
	"fmt"
)

// Error kinds reported in structured tool results.
const (
	KindValidation  = "validation"
	KindProvider    = "provider"
	KindAuth        = "auth"
	KindProtocol    = "protocol"
	KindPersistence = "persistence"
	KindInternal    = "internal"
)

// ValidationError reports missing or malformed operation arguments.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid arguments: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid builds a ValidationError for op.
func Invalid(op, format string, args ...any) error {
	return &ValidationError{Op: op, Err: fmt.Errorf(format, args...)}
}

// ExternalProviderError reports a calendar, mail or notification failure.
type ExternalProviderError struct {
	Op       string
	Provider string
	Err      error
}

func (e *ExternalProviderError) Error() string {
	return fmt.Sprintf("%s: %s provider error: %v", e.Op, e.Provider, e.Err)
}

func (e *ExternalProviderError) Unwrap() error { return e.Err }

// AuthExpiredError means the user has no usable credential and must
// reconnect their account.
type AuthExpiredError struct {
	Op  string
	Err error
}

func (e *AuthExpiredError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: account not connected", e.Op)
	}
	return fmt.Sprintf("%s: authorization expired: %v", e.Op, e.Err)
}

func (e *AuthExpiredError) Unwrap() error { return e.Err }

// AgentProtocolError reports a tool call the agent produced incorrectly,
// such as arguments that are not valid JSON or an unknown operation.
type AgentProtocolError struct {
	Op  string
	Err error
}

func (e *AgentProtocolError) Error() string {
	return fmt.Sprintf("%s: agent protocol error: %v", e.Op, e.Err)
}

func (e *AgentProtocolError) Unwrap() error { return e.Err }

// PersistenceError reports a store read or write failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: persistence error: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrorKind classifies err into one of the Kind constants.
func ErrorKind(err error) string {
	var (
		validation *ValidationError
		provider   *ExternalProviderError
		auth       *AuthExpiredError
		protocol   *AgentProtocolError
		persist    *PersistenceError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &auth):
		return KindAuth
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &protocol):
		return KindProtocol
	case errors.As(err, &persist):
		return KindPersistence
	case errors.As(err, &provider):
		return KindProvider
	}
	return KindInternal
}
