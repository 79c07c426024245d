package internal

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure by what the caller can do about it.
type ErrorKind int

const (
	// KindApi covers remote-call failures: unreachable hosts, non-success
	// statuses, undecodable payloads.
	KindApi ErrorKind = iota
	// KindAuth covers missing or rejected credentials.
	KindAuth
	// KindIntegrity covers digest verification failures. Never retried.
	KindIntegrity
	// KindDisk covers local filesystem failures and insufficient space.
	KindDisk
	// KindNotFound covers lookups of apps, files or records that do not exist.
	KindNotFound
	// KindConfig covers invalid configuration and misuse of the engine.
	KindConfig
)

func (k ErrorKind) String() string {
	switch k {
	case KindApi:
		return "api"
	case KindAuth:
		return "auth"
	case KindIntegrity:
		return "integrity"
	case KindDisk:
		return "disk"
	case KindNotFound:
		return "not_found"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// LauncherError is the error type every component returns. The kind drives
// exit codes and retry decisions; the cause chain stays unwrappable.
type LauncherError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *LauncherError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *LauncherError) Unwrap() error {
	return e.Cause
}

// NewError builds a LauncherError with a formatted message.
func NewError(kind ErrorKind, format string, args ...interface{}) *LauncherError {
	return &LauncherError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds a LauncherError around a cause.
func WrapError(kind ErrorKind, cause error, format string, args ...interface{}) *LauncherError {
	return &LauncherError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// IsKind reports whether err (or anything it wraps) is a LauncherError of
// the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var le *LauncherError
	if errors.As(err, &le) {
		return le.Kind == kind
	}
	return false
}
