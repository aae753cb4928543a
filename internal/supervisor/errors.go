package supervisor

import (
	"errors"
	"fmt"
	"strings"
)

// Code discriminates the supervisor's terminal error classes (spec §7).
type Code string

const (
	CodeTransportUnreachable Code = "transport_unreachable"
	CodeServiceApplication   Code = "service_application"
	CodeRestartBlocked       Code = "restart_blocked"
	CodeMaxRestartsExceeded  Code = "max_restarts_exceeded"
)

// Error is the typed error the supervisor raises. It preserves the
// original message plus the service and operation name, as spec §4.1's
// failure semantics require.
type Error struct {
	Code          Code
	Service       string
	Operation     string
	Message       string
	OriginalError error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: service %q operation %q: %s", e.Code, e.Service, e.Operation, e.Message)
}

func (e *Error) Unwrap() error {
	return e.OriginalError
}

func newError(code Code, service, operation, message string, original error) *Error {
	return &Error{Code: code, Service: service, Operation: operation, Message: message, OriginalError: original}
}

// connectionErrorNeedles classifies transport-layer unreachability. This is
// deliberately string-based rather than a type assertion: collaborators are
// free-form providers and the only contract they're required to uphold is
// "the error message says so" (spec §4.1's classifier).
var connectionErrorNeedles = []string{
	"refused",
	"connection reset",
	"cannot reach",
	"no such host",
	"network is unreachable",
	"broken pipe",
	"eof",
	"i/o timeout",
}

// IsConnectionError reports whether err is a transport-layer
// unreachability error as opposed to an application-level error (HTTP
// 4xx/5xx with a body). Application errors must never trigger restart.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Code == CodeTransportUnreachable
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range connectionErrorNeedles {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
