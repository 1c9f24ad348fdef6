package gcevent

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedPayload  = errors.New("malformed payload")
	ErrUnknownReasonCode = errors.New("unknown reason code")
)

// DecodeError is a per-record problem. It never ends a session.
type DecodeError struct {
	Event  Kind
	Code   uint32 // raw reason code, set for ErrUnknownReasonCode
	Detail string
	Err    error
}

func (e *DecodeError) Error() string {
	if errors.Is(e.Err, ErrUnknownReasonCode) {
		return fmt.Sprintf("%s: %v %d", e.Event, e.Err, e.Code)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %v: %s", e.Event, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s: %v", e.Event, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func malformed(kind Kind, format string, args ...any) *DecodeError {
	return &DecodeError{
		Event:  kind,
		Detail: fmt.Sprintf(format, args...),
		Err:    ErrMalformedPayload,
	}
}
