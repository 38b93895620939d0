package utmp

import (
	"errors"
	"fmt"
	"io"
)

var (
	ErrUnknownType = errors.New("utmp: unknown type")
	ErrInvalidTime = errors.New("utmp: invalid time value")
	ErrInvalidLine = errors.New("utmp: invalid line value")
	ErrInvalidUser = errors.New("utmp: invalid user value")
	ErrInvalidHost = errors.New("utmp: invalid host value")

	// ErrTruncated means the stream ended partway through a record. It
	// matches io.ErrUnexpectedEOF as well.
	ErrTruncated = fmt.Errorf("utmp: size not aligned: %w", io.ErrUnexpectedEOF)
)

type UnknownTypeError struct {
	Type int16
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("utmp: unknown type %d", e.Type)
}

func (e *UnknownTypeError) Unwrap() error { return ErrUnknownType }

// TimeError carries the raw timeval of a record whose time is negative in
// the sub-second part or does not fit a timestamp.
type TimeError struct {
	Sec  int64
	Usec int64
}

func (e *TimeError) Error() string {
	return fmt.Sprintf("utmp: invalid time value {sec: %d, usec: %d}", e.Sec, e.Usec)
}

func (e *TimeError) Unwrap() error { return ErrInvalidTime }

// Field names a text field of a record.
type Field string

const (
	FieldLine Field = "line"
	FieldUser Field = "user"
	FieldHost Field = "host"
)

// FieldError reports a text field with no NUL terminator or with bytes that
// are not UTF-8. Raw is a copy of the whole fixed-width field.
type FieldError struct {
	Field Field
	Raw   []byte
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("utmp: invalid %s value %q", e.Field, e.Raw)
}

func (e *FieldError) Unwrap() error {
	switch e.Field {
	case FieldLine:
		return ErrInvalidLine
	case FieldUser:
		return ErrInvalidUser
	case FieldHost:
		return ErrInvalidHost
	}
	return nil
}
