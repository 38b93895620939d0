package utmp

import (
	"bytes"
	"math"
	"time"
	"unicode/utf8"
)

// Classify converts a wide record into its Entry. Narrow records are widened
// first so both layouts share this path.
func Classify(r *Record64) (Entry, error) {
	e, err := classify(r)
	if err != nil {
		return nil, err
	}
	return refine(e, r), nil
}

func classify(r *Record64) (Entry, error) {
	switch Type(r.Type) {
	case TypeEmpty:
		return Empty{}, nil
	case TypeRunLevel:
		host, err := text(FieldHost, r.Host[:])
		if err != nil {
			return nil, err
		}
		t, err := timeOf(r.Time)
		if err != nil {
			return nil, err
		}
		return RunLevel{PID: r.PID, KernelVersion: host, Time: t}, nil
	case TypeBootTime:
		host, err := text(FieldHost, r.Host[:])
		if err != nil {
			return nil, err
		}
		t, err := timeOf(r.Time)
		if err != nil {
			return nil, err
		}
		return BootTime{KernelVersion: host, Time: t}, nil
	case TypeNewTime:
		t, err := timeOf(r.Time)
		if err != nil {
			return nil, err
		}
		return NewTime{Time: t}, nil
	case TypeOldTime:
		t, err := timeOf(r.Time)
		if err != nil {
			return nil, err
		}
		return OldTime{Time: t}, nil
	case TypeInitProcess:
		t, err := timeOf(r.Time)
		if err != nil {
			return nil, err
		}
		return InitProcess{PID: r.PID, Time: t}, nil
	case TypeLoginProcess:
		t, err := timeOf(r.Time)
		if err != nil {
			return nil, err
		}
		// Older writers leave these fields uninitialized.
		line, _ := text(FieldLine, r.Line[:])
		user, _ := text(FieldUser, r.User[:])
		host, _ := text(FieldHost, r.Host[:])
		return LoginProcess{PID: r.PID, Line: line, User: user, Host: host, Time: t}, nil
	case TypeUserProcess:
		line, err := text(FieldLine, r.Line[:])
		if err != nil {
			return nil, err
		}
		user, err := text(FieldUser, r.User[:])
		if err != nil {
			return nil, err
		}
		host, err := text(FieldHost, r.Host[:])
		if err != nil {
			return nil, err
		}
		t, err := timeOf(r.Time)
		if err != nil {
			return nil, err
		}
		return UserProcess{
			PID:     r.PID,
			Line:    line,
			User:    user,
			Host:    host,
			Session: r.Session,
			Time:    t,
		}, nil
	case TypeDeadProcess:
		line, err := text(FieldLine, r.Line[:])
		if err != nil {
			return nil, err
		}
		t, err := timeOf(r.Time)
		if err != nil {
			return nil, err
		}
		return DeadProcess{PID: r.PID, Line: line, Time: t}, nil
	case TypeAccounting:
		return Accounting{}, nil
	}
	return nil, &UnknownTypeError{Type: r.Type}
}

const usecPerSec = 1_000_000

var shutdownUser = []byte("shutdown\x00")

// refine applies the one tie-break the tag alone cannot express: init writes
// its shutdown message as a RUN_LVL record with line "~" and user
// "shutdown".
func refine(e Entry, r *Record64) Entry {
	rl, ok := e.(RunLevel)
	if !ok {
		return e
	}
	if r.Line[0] == '~' && bytes.HasPrefix(r.User[:], shutdownUser) {
		return ShutdownTime{KernelVersion: rl.KernelVersion, Time: rl.Time}
	}
	return e
}

// text returns the NUL-terminated UTF-8 prefix of b. A field without a NUL
// is rejected rather than cut at the buffer end.
func text(field Field, b []byte) (string, error) {
	n := bytes.IndexByte(b, 0)
	if n < 0 || !utf8.Valid(b[:n]) {
		return "", &FieldError{Field: field, Raw: bytes.Clone(b)}
	}
	return string(b[:n]), nil
}

func timeOf(tv TimeVal64) (time.Time, error) {
	if tv.Usec < 0 {
		return time.Time{}, &TimeError{Sec: tv.Sec, Usec: tv.Usec}
	}
	if tv.Sec > (math.MaxInt64-tv.Usec)/usecPerSec || tv.Sec < math.MinInt64/usecPerSec {
		return time.Time{}, &TimeError{Sec: tv.Sec, Usec: tv.Usec}
	}
	return time.UnixMicro(tv.Sec*usecPerSec + tv.Usec).UTC(), nil
}
