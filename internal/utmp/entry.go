package utmp

import (
	"fmt"
	"time"
)

// Type is the ut_type tag of a record.
type Type int16

const (
	// Record does not contain valid info (formerly UT_UNKNOWN on Linux).
	TypeEmpty Type = iota
	// Change in system run-level, see init(8).
	TypeRunLevel
	// Time of system boot.
	TypeBootTime
	// Time after system clock change.
	TypeNewTime
	// Time before system clock change.
	TypeOldTime
	// Process spawned by init(8).
	TypeInitProcess
	// Session leader process for user login.
	TypeLoginProcess
	// Normal process.
	TypeUserProcess
	// Terminated process.
	TypeDeadProcess
	TypeAccounting

	// TypeShutdownTime has no tag of its own. It is a RUN_LVL record carrying
	// the shutdown sentinel, see refine.
	TypeShutdownTime Type = -1
)

var typeNames = map[Type]string{
	TypeEmpty:        "empty",
	TypeRunLevel:     "run_level",
	TypeBootTime:     "boot_time",
	TypeNewTime:      "new_time",
	TypeOldTime:      "old_time",
	TypeInitProcess:  "init_process",
	TypeLoginProcess: "login_process",
	TypeUserProcess:  "user_process",
	TypeDeadProcess:  "dead_process",
	TypeAccounting:   "accounting",
	TypeShutdownTime: "shutdown_time",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int16(t))
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Entry is a decoded record. The concrete type is one of Empty, RunLevel,
// BootTime, ShutdownTime, NewTime, OldTime, InitProcess, LoginProcess,
// UserProcess, DeadProcess or Accounting.
type Entry interface {
	Type() Type
	// EntryTime is the time the entry was made, zero for Empty and Accounting.
	EntryTime() time.Time

	entry()
}

type Empty struct{}

type RunLevel struct {
	// PID holds the sysvinit runlevel encoding, zero when unset.
	PID           int32     `json:"pid,omitempty"`
	KernelVersion string    `json:"kernelVersion"`
	Time          time.Time `json:"time"`
}

// Level decodes the runlevel characters sysvinit stores in the pid field as
// current + 256*previous. Zero bytes mean unknown.
func (e RunLevel) Level() (current, previous byte) {
	return byte(e.PID), byte(e.PID >> 8)
}

type BootTime struct {
	KernelVersion string    `json:"kernelVersion"`
	Time          time.Time `json:"time"`
}

type ShutdownTime struct {
	KernelVersion string    `json:"kernelVersion"`
	Time          time.Time `json:"time"`
}

type NewTime struct {
	Time time.Time `json:"time"`
}

type OldTime struct {
	Time time.Time `json:"time"`
}

type InitProcess struct {
	PID  int32     `json:"pid"`
	Time time.Time `json:"time"`
}

// LoginProcess is a getty waiting for a login. Line, User and Host are
// filled in when the record carries them and are empty otherwise.
type LoginProcess struct {
	PID  int32     `json:"pid"`
	Line string    `json:"line,omitempty"`
	User string    `json:"user,omitempty"`
	Host string    `json:"host,omitempty"`
	Time time.Time `json:"time"`
}

type UserProcess struct {
	PID     int32     `json:"pid"`
	Line    string    `json:"line"`
	User    string    `json:"user"`
	Host    string    `json:"host"`
	Session int64     `json:"session"`
	Time    time.Time `json:"time"`
}

type DeadProcess struct {
	PID  int32     `json:"pid"`
	Line string    `json:"line"`
	Time time.Time `json:"time"`
}

// Accounting records are passed through without payload.
type Accounting struct{}

func (Empty) Type() Type        { return TypeEmpty }
func (RunLevel) Type() Type     { return TypeRunLevel }
func (BootTime) Type() Type     { return TypeBootTime }
func (ShutdownTime) Type() Type { return TypeShutdownTime }
func (NewTime) Type() Type      { return TypeNewTime }
func (OldTime) Type() Type      { return TypeOldTime }
func (InitProcess) Type() Type  { return TypeInitProcess }
func (LoginProcess) Type() Type { return TypeLoginProcess }
func (UserProcess) Type() Type  { return TypeUserProcess }
func (DeadProcess) Type() Type  { return TypeDeadProcess }
func (Accounting) Type() Type   { return TypeAccounting }

func (Empty) EntryTime() time.Time          { return time.Time{} }
func (e RunLevel) EntryTime() time.Time     { return e.Time }
func (e BootTime) EntryTime() time.Time     { return e.Time }
func (e ShutdownTime) EntryTime() time.Time { return e.Time }
func (e NewTime) EntryTime() time.Time      { return e.Time }
func (e OldTime) EntryTime() time.Time      { return e.Time }
func (e InitProcess) EntryTime() time.Time  { return e.Time }
func (e LoginProcess) EntryTime() time.Time { return e.Time }
func (e UserProcess) EntryTime() time.Time  { return e.Time }
func (e DeadProcess) EntryTime() time.Time  { return e.Time }
func (Accounting) EntryTime() time.Time     { return time.Time{} }

func (Empty) entry()        {}
func (RunLevel) entry()     {}
func (BootTime) entry()     {}
func (ShutdownTime) entry() {}
func (NewTime) entry()      {}
func (OldTime) entry()      {}
func (InitProcess) entry()  {}
func (LoginProcess) entry() {}
func (UserProcess) entry()  {}
func (DeadProcess) entry()  {}
func (Accounting) entry()   {}
