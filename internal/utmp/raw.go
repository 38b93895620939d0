package utmp

// Field widths shared by both record layouts.
const (
	LineSize = 32
	NameSize = 32
	HostSize = 256
)

// Record sizes in bytes. A stream of records is read in chunks of exactly
// this many bytes.
const (
	Size32 = 2 + 2 + 4 + LineSize + 4 + NameSize + HostSize + 4 + 4 + 8 + 16 + 20
	Size64 = 2 + 2 + 4 + LineSize + 4 + NameSize + HostSize + 4 + 8 + 16 + 16 + 20 + 4
)

// Compile-time size checks.
var (
	_ = [1]struct{}{}[Size32-384]
	_ = [1]struct{}{}[Size64-400]
)

// ExitStatus is the ut_exit member. Linux init does not fill it in.
type ExitStatus struct {
	Termination int16
	Exit        int16
}

type TimeVal32 struct {
	Sec  int32
	Usec int32
}

type TimeVal64 struct {
	Sec  int64
	Usec int64
}

// Record32 is the narrow record: 32-bit session and timeval, 384 bytes.
// This is the layout glibc uses on x86, x86_64 and most other targets.
type Record32 struct {
	Type    int16
	_       [2]byte
	PID     int32
	Line    [LineSize]byte
	ID      [4]byte
	User    [NameSize]byte
	Host    [HostSize]byte
	Exit    ExitStatus
	Session int32
	Time    TimeVal32
	AddrV6  [4]int32
	Unused  [20]byte
}

// Record64 is the wide record: 64-bit session and timeval, 400 bytes.
// Narrow records are widened into this form before classification.
type Record64 struct {
	Type    int16
	_       [2]byte
	PID     int32
	Line    [LineSize]byte
	ID      [4]byte
	User    [NameSize]byte
	Host    [HostSize]byte
	Exit    ExitStatus
	Session int64
	Time    TimeVal64
	AddrV6  [4]int32
	Unused  [20]byte
	_       [4]byte
}

// Widen copies r into the wide layout.
func (r Record32) Widen() Record64 {
	return Record64{
		Type:    r.Type,
		PID:     r.PID,
		Line:    r.Line,
		ID:      r.ID,
		User:    r.User,
		Host:    r.Host,
		Exit:    r.Exit,
		Session: int64(r.Session),
		Time: TimeVal64{
			Sec:  int64(r.Time.Sec),
			Usec: int64(r.Time.Usec),
		},
		AddrV6: r.AddrV6,
		Unused: r.Unused,
	}
}
