package utmp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func basicExpected() []Entry {
	return []Entry{
		BootTime{
			KernelVersion: "5.3.0-29-generic",
			Time:          time.Unix(1581199438, 54727000).UTC(),
		},
		RunLevel{
			PID:           20021,
			KernelVersion: "5.3.0-29-generic",
			Time:          time.Unix(1581199447, 558900000).UTC(),
		},
		UserProcess{
			PID:     2555,
			Line:    ":1",
			User:    "upsuper",
			Host:    ":1",
			Session: 0,
			Time:    time.Unix(1581199675, 609322000).UTC(),
		},
		UserProcess{
			PID:     28885,
			Line:    "tty3",
			User:    "upsuper",
			Host:    "",
			Session: 28786,
			Time:    time.Unix(1581217267, 195722000).UTC(),
		},
		LoginProcess{
			PID:  28965,
			Line: "tty4",
			User: "LOGIN",
			Time: time.Unix(1581217268, 463588000).UTC(),
		},
	}
}

func narrowRecord(typ Type, pid int32, line, user, host string, session int32, sec, usec int32) Record32 {
	r := Record32{
		Type:    int16(typ),
		PID:     pid,
		Session: session,
		Time:    TimeVal32{Sec: sec, Usec: usec},
	}
	copy(r.Line[:], line)
	copy(r.User[:], user)
	copy(r.Host[:], host)
	return r
}

func encode(t *testing.T, recs ...any) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, r := range recs {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, r))
	}
	return buf.Bytes()
}

func decodeOne(t *testing.T, rec any) (Entry, error) {
	t.Helper()
	width := Narrow
	if _, ok := rec.(Record64); ok {
		width = Wide
	}
	dec := NewDecoder(bytes.NewReader(encode(t, rec)), WithWidth(width), WithByteOrder(binary.LittleEndian))
	return dec.Next()
}

func TestRecordSize(t *testing.T) {
	assert.Equal(t, 384, Size32)
	assert.Equal(t, 400, Size64)
	assert.Equal(t, Size32, binary.Size(Record32{}))
	assert.Equal(t, Size64, binary.Size(Record64{}))
	assert.Equal(t, Size32, Narrow.Size())
	assert.Equal(t, Size64, Wide.Size())
	assert.Greater(t, Size64, Size32)
}

func TestDecodeSamples(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		width Width
	}{
		{name: "narrow", file: "basic.utmp", width: Narrow},
		{name: "wide", file: "basic64.utmp", width: Wide},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join("testdata", tt.file)
			actual, err := ReadFile(path, WithWidth(tt.width), WithByteOrder(binary.LittleEndian))
			require.NoError(t, err)
			assert.Equal(t, basicExpected(), actual)
		})
	}
}

func TestDecodeEmpty(t *testing.T) {
	entries, err := ReadFile(filepath.Join("testdata", "empty.utmp"))
	assert.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = DecodeAll(bytes.NewReader(nil))
	assert.NoError(t, err)
	assert.Empty(t, entries)

	_, err = NewDecoder(bytes.NewReader(nil)).Next()
	assert.Equal(t, io.EOF, err)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestDecodeAllMatchesStream(t *testing.T) {
	data := encode(t,
		narrowRecord(TypeBootTime, 0, "~", "reboot", "6.1.0", 0, 1700000000, 1),
		narrowRecord(TypeInitProcess, 1, "", "", "", 0, 1700000001, 2),
		narrowRecord(TypeUserProcess, 42, "pts/0", "alice", "10.0.0.1", 42, 1700000002, 3),
		narrowRecord(TypeDeadProcess, 42, "pts/0", "", "", 0, 1700000003, 4),
		narrowRecord(TypeEmpty, 0, "", "", "", 0, 0, 0),
		narrowRecord(TypeAccounting, 0, "", "", "", 0, 0, 0),
	)

	all, err := DecodeAll(bytes.NewReader(data), WithWidth(Narrow), WithByteOrder(binary.LittleEndian))
	require.NoError(t, err)
	require.Len(t, all, 6)

	var streamed []Entry
	for e, err := range NewDecoder(bytes.NewReader(data), WithWidth(Narrow), WithByteOrder(binary.LittleEndian)).All() {
		require.NoError(t, err)
		streamed = append(streamed, e)
	}
	assert.Equal(t, all, streamed)
	assert.Equal(t, Empty{}, all[4])
	assert.Equal(t, Accounting{}, all[5])
}

func TestReadSizeIndependence(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "basic.utmp"))
	require.NoError(t, err)

	tests := []struct {
		name string
		wrap func(io.Reader) io.Reader
	}{
		{name: "bulk", wrap: func(r io.Reader) io.Reader { return r }},
		{name: "one_byte", wrap: iotest.OneByteReader},
		{name: "half", wrap: iotest.HalfReader},
		{name: "data_err", wrap: iotest.DataErrReader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := DecodeAll(tt.wrap(bytes.NewReader(data)), WithWidth(Narrow), WithByteOrder(binary.LittleEndian))
			require.NoError(t, err)
			assert.Equal(t, basicExpected(), actual)
		})
	}
}

func TestTruncated(t *testing.T) {
	full := encode(t,
		narrowRecord(TypeBootTime, 0, "~", "reboot", "6.1.0", 0, 1700000000, 0),
		narrowRecord(TypeUserProcess, 7, "tty1", "root", "", 7, 1700000001, 0),
	)

	for _, short := range []int{1, 100, Size32 - 1} {
		data := full[:len(full)-short]

		var (
			entries []Entry
			last    error
		)
		for e, err := range NewDecoder(iotest.OneByteReader(bytes.NewReader(data)), WithWidth(Narrow), WithByteOrder(binary.LittleEndian)).All() {
			if err != nil {
				last = err
				continue
			}
			entries = append(entries, e)
		}
		assert.Len(t, entries, 1, "short by %d", short)
		assert.ErrorIs(t, last, ErrTruncated)
		assert.ErrorIs(t, last, io.ErrUnexpectedEOF)

		all, err := DecodeAll(bytes.NewReader(data), WithWidth(Narrow), WithByteOrder(binary.LittleEndian))
		assert.Nil(t, all)
		assert.ErrorIs(t, err, ErrTruncated)
	}
}

func TestShutdownRefinement(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		user   string
		expect Type
	}{
		{name: "shutdown", line: "~", user: "shutdown", expect: TypeShutdownTime},
		{name: "shutdown_longer_line", line: "~~", user: "shutdown", expect: TypeShutdownTime},
		{name: "runlevel", line: "~", user: "runlevel", expect: TypeRunLevel},
		{name: "no_tilde", line: "tty1", user: "shutdown", expect: TypeRunLevel},
		{name: "user_not_terminated_after_shutdown", line: "~", user: "shutdowns", expect: TypeRunLevel},
		{name: "empty_fields", line: "", user: "", expect: TypeRunLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := narrowRecord(TypeRunLevel, 0, tt.line, tt.user, "6.1.0-13-amd64", 0, 1700000000, 5)
			e, err := decodeOne(t, rec)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, e.Type())
			assert.Equal(t, time.Unix(1700000000, 5000).UTC(), e.EntryTime())

			switch v := e.(type) {
			case ShutdownTime:
				assert.Equal(t, "6.1.0-13-amd64", v.KernelVersion)
			case RunLevel:
				assert.Equal(t, "6.1.0-13-amd64", v.KernelVersion)
			default:
				t.Fatalf("unexpected entry %T", e)
			}
		})
	}
}

func TestRunLevelLevel(t *testing.T) {
	e := RunLevel{PID: '5' + 256*'N'}
	cur, prev := e.Level()
	assert.Equal(t, byte('5'), cur)
	assert.Equal(t, byte('N'), prev)
}

func TestInvalidText(t *testing.T) {
	unterminated := string(bytes.Repeat([]byte("a"), 32))
	badHost := string([]byte{0xff, 0xfe, 0})

	tests := []struct {
		name   string
		rec    Record32
		target error
		field  Field
	}{
		{
			name:   "user_without_nul",
			rec:    narrowRecord(TypeUserProcess, 1, "tty1", unterminated, "", 0, 1, 0),
			target: ErrInvalidUser,
			field:  FieldUser,
		},
		{
			name:   "line_without_nul",
			rec:    narrowRecord(TypeUserProcess, 1, unterminated, "root", "", 0, 1, 0),
			target: ErrInvalidLine,
			field:  FieldLine,
		},
		{
			name:   "dead_process_line_without_nul",
			rec:    narrowRecord(TypeDeadProcess, 1, unterminated, "", "", 0, 1, 0),
			target: ErrInvalidLine,
			field:  FieldLine,
		},
		{
			name:   "host_not_utf8",
			rec:    narrowRecord(TypeUserProcess, 1, "tty1", "root", badHost, 0, 1, 0),
			target: ErrInvalidHost,
			field:  FieldHost,
		},
		{
			name:   "boot_kernel_not_utf8",
			rec:    narrowRecord(TypeBootTime, 0, "~", "reboot", badHost, 0, 1, 0),
			target: ErrInvalidHost,
			field:  FieldHost,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := decodeOne(t, tt.rec)
			assert.Nil(t, e)
			assert.ErrorIs(t, err, tt.target)

			var fe *FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)
			switch tt.field {
			case FieldHost:
				assert.Len(t, fe.Raw, HostSize)
			default:
				assert.Len(t, fe.Raw, LineSize)
			}
		})
	}
}

func TestLoginProcessBestEffort(t *testing.T) {
	rec := narrowRecord(TypeLoginProcess, 99, "tty2", string(bytes.Repeat([]byte("x"), 32)), "", 0, 1700000000, 0)
	e, err := decodeOne(t, rec)
	require.NoError(t, err)
	assert.Equal(t, LoginProcess{PID: 99, Line: "tty2", Time: time.Unix(1700000000, 0).UTC()}, e)
}

func TestInvalidTime(t *testing.T) {
	t.Run("negative_usec", func(t *testing.T) {
		e, err := decodeOne(t, narrowRecord(TypeUserProcess, 1, "tty1", "root", "", 0, 1700000000, -1))
		assert.Nil(t, e)
		assert.ErrorIs(t, err, ErrInvalidTime)

		var te *TimeError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, int64(1700000000), te.Sec)
		assert.Equal(t, int64(-1), te.Usec)
	})

	t.Run("out_of_range", func(t *testing.T) {
		rec := narrowRecord(TypeBootTime, 0, "~", "reboot", "", 0, 0, 0).Widen()
		rec.Time = TimeVal64{Sec: 1 << 62, Usec: 0}
		_, err := decodeOne(t, rec)
		assert.ErrorIs(t, err, ErrInvalidTime)
	})

	t.Run("negative_seconds", func(t *testing.T) {
		e, err := decodeOne(t, narrowRecord(TypeNewTime, 0, "", "", "", 0, -10, 500))
		require.NoError(t, err)
		assert.Equal(t, NewTime{Time: time.UnixMicro(-10*1_000_000 + 500).UTC()}, e)
	})
}

func TestUnknownType(t *testing.T) {
	data := encode(t,
		narrowRecord(Type(42), 0, "", "", "", 0, 0, 0),
		narrowRecord(TypeOldTime, 0, "", "", "", 0, 1700000000, 0),
	)
	dec := NewDecoder(bytes.NewReader(data), WithWidth(Narrow), WithByteOrder(binary.LittleEndian))

	_, err := dec.Next()
	assert.ErrorIs(t, err, ErrUnknownType)
	var ute *UnknownTypeError
	require.True(t, errors.As(err, &ute))
	assert.Equal(t, int16(42), ute.Type)
	assert.Equal(t, int64(Size32), dec.Offset())

	// the stream stays aligned after a classification error
	e, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, OldTime{Time: time.Unix(1700000000, 0).UTC()}, e)
	assert.Equal(t, int64(2*Size32), dec.Offset())

	_, err = DecodeAll(bytes.NewReader(data), WithWidth(Narrow), WithByteOrder(binary.LittleEndian))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestWideSession(t *testing.T) {
	rec := narrowRecord(TypeUserProcess, 1, "pts/3", "bob", "example.org", 0, 1700000000, 250).Widen()
	rec.Session = 1 << 40
	e, err := decodeOne(t, rec)
	require.NoError(t, err)
	assert.Equal(t, int64(1<<40), e.(UserProcess).Session)
}

func TestBigEndian(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, narrowRecord(TypeInitProcess, 321, "", "", "", 0, 1700000000, 9)))

	entries, err := DecodeAll(&buf, WithWidth(Narrow), WithByteOrder(binary.BigEndian))
	require.NoError(t, err)
	assert.Equal(t, []Entry{InitProcess{PID: 321, Time: time.Unix(1700000000, 9000).UTC()}}, entries)
}

type errReader struct {
	err error
}

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestReadErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewDecoder(errReader{err: boom}).Next()
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrTruncated)

	_, err = NewDecoder(errReader{}).Next()
	assert.ErrorIs(t, err, io.ErrNoProgress)
}

func TestParseWidth(t *testing.T) {
	tests := []struct {
		in     string
		expect Width
		err    bool
	}{
		{in: "", expect: Native},
		{in: "native", expect: Native},
		{in: "narrow", expect: Narrow},
		{in: "Wide", expect: Wide},
		{in: "64", expect: Wide},
		{in: "huge", err: true},
	}
	for _, tt := range tests {
		w, err := ParseWidth(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.expect, w, tt.in)
	}
	assert.Equal(t, "narrow", Narrow.String())
	assert.Equal(t, "wide", Wide.String())
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "user_process", TypeUserProcess.String())
	assert.Equal(t, "shutdown_time", TypeShutdownTime.String())
	assert.Equal(t, "Type(77)", Type(77).String())
}
