package utmp

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"iter"
	"os"
)

// maxEmptyReads bounds consecutive (0, nil) reads, as bufio does.
const maxEmptyReads = 100

type Option func(*Decoder)

// WithWidth selects the record layout. The default is Native.
func WithWidth(w Width) Option {
	return func(d *Decoder) {
		d.width = w
	}
}

// WithByteOrder sets the byte order of the integer fields. Records are
// written in the byte order of the host that wrote them; the default is
// binary.NativeEndian.
func WithByteOrder(order binary.ByteOrder) Option {
	return func(d *Decoder) {
		d.order = order
	}
}

// Decoder reads records one at a time from a stream. It is not safe for
// concurrent use.
type Decoder struct {
	r     io.Reader
	width Width
	order binary.ByteOrder
	buf   []byte
	off   int64
}

func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	d := &Decoder{
		r:     r,
		width: Native,
		order: binary.NativeEndian,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.buf = make([]byte, d.width.Size())
	return d
}

// Width returns the record layout d decodes.
func (d *Decoder) Width() Width { return d.width }

// Offset is the number of bytes of complete records read so far.
func (d *Decoder) Offset() int64 { return d.off }

// Next decodes the next record. It returns io.EOF when the stream ends on a
// record boundary and ErrTruncated when it ends inside a record. After a
// classification error the stream is still aligned and Next may be called
// again; after any read error it may not.
func (d *Decoder) Next() (Entry, error) {
	if err := d.fill(); err != nil {
		return nil, err
	}
	d.off += int64(len(d.buf))

	rec, err := d.record()
	if err != nil {
		return nil, err
	}
	return Classify(&rec)
}

// All returns the remaining entries as a sequence. A decode error is yielded
// once, as the last element.
func (d *Decoder) All() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for {
			e, err := d.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// fill reads exactly one record into d.buf.
func (d *Decoder) fill() error {
	n, empty := 0, 0
	for n < len(d.buf) {
		m, err := d.r.Read(d.buf[n:])
		n += m
		switch {
		case err == nil:
		case err == io.EOF:
			if n == 0 {
				return io.EOF
			}
			if n < len(d.buf) {
				return ErrTruncated
			}
			return nil
		case interrupted(err):
			continue
		default:
			return fmt.Errorf("utmp: read: %w", err)
		}
		if m > 0 {
			empty = 0
			continue
		}
		empty++
		if empty >= maxEmptyReads {
			return io.ErrNoProgress
		}
	}
	return nil
}

func (d *Decoder) record() (Record64, error) {
	if d.width == Wide {
		var r Record64
		if _, err := binary.Decode(d.buf, d.order, &r); err != nil {
			return Record64{}, fmt.Errorf("utmp: decode record: %w", err)
		}
		return r, nil
	}
	var r Record32
	if _, err := binary.Decode(d.buf, d.order, &r); err != nil {
		return Record64{}, fmt.Errorf("utmp: decode record: %w", err)
	}
	return r.Widen(), nil
}

// DecodeAll decodes every record in r. On error no entries are returned.
func DecodeAll(r io.Reader, opts ...Option) ([]Entry, error) {
	var entries []Entry
	for e, err := range NewDecoder(r, opts...).All() {
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ReadFile decodes the file at path, e.g. /var/run/utmp or /var/log/wtmp.
func ReadFile(path string, opts ...Option) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("utmp: %w", err)
	}
	defer f.Close()
	return DecodeAll(bufio.NewReader(f), opts...)
}
