package wtmp

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/runreveal/kawa"
	"github.com/runreveal/lib/await"
	"github.com/runreveal/wtmpd/internal/metrics"
	"github.com/runreveal/wtmpd/internal/types"
	"github.com/runreveal/wtmpd/internal/utmp"
)

// Mode says how the file is written.
type Mode string

const (
	// ModeAppend is for wtmp and btmp, which only grow.
	ModeAppend Mode = "append"
	// ModeSnapshot is for utmp, whose slots are rewritten in place.
	ModeSnapshot Mode = "snapshot"
)

type Option func(*Source)

func WithPath(path string) Option {
	return func(s *Source) {
		s.path = path
	}
}

func WithWidth(w utmp.Width) Option {
	return func(s *Source) {
		s.width = w
	}
}

func WithByteOrder(order binary.ByteOrder) Option {
	return func(s *Source) {
		s.order = order
	}
}

func WithMode(m Mode) Option {
	return func(s *Source) {
		s.mode = m
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Source) {
		s.pollInterval = d
	}
}

func WithHighWatermarkFile(fname string) Option {
	return func(s *Source) {
		s.highWatermarkFile = fname
	}
}

func WithCommitInterval(d time.Duration) Option {
	return func(s *Source) {
		s.commitInterval = d
	}
}

// WithIncludeEmpty emits EMPTY records instead of skipping them.
func WithIncludeEmpty(include bool) Option {
	return func(s *Source) {
		s.includeEmpty = include
	}
}

// WithCacheSize bounds the number of records remembered in snapshot mode.
func WithCacheSize(n int) Option {
	return func(s *Source) {
		s.cacheSize = n
	}
}

type msgErr[T any] struct {
	msg kawa.Message[T]
	ack func()
	err error
}

var _ interface {
	kawa.Source[types.Event]
	await.Runner
} = (*Source)(nil)

// Source emits one event per login accounting record in a utmp, wtmp or
// btmp file.
type Source struct {
	path         string
	width        utmp.Width
	order        binary.ByteOrder
	mode         Mode
	pollInterval time.Duration
	includeEmpty bool
	cacheSize    int
	hostname     string

	highWatermarkFile string
	commitInterval    time.Duration

	msgC chan msgErr[types.Event]

	posLock sync.Mutex
	// pos is the acked offset. gen changes whenever reading restarts from
	// the top of a new or truncated file so stale acks are ignored.
	pos int64
	gen int
	// inflight counts emitted records not yet acked. Skipped records only
	// advance pos once nothing before them is outstanding; until then the
	// furthest one is held in skipTo.
	inflight int
	skipTo   int64

	seen   *lru.Cache[string, struct{}]
	loaded chan struct{}
}

func NewSource(opts ...Option) *Source {
	s := &Source{
		width:        utmp.Native,
		order:        binary.NativeEndian,
		mode:         ModeAppend,
		pollInterval: 5 * time.Second,
		cacheSize:    4096,
		msgC:         make(chan msgErr[types.Event]),
		loaded:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.commitInterval == 0 {
		s.commitInterval = 5 * time.Second
	}
	s.hostname, _ = os.Hostname()
	return s
}

func (s *Source) Run(ctx context.Context) error {
	if s.path == "" {
		return errors.New("wtmp: path is required")
	}

	wg := await.New()
	switch s.mode {
	case ModeAppend:
		wg.AddNamed(await.RunFunc(s.tailLoop), "tail")
		if s.highWatermarkFile != "" {
			wg.AddNamed(await.RunFunc(s.commitLoop), "commit")
		}
	case ModeSnapshot:
		var err error
		s.seen, err = lru.New[string, struct{}](s.cacheSize)
		if err != nil {
			return fmt.Errorf("wtmp: %w", err)
		}
		wg.AddNamed(await.RunFunc(s.snapshotLoop), "snapshot")
	default:
		return fmt.Errorf("wtmp: unknown mode %q", s.mode)
	}
	return wg.Run(ctx)
}

func (s *Source) Recv(ctx context.Context) (kawa.Message[types.Event], func(), error) {
	select {
	case <-ctx.Done():
		return kawa.Message[types.Event]{}, nil, ctx.Err()
	case msg := <-s.msgC:
		return msg.msg, msg.ack, msg.err
	}
}

func (s *Source) decoderOpts() []utmp.Option {
	return []utmp.Option{utmp.WithWidth(s.width), utmp.WithByteOrder(s.order)}
}

// tailLoop follows an append-only file, decoding only whole records and
// starting over when the file is rotated or truncated.
func (s *Source) tailLoop(ctx context.Context) error {
	size := int64(s.width.Size())

	start := s.loadOffset()
	start -= start % size
	s.posLock.Lock()
	s.pos = start
	gen := s.gen
	s.posLock.Unlock()
	close(s.loaded)

	var (
		f   *os.File
		fi  os.FileInfo
		pos = start
	)
	defer func() {
		if f != nil {
			f.Close()
		}
	}()

	for {
		st, err := os.Stat(s.path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Debug(fmt.Sprintf("waiting for %s to appear", s.path))
		case err != nil:
			return fmt.Errorf("wtmp: %w", err)
		case f == nil || !os.SameFile(st, fi):
			if f != nil {
				slog.Info(fmt.Sprintf("log rotation detected, reopening: %s", s.path))
				f.Close()
				pos = 0
				gen = s.reset()
			}
			f, err = os.Open(s.path)
			if err != nil {
				return fmt.Errorf("wtmp: %w", err)
			}
			fi = st
		}

		if f != nil {
			if st, err = f.Stat(); err != nil {
				return fmt.Errorf("wtmp: %w", err)
			}
			if st.Size() < pos {
				slog.Info(fmt.Sprintf("file truncated, reading from the start: %s", s.path))
				pos = 0
				gen = s.reset()
			}
			if n := (st.Size() - pos) / size; n > 0 {
				pos, err = s.readRecords(ctx, f, pos, n, gen)
				if err != nil {
					return err
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

// readRecords decodes n records of f starting at pos and returns the offset
// after the last one.
func (s *Source) readRecords(ctx context.Context, f *os.File, pos, n int64, gen int) (int64, error) {
	if _, err := f.Seek(pos, io.SeekStart); err != nil {
		return pos, fmt.Errorf("wtmp: %w", err)
	}
	size := int64(s.width.Size())
	dec := utmp.NewDecoder(bufio.NewReader(io.LimitReader(f, n*size)), s.decoderOpts()...)

	for entry, err := range dec.All() {
		if err != nil {
			slog.Error(fmt.Sprintf("decoding %s at offset %d: %s", s.path, pos+dec.Offset()-size, err))
			metrics.DecodeErrors.WithLabelValues(s.path).Inc()
			return pos, s.fail(ctx, fmt.Errorf("wtmp: %s: %w", s.path, err))
		}
		end := pos + dec.Offset()
		if _, ok := entry.(utmp.Empty); ok && !s.includeEmpty {
			s.skipPosition(gen, end)
			continue
		}
		ev, err := s.toEvent(entry)
		if err != nil {
			return pos, s.fail(ctx, err)
		}
		s.track(gen)
		err = s.emit(ctx, ev, func() {
			s.savePosition(gen, end)
		})
		if err != nil {
			return pos, err
		}
	}
	return pos + dec.Offset(), nil
}

// snapshotLoop re-reads the whole file every poll and emits records it has
// not seen before.
func (s *Source) snapshotLoop(ctx context.Context) error {
	for {
		entries, err := utmp.ReadFile(s.path, s.decoderOpts()...)
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Debug(fmt.Sprintf("waiting for %s to appear", s.path))
		case err != nil:
			metrics.DecodeErrors.WithLabelValues(s.path).Inc()
			return s.fail(ctx, fmt.Errorf("wtmp: %s: %w", s.path, err))
		}

		for _, entry := range entries {
			if _, ok := entry.(utmp.Empty); ok && !s.includeEmpty {
				continue
			}
			ev, err := s.toEvent(entry)
			if err != nil {
				return s.fail(ctx, err)
			}
			key := string(ev.RawLog)
			if s.seen.Contains(key) {
				continue
			}
			s.seen.Add(key, struct{}{})
			if err := s.emit(ctx, ev, func() {}); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

func (s *Source) emit(ctx context.Context, ev kawa.Message[types.Event], ack func()) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.msgC <- msgErr[types.Event]{msg: ev, ack: ack}:
	}
	metrics.RecordsTotal.WithLabelValues(s.path, ev.Value.EventName).Inc()
	return nil
}

// fail hands err to the consumer and returns it so the run loop stops.
func (s *Source) fail(ctx context.Context, err error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.msgC <- msgErr[types.Event]{err: err}:
	}
	return err
}

func (s *Source) reset() int {
	s.posLock.Lock()
	defer s.posLock.Unlock()
	s.gen++
	s.pos = 0
	s.inflight = 0
	s.skipTo = 0
	return s.gen
}

func (s *Source) track(gen int) {
	s.posLock.Lock()
	defer s.posLock.Unlock()
	if gen == s.gen {
		s.inflight++
	}
}

// savePosition records the ack of a record ending at pos.
func (s *Source) savePosition(gen int, pos int64) {
	s.posLock.Lock()
	defer s.posLock.Unlock()
	if gen != s.gen {
		return
	}
	if s.inflight > 0 {
		s.inflight--
	}
	s.advance(pos)
	if s.inflight == 0 {
		s.advance(s.skipTo)
	}
}

// skipPosition records a record that is not emitted, ending at pos.
func (s *Source) skipPosition(gen int, pos int64) {
	s.posLock.Lock()
	defer s.posLock.Unlock()
	if gen != s.gen {
		return
	}
	if s.inflight == 0 {
		s.advance(pos)
	} else if pos > s.skipTo {
		s.skipTo = pos
	}
}

// advance moves pos forward; acks may arrive out of order and never move it
// backwards within a file. Callers hold posLock.
func (s *Source) advance(pos int64) {
	if pos > s.pos {
		s.pos = pos
		metrics.FileOffset.WithLabelValues(s.path).Set(float64(pos))
	}
}

// Position returns the offset of the first record that has not been acked.
func (s *Source) Position() int64 {
	s.posLock.Lock()
	defer s.posLock.Unlock()
	return s.pos
}

func (s *Source) commitLoop(ctx context.Context) error {
	select {
	case <-s.loaded:
	case <-ctx.Done():
		return ctx.Err()
	}

	ticker := time.NewTicker(s.commitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.persistOffset()
			return ctx.Err()
		case <-ticker.C:
			s.persistOffset()
		}
	}
}

func (s *Source) loadOffset() int64 {
	if s.highWatermarkFile == "" {
		return 0
	}
	bts, err := os.ReadFile(s.highWatermarkFile)
	if err != nil {
		slog.Info(fmt.Sprintf("cant open high watermark file: %s", err))
		return 0
	}
	offsets := make(map[string]int64)
	if err := json.Unmarshal(bts, &offsets); err != nil {
		slog.Error(fmt.Sprintf("error decoding offsets: %s", err))
		return 0
	}
	return offsets[s.path]
}

// hwmLock serializes read-modify-write of high watermark files, which
// several sources may share.
var hwmLock sync.Mutex

func (s *Source) persistOffset() {
	hwmLock.Lock()
	defer hwmLock.Unlock()

	// Keep offsets of other files sharing the same high watermark file.
	offsets := make(map[string]int64)
	if bts, err := os.ReadFile(s.highWatermarkFile); err == nil {
		if err := json.Unmarshal(bts, &offsets); err != nil {
			slog.Error(fmt.Sprintf("error decoding offsets, rewriting: %s", err))
			offsets = make(map[string]int64)
		}
	}
	offsets[s.path] = s.Position()

	bts, err := json.Marshal(offsets)
	if err != nil {
		slog.Error(fmt.Sprintf("error marshalling offsets: %s", err))
		return
	}
	bts = append(bts, '\n')

	if err := writeFileAtomic(s.highWatermarkFile, bts); err != nil {
		slog.Error(fmt.Sprintf("error writing high watermark file: %s", err))
		return
	}
	slog.Debug(fmt.Sprintf("persisted offset %d for %s", offsets[s.path], s.path))
}

// writeFileAtomic replaces name with data through a temp file in the same
// directory.
func writeFileAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), filepath.Base(name)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}
