package objbatch

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/runreveal/kawa"
	batch "github.com/runreveal/kawa/x/batcher"
	"github.com/runreveal/wtmpd/internal/destinations/objstore"
	"github.com/runreveal/wtmpd/internal/metrics"
	"github.com/runreveal/wtmpd/internal/types"
	"github.com/segmentio/ksuid"
)

type Option func(*ObjectStorage)

func WithBatchSize(batchSize int) Option {
	return func(s *ObjectStorage) {
		s.batchSize = batchSize
	}
}

func WithFlushFrequency(flushFrequency time.Duration) Option {
	return func(s *ObjectStorage) {
		s.flushFrequency = flushFrequency
	}
}

func WithBlobLike(blobLike objstore.BlobLike) Option {
	return func(s *ObjectStorage) {
		s.blobLike = blobLike
	}
}

func WithPathPrefix(prefix string) Option {
	return func(s *ObjectStorage) {
		s.pathPrefix = prefix
	}
}

// WithBucket overrides the bucket configured on the store.
func WithBucket(bucket string) Option {
	return func(s *ObjectStorage) {
		s.bucketName = bucket
	}
}

// ObjectStorage archives login events as gzipped JSON lines, one object
// per flushed batch.
type ObjectStorage struct {
	batcher *batch.Destination[types.Event]

	pathPrefix string
	bucketName string

	batchSize      int
	flushFrequency time.Duration
	blobLike       objstore.BlobLike
	objStore       *objstore.ObjStorageManager

	now func() time.Time
}

func New(opts ...Option) *ObjectStorage {
	ret := &ObjectStorage{
		pathPrefix: "wtmp",
		now:        time.Now,
	}
	for _, o := range opts {
		o(ret)
	}
	if ret.batchSize == 0 {
		ret.batchSize = 100
	}
	if ret.flushFrequency == 0 {
		ret.flushFrequency = 30 * time.Second
	}

	ret.batcher = batch.NewDestination(ret,
		batch.Raise[types.Event](),
		batch.FlushLength(ret.batchSize),
		batch.FlushFrequency(ret.flushFrequency),
	)
	return ret
}

func (s *ObjectStorage) Run(ctx context.Context) error {
	if s.blobLike == nil {
		return errors.New("objbatch: no object store configured")
	}
	var err error
	s.objStore, err = objstore.New(s.blobLike, s.bucketName)
	if err != nil {
		return fmt.Errorf("objbatch: %w", err)
	}

	return s.batcher.Run(ctx)
}

func (s *ObjectStorage) Send(ctx context.Context, ack func(), msgs ...kawa.Message[types.Event]) error {
	return s.batcher.Send(ctx, ack, msgs...)
}

// Flush writes msgs as one gzipped JSON lines object.
func (s *ObjectStorage) Flush(ctx context.Context, msgs []kawa.Message[types.Event]) (err error) {
	defer func(start time.Time) { metrics.ObserveFlush("objbatch", start, err) }(time.Now())

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)

	for _, msg := range msgs {
		if err := enc.Encode(msg.Value); err != nil {
			return fmt.Errorf("objbatch: encoding event: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return err
	}

	key := s.objectKey()
	if err := s.objStore.Store(ctx, key, bytes.NewReader(buf.Bytes())); err != nil {
		return err
	}
	slog.Debug(fmt.Sprintf("stored %d events in %s", len(msgs), key))
	return nil
}

func (s *ObjectStorage) objectKey() string {
	now := s.now().UTC()
	return fmt.Sprintf("%s/%s/%s_%d.gz",
		s.pathPrefix,
		now.Format("2006/01/02/15"),
		ksuid.New().String(),
		now.Unix(),
	)
}
