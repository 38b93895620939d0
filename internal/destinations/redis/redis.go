package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/runreveal/kawa"
	batch "github.com/runreveal/kawa/x/batcher"
	"github.com/runreveal/wtmpd/internal/metrics"
	"github.com/runreveal/wtmpd/internal/types"
)

type Option func(*Redis)

func WithClient(c *goredis.Client) Option {
	return func(r *Redis) {
		r.client = c
	}
}

// WithStream sets the stream every event is appended to.
func WithStream(stream string) Option {
	return func(r *Redis) {
		r.stream = stream
	}
}

// WithMaxLen trims the stream to at most n entries.
func WithMaxLen(n int64) Option {
	return func(r *Redis) {
		r.maxLen = n
	}
}

// WithSessionPrefix sets the prefix of the per host hash that tracks who is
// logged in on which line.
func WithSessionPrefix(prefix string) Option {
	return func(r *Redis) {
		r.sessionPrefix = prefix
	}
}

func WithBatchSize(n int) Option {
	return func(r *Redis) {
		r.batchSize = n
	}
}

func WithFlushFrequency(d time.Duration) Option {
	return func(r *Redis) {
		r.flushFrequency = d
	}
}

// Redis appends events to a stream and keeps a live view of open sessions:
// user_process sets a line, dead_process clears it and a boot or shutdown
// clears the host.
type Redis struct {
	batcher *batch.Destination[types.Event]
	client  *goredis.Client

	stream         string
	maxLen         int64
	sessionPrefix  string
	batchSize      int
	flushFrequency time.Duration
}

func New(opts ...Option) *Redis {
	ret := &Redis{
		stream:        "wtmpd:events",
		sessionPrefix: "wtmpd:sessions:",
		maxLen:        100_000,
	}
	for _, o := range opts {
		o(ret)
	}
	if ret.batchSize == 0 {
		ret.batchSize = 100
	}
	if ret.flushFrequency == 0 {
		ret.flushFrequency = time.Second
	}
	ret.batcher = batch.NewDestination(ret,
		batch.Raise[types.Event](),
		batch.FlushLength(ret.batchSize),
		batch.FlushFrequency(ret.flushFrequency),
	)
	return ret
}

func (r *Redis) Run(ctx context.Context) error {
	if r.client == nil {
		return errors.New("redis: no client configured")
	}
	defer r.client.Close()
	return r.batcher.Run(ctx)
}

func (r *Redis) Send(ctx context.Context, ack func(), msgs ...kawa.Message[types.Event]) error {
	return r.batcher.Send(ctx, ack, msgs...)
}

// SessionKey is the hash holding open sessions of host, keyed by line.
func (r *Redis) SessionKey(host string) string {
	return r.sessionPrefix + host
}

func (r *Redis) Flush(ctx context.Context, msgs []kawa.Message[types.Event]) (err error) {
	defer func(start time.Time) { metrics.ObserveFlush("redis", start, err) }(time.Now())

	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, msg := range msgs {
			ev := msg.Value
			pipe.XAdd(ctx, &goredis.XAddArgs{
				Stream: r.stream,
				MaxLen: r.maxLen,
				Values: map[string]interface{}{
					"key":   msg.Key,
					"event": ev.EventName,
					"host":  ev.Hostname,
					"user":  ev.Actor.Username,
					"time":  ev.EventTime.UTC().Format(time.RFC3339Nano),
					"raw":   string(ev.RawLog),
				},
			})
			r.trackSession(ctx, pipe, ev)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

func (r *Redis) trackSession(ctx context.Context, pipe goredis.Pipeliner, ev types.Event) {
	key := r.SessionKey(ev.Hostname)
	switch ev.EventName {
	case "user_process":
		if line := ev.Tags["line"]; line != "" {
			pipe.HSet(ctx, key, line, ev.RawLog)
		}
	case "dead_process":
		if line := ev.Tags["line"]; line != "" {
			pipe.HDel(ctx, key, line)
		}
	case "boot_time", "shutdown_time":
		pipe.Del(ctx, key)
	}
}
