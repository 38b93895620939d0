package beats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	lumberjack "github.com/elastic/go-lumber/client/v2"
	"github.com/runreveal/kawa"
	batch "github.com/runreveal/kawa/x/batcher"
	"github.com/runreveal/wtmpd/internal/metrics"
	"github.com/runreveal/wtmpd/internal/types"
)

type Option func(*Beats)

func WithEndpoint(endpoint string) Option {
	return func(b *Beats) {
		b.endpoint = endpoint
	}
}

func WithCompressionLevel(level int) Option {
	return func(b *Beats) {
		b.compression = level
	}
}

func WithTimeout(d time.Duration) Option {
	return func(b *Beats) {
		b.timeout = d
	}
}

func WithBatchSize(n int) Option {
	return func(b *Beats) {
		b.batchSize = n
	}
}

func WithFlushFrequency(d time.Duration) Option {
	return func(b *Beats) {
		b.flushFrequency = d
	}
}

// Beats ships events to a Logstash (lumberjack v2) endpoint.
type Beats struct {
	batcher *batch.Destination[types.Event]

	endpoint       string
	compression    int
	timeout        time.Duration
	batchSize      int
	flushFrequency time.Duration

	mu   sync.Mutex
	sink *lumberjack.SyncClient
}

func New(opts ...Option) *Beats {
	ret := &Beats{
		timeout: 3 * time.Second,
	}
	for _, o := range opts {
		o(ret)
	}
	if ret.batchSize == 0 {
		ret.batchSize = 100
	}
	if ret.flushFrequency == 0 {
		ret.flushFrequency = 5 * time.Second
	}
	ret.batcher = batch.NewDestination(ret,
		batch.Raise[types.Event](),
		batch.FlushLength(ret.batchSize),
		batch.FlushFrequency(ret.flushFrequency),
	)
	return ret
}

func (b *Beats) Run(ctx context.Context) error {
	if b.endpoint == "" {
		return errors.New("beats: endpoint is required")
	}
	defer b.Shutdown()
	return b.batcher.Run(ctx)
}

func (b *Beats) Send(ctx context.Context, ack func(), msgs ...kawa.Message[types.Event]) error {
	return b.batcher.Send(ctx, ack, msgs...)
}

// Shutdown closes the connection, if any.
func (b *Beats) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sink == nil {
		return nil
	}
	err := b.sink.Close()
	b.sink = nil
	return err
}

func (b *Beats) dial() (*lumberjack.SyncClient, error) {
	if b.sink != nil {
		return b.sink, nil
	}
	sink, err := lumberjack.SyncDial(b.endpoint,
		lumberjack.CompressionLevel(b.compression),
		lumberjack.Timeout(b.timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed connection to beats server: %w", err)
	}
	b.sink = sink
	return sink, nil
}

func (b *Beats) Flush(_ context.Context, msgs []kawa.Message[types.Event]) (err error) {
	defer func(start time.Time) { metrics.ObserveFlush("beats", start, err) }(time.Now())

	b.mu.Lock()
	defer b.mu.Unlock()

	sink, err := b.dial()
	if err != nil {
		return err
	}

	events := make([]interface{}, 0, len(msgs))
	for _, msg := range msgs {
		events = append(events, fields(msg.Value))
	}

	n, err := sink.Send(events)
	if err != nil {
		// reconnect on the next flush
		_ = sink.Close()
		b.sink = nil
		return fmt.Errorf("beats: sent %d of %d events: %w", n, len(events), err)
	}
	slog.Debug(fmt.Sprintf("sent %d events to %s", n, b.endpoint))
	return nil
}

func fields(ev types.Event) map[string]interface{} {
	f := map[string]interface{}{
		// Minimum required fields
		"@timestamp": ev.EventTime,
		"message":    string(ev.RawLog),

		"host": map[string]interface{}{
			"name":     ev.Hostname,
			"hostname": ev.Hostname,
		},
		"agent": map[string]interface{}{
			"type": "wtmpd",
			"pid":  os.Getpid(),
		},
		"event": map[string]interface{}{
			"module":   ev.SourceType,
			"action":   ev.EventName,
			"category": "authentication",
		},
	}
	if ev.Actor.Username != "" {
		f["user"] = map[string]interface{}{"name": ev.Actor.Username}
	}
	if len(ev.Tags) > 0 {
		labels := make(map[string]interface{}, len(ev.Tags))
		for k, v := range ev.Tags {
			labels[k] = v
		}
		f["labels"] = labels
	}
	return f
}
