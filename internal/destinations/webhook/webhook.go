package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/runreveal/kawa"
	batch "github.com/runreveal/kawa/x/batcher"
	"github.com/runreveal/wtmpd/internal/metrics"
	"github.com/runreveal/wtmpd/internal/types"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type Option func(*Webhook)

func WithWebhookURL(url string) Option {
	return func(w *Webhook) {
		w.webhookURL = url
	}
}

func WithBatchSize(n int) Option {
	return func(w *Webhook) {
		w.batchSize = n
	}
}

func WithFlushFrequency(d time.Duration) Option {
	return func(w *Webhook) {
		w.flushFrequency = d
	}
}

// WithBearerToken sends a static token in the Authorization header.
func WithBearerToken(token string) Option {
	return func(w *Webhook) {
		w.token = token
	}
}

// WithClientCredentials authenticates with an OAuth2 client credentials
// grant. It takes precedence over a bearer token.
func WithClientCredentials(cfg *clientcredentials.Config) Option {
	return func(w *Webhook) {
		w.oauth = cfg
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(w *Webhook) {
		w.client = c
	}
}

// Webhook posts batches of events to an HTTP endpoint as a JSON array.
type Webhook struct {
	batcher *batch.Destination[types.Event]

	webhookURL     string
	batchSize      int
	flushFrequency time.Duration
	token          string
	oauth          *clientcredentials.Config
	client         *http.Client
}

func New(opts ...Option) *Webhook {
	ret := &Webhook{}
	for _, o := range opts {
		o(ret)
	}
	if ret.batchSize == 0 {
		ret.batchSize = 100
	}
	if ret.flushFrequency == 0 {
		ret.flushFrequency = 10 * time.Second
	}
	if ret.client == nil {
		ret.client = &http.Client{Timeout: 30 * time.Second}
	}

	ret.batcher = batch.NewDestination(ret,
		batch.Raise[types.Event](),
		batch.FlushLength(ret.batchSize),
		batch.FlushFrequency(ret.flushFrequency),
	)
	return ret
}

func (w *Webhook) Run(ctx context.Context) error {
	if w.webhookURL == "" {
		return errors.New("webhook: missing webhook url")
	}
	if w.oauth != nil {
		// token requests go through the configured client too
		base := context.WithValue(ctx, oauth2.HTTPClient, w.client)
		w.client = w.oauth.Client(base)
	}
	return w.batcher.Run(ctx)
}

func (w *Webhook) Send(ctx context.Context, ack func(), msgs ...kawa.Message[types.Event]) error {
	return w.batcher.Send(ctx, ack, msgs...)
}

func (w *Webhook) Flush(ctx context.Context, msgs []kawa.Message[types.Event]) (err error) {
	defer func(start time.Time) { metrics.ObserveFlush("webhook", start, err) }(time.Now())

	body := make([]types.Event, 0, len(msgs))
	for _, msg := range msgs {
		body = append(body, msg.Value)
	}

	rb := requests.
		URL(w.webhookURL).
		Client(w.client).
		BodyJSON(body).
		Post()
	if w.token != "" && w.oauth == nil {
		rb = rb.Bearer(w.token)
	}

	if err = rb.Fetch(ctx); err != nil {
		slog.Error(fmt.Sprintf("webhook: posting %d events: %s", len(msgs), err))
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}
