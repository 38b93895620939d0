package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/runreveal/kawa"
	"github.com/runreveal/wtmpd/internal/types"
)

type Config struct {
	URL           string        `json:"url"`
	Stream        string        `json:"stream"`
	MaxLen        int64         `json:"maxLen"`
	SessionPrefix string        `json:"sessionPrefix"`
	BatchSize     int           `json:"batchSize"`
	FlushFreq     time.Duration `json:"flushFreq"`
}

func (c *Config) Configure() (kawa.Destination[types.Event], error) {
	opt, err := goredis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := goredis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	opts := []Option{
		WithClient(client),
		WithBatchSize(c.BatchSize),
		WithFlushFrequency(c.FlushFreq),
	}
	if c.Stream != "" {
		opts = append(opts, WithStream(c.Stream))
	}
	if c.MaxLen > 0 {
		opts = append(opts, WithMaxLen(c.MaxLen))
	}
	if c.SessionPrefix != "" {
		opts = append(opts, WithSessionPrefix(c.SessionPrefix))
	}
	return New(opts...), nil
}
