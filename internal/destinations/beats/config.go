package beats

import (
	"time"

	"github.com/runreveal/kawa"
	"github.com/runreveal/wtmpd/internal/types"
)

type Config struct {
	Endpoint    string        `json:"endpoint"`
	Compression int           `json:"compression"`
	Timeout     time.Duration `json:"timeout"`
	BatchSize   int           `json:"batchSize"`
	FlushFreq   time.Duration `json:"flushFreq"`
}

func (c *Config) Configure() (kawa.Destination[types.Event], error) {
	opts := []Option{
		WithEndpoint(c.Endpoint),
		WithCompressionLevel(c.Compression),
		WithBatchSize(c.BatchSize),
		WithFlushFrequency(c.FlushFreq),
	}
	if c.Timeout > 0 {
		opts = append(opts, WithTimeout(c.Timeout))
	}
	return New(opts...), nil
}
