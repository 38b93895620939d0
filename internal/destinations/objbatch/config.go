package objbatch

import (
	"errors"
	"time"

	"github.com/runreveal/kawa"
	"github.com/runreveal/lib/loader"
	"github.com/runreveal/wtmpd/internal/destinations/objstore"
	"github.com/runreveal/wtmpd/internal/types"
)

type BlobConfig struct {
	BatchSize      int           `json:"batchSize"`
	FlushFrequency time.Duration `json:"flushFrequency"`
	Prefix         string        `json:"prefix"`
	Bucket         string        `json:"bucket"`

	ObjStore *loader.Loader[objstore.BlobLike] `json:"store"`
}

func (bc BlobConfig) Configure() (kawa.Destination[types.Event], error) {
	if bc.ObjStore == nil {
		return nil, errors.New("objbatch: store is required")
	}
	bl, err := bc.ObjStore.Configure()
	if err != nil {
		return nil, err
	}

	opts := []Option{WithBlobLike(bl), WithBucket(bc.Bucket)}
	if bc.Prefix != "" {
		opts = append(opts, WithPathPrefix(bc.Prefix))
	}
	if bc.BatchSize > 0 {
		opts = append(opts, WithBatchSize(bc.BatchSize))
	}
	if bc.FlushFrequency >= time.Second {
		opts = append(opts, WithFlushFrequency(bc.FlushFrequency))
	}

	return New(opts...), nil
}
