package main

import (
	"context"
	"sync/atomic"

	"github.com/runreveal/kawa"
	"github.com/runreveal/wtmpd/internal/types"
)

// fanout sends every message to all destinations and acks it once each of
// them has.
type fanout struct {
	dsts []kawa.Destination[types.Event]
}

func newFanout(dsts ...kawa.Destination[types.Event]) *fanout {
	return &fanout{dsts: dsts}
}

func (f *fanout) Send(ctx context.Context, ack func(), msgs ...kawa.Message[types.Event]) error {
	var remaining atomic.Int64
	remaining.Store(int64(len(f.dsts)))
	done := func() {
		if remaining.Add(-1) == 0 && ack != nil {
			ack()
		}
	}

	for _, d := range f.dsts {
		if err := d.Send(ctx, done, msgs...); err != nil {
			return err
		}
	}
	return nil
}
