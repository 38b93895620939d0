package printer

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/runreveal/kawa"
	"github.com/runreveal/wtmpd/internal/types"
)

// Printer writes the raw log of every event as one line.
type Printer struct {
	mu     sync.Mutex
	writer io.Writer
}

func NewPrinter(writer io.Writer) *Printer {
	return &Printer{writer: writer}
}

func (p *Printer) Send(ctx context.Context, ack func(), msgs ...kawa.Message[types.Event]) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, msg := range msgs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, err := fmt.Fprintf(p.writer, "%s\n", msg.Value.RawLog); err != nil {
			return fmt.Errorf("printer: %w", err)
		}
	}
	if ack != nil {
		ack()
	}
	return nil
}
