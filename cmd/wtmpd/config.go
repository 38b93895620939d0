package main

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/runreveal/kawa"
	"github.com/runreveal/lib/loader"
	"github.com/runreveal/wtmpd/internal"
	"github.com/runreveal/wtmpd/internal/destinations/beats"
	natsdst "github.com/runreveal/wtmpd/internal/destinations/nats"
	"github.com/runreveal/wtmpd/internal/destinations/objbatch"
	"github.com/runreveal/wtmpd/internal/destinations/printer"
	redisdst "github.com/runreveal/wtmpd/internal/destinations/redis"
	"github.com/runreveal/wtmpd/internal/destinations/webhook"
	"github.com/runreveal/wtmpd/internal/sources/wtmp"
	"github.com/runreveal/wtmpd/internal/types"
	"github.com/runreveal/wtmpd/internal/utmp"
	// We could register and configure these in their own package
	// using the init() function.
	// That would make it easy to "dynamically" enable and disable them at
	// compile time since it would simply be updating the import list.
)

func init() {
	// ---------------Sources-------------------------
	loader.Register("wtmp", func() loader.Builder[kawa.Source[types.Event]] {
		return &WtmpConfig{}
	})

	// ---------------Destinations-------------------------
	loader.Register("printer", func() loader.Builder[kawa.Destination[types.Event]] {
		return &PrinterConfig{}
	})
	loader.Register("objbatch", func() loader.Builder[kawa.Destination[types.Event]] {
		return &objbatch.BlobConfig{}
	})
	loader.Register("webhook", func() loader.Builder[kawa.Destination[types.Event]] {
		return &webhook.Config{}
	})
	loader.Register("redis", func() loader.Builder[kawa.Destination[types.Event]] {
		return &redisdst.Config{}
	})
	loader.Register("nats", func() loader.Builder[kawa.Destination[types.Event]] {
		return &natsdst.Config{}
	})
	loader.Register("beats", func() loader.Builder[kawa.Destination[types.Event]] {
		return &beats.Config{}
	})
}

type WtmpConfig struct {
	// Path is the utmp, wtmp or btmp file to read
	Path string `json:"path"`
	// Width is narrow, wide or native
	Width string `json:"width"`
	// ByteOrder is little, big or native
	ByteOrder string `json:"byteOrder"`
	// Mode is append (wtmp, btmp) or snapshot (utmp)
	Mode         string        `json:"mode"`
	PollInterval time.Duration `json:"pollInterval"`
	IncludeEmpty bool          `json:"includeEmpty"`
	CacheSize    int           `json:"cacheSize"`
	// HighWatermarkFile defaults to a file in the state directory.
	HighWatermarkFile string `json:"highWatermarkFile"`
}

func (c *WtmpConfig) Configure() (kawa.Source[types.Event], error) {
	slog.Info(fmt.Sprintf("configuring wtmp source for path: %s", c.Path))
	if c.Path == "" {
		return nil, fmt.Errorf("wtmp: path is required")
	}
	width, err := utmp.ParseWidth(c.Width)
	if err != nil {
		return nil, err
	}
	order, err := parseByteOrder(c.ByteOrder)
	if err != nil {
		return nil, err
	}

	hwm := c.HighWatermarkFile
	if hwm == "" {
		hwm = defaultHighWatermarkFile(c.Path)
	}

	opts := []wtmp.Option{
		wtmp.WithPath(c.Path),
		wtmp.WithWidth(width),
		wtmp.WithByteOrder(order),
		wtmp.WithIncludeEmpty(c.IncludeEmpty),
		wtmp.WithHighWatermarkFile(hwm),
		wtmp.WithCommitInterval(5 * time.Second),
	}
	switch wtmp.Mode(c.Mode) {
	case "", wtmp.ModeAppend:
	case wtmp.ModeSnapshot:
		opts = append(opts, wtmp.WithMode(wtmp.ModeSnapshot))
	default:
		return nil, fmt.Errorf("wtmp: unknown mode %q", c.Mode)
	}
	if c.PollInterval > 0 {
		opts = append(opts, wtmp.WithPollInterval(c.PollInterval))
	}
	if c.CacheSize > 0 {
		opts = append(opts, wtmp.WithCacheSize(c.CacheSize))
	}
	return wtmp.NewSource(opts...), nil
}

// defaultHighWatermarkFile gives every path its own offsets file in the
// state directory.
func defaultHighWatermarkFile(path string) string {
	name := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' {
			return r
		}
		return '_'
	}, strings.Trim(filepath.Clean(path), string(filepath.Separator)))
	return filepath.Join(internal.ConfigDir(), "wtmp-hwm-"+name+".json")
}

func parseByteOrder(s string) (binary.ByteOrder, error) {
	switch s {
	case "", "native":
		return binary.NativeEndian, nil
	case "little":
		return binary.LittleEndian, nil
	case "big":
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("unknown byte order %q", s)
}

type PrinterConfig struct {
}

func (c *PrinterConfig) Configure() (kawa.Destination[types.Event], error) {
	slog.Info("configuring printer")
	return printer.NewPrinter(os.Stdout), nil
}
