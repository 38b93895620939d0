package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/runreveal/kawa"
	"github.com/runreveal/lib/await"
	"github.com/runreveal/lib/loader"
	"github.com/runreveal/wtmpd/internal/metrics"
	"github.com/runreveal/wtmpd/internal/sources/wtmp"
	"github.com/runreveal/wtmpd/internal/types"
	"github.com/runreveal/wtmpd/internal/utmp"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var logLevel string
	rootCmd := &cobra.Command{
		Use:     "wtmpd",
		Short:   "wtmpd reads login accounting records and ships them as events",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var level slog.Level
			if err := level.UnmarshalText([]byte(logLevel)); err != nil {
				return fmt.Errorf("invalid log level %q: %w", logLevel, err)
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	rootCmd.AddCommand(newRunCommand(), newDumpCommand())
	return rootCmd
}

// Config is the daemon configuration file.
type Config struct {
	Sources      map[string]loader.Loader[kawa.Source[types.Event]]      `json:"sources"`
	Destinations map[string]loader.Loader[kawa.Destination[types.Event]] `json:"destinations"`
	// MetricsAddr serves prometheus metrics when set, e.g. ":9100".
	MetricsAddr string `json:"metricsAddr"`
}

func newRunCommand() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the collector daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bts, err := os.ReadFile(configFile)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(bts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return cfg.run(ctx)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "config.json", "path to the config file")
	return cmd
}

func loadConfig(bts []byte) (*Config, error) {
	var cfg Config
	if err := loader.LoadConfig(bts, &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if len(cfg.Sources) == 0 {
		return nil, errors.New("config: no sources configured")
	}
	if len(cfg.Destinations) == 0 {
		return nil, errors.New("config: no destinations configured")
	}
	return &cfg, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (cfg *Config) run(ctx context.Context) error {
	wg := await.New()
	if cfg.MetricsAddr != "" {
		wg.AddNamed(metrics.NewServer(cfg.MetricsAddr), "metrics")
	}

	var dsts []kawa.Destination[types.Event]
	for _, name := range sortedKeys(cfg.Destinations) {
		dst, err := cfg.Destinations[name].Configure()
		if err != nil {
			return fmt.Errorf("destination %s: %w", name, err)
		}
		if r, ok := dst.(await.Runner); ok {
			wg.AddNamed(r, "destination:"+name)
		}
		dsts = append(dsts, dst)
	}
	out := newFanout(dsts...)

	for _, name := range sortedKeys(cfg.Sources) {
		src, err := cfg.Sources[name].Configure()
		if err != nil {
			return fmt.Errorf("source %s: %w", name, err)
		}
		if r, ok := src.(await.Runner); ok {
			wg.AddNamed(r, "source:"+name)
		}
		p, err := kawa.New(kawa.Config[types.Event, types.Event]{
			Source:      src,
			Destination: out,
			Handler:     kawa.Pipe[types.Event](),
		})
		if err != nil {
			return fmt.Errorf("processor %s: %w", name, err)
		}
		wg.AddNamed(p, "processor:"+name)
	}

	slog.Info(fmt.Sprintf("starting wtmpd with %d sources and %d destinations", len(cfg.Sources), len(dsts)))
	err := wg.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newDumpCommand() *cobra.Command {
	var (
		width     string
		byteOrder string
	)
	cmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "decode a utmp, wtmp or btmp file and print one JSON record per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := utmp.ParseWidth(width)
			if err != nil {
				return err
			}
			order, err := parseByteOrder(byteOrder)
			if err != nil {
				return err
			}
			return dump(cmd.OutOrStdout(), args[0], utmp.WithWidth(w), utmp.WithByteOrder(order))
		},
	}
	cmd.Flags().StringVar(&width, "width", "native", "record width: narrow, wide or native")
	cmd.Flags().StringVar(&byteOrder, "byte-order", "native", "byte order: little, big or native")
	return cmd
}

// dump prints every record up to the first decode error, then returns it.
func dump(out io.Writer, path string, opts ...utmp.Option) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(out)
	defer func() {
		if ferr := bw.Flush(); ferr != nil && err == nil {
			err = fmt.Errorf("writing output: %w", ferr)
		}
	}()

	dec := utmp.NewDecoder(bufio.NewReader(f), opts...)
	for entry, derr := range dec.All() {
		if derr != nil {
			return fmt.Errorf("%s: %w", path, derr)
		}
		bts, merr := wtmp.MarshalEntry(entry)
		if merr != nil {
			return merr
		}
		bts = append(bts, '\n')
		if _, werr := bw.Write(bts); werr != nil {
			return fmt.Errorf("writing output: %w", werr)
		}
	}
	return nil
}
