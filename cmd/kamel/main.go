package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/overmail/kamel"
	"github.com/overmail/kamel/config"
	"github.com/overmail/kamel/imapclient"
)

var (
	configPath  string
	folderName  string
	fetchCount  int
	idle        bool
	debug       bool
	metricsAddr string
)

func main() {
	flag.StringVar(&configPath, "config", "kamel.toml", "Configuration file (TOML or YAML)")
	flag.StringVar(&folderName, "folder", kamel.Inbox, "Folder to fetch from and watch")
	flag.IntVar(&fetchCount, "fetch", 10, "Number of most recent messages to print")
	flag.BoolVar(&idle, "idle", false, "Watch the folder with IDLE until interrupted")
	flag.BoolVar(&debug, "debug", false, "Print all commands and responses")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	slog.SetDefault(logger)

	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}
	if metricsAddr != "" {
		go serveMetrics(metricsAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("kamel failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler), nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server failed", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	options := cfg.PoolOptions(logger)
	if debug {
		options.DebugWriter = os.Stderr
	}
	p := imapclient.NewPool(cfg.PoolConfig(), options)
	defer p.Close()

	folders, err := p.ListFolders(ctx, false)
	if err != nil {
		return fmt.Errorf("listing folders: %w", err)
	}
	var folder *imapclient.Folder
	for _, f := range folders {
		fmt.Println(f.Descriptor())
		if f.Name() == folderName {
			folder = f
		}
	}
	if folder == nil {
		return fmt.Errorf("folder %q not found", folderName)
	}
	defer folder.Close()

	if err := printRecent(ctx, folder); err != nil {
		return err
	}
	if !idle {
		return nil
	}
	return watch(ctx, folder, cfg)
}

func printRecent(ctx context.Context, folder *imapclient.Folder) error {
	if fetchCount <= 0 {
		return nil
	}
	if err := folder.Open(ctx); err != nil {
		return fmt.Errorf("opening %v: %w", folder.Name(), err)
	}
	n := folder.SelectData().NumMessages
	if n == 0 {
		fmt.Printf("%v is empty\n", folder.Name())
		return nil
	}
	from := uint32(1)
	if n > uint32(fetchCount) {
		from = n - uint32(fetchCount) + 1
	}

	msgs, err := folder.Fetch(ctx, imapclient.FetchRange(from, n))
	var fetchErr *imapclient.FetchError
	if errors.As(err, &fetchErr) {
		slog.Warn("some messages could not be parsed", "count", len(fetchErr.Failures))
	} else if err != nil {
		return fmt.Errorf("fetching %v: %w", folder.Name(), err)
	}
	for _, msg := range msgs {
		fmt.Println(msg)
	}
	return nil
}

func watch(ctx context.Context, folder *imapclient.Folder, cfg *config.Config) error {
	idleFolder := folder.IdleFolder()
	defer idleFolder.Close()

	listeners := &imapclient.IdleListeners{RestartInterval: cfg.IdleRestartInterval()}
	listeners.OnNewMessage(func(seqNum uint32) {
		fmt.Printf("new message: %v\n", seqNum)
	})
	listeners.OnRemovedMessage(func(seqNum uint32) {
		fmt.Printf("removed message: %v\n", seqNum)
	})
	listeners.OnFlagsChanged(func(seqNum uint32, flags kamel.FlagSet) {
		fmt.Printf("flags changed: %v %v\n", seqNum, flags.Strings())
	})

	fmt.Printf("watching %v, press Ctrl+C to stop\n", folder.Name())
	return idleFolder.Idle(ctx, listeners)
}
