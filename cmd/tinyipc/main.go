// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command tinyipc is a small demo client for the bus: it sends messages,
// listens for them, or publishes a numbered benchmark batch and reports the
// publish rate.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/steamcore/tinyipc"
	"github.com/steamcore/tinyipc/internal/config"
	xlog "github.com/steamcore/tinyipc/internal/log"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: tinyipc [flags] <command> <bus-name> [args]

Commands:
  send <bus-name> <message...>   publish each argument as one message
  listen <bus-name>              print received messages until interrupted
  bench <bus-name> <count>       publish count numbered messages

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	metricsListen := flag.String("metrics-listen", "", "address for the Prometheus /metrics listener")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	var fc config.FileConfig
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fc = loaded
	}
	fc.ApplyEnv()
	if *logLevel != "" {
		fc.LogLevel = *logLevel
	}
	if *metricsListen != "" {
		fc.MetricsListen = *metricsListen
	}

	xlog.Configure(xlog.Config{Level: fc.LogLevel, Service: "tinyipc"})
	logger := xlog.WithComponent("cli")

	args := flag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(2)
	}
	command, busName := args[0], args[1]
	fc.Name = busName

	opts, err := fc.Options()
	if err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, command, opts, fc.MetricsListen, args[2:]); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, opts tinyipc.Options, metricsListen string, args []string) error {
	bus, err := tinyipc.NewBus(opts)
	if err != nil {
		return err
	}
	defer bus.Close()

	group, ctx := errgroup.WithContext(ctx)
	if metricsListen != "" {
		group.Go(func() error {
			return serveMetrics(ctx, metricsListen)
		})
	}

	group.Go(func() error {
		switch command {
		case "send":
			return send(ctx, bus, args)
		case "listen":
			return listen(ctx, bus)
		case "bench":
			return bench(ctx, bus, args)
		default:
			return fmt.Errorf("unknown command %q", command)
		}
	})

	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func send(ctx context.Context, bus *tinyipc.Bus, args []string) error {
	if len(args) == 0 {
		return errors.New("send: at least one message required")
	}
	messages := make([][]byte, len(args))
	for i, arg := range args {
		messages[i] = []byte(arg)
	}
	if err := bus.PublishBatch(ctx, messages); err != nil {
		return err
	}
	fmt.Printf("published %d message(s)\n", len(messages))
	return nil
}

func listen(ctx context.Context, bus *tinyipc.Bus) error {
	messages, err := bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "listening, ctrl-c to stop")
	for msg := range messages {
		fmt.Printf("%s\n", msg)
	}
	return ctx.Err()
}

func bench(ctx context.Context, bus *tinyipc.Bus, args []string) error {
	count := 1000
	if len(args) > 0 {
		if _, err := fmt.Sscanf(args[0], "%d", &count); err != nil || count < 1 {
			return fmt.Errorf("bench: invalid count %q", args[0])
		}
	}

	start := time.Now()
	batch := make([][]byte, count)
	for i := range batch {
		batch[i] = fmt.Appendf(nil, "bench-%d", i)
	}
	if err := bus.PublishBatch(ctx, batch); err != nil {
		return err
	}
	elapsed := time.Since(start)
	fmt.Printf("published %d messages in %s (%.0f msg/s)\n",
		count, elapsed, float64(count)/elapsed.Seconds())
	return nil
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx) //nolint:errcheck
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
