package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/juseg/aftershocks/internal/adapter/csvstore"
	httpadapter "github.com/juseg/aftershocks/internal/adapter/http"
	"github.com/juseg/aftershocks/internal/adapter/jma"
	kafkaadapter "github.com/juseg/aftershocks/internal/adapter/kafka"
	"github.com/juseg/aftershocks/internal/config"
	"github.com/juseg/aftershocks/internal/observability"
	"github.com/juseg/aftershocks/internal/pipeline"
)

func main() {
	_ = godotenv.Load()

	overrides, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		slog.Error("invalid arguments", "error", err)
		os.Exit(1)
	}

	cfg, err := config.LoadWithOverrides(overrides)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics); err != nil {
		logger.Error("aftershocks failed", "region", cfg.Region, "error", err)
		os.Exit(1)
	}
}

// parseFlags reads the command line. -region is only applied when given, so
// that an explicit empty value can select every region.
func parseFlags(args []string, output io.Writer) (config.Overrides, error) {
	fs := flag.NewFlagSet("aftershocks", flag.ContinueOnError)
	fs.SetOutput(output)

	region := fs.String("region", "", "region label filter, case-insensitive substring (overrides REGION)")
	outputName := fs.String("output", "", "chart file name without extension (overrides OUTPUT_NAME)")
	watch := fs.Duration("watch", 0, "re-run on this interval instead of exiting after one run")

	if err := fs.Parse(args); err != nil {
		return config.Overrides{}, err
	}
	if fs.NArg() > 0 {
		return config.Overrides{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	o := config.Overrides{OutputName: *outputName, WatchInterval: *watch}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "region" {
			o.Region = region
		}
	})
	return o, nil
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var publisher pipeline.Publisher
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		publisher = writer
		metrics.PublishEnabled.Set(1)
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	p := pipeline.New(
		jma.NewClient(cfg, logger, metrics),
		csvstore.New(cfg.HistoryPath),
		publisher,
		pipeline.Options{
			Region:      cfg.Region,
			BucketWidth: cfg.BucketWidth,
			DisplayTZ:   cfg.DisplayTimezone,
			ChartPath:   cfg.ChartPath(),
		},
		logger,
		metrics,
	)

	if cfg.WatchInterval == 0 {
		return runOnce(ctx, cfg, p, logger)
	}
	return watch(ctx, cfg, p, logger)
}

func runOnce(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, logger *slog.Logger) error {
	_, runErr := p.Run(ctx)

	if cfg.MetricsTextfile != "" {
		if err := observability.WriteTextfile(cfg.MetricsTextfile); err != nil {
			logger.Error("write metrics textfile", "path", cfg.MetricsTextfile, "error", err)
			if runErr == nil {
				return fmt.Errorf("write metrics textfile: %w", err)
			}
		}
	}
	return runErr
}

func watch(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, logger *slog.Logger) error {
	var srv *httpadapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	err := pipeline.NewScheduler(p, cfg.WatchInterval, nil, logger).Run(ctx)
	logger.Info("shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return err
}
