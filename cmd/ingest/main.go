package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nullstream/slimsearch"
	"github.com/nullstream/slimsearch/internal/ingest"
	"github.com/nullstream/slimsearch/pkg/config"
	"github.com/nullstream/slimsearch/pkg/kafka"
	"github.com/nullstream/slimsearch/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	dumpPath := flag.String("dump", "", "write a JSON dump of the index here on shutdown")
	loadPath := flag.String("load", "", "optional JSON dump to load at startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingest worker",
		"brokers", cfg.Kafka.Brokers,
		"topic", cfg.Kafka.Topics.DocumentIngest,
		"group", cfg.Kafka.ConsumerGroup,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := cfg.Engine.Options()
	var ix *slimsearch.Index
	if *loadPath != "" {
		data, err := os.ReadFile(*loadPath)
		if err != nil {
			slog.Error("failed to read dump", "path", *loadPath, "error", err)
			os.Exit(1)
		}
		ix, err = slimsearch.LoadJSONAsync(ctx, data, opts)
		if err != nil {
			slog.Error("failed to load dump", "path", *loadPath, "error", err)
			os.Exit(1)
		}
		slog.Info("index loaded from dump", "path", *loadPath, "documents", ix.DocumentCount())
	} else {
		ix, err = slimsearch.New(opts)
		if err != nil {
			slog.Error("failed to create index", "error", err)
			os.Exit(1)
		}
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
	defer producer.Close()

	worker := ingest.NewWorker(ix, cfg.Engine.IDField, producer)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, worker.Handler())

	slog.Info("ingest worker ready, consuming from kafka")
	if err := consumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	if *dumpPath != "" {
		dump, err := ix.ToJSON()
		if err != nil {
			slog.Error("failed to serialize index", "error", err)
		} else if err := os.WriteFile(*dumpPath, dump, 0o644); err != nil {
			slog.Error("failed to write dump", "path", *dumpPath, "error", err)
		} else {
			slog.Info("index dumped", "path", *dumpPath, "documents", ix.DocumentCount())
		}
	}

	slog.Info("ingest worker stopped")
}
