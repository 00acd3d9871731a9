// The loader bulk-indexes documents from a Postgres table and can
// write the resulting index as a JSON dump for the server to load.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lib/pq"
	"github.com/nullstream/slimsearch"
	"github.com/nullstream/slimsearch/pkg/config"
	"github.com/nullstream/slimsearch/pkg/logger"
	"github.com/nullstream/slimsearch/pkg/postgres"
)

const batchSize = 1000

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	dumpPath := flag.String("dump", "", "write a JSON dump of the index here after loading")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting loader",
		"host", cfg.Postgres.Host,
		"database", cfg.Postgres.Database,
		"table", cfg.Postgres.Table,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ix, err := slimsearch.New(cfg.Engine.Options())
	if err != nil {
		slog.Error("failed to create index", "error", err)
		os.Exit(1)
	}

	start := time.Now()
	total, err := load(ctx, db.DB, cfg.Postgres.Table, ix)
	if err != nil {
		slog.Error("load failed", "error", err, "documents_loaded", total)
		os.Exit(1)
	}
	slog.Info("load complete",
		"documents", total,
		"terms", ix.TermCount(),
		"elapsed", time.Since(start),
	)

	if *dumpPath != "" {
		dump, err := ix.ToJSON()
		if err != nil {
			slog.Error("failed to serialize index", "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*dumpPath, dump, 0o644); err != nil {
			slog.Error("failed to write dump", "path", *dumpPath, "error", err)
			os.Exit(1)
		}
		slog.Info("index dumped", "path", *dumpPath, "bytes", len(dump))
	}
}

// load streams every row of table as a JSON document and indexes them
// in batches. Each row is serialised server-side with row_to_json so
// the table's columns become document fields without a fixed schema.
func load(ctx context.Context, db *sql.DB, table string, ix *slimsearch.Index) (int, error) {
	query := fmt.Sprintf("SELECT row_to_json(t) FROM %s t", pq.QuoteIdentifier(table))
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	total := 0
	batch := make([]slimsearch.Document, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ix.AddAllAsync(ctx, batch); err != nil {
			return fmt.Errorf("indexing batch ending at row %d: %w", total, err)
		}
		batch = batch[:0]
		return nil
	}

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return total, fmt.Errorf("scanning row %d: %w", total, err)
		}
		var doc slimsearch.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return total, fmt.Errorf("decoding row %d: %w", total, err)
		}
		batch = append(batch, doc)
		total++
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return total, err
			}
			slog.Debug("batch indexed", "documents", total)
		}
	}
	if err := rows.Err(); err != nil {
		return total, fmt.Errorf("iterating rows: %w", err)
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}
