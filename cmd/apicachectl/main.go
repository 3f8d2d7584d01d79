package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/fofxtools/api-cache/internal/config"
	"github.com/fofxtools/api-cache/internal/database"
	"github.com/fofxtools/api-cache/internal/migrate"
	"github.com/fofxtools/api-cache/internal/store"
)

const usage = `usage: apicachectl <command> [flags]

commands:
  convert    convert rows between the compressed and uncompressed tables
  validate   verify converted rows are lossless
  stats      print table row counts
  cleanup    delete expired rows
  clear      delete all rows of one table variant
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	client := fs.String("client", "", "client name (required)")
	direction := fs.String("direction", "decompress", "compress or decompress")
	batchSize := fs.Int("batch-size", 0, "rows per batch (0 = configured default)")
	offset := fs.Int("offset", 0, "source row offset")
	all := fs.Bool("all", false, "run batches until none remain")
	compressed := fs.Bool("compressed", false, "operate on the compressed table variant")
	fs.Parse(os.Args[2:])

	if *client == "" {
		fmt.Fprintln(os.Stderr, "apicachectl: -client is required")
		os.Exit(2)
	}

	logger := logrus.New()
	cfg := config.Load()

	db, err := database.NewPostgresDB(logger, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Database setup failed")
	}

	ctx := context.Background()
	switch command {
	case "convert", "validate":
		runMigration(ctx, logger, db, cfg, command, *client, *direction, *batchSize, *offset, *all)
	case "stats":
		runStats(ctx, logger, db, cfg, *client, *compressed)
	case "cleanup":
		runCleanup(ctx, logger, db, *client, *compressed)
	case "clear":
		runClear(ctx, logger, db, *client, *compressed)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func runMigration(ctx context.Context, logger *logrus.Logger, db *gorm.DB, cfg *config.Config, command, client, direction string, batchSize, offset int, all bool) {
	dir, err := migrate.ParseDirection(direction)
	if err != nil {
		logger.WithError(err).Fatal("Invalid direction")
	}

	conv, err := migrate.NewConverter(logger, db, client, dir,
		migrate.WithBatchSize(cfg.MigrationBatchSize),
		migrate.WithCopyProcessingState(cfg.CopyProcessingState),
		migrate.WithPacer(cfg.MigrationRowsPerSec),
	)
	if err != nil {
		logger.WithError(err).Fatal("Converter setup failed")
	}

	var result any
	switch {
	case command == "validate" && all:
		result, err = conv.ValidateAll(ctx)
	case command == "validate":
		result, err = conv.ValidateBatch(ctx, batchSize, offset)
	case all:
		result, err = conv.ConvertAll(ctx)
	default:
		result, err = conv.ConvertBatch(ctx, batchSize, offset)
	}
	if err != nil {
		logger.WithError(err).Fatal("Migration run failed")
	}
	printJSON(result)
}

func runStats(ctx context.Context, logger *logrus.Logger, db *gorm.DB, cfg *config.Config, client string, compressed bool) {
	s := store.New(logger, db)
	h, err := store.NewTableHandle(client, compressed)
	if err != nil {
		logger.WithError(err).Fatal("Invalid client name")
	}

	total, err := s.CountTotal(ctx, h)
	if err != nil {
		logger.WithError(err).Fatal("Count failed")
	}
	active, err := s.CountActive(ctx, h)
	if err != nil {
		logger.WithError(err).Fatal("Count failed")
	}
	expired, err := s.CountExpired(ctx, h)
	if err != nil {
		logger.WithError(err).Fatal("Count failed")
	}

	printJSON(map[string]any{
		"client":  client,
		"table":   h.Name(),
		"total":   total,
		"active":  active,
		"expired": expired,
	})
}

func runCleanup(ctx context.Context, logger *logrus.Logger, db *gorm.DB, client string, compressed bool) {
	s := store.New(logger, db)
	h, err := store.NewTableHandle(client, compressed)
	if err != nil {
		logger.WithError(err).Fatal("Invalid client name")
	}

	removed, err := s.Cleanup(ctx, h)
	if err != nil {
		logger.WithError(err).Fatal("Cleanup failed")
	}
	printJSON(map[string]any{"table": h.Name(), "deleted": removed})
}

func runClear(ctx context.Context, logger *logrus.Logger, db *gorm.DB, client string, compressed bool) {
	s := store.New(logger, db)
	h, err := store.NewTableHandle(client, compressed)
	if err != nil {
		logger.WithError(err).Fatal("Invalid client name")
	}

	if err := s.ClearTable(ctx, h); err != nil {
		logger.WithError(err).Fatal("Clear failed")
	}
	printJSON(map[string]any{"table": h.Name(), "cleared": true})
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
