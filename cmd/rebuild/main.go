// Package main runs one batch rebuild: recompute rank and share, aggregate
// balances, project the read index and publish it.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"commodities/application/commands"
	"commodities/infrastructure/config"
	"commodities/infrastructure/di"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type options struct {
	dryRun bool
	owner  string
}

// parseFlags overlays command line flags onto cfg
func parseFlags(args []string, cfg *config.Config, output io.Writer) (options, error) {
	fs := flag.NewFlagSet("rebuild", flag.ContinueOnError)
	fs.SetOutput(output)

	opts := options{}
	fs.StringVar(&cfg.SQLitePath, "db", cfg.SQLitePath, "path of the SQLite fact store")
	fs.StringVar(&cfg.IndexBackend, "backend", cfg.IndexBackend, "index backend: memory or dynamodb")
	fs.StringVar(&cfg.SnapshotLocation, "snapshot", cfg.SnapshotLocation, "snapshot archive: directory or s3://bucket/prefix")
	fs.StringVar(&cfg.DynamoDBTable, "table", cfg.DynamoDBTable, "DynamoDB table of the dynamodb backend")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "compute and project without writing anything")
	fs.StringVar(&opts.owner, "owner", defaultOwner(), "lock owner recorded while the rebuild runs")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if err := cfg.Validate(); err != nil {
		return options{}, err
	}
	return opts, nil
}

func defaultOwner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	opts, err := parseFlags(os.Args[1:], cfg, os.Stderr)
	if err != nil {
		log.Fatalf("Invalid arguments: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, cleanup, err := di.InitializeRebuildContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer cleanup()
	logger := container.Logger

	if cfg.IndexBackend == config.BackendMemory && cfg.SnapshotLocation == "" && !opts.dryRun {
		logger.Warn("Memory backend without a snapshot location: the index dies with this process")
	}

	cmd := commands.NewRebuildIndexCommand(opts.owner, opts.dryRun)
	if err := container.CommandBus.Send(ctx, cmd); err != nil {
		logger.Error("Rebuild failed", zap.String("runID", cmd.RunID), zap.Error(err))
		_ = logger.Sync()
		cleanup()
		os.Exit(1)
	}

	version, err := container.Index.Version(ctx)
	if err != nil {
		logger.Warn("Could not read the published version", zap.Error(err))
	}
	if opts.dryRun {
		fmt.Printf("dry run %s complete, serving version unchanged (%q)\n", cmd.RunID, version)
	} else {
		fmt.Printf("rebuild %s complete, serving version %q\n", cmd.RunID, version)
	}
	_ = logger.Sync()
}
