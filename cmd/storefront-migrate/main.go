package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jogardn/coffee-storefront/internal/config"
	"github.com/jogardn/coffee-storefront/internal/migration"
	"github.com/jogardn/coffee-storefront/internal/storage"
	"github.com/sirupsen/logrus"
)

func main() {
	from := flag.String("from", "file:data", "source store as backend[:location], e.g. file:data, bolt:data/storefront.db, postgres:<url>")
	to := flag.String("to", "", "target store, same form as -from")
	collections := flag.String("collections", "", "comma separated collections to copy (default all)")
	dryRun := flag.Bool("dry-run", false, "report what would be copied without writing")
	skipExisting := flag.Bool("skip-existing", true, "keep target records and only add records the target lacks")
	concurrency := flag.Int("concurrency", 2, "collections copied in parallel")
	validate := flag.Bool("validate", false, "check the target holds every source record after copying")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	logger := config.NewLogger(cfg)

	if *to == "" {
		logger.Fatal("-to is required")
	}

	source, err := openStore(*from)
	if err != nil {
		logger.WithError(err).WithField("store", *from).Fatal("Failed to open source store")
	}
	defer source.Close()

	target, err := openStore(*to)
	if err != nil {
		logger.WithError(err).WithField("store", *to).Fatal("Failed to open target store")
	}
	defer target.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	migrator := migration.NewDataMigrator(source, target, logger)
	migrator.SetConfig(migration.MigrationConfig{
		Collections:  splitList(*collections),
		Concurrency:  *concurrency,
		DryRun:       *dryRun,
		SkipExisting: *skipExisting,
	})

	result, err := migrator.Migrate(ctx)
	if result != nil {
		printJSON(result)
	}
	if err != nil {
		logger.WithError(err).Fatal("Migration interrupted")
	}

	if *validate && !*dryRun {
		validation, err := migrator.ValidateMigration(ctx)
		if err != nil {
			logger.WithError(err).Fatal("Validation failed")
		}
		printJSON(validation)
		if !validation.IsValid {
			os.Exit(2)
		}
	}

	if result.Failed > 0 {
		os.Exit(1)
	}
}

// openStore parses backend[:location]. The location is the data directory
// for file, the database file for bolt and the connection URL for postgres.
func openStore(spec string) (storage.Store, error) {
	backend, location, _ := strings.Cut(spec, ":")
	opts := storage.Options{Backend: backend}
	switch backend {
	case storage.BackendFile:
		opts.DataDir = location
	case storage.BackendBolt:
		opts.BoltPath = location
	case storage.BackendPostgres:
		opts.DatabaseURL = location
	case storage.BackendMemory:
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
	return storage.Open(opts)
}

func printJSON(v interface{}) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
