// Command importer loads vendor CSV exports into the database from the
// command line. The user id for each file is derived from the file name
// (base name without the .csv extension, parsed as a UUID).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/glucolog/glucolog/internal/config"
	"github.com/glucolog/glucolog/internal/glucose"
	"github.com/glucolog/glucolog/internal/logging"
	"github.com/glucolog/glucolog/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	dataDir := flag.String("data-dir", "./data", "directory with CSV files")
	file := flag.String("file", "", "specific CSV file to import")
	flag.Parse()

	if err := godotenv.Overload(); err == nil {
		slog.Info("loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := postgres.NewRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure database schema", "error", err)
		os.Exit(1)
	}
	service := glucose.NewService(repo, slog.Default())

	var paths []string
	if *file != "" {
		if _, err := os.Stat(*file); err != nil {
			slog.Error("file not found", "path", *file)
			os.Exit(1)
		}
		paths = []string{*file}
	} else {
		entries, err := os.ReadDir(*dataDir)
		if err != nil {
			slog.Error("data directory not found", "path", *dataDir)
			os.Exit(1)
		}
		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".csv" {
				continue
			}
			paths = append(paths, filepath.Join(*dataDir, entry.Name()))
		}
	}

	total := 0
	for _, path := range paths {
		count, err := importFile(ctx, service, path)
		if err != nil {
			slog.Error("import failed", "file", path, "error", err)
			continue
		}
		fmt.Printf("Imported %d records from %s\n", count, path)
		total += count
	}
	fmt.Printf("Total records imported: %d\n", total)
}

// importFile imports one CSV file, deriving the user id from the file name.
func importFile(ctx context.Context, service *glucose.Service, path string) (int, error) {
	base := filepath.Base(path)
	userID, err := uuid.Parse(strings.TrimSuffix(base, filepath.Ext(base)))
	if err != nil {
		return 0, fmt.Errorf("file name %q is not a valid user UUID: %w", base, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	return service.ImportCSV(ctx, f, userID)
}
