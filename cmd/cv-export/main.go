package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/talentpool/cv-pipeline/internal/common"
	"github.com/talentpool/cv-pipeline/internal/export"
	repo "github.com/talentpool/cv-pipeline/internal/repository"
)

func main() {
	var (
		out      = flag.String("out", "cvs.xlsx", "output XLSX file path")
		sinceStr = flag.String("since", "", "only include uploads on or after this date (YYYY-MM-DD)")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var since *time.Time
	if *sinceStr != "" {
		parsed, err := time.Parse("2006-01-02", *sinceStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --since date, use YYYY-MM-DD: %v\n", err)
			os.Exit(1)
		}
		since = &parsed
	}

	cfg := common.LoadConfig()
	if cfg.Database.DSN == "" {
		logger.Error("missing DB_URL environment variable")
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := repo.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer repo.Close(pool, logger)

	docsRepo := repo.NewDocumentRepository(pool, logger)
	exportService := export.NewService(docsRepo, logger)

	xlsxBytes, err := exportService.ExportInventoryXLSX(ctx, since)
	if err != nil {
		logger.Error("failed to export inventory", "error", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*out, xlsxBytes, 0644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Export complete: %s\n", *out)
}
