package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"triage/internal/app"
	"triage/internal/config"
	"triage/internal/database"
	"triage/internal/emails"
	"triage/internal/models"
)

func main() {
	// Parse command line flags
	emlPath := flag.String("eml", "", "Path to EML file or directory containing EML files")
	mboxPath := flag.String("mbox", "", "Path to MBOX file")
	archive := flag.Bool("archive", false, "Import from the mail archive database (ARCHIVE_DATABASE_URL)")
	since := flag.String("since", "", "Archive import: only messages received after this date (YYYY-MM-DD)")
	limit := flag.Int("limit", 1000, "Archive import: maximum messages per run")
	batchSize := flag.Int("batch", 100, "Messages ingested per batch")
	indexID := flag.String("index", "", "Knowledge index used when analysing the imported emails")
	flag.Parse()

	if *emlPath == "" && *mboxPath == "" && !*archive {
		fmt.Println("Usage:")
		fmt.Println("  Import EML files:  import-emails -eml /path/to/file.eml")
		fmt.Println("  Import directory:  import-emails -eml /path/to/directory")
		fmt.Println("  Import MBOX:       import-emails -mbox /path/to/file.mbox")
		fmt.Println("  Import archive:    import-emails -archive -since 2024-01-01 -limit 500")
		fmt.Println("  With knowledge:    import-emails -eml /path -index kb-main")
		os.Exit(1)
	}

	// Load configuration
	cfg := config.Load()
	logger := cfg.SetupLogger().With().Str("process", "import-emails").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialise")
	}
	defer a.Close()

	var total emails.Stats
	ingest := func(source string, batch []*models.InboundMessage) error {
		stats, err := a.Ingestor.IngestBatch(ctx, batch, emails.Options{IndexID: *indexID, Source: source})
		total.Accepted += stats.Accepted
		total.Duplicates += stats.Duplicates
		total.Failed += stats.Failed
		return err
	}

	switch {
	case *emlPath != "":
		fmt.Printf("Parsing EML from: %s\n", *emlPath)
		msgs, err := parseEML(*emlPath, a)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to parse emails")
		}
		fmt.Printf("Successfully parsed %d emails\n", len(msgs))
		for start := 0; start < len(msgs); start += *batchSize {
			end := min(start+*batchSize, len(msgs))
			if err := ingest("eml", msgs[start:end]); err != nil {
				logger.Fatal().Err(err).Msg("Import interrupted")
			}
		}

	case *mboxPath != "":
		fmt.Printf("Parsing MBOX file: %s\n", *mboxPath)
		err := emails.ParseMBOXFile(*mboxPath, *batchSize, logger, func(batch []*models.InboundMessage, p emails.MBOXProgress) error {
			if err := ingest("mbox", batch); err != nil {
				return err
			}
			fmt.Printf("  %d emails, %.1f%%\n", p.EmailsProcessed, p.PercentComplete)
			return nil
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Import interrupted")
		}

	case *archive:
		if err := importArchive(ctx, cfg, *since, *limit, *batchSize, ingest); err != nil {
			logger.Fatal().Err(err).Msg("Archive import failed")
		}
	}

	fmt.Println("\n✓ Email import complete!")
	fmt.Printf("  - Accepted:   %d emails (analysis enqueued)\n", total.Accepted)
	fmt.Printf("  - Duplicates: %d\n", total.Duplicates)
	fmt.Printf("  - Failed:     %d\n", total.Failed)
}

func parseEML(path string, a *app.App) ([]*models.InboundMessage, error) {
	// Check if it's a file or directory
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access path: %w", err)
	}

	if info.IsDir() {
		fmt.Println("Scanning directory for EML files...")
		return emails.ParseDirectory(path, a.Logger)
	}
	if !strings.HasSuffix(strings.ToLower(path), ".eml") {
		return nil, fmt.Errorf("invalid file type, expected .eml file or directory")
	}
	msg, err := emails.ParseEMLFile(path)
	if err != nil {
		return nil, err
	}
	return []*models.InboundMessage{msg}, nil
}

func importArchive(ctx context.Context, cfg *config.Config, since string, limit, batchSize int, ingest func(string, []*models.InboundMessage) error) error {
	var from time.Time
	if since != "" {
		t, err := time.Parse("2006-01-02", since)
		if err != nil {
			return fmt.Errorf("invalid -since %q: %w", since, err)
		}
		from = t
	}

	db, err := database.NewArchive(cfg.ArchiveDatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	reader := database.NewArchiveReader(db)
	total, err := reader.CountSince(ctx, from)
	if err != nil {
		return err
	}
	fmt.Printf("Reading archive since %s: %d messages available, importing up to %d\n", from.Format(time.DateOnly), total, limit)

	remaining := limit
	for remaining > 0 {
		rows, err := reader.FetchSince(ctx, from, min(batchSize, remaining))
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			break
		}

		batch := make([]*models.InboundMessage, len(rows))
		for i := range rows {
			batch[i] = &rows[i]
		}
		if err := ingest("archive", batch); err != nil {
			return err
		}

		from = rows[len(rows)-1].ReceivedAt
		remaining -= len(rows)
		fmt.Printf("  %d archived emails processed\n", limit-remaining)
	}
	return nil
}
