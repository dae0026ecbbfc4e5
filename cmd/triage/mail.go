package main

import (
	"context"
	"fmt"

	"triage/internal/emails"
	"triage/internal/mailsource"
	"triage/internal/models"
	"triage/internal/search"

	"github.com/spf13/cobra"
)

var (
	imapIndex string
	docsIndex string
	vectorDim int
)

var fetchIMAPCmd = &cobra.Command{
	Use:   "fetch-imap",
	Short: "Ingest unseen messages from the configured IMAP mailbox",
	Long:  "Fetch one batch of unseen messages, store them and enqueue their analysis. Messages are flagged \\Seen once stored. Run it periodically, e.g. from a CronJob.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.IMAPHost == "" || cfg.IMAPUser == "" {
			return fmt.Errorf("IMAP_HOST and IMAP_USER must be set")
		}

		src := mailsource.New(mailsource.Config{
			Host:     cfg.IMAPHost,
			Port:     cfg.IMAPPort,
			UseTLS:   cfg.IMAPUseTLS,
			User:     cfg.IMAPUser,
			Password: cfg.IMAPPassword,
			Mailbox:  cfg.IMAPMailbox,
			Batch:    cfg.IMAPBatch,
		}, logger)

		var total emails.Stats
		n, err := src.FetchUnseen(cmd.Context(), func(ctx context.Context, msgs []*models.InboundMessage) error {
			stats, err := deps.Ingestor.IngestBatch(ctx, msgs, emails.Options{IndexID: imapIndex, Source: "imap"})
			total.Accepted += stats.Accepted
			total.Duplicates += stats.Duplicates
			total.Failed += stats.Failed
			return err
		})
		if err != nil {
			return err
		}
		return printResult(cmd, total, "Fetched %d messages: %d accepted, %d duplicates, %d failed",
			n, total.Accepted, total.Duplicates, total.Failed)
	},
}

var indexDocsCmd = &cobra.Command{
	Use:   "index-docs <dir>",
	Short: "Index knowledge documents for prompt enrichment",
	Long:  "Chunk every .txt/.md/.csv file under dir, embed the chunks and store them in the configured search backend under --index.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if docsIndex == "" {
			return fmt.Errorf("--index is required")
		}
		if err := deps.InitPipeline(); err != nil {
			return err
		}
		if deps.VectorStore == nil {
			return fmt.Errorf("no search backend configured (SEARCH_BACKEND=%q)", cfg.SearchBackend)
		}
		if pg, ok := deps.VectorStore.(*search.PgvectorSearcher); ok {
			if err := pg.CreateTable(cmd.Context(), vectorDim); err != nil {
				return err
			}
		}

		ix := search.NewIndexer(deps.VectorStore, deps.Gateway, logger)
		n, err := ix.IndexDir(cmd.Context(), docsIndex, args[0])
		if err != nil {
			return err
		}
		return printResult(cmd, map[string]any{"index_id": docsIndex, "chunks": n}, "Indexed %d chunks into %s", n, docsIndex)
	},
}

func init() {
	fetchIMAPCmd.Flags().StringVar(&imapIndex, "index", "", "Knowledge index used when analysing the fetched emails")
	rootCmd.AddCommand(fetchIMAPCmd)

	indexDocsCmd.Flags().StringVar(&docsIndex, "index", "", "Index (collection) id to write to")
	indexDocsCmd.Flags().IntVar(&vectorDim, "dim", 1536, "Embedding dimension, used when creating the pgvector table")
	rootCmd.AddCommand(indexDocsCmd)
}
