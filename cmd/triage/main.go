package main

import (
	"context"
	"fmt"
	"os"

	"triage/internal/app"
	"triage/internal/config"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	jsonOutput bool
	indexID    string

	cfg    *config.Config
	logger zerolog.Logger
	deps   *app.App
)

var rootCmd = &cobra.Command{
	Use:           "triage",
	Short:         "triage - support email analysis and task routing",
	Long:          "Operator commands for the email triage pipeline: run analysis and reply jobs, fan out tasks, fetch mail and index knowledge documents.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "help", "version":
			return nil
		}

		cfg = config.Load()
		logger = cfg.SetupLogger().With().Str("process", "cli").Str("command", cmd.Name()).Logger()

		var err error
		deps, err = app.New(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if deps != nil {
			deps.Close()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("triage version %s\n", Version)
	},
}

// printResult writes v as JSON when --json is set, otherwise the summary line
func printResult(cmd *cobra.Command, v any, format string, args ...any) error {
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), format+"\n", args...)
	return err
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
