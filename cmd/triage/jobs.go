package main

import (
	"fmt"
	"strconv"

	"triage/internal/jobs"

	"github.com/spf13/cobra"
)

var (
	runSync     bool
	fanoutLimit int
	fanoutForce bool
)

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, s)
	}
	return id, nil
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze-email <email-id>",
	Short: "Analyse one email",
	Long:  "Enqueue an analysis job for the email, or run it in this process with --sync.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "email")
		if err != nil {
			return err
		}
		if !runSync {
			jobID, err := deps.Producer.EnqueueAnalysis(cmd.Context(), id, indexID)
			if err != nil {
				return err
			}
			return printResult(cmd, map[string]any{"job_id": jobID}, "Enqueued analysis of email %d as %s", id, jobID)
		}

		if err := deps.InitPipeline(); err != nil {
			return err
		}
		gen, err := deps.Analysis.Run(cmd.Context(), id, indexID)
		if err != nil {
			return err
		}
		return printResult(cmd, gen, "Analysis of email %d stored as generation %d (%s)", id, gen.ID, gen.Status)
	},
}

var replyCmd = &cobra.Command{
	Use:   "generate-reply <thread-id>",
	Short: "Draft a reply for a thread",
	Long:  "Enqueue a reply job for the thread, or run it in this process with --sync.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "thread")
		if err != nil {
			return err
		}
		if !runSync {
			jobID, err := deps.Producer.EnqueueReply(cmd.Context(), id, indexID)
			if err != nil {
				return err
			}
			return printResult(cmd, map[string]any{"job_id": jobID}, "Enqueued reply for thread %d as %s", id, jobID)
		}

		if err := deps.InitPipeline(); err != nil {
			return err
		}
		gen, err := deps.Reply.Run(cmd.Context(), id, indexID)
		if err != nil {
			return err
		}
		return printResult(cmd, gen, "Reply draft for thread %d stored as generation %d", id, gen.ID)
	},
}

var createTasksCmd = &cobra.Command{
	Use:   "create-tasks",
	Short: "Create tasks from analyses that have none yet",
	Long:  "Fan out up to --limit unprocessed analyses. Without --sync each one is enqueued for the workers; with --sync they run here, which is how the Kubernetes fan-out Job runs.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if fanoutLimit <= 0 {
			return fmt.Errorf("--limit must be positive")
		}
		deps.InitFanout()

		var dispatcher jobs.Dispatcher
		mode := "processed"
		if !runSync {
			dispatcher = deps.Producer
			mode = "enqueued"
		}

		n, err := deps.Fanout.Batch(cmd.Context(), fanoutLimit, fanoutForce, dispatcher)
		if err != nil {
			return err
		}
		return printResult(cmd, map[string]any{mode: n}, "%d analyses %s", n, mode)
	},
}

func init() {
	for _, c := range []*cobra.Command{analyzeCmd, replyCmd} {
		c.Flags().StringVar(&indexID, "index", "", "Knowledge index used to enrich the prompt")
		c.Flags().BoolVar(&runSync, "sync", false, "Run in this process instead of enqueueing")
		rootCmd.AddCommand(c)
	}

	createTasksCmd.Flags().IntVar(&fanoutLimit, "limit", 50, "Maximum analyses to process")
	createTasksCmd.Flags().BoolVar(&fanoutForce, "force", false, "Re-process analyses that already produced tasks")
	createTasksCmd.Flags().BoolVar(&runSync, "sync", false, "Run fan-out in this process instead of enqueueing")
	rootCmd.AddCommand(createTasksCmd)
}
