package worker

import (
	"context"

	"triage/internal/apperr"
	"triage/internal/jobs"
	"triage/internal/models"
	"triage/internal/queue"

	"github.com/rs/zerolog"
)

// AnalysisRunner analyses one email
type AnalysisRunner interface {
	Run(ctx context.Context, emailID int64, indexID string) (*models.Generation, error)
}

// ReplyRunner drafts a reply for one thread
type ReplyRunner interface {
	Run(ctx context.Context, threadID int64, indexID string) (*models.Generation, error)
}

// FanoutRunner creates tasks for one generation
type FanoutRunner interface {
	Run(ctx context.Context, generationID int64, opts jobs.FanoutOptions) (*jobs.FanoutResult, error)
}

// Router dispatches a message to the job of its queue
type Router struct {
	analysis AnalysisRunner
	reply    ReplyRunner
	fanout   FanoutRunner
	logger   zerolog.Logger
}

// NewRouter creates a router
func NewRouter(analysis AnalysisRunner, reply ReplyRunner, fanout FanoutRunner, logger zerolog.Logger) *Router {
	return &Router{
		analysis: analysis,
		reply:    reply,
		fanout:   fanout,
		logger:   logger.With().Str("component", "router").Logger(),
	}
}

// Handle implements Handler. Unknown queues and malformed payloads are not retried.
func (r *Router) Handle(ctx context.Context, msg *queue.Message) error {
	switch msg.Queue {
	case queue.Analysis:
		var p queue.AnalysisPayload
		if err := msg.Decode(&p); err != nil {
			return malformed(err)
		}
		_, err := r.analysis.Run(ctx, p.EmailID, p.IndexID)
		return err

	case queue.Reply:
		var p queue.ReplyPayload
		if err := msg.Decode(&p); err != nil {
			return malformed(err)
		}
		_, err := r.reply.Run(ctx, p.ThreadID, p.IndexID)
		return err

	case queue.Fanout:
		var p queue.FanoutPayload
		if err := msg.Decode(&p); err != nil {
			return malformed(err)
		}
		res, err := r.fanout.Run(ctx, p.GenerationID, jobs.FanoutOptions{Force: p.Force})
		if err != nil {
			return err
		}
		if res.Skipped {
			r.logger.Debug().Int64("generation_id", p.GenerationID).Str("reason", res.SkipReason).Msg("Fan-out skipped")
		}
		return nil
	}
	return apperr.InvalidState("unknown queue %q", msg.Queue)
}

func malformed(err error) error {
	return apperr.InvalidState("malformed payload: %v", err)
}
