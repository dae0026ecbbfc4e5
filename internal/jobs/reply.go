package jobs

import (
	"context"
	"fmt"
	"time"

	"triage/internal/analysis"
	"triage/internal/apperr"
	"triage/internal/config"
	"triage/internal/cost"
	"triage/internal/llm"
	"triage/internal/models"
	"triage/internal/prompt"
	"triage/internal/search"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// ReplyJob drafts a reply for a thread from its emails and their analyses
type ReplyJob struct {
	store    Store
	gateway  llm.Gateway
	searcher search.Searcher
	tracker  Tracker
	pipeline config.Pipeline
	now      func() time.Time
	logger   zerolog.Logger
}

// NewReplyJob creates the job. searcher and tracker may be nil.
func NewReplyJob(store Store, gateway llm.Gateway, searcher search.Searcher, tracker Tracker, pipeline config.Pipeline, logger zerolog.Logger) *ReplyJob {
	return &ReplyJob{
		store:    store,
		gateway:  gateway,
		searcher: searcher,
		tracker:  tracker,
		pipeline: pipeline,
		now:      time.Now,
		logger:   logger.With().Str("job", "reply").Logger(),
	}
}

// Run drafts a reply for threadID. A thread without emails is an
// apperr.InvalidState and is not retried.
func (j *ReplyJob) Run(ctx context.Context, threadID int64, indexID string) (*models.Generation, error) {
	start := j.now()
	log := j.logger.With().Int64("thread_id", threadID).Logger()

	thread, err := j.store.GetThreadWithEmails(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if len(thread.Emails) == 0 {
		return nil, apperr.InvalidState("thread %d has no emails", threadID)
	}

	emailIDs := make([]int64, len(thread.Emails))
	for i, e := range thread.Emails {
		emailIDs[i] = e.ID
	}
	gens, err := j.store.LatestAnalyses(ctx, emailIDs)
	if err != nil {
		return nil, err
	}

	analyses := make(map[int64]analysis.Response, len(gens))
	usedIDs := []int64{}
	for _, e := range thread.Emails {
		g, ok := gens[e.ID]
		if !ok {
			continue
		}
		resp, _, err := analysis.Decode(g.Response)
		if err != nil {
			log.Warn().Err(err).Int64("generation_id", g.ID).Msg("Stored analysis unreadable, skipping")
			continue
		}
		analyses[e.ID] = resp
		usedIDs = append(usedIDs, g.ID)
	}

	meta := models.JSONMap{}
	searchBlock := ""
	if indexID != "" {
		latest := thread.Emails[len(thread.Emails)-1]
		summary := ""
		if a, ok := analyses[latest.ID]; ok {
			summary = a.Summary
		}
		query := search.BuildQuery(summary, latest.Subject)
		searchBlock, meta["search"] = lookup(ctx, j.searcher, j.tracker, j.pipeline.SearchTopK, indexID, query, log)
	}

	digest, stats := prompt.ThreadDigest(thread.Emails, analyses)
	if digest == "" {
		digest = prompt.NoAnalysisPlaceholder
	}
	log.Debug().Int("analysed", stats.Analysed).Int("without_analysis", stats.Skipped).Msg("Thread digest built")

	rendered := prompt.Render(j.pipeline.ReplyTemplate, map[string]string{
		prompt.ThreadContent:   prompt.ThreadContentBlock(thread),
		prompt.AnalysisContext: digest,
		prompt.SearchContext:   prompt.SearchBlock(searchBlock),
		prompt.ResponseFormat:  analysis.ReplyFormatDescription,
	})

	completion, err := j.gateway.Complete(ctx, rendered, modelConfig(j.pipeline.Model))
	if err != nil {
		log.Error().Err(err).Msg("Completion failed")
		return nil, err
	}

	reply, outcome := analysis.ParseReply(completion.Text())
	if outcome.Fallback {
		log.Warn().Str("error", outcome.Error).Msg("Completion has no usable reply, using fallback")
		meta["parse_error"] = outcome.Error
		meta["fallback_response"] = true
	}

	breakdown := cost.Calculate(usageOf(completion), ratesOf(j.pipeline.Model))
	for k, v := range completionMeta(j.pipeline.Model, completion, breakdown) {
		meta[k] = v
	}
	meta["analysis_usage"] = map[string]any{
		"count":                   len(usedIDs),
		"generation_ids":          usedIDs,
		"emails_total":            len(thread.Emails),
		"emails_without_analysis": len(thread.Emails) - len(usedIDs),
	}

	body, err := json.Marshal(reply)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reply: %w", err)
	}

	gen := &models.Generation{
		ThreadID:       &thread.ID,
		Type:           models.GenerationReply,
		Prompt:         rendered,
		Response:       models.RawJSON(body),
		ProcessingTime: j.now().Sub(start).Seconds(),
		Status:         models.GenerationSuccess,
		Metadata:       meta,
	}
	if err := j.store.CreateGeneration(ctx, gen); err != nil {
		return nil, err
	}

	if err := track(j.tracker, EventLLMCall, 1, map[string]interface{}{
		"kind":   string(models.GenerationReply),
		"model":  j.pipeline.Model.Name,
		"tokens": completion.Usage.TotalTokens,
		"cost":   breakdown.Amount,
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to track llm call")
	}

	log.Info().
		Int64("generation_id", gen.ID).
		Int("analyses_used", len(usedIDs)).
		Bool("fallback", outcome.Fallback).
		Msg("Reply drafted")
	return gen, nil
}
