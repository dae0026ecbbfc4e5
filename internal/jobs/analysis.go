package jobs

import (
	"context"
	"fmt"
	"time"

	"triage/internal/analysis"
	"triage/internal/config"
	"triage/internal/cost"
	"triage/internal/llm"
	"triage/internal/models"
	"triage/internal/prompt"
	"triage/internal/search"
	"triage/internal/utils"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// AnalysisJob classifies one email with the LLM and records an analysis generation
type AnalysisJob struct {
	store      Store
	gateway    llm.Gateway
	searcher   search.Searcher
	dispatcher Dispatcher
	tracker    Tracker
	pipeline   config.Pipeline
	now        func() time.Time
	logger     zerolog.Logger
}

// AnalysisDeps groups the optional collaborators of AnalysisJob
type AnalysisDeps struct {
	Searcher   search.Searcher // nil disables knowledge lookups
	Dispatcher Dispatcher      // nil disables automatic fan-out
	Tracker    Tracker
}

// NewAnalysisJob creates the job
func NewAnalysisJob(store Store, gateway llm.Gateway, pipeline config.Pipeline, deps AnalysisDeps, logger zerolog.Logger) *AnalysisJob {
	return &AnalysisJob{
		store:      store,
		gateway:    gateway,
		searcher:   deps.Searcher,
		dispatcher: deps.Dispatcher,
		tracker:    deps.Tracker,
		pipeline:   pipeline,
		now:        time.Now,
		logger:     logger.With().Str("job", "analysis").Logger(),
	}
}

// Run analyses emailID. indexID, when set, enriches the prompt with knowledge
// base snippets. Upstream failures are returned for the retry policy and leave
// no generation behind; an unparseable completion is not a failure.
func (j *AnalysisJob) Run(ctx context.Context, emailID int64, indexID string) (*models.Generation, error) {
	start := j.now()
	log := j.logger.With().Int64("email_id", emailID).Logger()

	email, err := j.store.GetEmail(ctx, emailID)
	if err != nil {
		return nil, err
	}

	meta := models.JSONMap{"language": utils.DetectLanguage(email.Content).Code()}
	searchBlock := ""
	if indexID != "" {
		query := search.BuildQuery(email.Subject)
		searchBlock, meta["search"] = lookup(ctx, j.searcher, j.tracker, j.pipeline.SearchTopK, indexID, query, log)
	}

	rendered := prompt.Render(j.pipeline.AnalysisTemplate, map[string]string{
		prompt.EmailContent:   email.Content,
		prompt.SearchContext:  prompt.SearchBlock(searchBlock),
		prompt.ResponseFormat: analysis.AnalysisFormatDescription(),
	})

	completion, err := j.gateway.Complete(ctx, rendered, modelConfig(j.pipeline.Model))
	if err != nil {
		log.Error().Err(err).Msg("Completion failed")
		return nil, err
	}

	resp, outcome := analysis.ParseAnalysis(completion.Text())
	if outcome.Fallback {
		log.Warn().Str("error", outcome.Error).Msg("Completion is not valid JSON, using fallback analysis")
		meta["parse_error"] = outcome.Error
		meta["fallback_response"] = true
	}
	if len(outcome.Issues) > 0 {
		notes := make([]string, len(outcome.Issues))
		for i, is := range outcome.Issues {
			notes[i] = is.String()
			log.Warn().Str("field", is.Field).Str("issue", is.Message).Msg("Analysis data quality issue")
		}
		meta["data_quality"] = notes
	}
	if resp.IsSpam() {
		resp = analysis.Spam()
	}

	breakdown := cost.Calculate(usageOf(completion), ratesOf(j.pipeline.Model))
	for k, v := range completionMeta(j.pipeline.Model, completion, breakdown) {
		meta[k] = v
	}

	body, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis: %w", err)
	}

	gen := &models.Generation{
		EmailID:        &email.ID,
		Type:           models.GenerationAnalysis,
		Prompt:         rendered,
		Response:       models.RawJSON(body),
		ProcessingTime: j.now().Sub(start).Seconds(),
		Status:         models.GenerationSuccess,
		Metadata:       meta,
		IsSpam:         resp.IsSpam(),
	}
	if err := j.store.CreateGeneration(ctx, gen); err != nil {
		return nil, err
	}

	if err := track(j.tracker, EventLLMCall, 1, map[string]interface{}{
		"kind":   string(models.GenerationAnalysis),
		"model":  j.pipeline.Model.Name,
		"tokens": completion.Usage.TotalTokens,
		"cost":   breakdown.Amount,
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to track llm call")
	}

	log.Info().
		Int64("generation_id", gen.ID).
		Bool("spam", gen.IsSpam).
		Bool("fallback", outcome.Fallback).
		Float64("cost", breakdown.Amount).
		Msg("Email analysed")

	if j.dispatcher != nil {
		if jobID, err := j.dispatcher.EnqueueFanout(ctx, gen.ID, false); err != nil {
			// the batch fan-out command picks up unstamped generations
			log.Warn().Err(err).Int64("generation_id", gen.ID).Msg("Failed to enqueue fan-out")
		} else {
			log.Debug().Str("job_id", jobID).Msg("Fan-out enqueued")
		}
	}

	return gen, nil
}

// lookup runs an optional knowledge search. Failures are logged and yield an
// empty block; they never fail the job.
func lookup(ctx context.Context, s search.Searcher, t Tracker, topK int, indexID, query string, log zerolog.Logger) (string, map[string]any) {
	if s == nil {
		return "", search.Meta(indexID, query, nil, fmt.Errorf("search backend not configured"))
	}
	if topK <= 0 {
		topK = search.MaxContextHits
	}

	res, err := s.Search(ctx, indexID, query, topK)
	if err != nil {
		log.Warn().Err(err).Str("index_id", indexID).Msg("Vector search failed, continuing without context")
	}
	if terr := track(t, EventVectorSearch, 1, map[string]interface{}{"index_id": indexID, "ok": err == nil}); terr != nil {
		log.Warn().Err(terr).Msg("Failed to track vector search")
	}
	return search.FormatContext(res), search.Meta(indexID, query, res, err)
}
