package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"triage/internal/apperr"
	"triage/internal/emails"
	"triage/internal/jobs"
	"triage/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	defaultFanoutLimit = 50
	maxFanoutLimit     = 1000
)

// Ingester stores a submitted email and schedules its analysis
type Ingester interface {
	Ingest(ctx context.Context, msg models.InboundMessage, opts emails.Options) (*emails.Result, error)
}

// GenerationRunner runs an analysis or reply job inline
type GenerationRunner interface {
	Run(ctx context.Context, id int64, indexID string) (*models.Generation, error)
}

// EnqueueFunc schedules a job for id on a queue
type EnqueueFunc func(ctx context.Context, id int64, indexID string) (string, error)

// BatchFanout enumerates unprocessed analyses
type BatchFanout interface {
	Batch(ctx context.Context, limit int, force bool, dispatcher jobs.Dispatcher) (int, error)
}

// GenerationReader reads generations and the tasks created from them
type GenerationReader interface {
	GetGeneration(ctx context.Context, id int64) (*models.Generation, error)
	ListTasksForGeneration(ctx context.Context, generationID int64) ([]models.Task, error)
}

// statusFor maps pipeline errors to HTTP statuses
func statusFor(err error) int {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.HTTPStatus()
	}
	return http.StatusInternalServerError
}

func idParam(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, c.Param(name))
	}
	return id, nil
}

func jobError(c echo.Context, status int, msg string) error {
	return c.JSON(status, models.JobResponse{Success: false, Error: msg})
}

// SubmitEmailHandler accepts a raw inbound email
// @Summary Submit an email
// @Description Stores an inbound email in the thread of its normalised subject and enqueues its analysis. Emails with a known message id are reported as duplicates.
// @Tags emails
// @Accept json
// @Produce json
// @Param request body models.SubmitEmailRequest true "Inbound email"
// @Success 202 {object} models.SubmitEmailResponse
// @Success 200 {object} models.SubmitEmailResponse "Duplicate"
// @Failure 400 {object} models.SubmitEmailResponse
// @Failure 500 {object} models.SubmitEmailResponse
// @Router /api/emails [post]
func SubmitEmailHandler(ing Ingester, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.SubmitEmailRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.SubmitEmailResponse{Error: "Invalid request body"})
		}
		if strings.TrimSpace(req.FromAddress) == "" || strings.TrimSpace(req.Body) == "" {
			return c.JSON(http.StatusBadRequest, models.SubmitEmailResponse{Error: "from_address and body are required"})
		}

		res, err := ing.Ingest(c.Request().Context(), models.InboundMessage{
			MessageID:   req.MessageID,
			Subject:     req.Subject,
			FromAddress: req.FromAddress,
			FromName:    req.FromName,
			Body:        req.Body,
			ReceivedAt:  req.ReceivedAt,
		}, emails.Options{IndexID: req.IndexID, Source: "api"})
		if err != nil && res == nil {
			logger.Error().Err(err).Str("message_id", req.MessageID).Msg("Failed to ingest email")
			return c.JSON(statusFor(err), models.SubmitEmailResponse{Error: err.Error()})
		}

		resp := models.SubmitEmailResponse{
			Success:   true,
			EmailID:   res.EmailID,
			ThreadID:  res.ThreadID,
			JobID:     res.JobID,
			Duplicate: res.Duplicate,
		}
		if err != nil {
			// stored, analysis can be triggered again through /analyze
			logger.Error().Err(err).Int64("email_id", res.EmailID).Msg("Failed to enqueue analysis")
			resp.Error = err.Error()
		}
		if res.Duplicate {
			return c.JSON(http.StatusOK, resp)
		}
		return c.JSON(http.StatusAccepted, resp)
	}
}

// AnalyzeEmailHandler (re)runs analysis of one email
// @Summary Analyze an email
// @Description Enqueues an analysis job for the email, or runs it inline when sync is set
// @Tags jobs
// @Accept json
// @Produce json
// @Param id path int true "Email ID"
// @Param request body models.JobRequest false "Job options"
// @Success 200 {object} models.JobResponse
// @Success 202 {object} models.JobResponse
// @Failure 400 {object} models.JobResponse
// @Failure 404 {object} models.JobResponse
// @Failure 502 {object} models.JobResponse
// @Router /api/emails/{id}/analyze [post]
func AnalyzeEmailHandler(runner GenerationRunner, enqueue EnqueueFunc, logger zerolog.Logger) echo.HandlerFunc {
	return generationJobHandler("analysis", runner, enqueue, logger)
}

// GenerateReplyHandler drafts a reply for a thread
// @Summary Draft a thread reply
// @Description Enqueues a reply job for the thread, or runs it inline when sync is set
// @Tags jobs
// @Accept json
// @Produce json
// @Param id path int true "Thread ID"
// @Param request body models.JobRequest false "Job options"
// @Success 200 {object} models.JobResponse
// @Success 202 {object} models.JobResponse
// @Failure 400 {object} models.JobResponse
// @Failure 404 {object} models.JobResponse
// @Failure 422 {object} models.JobResponse
// @Router /api/threads/{id}/reply [post]
func GenerateReplyHandler(runner GenerationRunner, enqueue EnqueueFunc, logger zerolog.Logger) echo.HandlerFunc {
	return generationJobHandler("reply", runner, enqueue, logger)
}

func generationJobHandler(kind string, runner GenerationRunner, enqueue EnqueueFunc, logger zerolog.Logger) echo.HandlerFunc {
	logger = logger.With().Str("job", kind).Logger()
	return func(c echo.Context) error {
		id, err := idParam(c, "id")
		if err != nil {
			return jobError(c, http.StatusBadRequest, err.Error())
		}
		var req models.JobRequest
		if err := c.Bind(&req); err != nil {
			return jobError(c, http.StatusBadRequest, "Invalid request body")
		}

		ctx := c.Request().Context()
		if req.Sync || enqueue == nil {
			gen, err := runner.Run(ctx, id, req.IndexID)
			if err != nil {
				logger.Error().Err(err).Int64("id", id).Msg("Inline job failed")
				return jobError(c, statusFor(err), err.Error())
			}
			return c.JSON(http.StatusOK, models.JobResponse{Success: true, Generation: gen})
		}

		jobID, err := enqueue(ctx, id, req.IndexID)
		if err != nil {
			logger.Error().Err(err).Int64("id", id).Msg("Failed to enqueue job")
			return jobError(c, http.StatusServiceUnavailable, err.Error())
		}
		return c.JSON(http.StatusAccepted, models.JobResponse{Success: true, JobID: jobID})
	}
}

// FanoutHandler dispatches fan-out for unprocessed analyses
// @Summary Create tasks from pending analyses
// @Description Enqueues a fan-out job for up to limit analyses without tasks. force re-processes analyses that already produced tasks.
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body models.FanoutRequest false "Batch options"
// @Success 202 {object} models.JobResponse
// @Failure 400 {object} models.JobResponse
// @Failure 500 {object} models.JobResponse
// @Router /api/fanout [post]
func FanoutHandler(engine BatchFanout, dispatcher jobs.Dispatcher, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := models.FanoutRequest{Limit: defaultFanoutLimit}
		if err := c.Bind(&req); err != nil {
			return jobError(c, http.StatusBadRequest, "Invalid request body")
		}
		if req.Limit <= 0 || req.Limit > maxFanoutLimit {
			return jobError(c, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxFanoutLimit))
		}

		n, err := engine.Batch(c.Request().Context(), req.Limit, req.Force, dispatcher)
		if err != nil {
			logger.Error().Err(err).Int("dispatched", n).Msg("Batch fan-out failed")
			return c.JSON(statusFor(err), models.JobResponse{Success: false, Dispatched: n, Error: err.Error()})
		}
		return c.JSON(http.StatusAccepted, models.JobResponse{Success: true, Dispatched: n})
	}
}

// GetGenerationHandler returns one generation
// @Summary Get a generation
// @Tags generations
// @Produce json
// @Param id path int true "Generation ID"
// @Success 200 {object} models.JobResponse
// @Failure 404 {object} models.JobResponse
// @Router /api/generations/{id} [get]
func GetGenerationHandler(reader GenerationReader) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := idParam(c, "id")
		if err != nil {
			return jobError(c, http.StatusBadRequest, err.Error())
		}
		gen, err := reader.GetGeneration(c.Request().Context(), id)
		if err != nil {
			return jobError(c, statusFor(err), err.Error())
		}
		return c.JSON(http.StatusOK, models.JobResponse{Success: true, Generation: gen})
	}
}

// GetGenerationTasksHandler lists tasks created from a generation
// @Summary List tasks of a generation
// @Tags generations
// @Produce json
// @Param id path int true "Generation ID"
// @Success 200 {array} models.Task
// @Failure 400 {object} models.JobResponse
// @Router /api/generations/{id}/tasks [get]
func GetGenerationTasksHandler(reader GenerationReader) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := idParam(c, "id")
		if err != nil {
			return jobError(c, http.StatusBadRequest, err.Error())
		}
		tasks, err := reader.ListTasksForGeneration(c.Request().Context(), id)
		if err != nil {
			return jobError(c, statusFor(err), err.Error())
		}
		if tasks == nil {
			tasks = []models.Task{}
		}
		return c.JSON(http.StatusOK, tasks)
	}
}
