package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"triage/internal/k8s"
	"triage/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	batchv1 "k8s.io/api/batch/v1"
)

// JobLauncher starts and inspects batch fan-out Jobs
type JobLauncher interface {
	CreateFanoutJob(ctx context.Context, spec k8s.FanoutJob) (string, error)
	GetJobStatus(ctx context.Context, jobName string) (*batchv1.Job, error)
	DeleteJob(ctx context.Context, jobName string) error
}

// JobStatus represents the status of a Kubernetes job
type JobStatus struct {
	JobName        string  `json:"job_name"`
	Status         string  `json:"status"`
	Active         int32   `json:"active"`
	Succeeded      int32   `json:"succeeded"`
	Failed         int32   `json:"failed"`
	StartTime      *string `json:"start_time,omitempty"`
	CompletionTime *string `json:"completion_time,omitempty"`
}

// TriggerFanoutJobHandler runs batch fan-out as a Kubernetes Job
// @Summary Trigger batch fan-out job
// @Description Launches `triage create-tasks --sync` as a Kubernetes Job for large backlogs
// @Tags admin
// @Accept json
// @Produce json
// @Param request body models.FanoutRequest false "Batch options"
// @Success 202 {object} models.JobResponse
// @Failure 400 {object} models.JobResponse
// @Failure 503 {object} models.JobResponse
// @Router /api/admin/fanout-job [post]
func TriggerFanoutJobHandler(launcher JobLauncher, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if launcher == nil {
			return jobError(c, http.StatusServiceUnavailable, "Kubernetes client not configured")
		}

		var req models.FanoutRequest
		if err := c.Bind(&req); err != nil {
			return jobError(c, http.StatusBadRequest, "Invalid request body")
		}
		if req.Limit < 0 {
			return jobError(c, http.StatusBadRequest, "limit must not be negative")
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
		defer cancel()

		name, err := launcher.CreateFanoutJob(ctx, k8s.FanoutJob{Limit: req.Limit, Force: req.Force})
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create fan-out job")
			return jobError(c, http.StatusInternalServerError, fmt.Sprintf("Failed to create Kubernetes job: %v", err))
		}

		logger.Info().Str("job", name).Int("limit", req.Limit).Bool("force", req.Force).Msg("Fan-out job created")
		return c.JSON(http.StatusAccepted, models.JobResponse{Success: true, KubernetesJob: name})
	}
}

// FanoutJobStatusHandler reports the state of a fan-out Job
// @Summary Get fan-out job status
// @Tags admin
// @Produce json
// @Param jobName path string true "Job name"
// @Success 200 {object} JobStatus
// @Failure 404 {object} map[string]string
// @Router /api/admin/fanout-job/{jobName} [get]
func FanoutJobStatusHandler(launcher JobLauncher) echo.HandlerFunc {
	return func(c echo.Context) error {
		if launcher == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Kubernetes client not configured"})
		}
		jobName := c.Param("jobName")

		ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
		defer cancel()

		job, err := launcher.GetJobStatus(ctx, jobName)
		if err != nil {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": fmt.Sprintf("Job not found: %v", err),
			})
		}
		return c.JSON(http.StatusOK, jobStatus(job))
	}
}

// DeleteFanoutJobHandler removes a fan-out Job and its pods. Tasks already
// created by the Job are kept.
// @Summary Delete fan-out job
// @Tags admin
// @Produce json
// @Param jobName path string true "Job name"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/admin/fanout-job/{jobName} [delete]
func DeleteFanoutJobHandler(launcher JobLauncher, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if launcher == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Kubernetes client not configured"})
		}
		jobName := c.Param("jobName")

		ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
		defer cancel()

		if err := launcher.DeleteJob(ctx, jobName); err != nil {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": fmt.Sprintf("Job not found: %v", err),
			})
		}
		logger.Info().Str("job", jobName).Msg("Fan-out job deleted")
		return c.JSON(http.StatusOK, map[string]string{"job_name": jobName, "status": "deleted"})
	}
}

func jobStatus(job *batchv1.Job) JobStatus {
	status := "pending"
	switch {
	case job.Status.Active > 0:
		status = "running"
	case job.Status.Succeeded > 0:
		status = "completed"
	case job.Status.Failed > 0:
		status = "failed"
	}

	out := JobStatus{
		JobName:   job.Name,
		Status:    status,
		Active:    job.Status.Active,
		Succeeded: job.Status.Succeeded,
		Failed:    job.Status.Failed,
	}
	if job.Status.StartTime != nil {
		st := job.Status.StartTime.Format(time.RFC3339)
		out.StartTime = &st
	}
	if job.Status.CompletionTime != nil {
		ct := job.Status.CompletionTime.Format(time.RFC3339)
		out.CompletionTime = &ct
	}
	return out
}
