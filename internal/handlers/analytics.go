package handlers

import (
	"context"
	"fmt"
	"net/http"

	"triage/internal/analytics"
	"triage/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// SummaryProvider is the read side of the analytics service
type SummaryProvider interface {
	GetSummary(ctx context.Context, period string) (*models.AnalyticsSummary, error)
	GetDailyReport(ctx context.Context) (*models.AnalyticsSummary, error)
}

// AnalyticsHandler returns analytics summary for a given period
// @Summary Get analytics summary
// @Description Get pipeline activity for a time period (today, yesterday, last_7_days, last_30_days)
// @Tags analytics
// @Accept json
// @Produce json
// @Param period query string false "Time period (today, yesterday, last_7_days, last_30_days)" default(yesterday)
// @Success 200 {object} models.AnalyticsResponse
// @Failure 500 {object} models.AnalyticsResponse
// @Router /api/analytics [get]
func AnalyticsHandler(svc SummaryProvider, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		period := c.QueryParam("period")
		if period == "" {
			period = analytics.PeriodYesterday
		}

		summary, err := svc.GetSummary(c.Request().Context(), period)
		if err != nil {
			logger.Error().Err(err).Str("period", period).Msg("Failed to get analytics summary")
			return c.JSON(http.StatusInternalServerError, models.AnalyticsResponse{
				Success: false,
				Error:   fmt.Sprintf("Failed to get analytics summary: %v", err),
			})
		}

		return c.JSON(http.StatusOK, models.AnalyticsResponse{
			Success: true,
			Summary: summary,
		})
	}
}

// DailyReportHandler returns the analytics report for the previous day
// @Summary Get daily analytics report
// @Description Get pipeline activity for the previous day
// @Tags analytics
// @Accept json
// @Produce json
// @Success 200 {object} models.AnalyticsResponse
// @Failure 500 {object} models.AnalyticsResponse
// @Router /api/analytics/daily-report [get]
func DailyReportHandler(svc SummaryProvider, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		summary, err := svc.GetDailyReport(c.Request().Context())
		if err != nil {
			logger.Error().Err(err).Msg("Failed to generate daily report")
			return c.JSON(http.StatusInternalServerError, models.AnalyticsResponse{
				Success: false,
				Error:   fmt.Sprintf("Failed to generate daily report: %v", err),
			})
		}

		logger.Info().
			Int("emails", summary.EmailsIngested).
			Int("llm_calls", summary.LLMCalls).
			Int("tokens", summary.LLMTokensUsed).
			Int("tasks", summary.TasksCreated).
			Msg("Daily report generated")

		return c.JSON(http.StatusOK, models.AnalyticsResponse{
			Success: true,
			Summary: summary,
		})
	}
}
