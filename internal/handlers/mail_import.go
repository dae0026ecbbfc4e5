package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"triage/internal/emails"
	"triage/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const importBatchSize = 100

// BatchIngester stores parsed messages and schedules their analysis
type BatchIngester interface {
	IngestBatch(ctx context.Context, msgs []*models.InboundMessage, opts emails.Options) (emails.Stats, error)
}

// ImportMailResponse represents the response from a mail directory import
type ImportMailResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Files      int    `json:"files"`
	Accepted   int    `json:"accepted"`
	Duplicates int    `json:"duplicates"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
}

// ImportMailDirHandler imports the EML and MBOX files of a mounted directory
// @Summary Import mail files
// @Description Ingests every .eml and .mbox file under the import directory and enqueues analysis of the new emails
// @Tags admin
// @Produce json
// @Param index_id query string false "Knowledge index used for the analyses"
// @Success 200 {object} ImportMailResponse
// @Failure 500 {object} ImportMailResponse
// @Router /api/admin/import-mail [post]
func ImportMailDirHandler(ing BatchIngester, dir string, logger zerolog.Logger) echo.HandlerFunc {
	logger = logger.With().Str("component", "mail_import").Str("dir", dir).Logger()
	return func(c echo.Context) error {
		if _, err := os.Stat(dir); err != nil {
			return c.JSON(http.StatusInternalServerError, ImportMailResponse{
				Message: "Mail import directory not found",
				Error:   fmt.Sprintf("Directory %s does not exist", dir),
			})
		}

		ctx := c.Request().Context()
		indexID := c.QueryParam("index_id")
		resp := ImportMailResponse{}

		add := func(source string, msgs []*models.InboundMessage) error {
			stats, err := ing.IngestBatch(ctx, msgs, emails.Options{IndexID: indexID, Source: source})
			resp.Accepted += stats.Accepted
			resp.Duplicates += stats.Duplicates
			resp.Failed += stats.Failed
			return err
		}

		emlFiles, err := findFiles(dir, ".eml")
		if err != nil {
			logger.Error().Err(err).Msg("Error finding EML files")
		}
		var batch []*models.InboundMessage
		for _, path := range emlFiles {
			msg, err := emails.ParseEMLFile(path)
			if err != nil {
				logger.Warn().Err(err).Str("file", path).Msg("Skipping unparseable EML file")
				resp.Failed++
				continue
			}
			resp.Files++
			batch = append(batch, msg)
			if len(batch) == importBatchSize {
				if err := add("eml", batch); err != nil {
					return importFailed(c, resp, err)
				}
				batch = nil
			}
		}
		if len(batch) > 0 {
			if err := add("eml", batch); err != nil {
				return importFailed(c, resp, err)
			}
		}

		mboxFiles, err := findFiles(dir, ".mbox")
		if err != nil {
			logger.Error().Err(err).Msg("Error finding MBOX files")
		}
		for _, path := range mboxFiles {
			err := emails.ParseMBOXFile(path, importBatchSize, logger, func(msgs []*models.InboundMessage, _ emails.MBOXProgress) error {
				return add("mbox", msgs)
			})
			if err != nil {
				if ctx.Err() != nil {
					return importFailed(c, resp, err)
				}
				logger.Warn().Err(err).Str("file", path).Msg("MBOX import stopped early")
				continue
			}
			resp.Files++
		}

		logger.Info().
			Int("files", resp.Files).
			Int("accepted", resp.Accepted).
			Int("duplicates", resp.Duplicates).
			Int("failed", resp.Failed).
			Msg("Mail import complete")

		resp.Success = true
		resp.Message = "Mail import completed"
		return c.JSON(http.StatusOK, resp)
	}
}

func importFailed(c echo.Context, resp ImportMailResponse, err error) error {
	resp.Message = "Mail import interrupted"
	resp.Error = err.Error()
	return c.JSON(http.StatusInternalServerError, resp)
}

// findFiles recursively finds all files with the given extension
func findFiles(root, ext string) ([]string, error) {
	var files []string

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Skip lost+found directory (common in PVCs)
		if info.IsDir() && info.Name() == "lost+found" {
			return filepath.SkipDir
		}

		if !info.IsDir() && strings.HasSuffix(strings.ToLower(info.Name()), ext) {
			files = append(files, path)
		}

		return nil
	})

	return files, err
}
