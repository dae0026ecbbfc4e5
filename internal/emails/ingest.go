package emails

import (
	"context"
	"fmt"
	"strings"
	"time"

	"triage/internal/apperr"
	"triage/internal/models"
	"triage/internal/utils"

	"github.com/rs/zerolog"
)

// Store is the persistence the ingest path needs
type Store interface {
	EmailExistsByMessageID(ctx context.Context, messageID string) (bool, error)
	// StoreEmail files e into the active thread titled title and inserts it
	// atomically. A known message id yields apperr.Duplicate with nothing written.
	StoreEmail(ctx context.Context, title string, e *models.Email) (*models.Thread, error)
}

// Enqueuer schedules analysis of a stored email
type Enqueuer interface {
	EnqueueAnalysis(ctx context.Context, emailID int64, indexID string) (string, error)
}

// Tracker records ingest counts
type Tracker interface {
	TrackEmailIngest(accepted, duplicates int, source string) error
}

// Options tune one ingest call
type Options struct {
	IndexID string // knowledge index for the analysis job
	Source  string // api, imap, eml, mbox, archive
}

// Result is the outcome of ingesting one message
type Result struct {
	EmailID   int64
	ThreadID  int64
	JobID     string
	Duplicate bool
}

// Stats summarises a batch ingest
type Stats struct {
	Accepted   int
	Duplicates int
	Failed     int
}

// Ingestor stores inbound messages and schedules their analysis
type Ingestor struct {
	store    Store
	enqueuer Enqueuer
	tracker  Tracker
	now      func() time.Time
	logger   zerolog.Logger
}

// NewIngestor creates an ingestor. enqueuer and tracker may be nil.
func NewIngestor(store Store, enqueuer Enqueuer, tracker Tracker, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		store:    store,
		enqueuer: enqueuer,
		tracker:  tracker,
		now:      time.Now,
		logger:   logger.With().Str("component", "ingest").Logger(),
	}
}

// Ingest stores msg in the thread of its normalised subject and enqueues
// analysis. A message whose id was seen before is reported as a duplicate and
// nothing is written.
func (i *Ingestor) Ingest(ctx context.Context, msg models.InboundMessage, opts Options) (*Result, error) {
	res, err := i.ingest(ctx, msg, opts)
	if res != nil {
		var stats Stats
		if res.Duplicate {
			stats.Duplicates = 1
		} else {
			stats.Accepted = 1
		}
		i.record(stats, opts.Source)
	}
	return res, err
}

func (i *Ingestor) ingest(ctx context.Context, msg models.InboundMessage, opts Options) (*Result, error) {
	msg.MessageID = strings.Trim(strings.TrimSpace(msg.MessageID), "<>")
	if strings.TrimSpace(msg.FromAddress) == "" {
		return nil, apperr.InvalidState("message %q has no sender", msg.MessageID)
	}

	if msg.MessageID != "" {
		exists, err := i.store.EmailExistsByMessageID(ctx, msg.MessageID)
		if err != nil {
			return nil, err
		}
		if exists {
			return &Result{Duplicate: true}, nil
		}
	}

	email := &models.Email{
		Subject:     msg.Subject,
		Content:     msg.Body,
		FromAddress: msg.FromAddress,
		ReceivedAt:  msg.ReceivedAt,
	}
	if email.ReceivedAt.IsZero() {
		email.ReceivedAt = i.now().UTC()
	}
	if msg.FromName != "" {
		email.FromName = &msg.FromName
	}
	if msg.MessageID != "" {
		email.MessageID = &msg.MessageID
	}

	title := utils.Truncate(utils.NormalizeSubject(msg.Subject), models.MaxTitleLength)
	thread, err := i.store.StoreEmail(ctx, title, email)
	if err != nil {
		// lost a race with a concurrent ingest of the same message
		if apperr.Is(err, apperr.CodeDuplicate) {
			return &Result{Duplicate: true}, nil
		}
		return nil, err
	}

	result := &Result{EmailID: email.ID, ThreadID: thread.ID}
	if i.enqueuer != nil {
		jobID, err := i.enqueuer.EnqueueAnalysis(ctx, email.ID, opts.IndexID)
		if err != nil {
			return result, fmt.Errorf("email %d stored but analysis not enqueued: %w", email.ID, err)
		}
		result.JobID = jobID
	}

	i.logger.Info().
		Int64("email_id", email.ID).
		Int64("thread_id", thread.ID).
		Str("source", opts.Source).
		Msg("Email ingested")
	return result, nil
}

// IngestBatch ingests msgs one by one. Per-message failures are logged and
// counted; only context cancellation stops the batch.
func (i *Ingestor) IngestBatch(ctx context.Context, msgs []*models.InboundMessage, opts Options) (Stats, error) {
	var stats Stats
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			i.record(stats, opts.Source)
			return stats, err
		}
		res, err := i.ingest(ctx, *msg, opts)
		switch {
		case err != nil && res == nil:
			stats.Failed++
			i.logger.Error().Err(err).Str("message_id", msg.MessageID).Msg("Failed to ingest email")
		case err != nil:
			stats.Accepted++
			i.logger.Error().Err(err).Int64("email_id", res.EmailID).Msg("Failed to enqueue analysis")
		case res.Duplicate:
			stats.Duplicates++
		default:
			stats.Accepted++
		}
	}
	i.record(stats, opts.Source)
	return stats, nil
}

func (i *Ingestor) record(stats Stats, source string) {
	if i.tracker == nil || stats.Accepted+stats.Duplicates == 0 {
		return
	}
	if err := i.tracker.TrackEmailIngest(stats.Accepted, stats.Duplicates, source); err != nil {
		i.logger.Warn().Err(err).Msg("Failed to track ingest")
	}
}
