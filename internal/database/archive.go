package database

import (
	"context"
	"database/sql"
	"time"

	"triage/internal/models"

	"github.com/jmoiron/sqlx"
)

// ArchiveReader reads messages from the legacy MySQL mail archive
type ArchiveReader struct {
	db *sqlx.DB
}

// NewArchiveReader wraps an archive connection opened with NewArchive
func NewArchiveReader(db *sqlx.DB) *ArchiveReader {
	return &ArchiveReader{db: db}
}

type archiveRow struct {
	MessageID   string         `db:"message_id"`
	Subject     string         `db:"subject"`
	FromAddress string         `db:"from_address"`
	FromName    sql.NullString `db:"from_name"`
	Body        string         `db:"body"`
	ReceivedAt  time.Time      `db:"received_at"`
	InReplyTo   sql.NullString `db:"in_reply_to"`
}

// CountSince returns how many archived messages were received after since
func (r *ArchiveReader) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := ExecuteReadOnlyQuerySingle(ctx, r.db, &count, r.db.Rebind(`SELECT COUNT(*) FROM mail_archive WHERE received_at > ?`), since)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// FetchSince returns up to limit archived messages received after since, oldest first
func (r *ArchiveReader) FetchSince(ctx context.Context, since time.Time, limit int) ([]models.InboundMessage, error) {
	var rows []archiveRow
	err := ExecuteReadOnlyQuery(ctx, r.db, &rows, r.db.Rebind(`
		SELECT message_id, subject, from_address, from_name, body, received_at, in_reply_to
		FROM mail_archive
		WHERE received_at > ?
		ORDER BY received_at ASC
		LIMIT ?`), since, limit)
	if err != nil {
		return nil, err
	}

	out := make([]models.InboundMessage, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.InboundMessage{
			MessageID:   row.MessageID,
			Subject:     row.Subject,
			FromAddress: row.FromAddress,
			FromName:    row.FromName.String,
			Body:        row.Body,
			ReceivedAt:  row.ReceivedAt,
			InReplyTo:   row.InReplyTo.String,
		})
	}
	return out, nil
}
