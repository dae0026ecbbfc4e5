// Package mailsource polls an IMAP mailbox for unseen messages.
package mailsource

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"time"

	"triage/internal/emails"
	"triage/internal/models"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/rs/zerolog"
)

// Mailbox is the subset of *client.Client used here
type Mailbox interface {
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
	Logout() error
}

// Config locates the mailbox
type Config struct {
	Host     string
	Port     int
	UseTLS   bool
	User     string
	Password string
	Mailbox  string
	Batch    int
}

// Handler consumes one batch of fetched messages. Messages are flagged \Seen
// only when it returns nil.
type Handler func(ctx context.Context, msgs []*models.InboundMessage) error

// Source fetches unseen messages from one IMAP mailbox
type Source struct {
	cfg    Config
	dial   func(Config) (Mailbox, error)
	logger zerolog.Logger
}

// New creates an IMAP source
func New(cfg Config, logger zerolog.Logger) *Source {
	return NewWithDialer(cfg, Dial, logger)
}

// NewWithDialer uses dial to obtain logged-in mailbox sessions
func NewWithDialer(cfg Config, dial func(Config) (Mailbox, error), logger zerolog.Logger) *Source {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 50
	}
	return &Source{
		cfg:    cfg,
		dial:   dial,
		logger: logger.With().Str("component", "mailsource").Str("mailbox", cfg.Mailbox).Logger(),
	}
}

// Dial connects and logs in
func Dial(cfg Config) (Mailbox, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("IMAP_HOST not set")
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dialer := &net.Dialer{Timeout: 10 * time.Second}

	var (
		c   *client.Client
		err error
	)
	if cfg.UseTLS {
		c, err = client.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: cfg.Host})
	} else {
		c, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("imap connect %s: %w", addr, err)
	}
	c.Timeout = 2 * time.Minute

	if err := c.Login(cfg.User, cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap login failed: %w", err)
	}
	return c, nil
}

// FetchUnseen reads up to cfg.Batch unseen messages, oldest first, hands them
// to handle and flags them \Seen afterwards. It returns how many were handled.
func (s *Source) FetchUnseen(ctx context.Context, handle Handler) (int, error) {
	mb, err := s.dial(s.cfg)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := mb.Logout(); err != nil {
			s.logger.Debug().Err(err).Msg("IMAP logout failed")
		}
	}()

	if _, err := mb.Select(s.cfg.Mailbox, false); err != nil {
		return 0, fmt.Errorf("failed to select %s: %w", s.cfg.Mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := mb.UidSearch(criteria)
	if err != nil {
		return 0, fmt.Errorf("imap search failed: %w", err)
	}
	if len(uids) == 0 {
		return 0, nil
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if len(uids) > s.cfg.Batch {
		uids = uids[:s.cfg.Batch]
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	msgs, fetched, err := s.fetch(mb, uids)
	if err != nil {
		return 0, err
	}
	if err := handle(ctx, msgs); err != nil {
		return 0, err
	}

	if len(fetched) > 0 {
		set := new(imap.SeqSet)
		set.AddNum(fetched...)
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := mb.UidStore(set, item, []interface{}{imap.SeenFlag}, nil); err != nil {
			// next run re-reads them; ingest dedups by message id
			s.logger.Warn().Err(err).Int("count", len(fetched)).Msg("Failed to flag messages as seen")
		}
	}

	s.logger.Info().Int("fetched", len(msgs)).Int("unseen", len(uids)).Msg("IMAP fetch complete")
	return len(msgs), nil
}

func (s *Source) fetch(mb Mailbox, uids []uint32) ([]*models.InboundMessage, []uint32, error) {
	set := new(imap.SeqSet)
	set.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}
	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- mb.UidFetch(set, items, messages)
	}()

	var (
		out     []*models.InboundMessage
		fetched []uint32
	)
	for m := range messages {
		if m == nil {
			continue
		}
		var literal imap.Literal
		for _, l := range m.Body {
			literal = l
		}
		if literal == nil {
			s.logger.Warn().Uint32("uid", m.Uid).Msg("Message body missing")
			continue
		}
		raw, err := io.ReadAll(literal)
		if err != nil {
			s.logger.Warn().Err(err).Uint32("uid", m.Uid).Msg("Failed to read message body")
			continue
		}
		msg, err := emails.Parse(bytes.NewReader(raw))
		if err != nil {
			s.logger.Warn().Err(err).Uint32("uid", m.Uid).Msg("Failed to parse message")
			// flag it anyway so one broken message does not block the mailbox
			fetched = append(fetched, m.Uid)
			continue
		}
		if msg.MessageID == "" {
			msg.MessageID = fmt.Sprintf("imap-%s-%d", s.cfg.Mailbox, m.Uid)
		}
		out = append(out, msg)
		fetched = append(fetched, m.Uid)
	}

	if err := <-done; err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("imap fetch failed: %w", err)
	}
	return out, fetched, nil
}
