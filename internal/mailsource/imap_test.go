package mailsource

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"triage/internal/models"

	"github.com/emersion/go-imap"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailbox struct {
	bodies    map[uint32]string
	selected  string
	fetched   []uint32
	stored    []uint32
	searchErr error
	storeErr  error
	loggedOut bool
}

func (f *fakeMailbox) Select(name string, _ bool) (*imap.MailboxStatus, error) {
	f.selected = name
	return &imap.MailboxStatus{Name: name}, nil
}

func (f *fakeMailbox) UidSearch(*imap.SearchCriteria) ([]uint32, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var uids []uint32
	for uid := range f.bodies {
		uids = append(uids, uid)
	}
	return uids, nil
}

func (f *fakeMailbox) UidFetch(set *imap.SeqSet, _ []imap.FetchItem, ch chan *imap.Message) error {
	defer close(ch)
	for uid, body := range f.bodies {
		if !set.Contains(uid) {
			continue
		}
		f.fetched = append(f.fetched, uid)
		m := imap.NewMessage(uid, nil)
		m.Uid = uid
		m.Body = map[*imap.BodySectionName]imap.Literal{
			{Peek: true}: bytes.NewReader([]byte(body)),
		}
		ch <- m
	}
	return nil
}

func (f *fakeMailbox) UidStore(set *imap.SeqSet, _ imap.StoreItem, _ interface{}, _ chan *imap.Message) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	for uid := range f.bodies {
		if set.Contains(uid) {
			f.stored = append(f.stored, uid)
		}
	}
	return nil
}

func (f *fakeMailbox) Logout() error {
	f.loggedOut = true
	return nil
}

func rawMessage(id, subject string) string {
	return "From: Client <client@example.com>\r\n" +
		"Subject: " + subject + "\r\n" +
		"Message-ID: <" + id + ">\r\n\r\n" +
		"body of " + subject + "\r\n"
}

func sourceFor(mb *fakeMailbox, batch int) *Source {
	return NewWithDialer(Config{Batch: batch}, func(Config) (Mailbox, error) { return mb, nil }, zerolog.Nop())
}

func TestFetchUnseen(t *testing.T) {
	mb := &fakeMailbox{bodies: map[uint32]string{
		11: rawMessage("b@x", "second"),
		7:  rawMessage("a@x", "first"),
		15: rawMessage("c@x", "third"),
	}}

	var got []*models.InboundMessage
	n, err := sourceFor(mb, 2).FetchUnseen(context.Background(), func(_ context.Context, msgs []*models.InboundMessage) error {
		got = msgs
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, "INBOX", mb.selected)
	assert.ElementsMatch(t, []uint32{7, 11}, mb.fetched)
	assert.ElementsMatch(t, []uint32{7, 11}, mb.stored)
	assert.True(t, mb.loggedOut)

	ids := []string{got[0].MessageID, got[1].MessageID}
	assert.ElementsMatch(t, []string{"a@x", "b@x"}, ids)
}

func TestFetchUnseen_HandlerFailureLeavesUnseen(t *testing.T) {
	mb := &fakeMailbox{bodies: map[uint32]string{1: rawMessage("a@x", "s")}}

	_, err := sourceFor(mb, 10).FetchUnseen(context.Background(), func(context.Context, []*models.InboundMessage) error {
		return errors.New("db down")
	})
	assert.EqualError(t, err, "db down")
	assert.Empty(t, mb.stored)
}

func TestFetchUnseen_MissingMessageID(t *testing.T) {
	mb := &fakeMailbox{bodies: map[uint32]string{42: "From: a@b.c\r\nSubject: no id\r\n\r\nhello\r\n"}}

	var got []*models.InboundMessage
	_, err := sourceFor(mb, 10).FetchUnseen(context.Background(), func(_ context.Context, msgs []*models.InboundMessage) error {
		got = msgs
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "imap-INBOX-42", got[0].MessageID)
}

func TestFetchUnseen_Errors(t *testing.T) {
	t.Run("dial", func(t *testing.T) {
		src := NewWithDialer(Config{}, func(Config) (Mailbox, error) { return nil, errors.New("i/o timeout") }, zerolog.Nop())
		_, err := src.FetchUnseen(context.Background(), nil)
		assert.ErrorContains(t, err, "i/o timeout")
	})

	t.Run("search", func(t *testing.T) {
		mb := &fakeMailbox{searchErr: errors.New("BAD")}
		_, err := sourceFor(mb, 10).FetchUnseen(context.Background(), nil)
		assert.ErrorContains(t, err, "imap search failed")
		assert.True(t, mb.loggedOut)
	})

	t.Run("nothing unseen", func(t *testing.T) {
		mb := &fakeMailbox{}
		n, err := sourceFor(mb, 10).FetchUnseen(context.Background(), nil)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("store failure is tolerated", func(t *testing.T) {
		mb := &fakeMailbox{bodies: map[uint32]string{3: rawMessage("a@x", "s")}, storeErr: errors.New("NO")}
		n, err := sourceFor(mb, 10).FetchUnseen(context.Background(), func(context.Context, []*models.InboundMessage) error { return nil })
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestDial_RequiresHost(t *testing.T) {
	_, err := Dial(Config{})
	assert.Error(t, err)
}
