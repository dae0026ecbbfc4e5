package emails

import (
	"strings"
	"testing"
	"time"

	"triage/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEMLFile_Koi8(t *testing.T) {
	msg, err := ParseEMLFile("testdata/koi8.eml")
	require.NoError(t, err)

	assert.Equal(t, "m1@client.ru", msg.MessageID)
	assert.Equal(t, "Re: Запрос документов", msg.Subject)
	assert.Equal(t, "ivan@client.ru", msg.FromAddress)
	assert.Equal(t, "Иван", msg.FromName)
	assert.Equal(t, "m0@example.com", msg.InReplyTo)
	assert.Equal(t, time.Date(2026, 3, 2, 6, 15, 0, 0, time.UTC), msg.ReceivedAt)
	assert.Equal(t, "Прислите соглашение.", msg.Body)
}

func TestParse_HTMLOnly(t *testing.T) {
	raw := "From: a@b.c\r\n" +
		"Subject: hi\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n\r\n" +
		"<html><style>p{color:red}</style><p>Hello&nbsp;there</p><script>x()</script><br>Bye &amp; thanks</html>"

	msg, err := Parse(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "Hello there\n\nBye & thanks", msg.Body)
	assert.NotContains(t, msg.Body, "color")
	assert.NotContains(t, msg.Body, "x()")
}

func TestParse_PlainNoHeaders(t *testing.T) {
	msg, err := Parse(strings.NewReader("From: <root@localhost>\r\n\r\nbody only\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "root@localhost", msg.FromAddress)
	assert.Equal(t, "body only", msg.Body)
	assert.Empty(t, msg.MessageID)
	assert.WithinDuration(t, time.Now(), msg.ReceivedAt, time.Minute)
}

func TestCharsetReader_Unknown(t *testing.T) {
	_, err := charsetReader("x-klingon", strings.NewReader(""))
	assert.Error(t, err)
}

func TestParseMBOXFile(t *testing.T) {
	var batches [][]*models.InboundMessage
	var last MBOXProgress
	err := ParseMBOXFile("testdata/inbox.mbox", 2, zerolog.Nop(), func(batch []*models.InboundMessage, p MBOXProgress) error {
		batches = append(batches, batch)
		last = p
		return nil
	})
	require.NoError(t, err)

	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 1)
	assert.Equal(t, 3, last.EmailsProcessed)
	assert.Equal(t, 100.0, last.PercentComplete)

	first := batches[0][0]
	assert.Equal(t, "a1@client.ru", first.MessageID)
	assert.Equal(t, "Please resend invoice 42.\nFrom the accounting team.", first.Body)
	assert.Equal(t, "Re: Invoice 42", batches[0][1].Subject)
	assert.Equal(t, "petr@client.ru", batches[1][0].FromAddress)
}

func TestParseMBOX_CallbackError(t *testing.T) {
	err := ParseMBOXFile("testdata/inbox.mbox", 1, zerolog.Nop(), func([]*models.InboundMessage, MBOXProgress) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestParseDirectory(t *testing.T) {
	msgs, err := ParseDirectory("testdata", zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1@client.ru", msgs[0].MessageID)
}
