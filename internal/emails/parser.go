// Package emails turns raw mail into pipeline emails: it parses EML/MBOX
// sources and ingests the resulting records.
package emails

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"triage/internal/models"

	"github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/htmlindex"
)

func init() {
	message.CharsetReader = charsetReader
}

// charsetReader decodes legacy charsets (koi8-r, windows-1251, ...) to UTF-8
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(strings.ToLower(strings.TrimSpace(charset)))
	if err != nil {
		return nil, fmt.Errorf("unhandled charset %q: %w", charset, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

// Parse reads one RFC 5322 message. Plain text parts are preferred over HTML;
// parts in an unknown charset are skipped.
func Parse(r io.Reader) (*models.InboundMessage, error) {
	mr, err := gomail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, fmt.Errorf("failed to read email message: %w", err)
	}
	defer func() { _ = mr.Close() }()

	msg := &models.InboundMessage{}
	h := mr.Header
	if id, err := h.MessageID(); err == nil {
		msg.MessageID = id
	}
	if subject, err := h.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = h.Get("Subject")
	}
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		msg.FromAddress = from[0].Address
		msg.FromName = from[0].Name
	} else {
		msg.FromAddress = strings.Trim(h.Get("From"), "<> ")
	}
	if date, err := h.Date(); err == nil && !date.IsZero() {
		msg.ReceivedAt = date.UTC()
	} else {
		msg.ReceivedAt = time.Now().UTC()
	}
	if ids, err := h.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
		msg.InReplyTo = ids[0]
	}

	var textParts, htmlParts []string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) || message.IsUnknownEncoding(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read message part: %w", err)
		}

		inline, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue // attachment
		}
		mediaType, _, _ := inline.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch {
		case mediaType == "text/html":
			htmlParts = append(htmlParts, string(body))
		case mediaType == "" || strings.HasPrefix(mediaType, "text/plain"):
			textParts = append(textParts, string(body))
		}
	}

	switch {
	case len(textParts) > 0:
		msg.Body = strings.TrimSpace(strings.Join(textParts, "\n\n"))
	case len(htmlParts) > 0:
		msg.Body = cleanHTML(strings.Join(htmlParts, "\n\n"))
	}
	return msg, nil
}

// ParseEMLFile parses a single EML file
func ParseEMLFile(filename string) (*models.InboundMessage, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open EML file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return Parse(file)
}

// ParseDirectory parses every .eml file under dirPath. Unparseable files are
// logged and skipped.
func ParseDirectory(dirPath string, logger zerolog.Logger) ([]*models.InboundMessage, error) {
	var out []*models.InboundMessage
	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(strings.ToLower(path), ".eml") {
			return nil
		}
		msg, err := ParseEMLFile(path)
		if err != nil {
			logger.Warn().Err(err).Str("file", path).Msg("Failed to parse EML file")
			return nil
		}
		out = append(out, msg)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	return out, nil
}

// MBOXProgress tracks the progress of MBOX parsing
type MBOXProgress struct {
	BytesProcessed  int64
	TotalBytes      int64
	EmailsProcessed int
	PercentComplete float64
}

// MBOXBatchCallback is called for each batch of parsed messages
type MBOXBatchCallback func(batch []*models.InboundMessage, progress MBOXProgress) error

// ParseMBOXFile streams an MBOX file in batches
func ParseMBOXFile(filename string, batchSize int, logger zerolog.Logger, callback MBOXBatchCallback) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open MBOX file: %w", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}
	return ParseMBOX(file, info.Size(), batchSize, logger, callback)
}

// ParseMBOX splits an mboxrd stream on "From " separator lines and hands the
// parsed messages to callback in batches of batchSize. totalBytes only feeds
// the progress percentage and may be zero.
func ParseMBOX(r io.Reader, totalBytes int64, batchSize int, logger zerolog.Logger, callback MBOXBatchCallback) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var (
		batch     []*models.InboundMessage
		current   bytes.Buffer
		count     int
		processed int64
	)

	progress := func(done bool) MBOXProgress {
		p := MBOXProgress{BytesProcessed: processed, TotalBytes: totalBytes, EmailsProcessed: count}
		switch {
		case done:
			p.PercentComplete = 100
		case totalBytes > 0:
			p.PercentComplete = float64(processed) / float64(totalBytes) * 100
		}
		return p
	}

	flushMessage := func() {
		if current.Len() == 0 {
			return
		}
		msg, err := Parse(&current)
		count++
		if err != nil {
			logger.Warn().Err(err).Int("index", count).Msg("Failed to parse MBOX message")
		} else {
			batch = append(batch, msg)
		}
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		processed += int64(len(line) + 1)

		if strings.HasPrefix(line, "From ") {
			flushMessage()
			if len(batch) >= batchSize {
				if err := callback(batch, progress(false)); err != nil {
					return fmt.Errorf("batch processing error at email %d: %w", count, err)
				}
				batch = nil
			}
			continue
		}
		// mboxrd quoting: ">From " lines were escaped on write
		if strings.HasPrefix(strings.TrimLeft(line, ">"), "From ") && strings.HasPrefix(line, ">") {
			line = line[1:]
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading MBOX: %w", err)
	}

	flushMessage()
	if len(batch) > 0 {
		if err := callback(batch, progress(true)); err != nil {
			return fmt.Errorf("final batch processing error: %w", err)
		}
	}

	logger.Info().Int("emails", count).Int64("bytes", processed).Msg("MBOX parsing complete")
	return nil
}

// cleanHTML strips tags and common entities
func cleanHTML(html string) string {
	html = removeTagsWithContent(html, "script")
	html = removeTagsWithContent(html, "style")

	replacer := strings.NewReplacer(
		"<br>", "\n", "<br/>", "\n", "<br />", "\n",
		"</p>", "\n\n", "</div>", "\n",
	)
	html = replacer.Replace(html)

	var result strings.Builder
	inTag := false
	for _, char := range html {
		switch {
		case char == '<':
			inTag = true
		case char == '>':
			inTag = false
		case !inTag:
			result.WriteRune(char)
		}
	}

	entities := strings.NewReplacer(
		"&nbsp;", " ", "&lt;", "<", "&gt;", ">",
		"&quot;", "\"", "&#39;", "'", "&amp;", "&",
	)
	text := strings.TrimSpace(entities.Replace(result.String()))
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return text
}

func removeTagsWithContent(html, tag string) string {
	openTag := "<" + tag
	closeTag := "</" + tag + ">"
	for {
		lower := strings.ToLower(html)
		start := strings.Index(lower, openTag)
		if start == -1 {
			return html
		}
		end := strings.Index(lower[start:], closeTag)
		if end == -1 {
			return html
		}
		html = html[:start] + html[start+end+len(closeTag):]
	}
}
