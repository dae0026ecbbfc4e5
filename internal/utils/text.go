package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// replyPrefix matches reply/forward markers, including the Russian mail client forms
var replyPrefix = regexp.MustCompile(`(?i)^\s*((re|fw|fwd|aw|ответ|отв|пересл|fw\[\d+\]|re\[\d+\])\s*:\s*)+`)

// Truncate shortens s to at most n runes
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// NormalizeSubject strips reply/forward prefixes and collapses whitespace, so
// replies land in the thread of the original message
func NormalizeSubject(subject string) string {
	s := replyPrefix.ReplaceAllString(subject, "")
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "(без темы)"
	}
	return s
}

// ChunkText splits text into pieces of at most size runes, preferring
// paragraph then line boundaries
func ChunkText(text string, size int) []string {
	text = strings.TrimSpace(text)
	if text == "" || size <= 0 {
		return nil
	}

	var chunks []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
		curLen = 0
	}

	for _, para := range splitParagraphs(text) {
		n := utf8.RuneCountInString(para)
		if n > size {
			flush()
			runes := []rune(para)
			for start := 0; start < len(runes); start += size {
				end := start + size
				if end > len(runes) {
					end = len(runes)
				}
				chunks = append(chunks, strings.TrimSpace(string(runes[start:end])))
			}
			continue
		}
		if curLen > 0 && curLen+2+n > size {
			flush()
		}
		if curLen > 0 {
			cur.WriteString("\n\n")
			curLen += 2
		}
		cur.WriteString(para)
		curLen += n
	}
	flush()
	return chunks
}

func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
