// Package prompt renders the analysis and reply prompts from opaque templates.
package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"triage/internal/analysis"
	"triage/internal/models"
)

// Placeholder names understood by the templates
const (
	EmailContent    = "email_content"
	ThreadContent   = "thread_content"
	AnalysisContext = "analysis_context"
	SearchContext   = "search_context"
	ResponseFormat  = "response_format"
)

// NoAnalysisPlaceholder replaces the analysis digest when no email of the thread was analysed
const NoAnalysisPlaceholder = "Анализ писем в этой переписке отсутствует. Опирайся только на текст переписки."

// NoSearchPlaceholder replaces the search block when no lookup was made or it returned nothing
const NoSearchPlaceholder = "Справочные материалы не найдены."

var placeholder = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Render substitutes {{name}} placeholders. Unknown placeholders stay as they are.
func Render(template string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}

// SearchBlock returns the rendered search context or the placeholder when empty
func SearchBlock(formatted string) string {
	if strings.TrimSpace(formatted) == "" {
		return NoSearchPlaceholder
	}
	return formatted
}

// ThreadContentBlock renders the raw conversation, oldest message first
func ThreadContentBlock(thread *models.Thread) string {
	var b strings.Builder
	for i, e := range thread.Emails {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		from := e.FromAddress
		if e.FromName != nil && *e.FromName != "" {
			from = fmt.Sprintf("%s <%s>", *e.FromName, e.FromAddress)
		}
		fmt.Fprintf(&b, "Письмо %d\nОт: %s\nДата: %s\nТема: %s\n\n%s",
			i+1, from, e.ReceivedAt.Format("2006-01-02 15:04"), e.Subject, strings.TrimSpace(e.Content))
	}
	return b.String()
}

// DigestStats counts what went into a thread digest
type DigestStats struct {
	Analysed int
	Skipped  int
}

// ThreadDigest renders a structured digest for every email that has an analysis,
// in the order of emails. Emails without analysis are skipped and counted.
func ThreadDigest(emails []models.Email, analyses map[int64]analysis.Response) (string, DigestStats) {
	var stats DigestStats
	var b strings.Builder

	for _, e := range emails {
		a, ok := analyses[e.ID]
		if !ok {
			stats.Skipped++
			continue
		}
		stats.Analysed++
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		writeDigest(&b, stats.Analysed, e, a)
	}
	return b.String(), stats
}

func writeDigest(b *strings.Builder, n int, e models.Email, a analysis.Response) {
	fmt.Fprintf(b, "=== Анализ письма %d: %s (%s) ===\n", n, e.Subject, e.ReceivedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(b, "Краткое содержание: %s\n", a.Summary)
	fmt.Fprintf(b, "Приоритет: %s\n", a.Priority)
	fmt.Fprintf(b, "Классификация: %s / %s, срочность %s\n",
		a.Classification.PrimaryType, a.Classification.SecondaryType, a.Classification.Urgency)
	if req := a.ContentAnalysis.Requirements.CoreRequest; req != "" {
		fmt.Fprintf(b, "Основной запрос: %s\n", req)
	}
	fmt.Fprintf(b, "Стиль: %s, SLA: %d ч\n", a.ContentAnalysis.FormalityLevel, a.ProcessingRequirements.SLAHours)
	if a.HasLegalRisk() {
		fmt.Fprintf(b, "Юридический риск: %s", a.RiskLevel())
		if d := a.ProcessingRequirements.LegalRisks.Description; d != "" {
			fmt.Fprintf(b, " (%s)", d)
		}
		b.WriteString("\n")
	}
	if s := a.ActionRecommendations.SuggestedResponse; s != "" {
		fmt.Fprintf(b, "Рекомендуемый ответ: %s\n", s)
	}
	writeList(b, "Ключевые моменты", a.KeyPoints)
	writeList(b, "Немедленные действия", a.ActionRecommendations.ImmediateActions)
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}
