package analysis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// toMap round-trips a Response to the generic map shape used for key checks
func toMap(t *testing.T, r Response) map[string]any {
	t.Helper()
	b, err := json.Marshal(r)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

// leafPaths lists every leaf key path of a decoded JSON object
func leafPaths(prefix string, m map[string]any, out map[string]bool) {
	for k, v := range m {
		p := k
		if prefix != "" {
			p = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			leafPaths(p, child, out)
			continue
		}
		out[p] = true
	}
}

func TestValidateAndFill_DeepMergeKeepsSiblingDefaults(t *testing.T) {
	raw := map[string]any{
		"spam_check": json.Number("0"),
		"classification": map[string]any{
			"primary_type": "complaint",
		},
		"processing_requirements": map[string]any{
			"legal_risks": map[string]any{
				"risk_level": "medium",
			},
		},
	}

	resp, issues := ValidateAndFill(raw)
	assert.Empty(t, issues)

	def := Default()
	assert.Equal(t, "complaint", resp.Classification.PrimaryType)
	assert.Equal(t, def.Classification.SecondaryType, resp.Classification.SecondaryType)
	assert.Equal(t, def.Classification.Urgency, resp.Classification.Urgency)
	assert.Equal(t, "medium", resp.ProcessingRequirements.LegalRisks.RiskLevel)
	assert.Equal(t, def.ProcessingRequirements.SLAHours, resp.ProcessingRequirements.SLAHours)
	assert.Equal(t, def.ProcessingRequirements.Escalation, resp.ProcessingRequirements.Escalation)
	assert.Equal(t, def.ContentAnalysis, resp.ContentAnalysis)
	assert.Equal(t, def.Summary, resp.Summary)
}

func TestValidateAndFill_EveryLeafPresent(t *testing.T) {
	partials := []map[string]any{
		{},
		{"summary": "x"},
		{"content_analysis": map[string]any{"requirements": map[string]any{"core_request": "справка"}}},
		{"action_recommendations": map[string]any{"follow_up_actions": []any{"a", "b"}}},
		{"metadata_analysis": "not an object"},
	}

	want := map[string]bool{}
	leafPaths("", toMap(t, Default()), want)

	for _, raw := range partials {
		resp, _ := ValidateAndFill(raw)
		got := map[string]bool{}
		leafPaths("", toMap(t, resp), got)
		assert.Equal(t, want, got)
	}
}

func TestValidateAndFill_LeavesOverride(t *testing.T) {
	raw := map[string]any{
		"spam_check":      json.Number("0"),
		"summary":         "Клиент просит акт сверки",
		"action_required": true,
		"task_priority":   "high",
		"deadline_hours":  json.Number("48"),
		"key_points":      []any{"акт сверки", "до пятницы"},
		"action_recommendations": map[string]any{
			"follow_up_actions":  []any{"Позвонить клиенту"},
			"suggested_response": "Добрый день!",
		},
	}

	resp, issues := ValidateAndFill(raw)
	assert.Empty(t, issues)
	assert.Equal(t, "Клиент просит акт сверки", resp.Summary)
	assert.Equal(t, "high", resp.TaskPriority)
	require.NotNil(t, resp.DeadlineHours)
	assert.Equal(t, 48.0, *resp.DeadlineHours)
	assert.Equal(t, []string{"акт сверки", "до пятницы"}, resp.KeyPoints)
	assert.Equal(t, []string{"Позвонить клиенту"}, resp.ActionRecommendations.FollowUpActions)
	assert.Equal(t, Default().ActionRecommendations.ImmediateActions, resp.ActionRecommendations.ImmediateActions)
}

func TestValidateAndFill_NullKeepsDefault(t *testing.T) {
	raw := map[string]any{
		"spam_check": json.Number("0"),
		"key_points": nil,
		"classification": map[string]any{
			"tags": nil,
		},
	}

	resp, issues := ValidateAndFill(raw)
	assert.Empty(t, issues)
	assert.NotNil(t, resp.KeyPoints)
	assert.Empty(t, resp.KeyPoints)
	assert.NotNil(t, resp.Classification.Tags)
}

func TestValidateAndFill_TypeMismatchKeepsDefault(t *testing.T) {
	raw := map[string]any{
		"spam_check": json.Number("0"),
		"processing_requirements": map[string]any{
			"sla_hours":           "сутки",
			"escalation_required": true,
		},
	}

	resp, issues := ValidateAndFill(raw)
	require.Len(t, issues, 1)
	assert.Equal(t, "processing_requirements.sla_hours", issues[0].Field)
	assert.Equal(t, 24, resp.ProcessingRequirements.SLAHours)
	assert.True(t, resp.ProcessingRequirements.EscalationRequired)
}

func TestValidateAndFill_SpamCheckCoercion(t *testing.T) {
	tests := []struct {
		name      string
		value     any
		present   bool
		expected  SpamFlag
		wantIssue bool
	}{
		{"zero", json.Number("0"), true, NotSpam, false},
		{"one", json.Number("1"), true, MarkedSpam, false},
		{"missing", nil, false, NotSpam, true},
		{"string one", "1", true, NotSpam, true},
		{"fractional", json.Number("1.5"), true, NotSpam, true},
		{"float literal one", json.Number("1.0"), true, NotSpam, true},
		{"boolean true", true, true, NotSpam, true},
		{"two", json.Number("2"), true, NotSpam, true},
		{"go int one", 1, true, MarkedSpam, false},
		{"go float one", 1.0, true, MarkedSpam, false},
		{"go float fraction", 1.5, true, NotSpam, true},
		{"explicit null", nil, true, NotSpam, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := map[string]any{"summary": "s"}
			if tt.present {
				raw["spam_check"] = tt.value
			}

			resp, issues := ValidateAndFill(raw)
			assert.Equal(t, tt.expected, resp.SpamCheck)

			found := false
			for _, is := range issues {
				if is.Field == "spam_check" {
					found = true
				}
			}
			assert.Equal(t, tt.wantIssue, found)
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fence with prose", "Вот анализ:\n```json\n{\"a\":1}\n```\nГотово.", `{"a":1}`},
		{"prose without fence", "Ответ: {\"a\":{\"b\":2}} конец", `{"a":{"b":2}}`},
		{"single line fence", "```{\"a\":1}```", `{"a":1}`},
		{"no json", "не могу ответить", "не могу ответить"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractJSON(tt.input))
		})
	}
}

func TestParseAnalysis(t *testing.T) {
	t.Run("non-JSON falls back to default", func(t *testing.T) {
		resp, outcome := ParseAnalysis("Извините, я не могу помочь с этим запросом.")
		assert.True(t, outcome.Fallback)
		assert.NotEmpty(t, outcome.Error)
		assert.Equal(t, Default(), resp)
	})

	t.Run("array falls back to default", func(t *testing.T) {
		resp, outcome := ParseAnalysis("[1,2,3]")
		assert.True(t, outcome.Fallback)
		assert.Equal(t, Default(), resp)
	})

	t.Run("fenced object", func(t *testing.T) {
		text := "```json\n{\"spam_check\": 1, \"summary\": \"Реклама\"}\n```"
		resp, outcome := ParseAnalysis(text)
		assert.False(t, outcome.Fallback)
		assert.Empty(t, outcome.Issues)
		assert.True(t, resp.IsSpam())
		assert.Equal(t, "Реклама", resp.Summary)
	})

	t.Run("missing spam_check is reported", func(t *testing.T) {
		resp, outcome := ParseAnalysis(`{"summary": "Вопрос"}`)
		assert.False(t, outcome.Fallback)
		require.Len(t, outcome.Issues, 1)
		assert.Equal(t, "spam_check", outcome.Issues[0].Field)
		assert.False(t, resp.IsSpam())
	})
}

func TestDecode_RoundTrip(t *testing.T) {
	orig := Default()
	orig.Summary = "stored"
	orig.ProcessingRequirements.ApprovalDepartments = []string{"finance", "legal"}

	doc, err := json.Marshal(orig)
	require.NoError(t, err)

	got, issues, err := Decode(doc)
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Equal(t, orig, got)

	_, _, err = Decode([]byte("null"))
	assert.Error(t, err)
}

func TestSpam(t *testing.T) {
	s := Spam()
	assert.True(t, s.IsSpam())
	assert.False(t, s.ActionRequired)
	assert.False(t, s.HasLegalRisk())
	assert.Empty(t, s.ActionRecommendations.FollowUpActions)
	assert.False(t, s.ProcessingRequirements.EscalationRequired)
}

func TestRiskLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected string
		risk     bool
	}{
		{"none", "none", false},
		{"", "none", false},
		{" HIGH ", "high", true},
		{"low", "low", true},
	}

	for _, tt := range tests {
		r := Default()
		r.ProcessingRequirements.LegalRisks.RiskLevel = tt.level
		assert.Equal(t, tt.expected, r.RiskLevel())
		assert.Equal(t, tt.risk, r.HasLegalRisk())
	}
}

func TestSaneDeadlineHours(t *testing.T) {
	assert.True(t, SaneDeadlineHours(1))
	assert.True(t, SaneDeadlineHours(48))
	assert.True(t, SaneDeadlineHours(8760))
	assert.False(t, SaneDeadlineHours(0))
	assert.False(t, SaneDeadlineHours(-5))
	assert.False(t, SaneDeadlineHours(8761))
	assert.False(t, SaneDeadlineHours(9000))
	assert.False(t, SaneDeadlineHours(12.5))
}

func TestAnalysisFormatDescription(t *testing.T) {
	desc := AnalysisFormatDescription()

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(desc), &m))
	assert.Contains(t, m, "spam_check")
	assert.Contains(t, m, "processing_requirements")
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		fallback bool
	}{
		{"fenced", "```json\n{\"reply\": \"Добрый день!\"}\n```", "Добрый день!", false},
		{"not json", "Добрый день!", FallbackReplyText, true},
		{"empty reply", `{"reply": "  "}`, FallbackReplyText, true},
		{"wrong type", `{"reply": 42}`, FallbackReplyText, true},
		{"missing key", `{"text": "hi"}`, FallbackReplyText, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, outcome := ParseReply(tt.input)
			assert.Equal(t, tt.expected, r.Reply)
			assert.Equal(t, tt.fallback, outcome.Fallback)
		})
	}
}
