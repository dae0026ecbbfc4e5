package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Issue is a data-quality anomaly found while validating a completion.
// Issues never fail processing; the affected field keeps its default.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return i.Field + ": " + i.Message
}

// ParseOutcome describes how a completion was turned into a Response
type ParseOutcome struct {
	Fallback bool    // the completion was not a JSON object, Default() was used
	Error    string  // decode error when Fallback is set
	Issues   []Issue // data-quality anomalies
}

// ValidateAndFill deep-merges raw over Default(). Object fields merge
// recursively, present leaves override, null and type mismatches keep the
// default. spam_check must be exactly 0 or 1, anything else becomes 0.
func ValidateAndFill(raw map[string]any) (Response, []Issue) {
	out := Default()
	var issues []Issue

	flag, ok := coerceSpamFlag(raw["spam_check"])
	if !ok {
		issues = append(issues, Issue{
			Field:   "spam_check",
			Message: fmt.Sprintf("invalid value %s, coerced to 0", describe(raw["spam_check"])),
		})
	}

	clean := dropNulls(raw)
	delete(clean, "spam_check")

	data, err := json.Marshal(clean)
	if err != nil {
		issues = append(issues, Issue{Field: "", Message: "re-encode failed: " + err.Error()})
		out.SpamCheck = flag
		return out, issues
	}

	// encoding/json skips mismatched fields and keeps decoding the rest, so
	// defaults survive wherever the model sent the wrong type.
	if err := json.Unmarshal(data, &out); err != nil {
		var ute *json.UnmarshalTypeError
		if errors.As(err, &ute) {
			issues = append(issues, Issue{
				Field:   ute.Field,
				Message: fmt.Sprintf("expected %s, got %s; default kept", ute.Type, ute.Value),
			})
		} else {
			issues = append(issues, Issue{Field: "", Message: err.Error()})
		}
	}

	out.SpamCheck = flag
	return out, issues
}

// coerceSpamFlag accepts only the integers 0 and 1
func coerceSpamFlag(v any) (SpamFlag, bool) {
	switch n := v.(type) {
	case json.Number:
		switch n.String() {
		case "0":
			return NotSpam, true
		case "1":
			return MarkedSpam, true
		}
	case int:
		if n == 0 || n == 1 {
			return SpamFlag(n), true
		}
	case int64:
		if n == 0 || n == 1 {
			return SpamFlag(n), true
		}
	case float64:
		if n == 0 || n == 1 {
			return SpamFlag(n), true
		}
	}
	return NotSpam, false
}

func describe(v any) string {
	switch t := v.(type) {
	case nil:
		return "<missing>"
	case string:
		return fmt.Sprintf("%q", t)
	default:
		return fmt.Sprintf("%v (%T)", t, t)
	}
}

// dropNulls copies m without null values, recursing into nested objects
func dropNulls(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case nil:
			continue
		case map[string]any:
			out[k] = dropNulls(t)
		default:
			out[k] = v
		}
	}
	return out
}

// ExtractJSON strips markdown code fences and surrounding prose from a completion
func ExtractJSON(text string) string {
	s := strings.TrimSpace(text)

	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		// drop the language tag line, e.g. ```json
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.ContainsAny(rest[:nl], "{[") {
			rest = rest[nl+1:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		s = strings.TrimSpace(rest)
	}

	if !strings.HasPrefix(s, "{") {
		start := strings.IndexByte(s, '{')
		end := strings.LastIndexByte(s, '}')
		if start >= 0 && end > start {
			s = s[start : end+1]
		}
	}
	return s
}

// decodeObject decodes a JSON object keeping numbers as json.Number
func decodeObject(text string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("completion is not a JSON object")
	}
	return raw, nil
}

// ParseAnalysis turns a completion into a validated Response. Text that is
// not a JSON object yields Default() with Fallback set; it is never an error.
func ParseAnalysis(text string) (Response, ParseOutcome) {
	raw, err := decodeObject(ExtractJSON(text))
	if err != nil {
		return Default(), ParseOutcome{Fallback: true, Error: err.Error()}
	}

	resp, issues := ValidateAndFill(raw)
	return resp, ParseOutcome{Issues: issues}
}

// Decode reads a stored analysis document, filling any gaps with defaults
func Decode(doc []byte) (Response, []Issue, error) {
	raw, err := decodeObject(string(doc))
	if err != nil {
		return Default(), nil, fmt.Errorf("failed to decode analysis response: %w", err)
	}
	resp, issues := ValidateAndFill(raw)
	return resp, issues, nil
}

// SaneDeadlineHours validates deadline_hours: a whole number of hours from 1 to 8760
func SaneDeadlineHours(h float64) bool {
	return h >= 1 && h <= 8760 && h == math.Trunc(h)
}

// AnalysisFormatDescription renders the response schema, with defaults, for prompts
func AnalysisFormatDescription() string {
	b, err := json.MarshalIndent(Default(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
