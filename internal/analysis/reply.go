package analysis

import "strings"

// Reply is the thread reply schema
type Reply struct {
	Reply string `json:"reply"`
}

// FallbackReplyText is stored when the completion carries no usable reply
const FallbackReplyText = "Не удалось автоматически сформировать ответ. Требуется ручная обработка переписки."

// ReplyFormatDescription is substituted into reply prompts
const ReplyFormatDescription = `{
  "reply": "текст ответа клиенту"
}`

// FallbackReply returns the manual-handling reply
func FallbackReply() Reply {
	return Reply{Reply: FallbackReplyText}
}

// ParseReply extracts {"reply": "..."} from a completion. A missing, empty or
// non-string reply yields FallbackReply with Fallback set.
func ParseReply(text string) (Reply, ParseOutcome) {
	raw, err := decodeObject(ExtractJSON(text))
	if err != nil {
		return FallbackReply(), ParseOutcome{Fallback: true, Error: err.Error()}
	}

	s, ok := raw["reply"].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return FallbackReply(), ParseOutcome{
			Fallback: true,
			Error:    "reply field missing or not a non-empty string",
		}
	}
	return Reply{Reply: s}, ParseOutcome{}
}
