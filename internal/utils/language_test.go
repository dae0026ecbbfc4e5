package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Russian text",
			input:    "Добрый день, прошу выслать акт сверки за третий квартал.",
			expected: "ru",
		},
		{
			name:     "English text",
			input:    "Hello, please send the invoice.",
			expected: "en",
		},
		{
			name:     "Hebrew text",
			input:    "שלום, איך אני יכול לעזור לך?",
			expected: "he",
		},
		{
			name:     "Arabic text",
			input:    "مرحبا، كيف يمكنني مساعدتك؟",
			expected: "ar",
		},
		{
			name:     "Chinese text",
			input:    "你好，我能怎么帮助你？",
			expected: "zh",
		},
		{
			name:     "Japanese text",
			input:    "こんにちは、どのようにお手伝いできますか？",
			expected: "ja",
		},
		{
			name:     "Korean text",
			input:    "안녕하세요, 어떻게 도와드릴까요?",
			expected: "ko",
		},
		{
			name:     "Mostly Russian with Latin terms",
			input:    "Ошибка в личном кабинете, код ERR42",
			expected: "ru",
		},
		{
			name:     "Empty text",
			input:    "",
			expected: "ru",
		},
		{
			name:     "Digits only",
			input:    "12345 !!!",
			expected: "ru",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DetectLanguage(tt.input)
			assert.Equal(t, tt.expected, result.Code())
		})
	}
}

func TestDetectLanguage_Confidence(t *testing.T) {
	assert.Equal(t, 0.0, DetectLanguage("").Confidence)
	assert.Equal(t, 1.0, DetectLanguage("Привет").Confidence)

	mixed := DetectLanguage("Привет hi")
	assert.Equal(t, "ru", mixed.Code())
	assert.InDelta(t, 0.75, mixed.Confidence, 1e-9)
}
