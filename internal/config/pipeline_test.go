package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalogue = `
default_model: yandexgpt
models:
  yandexgpt:
    model: yandexgpt-pro
    version: rc
    temperature: 0.2
    max_tokens: 2000
    endpoint: foundationModels/v1/completion
    rates:
      input: 0.000002
      output: 0.000004
      currency: RUB
  small:
    temperature: 0.5
    max_tokens: 500
    rates:
      input: 0.000001
      output: 0.000001
`

func TestParseCatalogue(t *testing.T) {
	cat, err := ParseCatalogue([]byte(testCatalogue))
	require.NoError(t, err)

	assert.Equal(t, "yandexgpt", cat.DefaultModel)
	require.Len(t, cat.Models, 2)

	m, err := cat.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "yandexgpt", m.Name)
	assert.Equal(t, "yandexgpt-pro", m.Model)
	assert.Equal(t, "rc", m.Version)
	assert.InDelta(t, 0.2, m.Temperature, 1e-6)
	assert.Equal(t, 2000, m.MaxTokens)
	assert.Equal(t, 0.000002, m.Rates.Input)
	assert.Equal(t, "RUB", m.Rates.Currency)

	small, err := cat.Resolve("small")
	require.NoError(t, err)
	assert.Equal(t, "small", small.Model, "model id defaults to the entry name")
	assert.Equal(t, "USD", small.Rates.Currency, "currency defaults to USD")
}

func TestParseCatalogue_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid yaml", "models: [unclosed"},
		{"no models", "default_model: x\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalogue([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestCatalogue_ResolveUnknown(t *testing.T) {
	cat := BuiltinCatalogue()

	_, err := cat.Resolve("does-not-exist")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "gpt-4o-mini")
}

func TestBuildPipeline_Defaults(t *testing.T) {
	cfg := &Config{JobTimeout: 120}

	p, err := cfg.BuildPipeline()
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", p.Model.Name)
	assert.Equal(t, DefaultAnalysisTemplate, p.AnalysisTemplate)
	assert.Equal(t, DefaultReplyTemplate, p.ReplyTemplate)
	assert.Equal(t, 120*time.Second, p.JobTimeout)
	assert.Equal(t, 5, p.SearchTopK)
	assert.Contains(t, p.AnalysisTemplate, "{{email_content}}")
	assert.Contains(t, p.ReplyTemplate, "{{analysis_context}}")
}

func TestBuildPipeline_FromFiles(t *testing.T) {
	dir := t.TempDir()
	modelsPath := filepath.Join(dir, "models.yaml")
	analysisPath := filepath.Join(dir, "analysis.txt")
	require.NoError(t, os.WriteFile(modelsPath, []byte(testCatalogue), 0o600))
	require.NoError(t, os.WriteFile(analysisPath, []byte("A: {{email_content}}"), 0o600))

	cfg := &Config{
		ModelsFile:         modelsPath,
		DefaultModel:       "small",
		AnalysisPromptFile: analysisPath,
		JobTimeout:         60,
	}

	p, err := cfg.BuildPipeline()
	require.NoError(t, err)
	assert.Equal(t, "small", p.Model.Name)
	assert.Equal(t, "A: {{email_content}}", p.AnalysisTemplate)
	assert.Equal(t, DefaultReplyTemplate, p.ReplyTemplate)
}

func TestBuildPipeline_MissingTemplate(t *testing.T) {
	cfg := &Config{AnalysisPromptFile: filepath.Join(t.TempDir(), "missing.txt")}

	_, err := cfg.BuildPipeline()
	assert.Error(t, err)
}
