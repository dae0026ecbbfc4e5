package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// ModelRates is the per-token price of one model
type ModelRates struct {
	Input    float64 `yaml:"input"`
	Output   float64 `yaml:"output"`
	Currency string  `yaml:"currency"`
}

// Model describes one completion model entry of the catalogue
type Model struct {
	Name        string     `yaml:"-"`
	Model       string     `yaml:"model"`
	Version     string     `yaml:"version"`
	Temperature float32    `yaml:"temperature"`
	MaxTokens   int        `yaml:"max_tokens"`
	Endpoint    string     `yaml:"endpoint"`
	Rates       ModelRates `yaml:"rates"`
}

// Catalogue is the parsed models file
type Catalogue struct {
	DefaultModel string           `yaml:"default_model"`
	Models       map[string]Model `yaml:"models"`
}

// Pipeline is the static configuration handed to every job at construction.
// It is resolved once at process start; jobs never read the environment.
type Pipeline struct {
	Model            Model
	AnalysisTemplate string
	ReplyTemplate    string
	JobTimeout       time.Duration
	SearchTopK       int
}

// BuiltinCatalogue is used when no models file is configured
func BuiltinCatalogue() Catalogue {
	return Catalogue{
		DefaultModel: "gpt-4o-mini",
		Models: map[string]Model{
			"gpt-4o-mini": {
				Model:       "gpt-4o-mini",
				Version:     "latest",
				Temperature: 0.3,
				MaxTokens:   4000,
				Endpoint:    "chat/completions",
				Rates: ModelRates{
					Input:    0.00000015,
					Output:   0.0000006,
					Currency: "USD",
				},
			},
		},
	}
}

// LoadCatalogue reads the YAML model catalogue, falling back to the built-in one when path is empty
func LoadCatalogue(path string) (Catalogue, error) {
	if path == "" {
		return BuiltinCatalogue(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Catalogue{}, fmt.Errorf("failed to read models file: %w", err)
	}

	return ParseCatalogue(data)
}

// ParseCatalogue decodes catalogue YAML
func ParseCatalogue(data []byte) (Catalogue, error) {
	var cat Catalogue
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return Catalogue{}, fmt.Errorf("failed to parse models file: %w", err)
	}
	if len(cat.Models) == 0 {
		return Catalogue{}, errors.New("models file defines no models")
	}
	for name, m := range cat.Models {
		m.Name = name
		if m.Model == "" {
			m.Model = name
		}
		if m.Rates.Currency == "" {
			m.Rates.Currency = "USD"
		}
		cat.Models[name] = m
	}
	return cat, nil
}

// Resolve returns the named model, or the catalogue default when name is empty
func (c Catalogue) Resolve(name string) (Model, error) {
	if name == "" {
		name = c.DefaultModel
	}
	if name == "" && len(c.Models) == 1 {
		for _, m := range c.Models {
			return m, nil
		}
	}
	m, ok := c.Models[name]
	if !ok {
		return Model{}, fmt.Errorf("model %q not found in catalogue (have %v)", name, c.names())
	}
	if m.Name == "" {
		m.Name = name
	}
	return m, nil
}

func (c Catalogue) names() []string {
	names := make([]string, 0, len(c.Models))
	for n := range c.Models {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// BuildPipeline resolves the catalogue and prompt templates referenced by the config
func (c *Config) BuildPipeline() (Pipeline, error) {
	cat, err := LoadCatalogue(c.ModelsFile)
	if err != nil {
		return Pipeline{}, err
	}
	model, err := cat.Resolve(c.DefaultModel)
	if err != nil {
		return Pipeline{}, err
	}

	analysisTpl, err := loadTemplate(c.AnalysisPromptFile, DefaultAnalysisTemplate)
	if err != nil {
		return Pipeline{}, err
	}
	replyTpl, err := loadTemplate(c.ReplyPromptFile, DefaultReplyTemplate)
	if err != nil {
		return Pipeline{}, err
	}

	return Pipeline{
		Model:            model,
		AnalysisTemplate: analysisTpl,
		ReplyTemplate:    replyTpl,
		JobTimeout:       c.JobTimeoutDuration(),
		SearchTopK:       5,
	}, nil
}

func loadTemplate(path, fallback string) (string, error) {
	if path == "" {
		return fallback, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt template %s: %w", path, err)
	}
	return string(data), nil
}

// DefaultAnalysisTemplate is used when ANALYSIS_PROMPT_FILE is not set
const DefaultAnalysisTemplate = `Ты ассистент службы поддержки. Проанализируй входящее письмо и верни результат строго в формате JSON.

Письмо:
{{email_content}}

Справочные материалы:
{{search_context}}

Формат ответа:
{{response_format}}`

// DefaultReplyTemplate is used when REPLY_PROMPT_FILE is not set
const DefaultReplyTemplate = `Ты ассистент службы поддержки. Подготовь черновик ответа на переписку.

Переписка:
{{thread_content}}

Результаты анализа писем:
{{analysis_context}}

Справочные материалы:
{{search_context}}

Формат ответа:
{{response_format}}`
