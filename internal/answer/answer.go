// Package answer turns retrieved passages into a generated answer through an
// OpenAI-compatible chat completion endpoint (OpenRouter by default).
package answer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/hyperjump/gakumon/internal/config"
)

var (
	// ErrNotConfigured is returned when generation is disabled or has no API key.
	ErrNotConfigured = errors.New("answer generation is not configured")
	// ErrGenerationFailed wraps provider errors and empty completions.
	ErrGenerationFailed = errors.New("answer generation failed")
)

const (
	DefaultBaseURL     = "https://openrouter.ai/api/v1"
	DefaultTemperature = 0.3
)

// Options configures a Generator.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	// MaxContextChars caps the passage text placed in the prompt; 0 means no cap.
	MaxContextChars int
	Timeout         time.Duration
	HTTPClient      *http.Client
}

// Generator produces answers grounded on retrieved passages.
type Generator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxContext  int
	timeout     time.Duration
	logger      *zap.Logger // optional
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets a logger for request timing and failures.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// NewGenerator returns a Generator, or ErrNotConfigured when no API key or model is set.
func NewGenerator(opts Options, options ...Option) (*Generator, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: API key not set", ErrNotConfigured)
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("%w: model not set", ErrNotConfigured)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	g := &Generator{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxContext:  opts.MaxContextChars,
		timeout:     opts.Timeout,
	}
	for _, o := range options {
		o(g)
	}
	return g, nil
}

// FromConfig builds a Generator from the generation config section.
func FromConfig(cfg config.GenerationConfig, options ...Option) (*Generator, error) {
	if !cfg.Enabled {
		return nil, ErrNotConfigured
	}
	return NewGenerator(Options{
		BaseURL:         cfg.BaseURL,
		APIKey:          cfg.APIKey(),
		Model:           cfg.Model,
		Temperature:     cfg.Temperature,
		MaxContextChars: cfg.MaxContextChars,
		Timeout:         time.Duration(cfg.TimeoutSeconds) * time.Second,
	}, options...)
}

// Model returns the chat model name.
func (g *Generator) Model() string { return g.model }

// Answer asks the model to answer question from passages.
func (g *Generator) Answer(ctx context.Context, question string, passages []string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(question, passages, g.maxContext)},
		},
		Temperature: g.temperature,
	})
	if err != nil {
		if g.logger != nil {
			g.logger.Warn("chat completion failed", zap.String("model", g.model), zap.Error(err))
		}
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: empty completion", ErrGenerationFailed)
	}
	if g.logger != nil {
		g.logger.Debug("answer generated", zap.String("model", g.model),
			zap.Int("passages", len(passages)), zap.Duration("took", time.Since(start)))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// BuildPrompt renders the academic-assistant prompt. Passages are joined with a space in
// rank order; when maxChars > 0, passages past the budget are dropped and a first passage
// longer than the budget is cut.
func BuildPrompt(question string, passages []string, maxChars int) string {
	var b strings.Builder
	b.WriteString("You are an academic assistant. Use the context below to answer the question.\n")
	b.WriteString("Answer factually and clearly, avoid unrelated details.\n\n")
	b.WriteString("Context:\n")
	b.WriteString(joinContext(passages, maxChars))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")
	return b.String()
}

func joinContext(passages []string, maxChars int) string {
	if maxChars <= 0 {
		return strings.Join(passages, " ")
	}
	var b strings.Builder
	used := 0
	for i, p := range passages {
		n := len([]rune(p))
		sep := 0
		if i > 0 {
			sep = 1
		}
		if used+sep+n > maxChars {
			if i == 0 {
				b.WriteString(string([]rune(p)[:maxChars]))
			}
			break
		}
		if sep == 1 {
			b.WriteByte(' ')
		}
		b.WriteString(p)
		used += sep + n
	}
	return b.String()
}
