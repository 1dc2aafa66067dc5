// Package genai writes short natural-language summaries with the OpenAI API.
package genai

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/BTreeMap/VisitDesk/internal/models"
)

// DefaultModel is used when no model is configured.
const DefaultModel = openai.ChatModelGPT4oMini

// ErrNoChoicesReturned is returned when the API answers without any choice.
var ErrNoChoicesReturned = errors.New("no choices returned")

// ErrAPIKeyNotSet is returned when neither an option nor OPENAI_API_KEY supplies a key.
var ErrAPIKeyNotSet = errors.New("OPENAI_API_KEY not set")

const digestSystemPrompt = `You help a small clinic review its workload. Given patient counts per weekday for the last seven days, write two or three short sentences for the clinician: name the busiest day and any notable gap. Do not invent numbers. Plain text, no markdown.`

// chatService is the part of the OpenAI chat completions API the client uses.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey string
	Model  string
	Logger *zap.Logger
}

// Option configures Opts.
type Option func(*Opts)

// WithAPIKey overrides the OPENAI_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel selects the chat model.
func WithModel(model string) Option {
	return func(o *Opts) {
		if model != "" {
			o.Model = model
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Opts) { o.Logger = l }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat   chatService
	model  openai.ChatModel
	logger *zap.Logger
}

// NewClient creates a client. The API key comes from WithAPIKey or OPENAI_API_KEY.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Model: string(DefaultModel)}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{chat: &cli.Chat.Completions, model: openai.ChatModel(cfg.Model), logger: cfg.Logger.Named("genai")}, nil
}

// GeneratePrompt returns the model's answer to userPrompt under systemPrompt.
func (c *Client) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		c.logger.Error("GenAI GeneratePrompt failed", zap.String("model", string(c.model)), zap.Error(err))
		return "", errors.Wrap(err, "chat completion")
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	c.logger.Debug("GenAI GeneratePrompt succeeded", zap.String("model", string(c.model)), zap.Duration("elapsed", time.Since(start)))
	return resp.Choices[0].Message.Content, nil
}

// WeeklyDigest summarizes a weekly report. An empty week yields an empty
// digest without calling the API.
func (c *Client) WeeklyDigest(ctx context.Context, counts []models.WeekdayCount) (string, error) {
	if len(counts) == 0 {
		return "", nil
	}
	return c.GeneratePrompt(ctx, digestSystemPrompt, DigestInput(counts))
}

// DigestInput renders counts as the user prompt for WeeklyDigest.
func DigestInput(counts []models.WeekdayCount) string {
	var b strings.Builder
	b.WriteString("Patients per weekday over the last 7 days:\n")
	total := 0
	for _, c := range counts {
		fmt.Fprintf(&b, "%s: %d\n", time.Weekday(c.Weekday), c.Count)
		total += c.Count
	}
	fmt.Fprintf(&b, "Total: %d", total)
	return b.String()
}
