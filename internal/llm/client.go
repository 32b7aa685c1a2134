package llm

import (
	"context"
	"errors"
	"time"

	"futures-llm-agent/internal/errs"
	"futures-llm-agent/internal/model"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
)

const component = "llm"

// Config points the client at one OpenAI-compatible chat-completions
// endpoint. BaseURL is configurable so the same client also serves
// DeepSeek-compatible endpoints (and any other provider speaking the same
// wire protocol) without a provider-specific branch.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int64
}

// Client drives one chat-completion round trip: build the prompt, call the
// endpoint, parse the response.
type Client struct {
	config  Config
	raw     *openai.Client
	prompts *PromptBuilder
}

// New constructs a Client from Config.
func New(cfg Config) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	raw := openai.NewClient(opts...)
	return &Client{
		config:  cfg,
		raw:     &raw,
		prompts: NewPromptBuilder(),
	}
}

// Prompts exposes the client's PromptBuilder so callers that need the
// exact system/user prompt text for their own purposes (audit logging)
// can build it the same way Analyze does, without duplicating the
// prompt logic.
func (c *Client) Prompts() *PromptBuilder {
	return c.prompts
}

// Analyze builds the prompt from the given snapshots and session context,
// calls the chat-completions endpoint, and returns the parsed response.
// Errors returned here are classified: 5xx responses and timeouts from the
// SDK are wrapped as errs.TransientNetwork, anything else as
// errs.LLMUnavailable. Neither this client nor the scheduler wraps the
// call in usdm.WithRetry; the scheduler skips the cycle's decisions on
// any error.
func (c *Client) Analyze(ctx context.Context, snapshots []model.MarketSnapshot, session SessionContext) (ParsedResponse, error) {
	system := c.prompts.SystemPrompt()
	user := c.prompts.UserPrompt(snapshots, session)

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.config.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(c.config.Temperature),
	}
	if c.config.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(c.config.MaxTokens)
	}

	completion, err := c.raw.Chat.Completions.New(ctx, params)
	if err != nil {
		return ParsedResponse{}, classify(err)
	}
	if len(completion.Choices) == 0 {
		return ParsedResponse{}, errs.New(errs.KindLLMMalformed, component, "completion returned no choices")
	}

	content := completion.Choices[0].Message.Content
	log.Debug().Int("symbolCount", len(snapshots)).Int("contentLen", len(content)).Msg("llm response received")

	return ParseResponse(content), nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 500 {
		return errs.Wrap(errs.KindTransientNetwork, component, "llm endpoint returned a server error", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.KindTransientNetwork, component, "llm request timed out", err)
	}
	return errs.Wrap(errs.KindLLMUnavailable, component, "llm request failed", err)
}
