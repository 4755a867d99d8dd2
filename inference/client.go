// Package inference wraps the external completion API behind the rate
// limiter and request queue. It provides two model tiers: a fast tier
// for short coaching messages and a deep tier for session analysis.
// Deep-tier calls fall back to the fast tier when the configured deep
// model has been retired by the provider.
package inference

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/sagars2004/Flowstate/core"
	"github.com/sagars2004/Flowstate/logging"
	"github.com/sagars2004/Flowstate/queue"
	"github.com/sagars2004/Flowstate/ratelimit"
)

// Tier selects which configured model serves a request.
type Tier int

const (
	// TierDeep is the large model for session analysis. Lowest queue
	// priority so real-time coaching is never stuck behind it.
	TierDeep Tier = iota

	// TierFast is the small model for real-time coaching messages
	TierFast
)

// Queue priorities per tier; higher runs first.
const (
	priorityDeep = 0
	priorityFast = 1
)

// fallbackTokenCap bounds the token budget granted to a fast-tier
// fallback standing in for a deep-tier call.
const fallbackTokenCap = 4096

// Message is one turn of a chat exchange.
type Message struct {
	// Role is one of "system", "user", or "assistant"
	Role string `json:"role"`
	// Content is the message text
	Content string `json:"content"`
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: openai.ChatMessageRoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: openai.ChatMessageRoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: openai.ChatMessageRoleAssistant, Content: content}
}

// Options tune a single generation request.
type Options struct {
	// MaxTokens bounds the completion length
	MaxTokens int

	// Temperature controls sampling randomness; zero uses the API default
	Temperature float32
}

// RateLimitStats is a point-in-time snapshot of the throttling state,
// exposed on the health endpoint.
type RateLimitStats struct {
	// AvailableTokens is the current token bucket level
	AvailableTokens int `json:"availableTokens"`

	// QueueSize is the number of requests waiting for admission
	QueueSize int `json:"queueSize"`

	// TimeUntilNextRequest is the wait until the sliding request
	// window has room, zero if a request would be admitted now
	TimeUntilNextRequest time.Duration `json:"timeUntilNextRequest"`
}

// completionAPI is the slice of the provider client this package uses.
// *openai.Client satisfies it; tests substitute a stub.
type completionAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client routes completion calls through the request queue so that
// every outbound call passes admission control exactly once.
type Client struct {
	api     completionAPI
	queue   *queue.Queue
	limiter *ratelimit.Limiter
	logger  *logging.Logger

	fastModel  string
	deepModel  string
	maxRetries int
	timeout    time.Duration

	retryAfter RetryAfterParser
}

// NewClient creates a Client talking to the configured provider
// endpoint. BaseLLMURL overrides the default endpoint for
// OpenAI-compatible local runtimes.
func NewClient(config *core.Config, limiter *ratelimit.Limiter, q *queue.Queue, logger *logging.Logger) *Client {
	apiConfig := openai.DefaultConfig(config.InferenceAPIKey)
	if config.BaseLLMURL != "" {
		apiConfig.BaseURL = config.BaseLLMURL
	}
	return NewClientWithAPI(openai.NewClientWithConfig(apiConfig), config, limiter, q, logger)
}

// NewClientWithAPI creates a Client over an explicit completion API.
// Tests use this to substitute a stub provider.
func NewClientWithAPI(api completionAPI, config *core.Config, limiter *ratelimit.Limiter, q *queue.Queue, logger *logging.Logger) *Client {
	return &Client{
		api:        api,
		queue:      q,
		limiter:    limiter,
		logger:     logger,
		fastModel:  config.FastModel,
		deepModel:  config.DeepModel,
		maxRetries: config.MaxRetries,
		timeout:    config.AITimeout,
		retryAfter: DefaultRetryAfterParser,
	}
}

// SetRetryAfterParser replaces the wait-hint parser. Call before the
// client is shared across goroutines.
func (c *Client) SetRetryAfterParser(parse RetryAfterParser) {
	if parse != nil {
		c.retryAfter = parse
	}
}

// GenerateFast produces a short completion on the fast tier. Used for
// real-time coaching where latency matters more than depth.
func (c *Client) GenerateFast(ctx context.Context, prompt string, opts Options) (string, error) {
	return c.GenerateWithHistory(ctx, []Message{UserMessage(prompt)}, TierFast, opts)
}

// GenerateDeep produces a completion on the deep tier, falling back to
// the fast tier if the deep model has been retired.
func (c *Client) GenerateDeep(ctx context.Context, prompt string, opts Options) (string, error) {
	return c.GenerateWithHistory(ctx, []Message{UserMessage(prompt)}, TierDeep, opts)
}

// GenerateWithHistory runs a full chat exchange on the selected tier.
//
// Deep-tier calls that fail with a retired or unknown model identifier
// are retried once on the fast tier with a doubled token budget, capped
// at fallbackTokenCap, since smaller models tend to produce longer
// completions for analytical prompts. If the fallback also fails, both
// errors are surfaced together.
//
// Rate-limit errors that survive the queue's retries are surfaced after
// honoring the provider's wait hint, so an immediate caller retry does
// not slam the API again.
func (c *Client) GenerateWithHistory(ctx context.Context, messages []Message, tier Tier, opts Options) (string, error) {
	model, priority := c.fastModel, priorityFast
	if tier == TierDeep {
		model, priority = c.deepModel, priorityDeep
	}

	value, err := c.complete(ctx, model, priority, messages, opts.MaxTokens, opts.Temperature)
	if err == nil {
		return value, nil
	}

	if tier == TierDeep && IsModelUnavailable(err) {
		c.logger.Warn("deep model unavailable, falling back to fast tier",
			zap.String("deep_model", c.deepModel),
			zap.String("fast_model", c.fastModel),
			zap.Error(err))

		budget := opts.MaxTokens * 2
		if budget > fallbackTokenCap {
			budget = fallbackTokenCap
		}
		value, fallbackErr := c.complete(ctx, c.fastModel, priorityFast, messages, budget, opts.Temperature)
		if fallbackErr != nil {
			return "", errors.Join(err, fallbackErr)
		}
		return value, nil
	}

	var throttled *RateLimitError
	if errors.As(err, &throttled) && throttled.RetryAfter > 0 {
		select {
		case <-time.After(throttled.RetryAfter):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", err
}

// Stats returns the current rate-limit snapshot.
func (c *Client) Stats() RateLimitStats {
	return RateLimitStats{
		AvailableTokens:      c.limiter.AvailableTokens(),
		QueueSize:            c.queue.Size(),
		TimeUntilNextRequest: c.limiter.TimeUntilNextRequest(),
	}
}

// complete enqueues one provider call and blocks for its terminal
// result. Errors come back already classified.
func (c *Client) complete(ctx context.Context, model string, priority int, messages []Message, maxTokens int, temperature float32) (string, error) {
	request := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toChatMessages(messages),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	enqueued := time.Now()

	return c.queue.Do(ctx, func(_ context.Context) (string, error) {
		queueWait := time.Since(enqueued)
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.api.CreateChatCompletion(callCtx, request)
		if err != nil {
			return "", classifyError(model, err, c.retryAfter)
		}
		if len(resp.Choices) == 0 {
			return "", &InferenceError{Err: errors.New("provider returned no choices")}
		}

		c.logger.Debug("completion finished", logging.CompletionFields(logging.CompletionMetrics{
			Model:            model,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
			Duration:         time.Since(enqueued),
			QueueWait:        queueWait,
		}))
		return resp.Choices[0].Message.Content, nil
	}, queue.Options{Priority: priority, MaxRetries: c.maxRetries})
}

func toChatMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}
