package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	openai "github.com/sashabaranov/go-openai"

	"github.com/teemow/meetmate/internal/instrumentation"
	"github.com/teemow/meetmate/internal/logging"
	"github.com/teemow/meetmate/internal/model"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// Reply is the agent's answer to a window: final text, or one or more tool
// calls to run before asking again.
type Reply struct {
	Text      string
	ToolCalls []model.ToolCall
}

// OpenAI is an agent backed by the chat completions API with function
// calling.
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float32
	loc         *time.Location
	now         func() time.Time
	logger      *slog.Logger
	metrics     *instrumentation.Metrics
}

// Option configures an OpenAI agent.
type Option func(*options)

type options struct {
	model       string
	baseURL     string
	httpClient  *http.Client
	temperature float32
	loc         *time.Location
	now         func() time.Time
	logger      *slog.Logger
	metrics     *instrumentation.Metrics
}

// WithModel selects the chat model.
func WithModel(name string) Option {
	return func(o *options) {
		if name != "" {
			o.model = name
		}
	}
}

// WithBaseURL points the client at an OpenAI-compatible API.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(o *options) { o.temperature = t }
}

// WithLocation sets the user's zone shown in the system prompt.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithClock overrides the time source for the system prompt.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// NewOpenAI creates an agent using apiKey.
func NewOpenAI(apiKey string, opts ...Option) *OpenAI {
	o := options{
		model:       DefaultModel,
		temperature: 0.3,
		loc:         time.UTC,
		now:         time.Now,
		logger:      slog.Default(),
		httpClient:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		cfg.BaseURL = strings.TrimRight(o.baseURL, "/")
	}
	cfg.HTTPClient = o.httpClient

	return &OpenAI{
		client:      openai.NewClientWithConfig(cfg),
		model:       o.model,
		temperature: o.temperature,
		loc:         o.loc,
		now:         o.now,
		logger:      o.logger,
		metrics:     o.metrics,
	}
}

// Respond asks the model for the next step given window.
func (a *OpenAI) Respond(ctx context.Context, window []model.Message, tools []mcp.Tool) (*Reply, error) {
	start := time.Now()
	ctx, span := instrumentation.StartSpan(ctx, instrumentation.SpanAgentComplete)

	reply, err := a.respond(ctx, window, tools)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	a.metrics.RecordAgentRequest(ctx, status, time.Since(start))
	instrumentation.EndSpan(span, err)
	return reply, err
}

func (a *OpenAI) respond(ctx context.Context, window []model.Message, tools []mcp.Tool) (*Reply, error) {
	req := openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    toChatMessages(SystemPrompt(a.now(), a.loc), window),
		Temperature: a.temperature,
	}
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
		req.ToolChoice = "auto"
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, &model.ExternalProviderError{Op: "chat completion", Provider: "openai", Err: describeAPIError(err)}
	}
	if len(resp.Choices) == 0 {
		return nil, &model.AgentProtocolError{Op: "chat completion", Err: errors.New("response has no choices")}
	}

	msg := resp.Choices[0].Message
	a.logger.DebugContext(ctx, "agent replied",
		slog.String("model", resp.Model),
		slog.Int("tool_calls", len(msg.ToolCalls)),
		slog.String("finish_reason", string(resp.Choices[0].FinishReason)),
		slog.Int("total_tokens", resp.Usage.TotalTokens))

	reply := &Reply{Text: strings.TrimSpace(msg.Content)}
	for _, tc := range msg.ToolCalls {
		if tc.Type != "" && tc.Type != openai.ToolTypeFunction {
			a.logger.WarnContext(ctx, "ignoring non-function tool call", slog.String("type", string(tc.Type)), logging.CallID(tc.ID))
			continue
		}
		reply.ToolCalls = append(reply.ToolCalls, model.ToolCall{
			ID:        tc.ID,
			Operation: tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return reply, nil
}

// describeAPIError keeps the status code of API errors in the message.
func describeAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("status %d: %w", apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("status %d: %w", reqErr.HTTPStatusCode, err)
	}
	return err
}
