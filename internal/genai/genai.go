// Package genai provides GenAI-enhanced operations using OpenAI API.
//
// It exposes plain text completion (system + user prompt), text embeddings and
// JSON-schema constrained structured output, which is everything the check-in
// flow and the sentiment report need from a language model.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// Default model configuration
const (
	DefaultModel          = "gpt-4o"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultTemperature    = 0.8
	DefaultMaxTokens      = 1000
	// maxEmbeddingBatch bounds the number of inputs per embeddings request
	maxEmbeddingBatch = 512
)

// Error variables for better error handling and testability
var (
	ErrMissingAPIKey       = errors.New("OPENAI_API_KEY not set")
	ErrNoChoicesReturned   = errors.New("no choices returned")
	ErrNoEmbeddingReturned = errors.New("no embedding returned")
	ErrEmptyStructuredText = errors.New("structured response contained no output text")
)

// chatService defines minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// embeddingService defines minimal interface for embeddings.
type embeddingService interface {
	New(ctx context.Context, params openai.EmbeddingNewParams, opts ...option.RequestOption) (*openai.CreateEmbeddingResponse, error)
}

// responseService defines minimal interface for the Responses API.
type responseService interface {
	New(ctx context.Context, params responses.ResponseNewParams, opts ...option.RequestOption) (*responses.Response, error)
}

// ClientInterface is what the rest of the application depends on.
type ClientInterface interface {
	GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
	GenerateStructured(ctx context.Context, req StructuredRequest, out any) error
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Temperature    float64
	MaxTokens      int
	MaxRetries     int
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithEmbeddingModel sets the embedding model.
func WithEmbeddingModel(model string) Option {
	return func(o *Opts) { o.EmbeddingModel = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxTokens sets the completion token ceiling.
func WithMaxTokens(n int) Option {
	return func(o *Opts) { o.MaxTokens = n }
}

// WithMaxRetries sets how many times transient failures are retried.
func WithMaxRetries(n int) Option {
	return func(o *Opts) { o.MaxRetries = n }
}

// Client wraps the OpenAI chat completion, embedding and responses services.
type Client struct {
	chat           chatService
	embeddings     embeddingService
	responses      responseService
	model          string
	embeddingModel string
	temperature    float64
	maxTokens      int
	maxRetries     int
}

// NewClient initializes a new GenAI client. The API key comes from WithAPIKey
// or, failing that, the OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:          DefaultModel,
		EmbeddingModel: DefaultEmbeddingModel,
		Temperature:    DefaultTemperature,
		MaxTokens:      DefaultMaxTokens,
		MaxRetries:     defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		slog.Error("GenAI.NewClient: API key not set")
		return nil, ErrMissingAPIKey
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)

	slog.Debug("GenAI.NewClient: client created", "model", cfg.Model, "embeddingModel", cfg.EmbeddingModel, "baseURLSet", cfg.BaseURL != "")
	return &Client{
		chat:           &cli.Chat.Completions,
		embeddings:     &cli.Embeddings,
		responses:      &cli.Responses,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		maxRetries:     cfg.MaxRetries,
	}, nil
}

// GeneratePrompt generates a response based on the provided system and user prompts.
func (c *Client) GeneratePrompt(systemPrompt, userPrompt string) (string, error) {
	return c.GeneratePromptWithContext(context.Background(), systemPrompt, userPrompt)
}

// GeneratePromptWithContext generates a response from a system and a user prompt.
func (c *Client) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userPrompt))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(int64(c.maxTokens)),
	}

	resp, err := withRetry(ctx, c.maxRetries, func() (*openai.ChatCompletion, error) {
		return c.chat.New(ctx, params)
	})
	if err != nil {
		slog.Error("GenAI.GeneratePromptWithContext: chat completion failed", "error", err, "model", c.model)
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		slog.Warn("GenAI.GeneratePromptWithContext: no choices returned", "model", c.model)
		return "", ErrNoChoicesReturned
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	slog.Debug("GenAI.GeneratePromptWithContext: completion received", "model", c.model, "length", len(content))
	return content, nil
}

// Embed returns the embedding vector of a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one embedding per input text, in input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbeddingBatch {
		end := min(start+maxEmbeddingBatch, len(texts))
		batch, err := c.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding texts %d-%d: %w", start, end-1, err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (c *Client) embedChunk(ctx context.Context, texts []string) ([][]float64, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(c.embeddingModel),
	}
	resp, err := withRetry(ctx, c.maxRetries, func() (*openai.CreateEmbeddingResponse, error) {
		return c.embeddings.New(ctx, params)
	})
	if err != nil {
		slog.Error("GenAI.EmbedBatch: embeddings request failed", "error", err, "model", c.embeddingModel, "count", len(texts))
		return nil, err
	}
	if resp == nil || len(resp.Data) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Data)
		}
		slog.Warn("GenAI.EmbedBatch: embedding count mismatch", "expected", len(texts), "got", got)
		return nil, ErrNoEmbeddingReturned
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vectors := make([][]float64, len(data))
	for i, d := range data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// StructuredRequest describes a JSON-schema constrained generation.
type StructuredRequest struct {
	SchemaName   string
	Description  string
	Schema       map[string]interface{}
	SystemPrompt string
	UserPrompt   string
}

// GenerateStructured asks the model for JSON matching req.Schema and decodes it into out.
func (c *Client) GenerateStructured(ctx context.Context, req StructuredRequest, out any) error {
	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        req.SchemaName,
			Schema:      req.Schema,
			Strict:      openai.Bool(true),
			Description: openai.String(req.Description),
			Type:        "json_schema",
		},
	}
	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(int64(c.maxTokens)),
		Instructions:    openai.String(req.SystemPrompt),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(req.UserPrompt, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := withRetry(ctx, c.maxRetries, func() (*responses.Response, error) {
		return c.responses.New(ctx, params)
	})
	if err != nil {
		slog.Error("GenAI.GenerateStructured: request failed", "error", err, "schema", req.SchemaName)
		return err
	}
	if resp == nil {
		return ErrEmptyStructuredText
	}
	if err := DecodeModelJSON(resp.OutputText(), out); err != nil {
		return fmt.Errorf("decode %s: %w", req.SchemaName, err)
	}
	return nil
}

// DecodeModelJSON unmarshals JSON from a model response, tolerating code fences
// and surrounding prose around a single JSON object.
func DecodeModelJSON(outputText string, v any) error {
	s := strings.TrimSpace(outputText)
	if s == "" {
		return ErrEmptyStructuredText
	}
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return fmt.Errorf("no JSON object found in model output")
	}
	return json.Unmarshal([]byte(s[start:end+1]), v)
}
