// Package llm provides the OpenAI-compatible transport used by the RAG core
// for embeddings and chat completions. It adapts the external API to the
// narrow Embedder/Completer capabilities consumed by internal/rag, wrapping
// provider failures in stable sentinel errors so the HTTP layer can map them
// without inspecting transport details.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/farmassist/go-pharmacy-backend/internal/rag"
)

// Sentinel errors for provider failures. Wrapped around the underlying API
// error so errors.Is works at any layer above.
var (
	ErrEmbeddingProvider  = errors.New("embedding provider error")
	ErrCompletionProvider = errors.New("completion provider error")
)

// Config holds the provider settings.
type Config struct {
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	ChatModel      string
	Dimensions     int
	Timeout        time.Duration
}

// Client is an OpenAI-compatible embeddings + chat-completions client.
// It implements rag.Embedder and rag.Completer.
type Client struct {
	api        *openai.Client
	embedModel openai.EmbeddingModel
	chatModel  string
	dimensions int
	log        zerolog.Logger
}

// NewClient creates the provider client. The timeout bounds every request at
// this boundary; values <= 0 default to 30 seconds.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &Client{
		api:        openai.NewClientWithConfig(clientCfg),
		embedModel: openai.EmbeddingModel(cfg.EmbeddingModel),
		chatModel:  cfg.ChatModel,
		dimensions: cfg.Dimensions,
		log:        log,
	}
}

// EmbedBatch implements rag.Embedder. All texts go out in a single request;
// the provider returns vectors in input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          c.embedModel,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if c.dimensions > 0 {
		req.Dimensions = c.dimensions
	}

	start := time.Now()
	resp, err := c.api.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, wrapAPIError("embedding", err, ErrEmbeddingProvider)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs: %w",
			len(resp.Data), len(texts), ErrEmbeddingProvider)
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	c.log.Debug().
		Int("texts", len(texts)).
		Int("tokens", resp.Usage.TotalTokens).
		Dur("took", time.Since(start)).
		Msg("embedding batch completed")
	return out, nil
}

// Complete implements rag.Completer. The prompt message sequence is sent as-is
// and the first choice's content is returned verbatim.
func (c *Client) Complete(ctx context.Context, msgs []rag.PromptMessage) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.chatModel,
		Messages: make([]openai.ChatCompletionMessage, len(msgs)),
	}
	for i, m := range msgs {
		req.Messages[i] = openai.ChatCompletionMessage{
			Role:    toAPIRole(m.Role),
			Content: m.Content,
		}
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", wrapAPIError("completion", err, ErrCompletionProvider)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices: %w", ErrCompletionProvider)
	}
	c.log.Debug().
		Int("turns", len(msgs)).
		Int("tokens", resp.Usage.TotalTokens).
		Dur("took", time.Since(start)).
		Msg("chat completion finished")
	return resp.Choices[0].Message.Content, nil
}

// toAPIRole maps prompt roles onto the provider's role strings. The names
// coincide today; the mapping keeps the core decoupled from the SDK.
func toAPIRole(role string) string {
	switch strings.ToLower(role) {
	case rag.RoleSystem:
		return openai.ChatMessageRoleSystem
	case rag.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

// wrapAPIError extracts a readable message from the provider error and wraps
// it with the given sentinel.
func wrapAPIError(op string, err error, sentinel error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("%s API error %d: %s: %w", op, reqErr.HTTPStatusCode, detail, sentinel)
		}
		return fmt.Errorf("%s API error %d: %s: %w", op, reqErr.HTTPStatusCode, string(reqErr.Body), sentinel)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s API error %d: %s: %w", op, apiErr.HTTPStatusCode, apiErr.Message, sentinel)
	}
	return fmt.Errorf("%s request failed: %v: %w", op, err, sentinel)
}

// extractDetail pulls a "detail" field out of a JSON error body when present
// (several OpenAI-compatible providers use this shape).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
