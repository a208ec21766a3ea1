package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/recall-backend/internal/platform/envutil"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

// Client speaks the OpenAI-compatible dialect of the HF router (or any
// compatible endpoint). It performs single attempts only; retry and model
// fallback policy belongs to the callers, driven by the classified errors
// this client returns.
type Client interface {
	Chat(ctx context.Context, model string, messages []Message, opts ChatOptions) (string, error)
	Embeddings(ctx context.Context, model string, inputs []string) ([][]float32, error)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatOptions struct {
	Temperature float64
	MaxTokens   int
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(log *logger.Logger) (Client, error) {
	apiKey := envutil.String("LLM_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("missing LLM_API_KEY")
	}
	baseURL := strings.TrimRight(envutil.String("LLM_BASE_URL", "https://router.huggingface.co/v1"), "/")
	timeoutSec := envutil.Int("LLM_TIMEOUT_SECONDS", 120)

	return &client{
		log:        log.With("client", "LLMClient"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

func (c *client) doOnce(ctx context.Context, path, model string, body, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return &ProviderError{Kind: KindOther, Model: model, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return &ProviderError{Kind: KindOther, Model: model, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Kind: KindOther, Model: model, Err: err}
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return &ProviderError{Kind: KindOther, Model: model, StatusCode: resp.StatusCode, Err: readErr}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{
			Kind:       Classify(resp.StatusCode, string(raw)),
			Model:      model,
			StatusCode: resp.StatusCode,
			Body:       truncateBody(string(raw)),
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ProviderError{Kind: KindOther, Model: model, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *client) Chat(ctx context.Context, model string, messages []Message, opts ChatOptions) (string, error) {
	req := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	var resp chatResponse
	if err := c.doOnce(ctx, "/chat/completions", model, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Kind: KindOther, Model: model, Body: "empty choices"}
	}
	return resp.Choices[0].Message.Content, nil
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *client) Embeddings(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	req := embeddingsRequest{Model: model, Input: inputs}
	var resp embeddingsResponse
	if err := c.doOnce(ctx, "/embeddings", model, req, &resp); err != nil {
		return nil, err
	}
	out := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = vec
		}
	}
	for i := range out {
		if out[i] == nil {
			return nil, &ProviderError{Kind: KindOther, Model: model, Body: "missing embedding index " + strconv.Itoa(i)}
		}
	}
	return out, nil
}

func truncateBody(s string) string {
	const max = 512
	if len(s) > max {
		return s[:max]
	}
	return s
}
