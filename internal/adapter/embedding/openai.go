package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	openAIBaseURL = "https://api.openai.com/v1"
	voyageBaseURL = "https://api.voyageai.com/v1"
)

// OpenAIEmbedder talks to any endpoint that speaks the OpenAI /embeddings
// wire format. Voyage AI is served through the same client.
type OpenAIEmbedder struct {
	provider  string
	apiKey    string
	model     string
	baseURL   string
	dimension int
	client    *http.Client
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Usage embeddingUsage  `json:"usage"`
	Error *apiError       `json:"error,omitempty"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func NewOpenAIEmbedder(apiKeyEnv, model, baseURL string, dimension int) (*OpenAIEmbedder, error) {
	if baseURL == "" {
		baseURL = openAIBaseURL
	}
	return newCompatibleEmbedder("openai", apiKeyEnv, model, baseURL, dimension)
}

func NewVoyageEmbedder(apiKeyEnv, model, baseURL string, dimension int) (*OpenAIEmbedder, error) {
	if baseURL == "" {
		baseURL = voyageBaseURL
	}
	return newCompatibleEmbedder("voyage", apiKeyEnv, model, baseURL, dimension)
}

func newCompatibleEmbedder(provider, apiKeyEnv, model, baseURL string, dimension int) (*OpenAIEmbedder, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}

	if dimension <= 0 {
		dimension = knownDimension(model)
	}

	return &OpenAIEmbedder{
		provider:  provider,
		apiKey:    apiKey,
		model:     model,
		baseURL:   baseURL,
		dimension: dimension,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

func knownDimension(model string) int {
	switch model {
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	case "text-embedding-3-large":
		return 3072
	case "voyage-3-large", "voyage-3", "voyage-3.5":
		return 1024
	case "voyage-3-lite", "voyage-3.5-lite":
		return 512
	case "gemini-embedding-exp-03-07", "gemini-embedding-001":
		return 3072
	case "text-embedding-004":
		return 768
	}
	return 1536
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) != 1 || embeddings[0] == nil {
		return nil, &ProviderError{Provider: e.provider, Message: "response contained no embedding"}
	}
	if len(embeddings[0]) != e.dimension {
		return nil, &ProviderError{
			Provider: e.provider,
			Message:  fmt.Sprintf("dimension mismatch: expected %d, got %d", e.dimension, len(embeddings[0])),
		}
	}
	return embeddings[0], nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := embeddingRequest{
		Input: texts,
		Model: e.model,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: e.provider, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: e.provider, Message: "failed to read response", Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(e.provider, resp.StatusCode, body)
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, &ProviderError{
			Provider: e.provider,
			Message:  fmt.Sprintf("failed to parse response (body: %s)", preview(body)),
			Cause:    err,
		}
	}

	if embResp.Error != nil {
		return nil, &ProviderError{
			Provider:    e.provider,
			Message:     embResp.Error.Message,
			RateLimited: looksRateLimited(embResp.Error.Message),
		}
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range embResp.Data {
		if data.Index < len(embeddings) {
			embeddings[data.Index] = data.Embedding
		}
	}

	return embeddings, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}
