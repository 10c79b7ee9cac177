package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// httpProvider is the shared shape of the OpenAI-like, Voyage-like, and
// Ollama-like backends: POST a JSON body, parse a JSON body, retry
// rate-limited calls with exponential backoff up to maxRetries.
type httpProvider struct {
	name       string
	endpoint   string
	apiKey     string
	model      string
	dims       int
	client     *http.Client
	maxRetries int
}

func newHTTPProvider(name, endpoint, apiKey, model string, dims int) *httpProvider {
	return &httpProvider{
		name:       name,
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		dims:       dims,
		client:     &http.Client{Timeout: 30 * time.Second},
		maxRetries: 5,
	}
}

func (p *httpProvider) Name() string    { return p.name }
func (p *httpProvider) Dimensions() int { return p.dims }

func (p *httpProvider) Embed(text string) ([]float32, error) {
	vs, err := p.EmbedBatch([]string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func (p *httpProvider) EmbedBatch(texts []string) ([][]float32, error) {
	return p.embedBatchContext(context.Background(), texts)
}

func (p *httpProvider) EmbedContext(ctx context.Context, text string) ([]float32, error) {
	vs, err := p.embedBatchContext(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponseItem struct {
	Embedding []float32 `json:"embedding"`
}

type embedResponse struct {
	Data []embedResponseItem `json:"data"`
}

func (p *httpProvider) embedBatchContext(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, &ProviderError{Kind: ErrBadInput, Detail: "failed to marshal request", Err: err}
	}

	var lastErr error
	backoff := 250 * time.Millisecond
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, &ProviderError{Kind: ErrNetwork, Detail: "failed to build request", Err: err}
		}
		req.Header.Set("Content-Type", "application/json")
		if p.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.apiKey)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			lastErr = &ProviderError{Kind: ErrNetwork, Detail: "request failed", Err: err}
			time.Sleep(backoff)
			backoff *= 2
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			lastErr = &ProviderError{Kind: ErrRateLimited, Detail: "rate limited"}
			time.Sleep(backoff)
			backoff *= 2
			continue
		case resp.StatusCode == http.StatusUnauthorized:
			resp.Body.Close()
			return nil, &ProviderError{Kind: ErrUnauthorized, Detail: "unauthorized"}
		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = &ProviderError{Kind: ErrNetwork, Detail: fmt.Sprintf("server error %d", resp.StatusCode)}
			time.Sleep(backoff)
			backoff *= 2
			continue
		case resp.StatusCode >= 400:
			resp.Body.Close()
			return nil, &ProviderError{Kind: ErrBadInput, Detail: fmt.Sprintf("client error %d", resp.StatusCode)}
		}

		var parsed embedResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, &ProviderError{Kind: ErrBadInput, Detail: "failed to decode response", Err: decodeErr}
		}

		out := make([][]float32, len(parsed.Data))
		for i, item := range parsed.Data {
			if len(item.Embedding) != p.dims {
				return nil, &ProviderError{Kind: ErrDimensionMismatch, Detail: fmt.Sprintf("expected %d dims, got %d", p.dims, len(item.Embedding))}
			}
			out[i] = item.Embedding
		}
		return out, nil
	}

	return nil, lastErr
}

// NewOpenAILike constructs an OpenAI-compatible embeddings provider.
func NewOpenAILike(endpoint, apiKey, model string, dims int) Provider {
	return newHTTPProvider("openai", endpoint, apiKey, model, dims)
}

// NewVoyageLike constructs a Voyage-compatible embeddings provider.
func NewVoyageLike(endpoint, apiKey, model string, dims int) Provider {
	return newHTTPProvider("voyage", endpoint, apiKey, model, dims)
}

// NewOllamaLike constructs an Ollama-compatible local embeddings provider.
func NewOllamaLike(endpoint, model string, dims int) Provider {
	return newHTTPProvider("ollama", endpoint, "", model, dims)
}
