package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/markdave123-py/docindex/internal/core"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIEmbedder talks to any endpoint that implements the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	dimensions int
}

var _ core.EmbeddingProvider = (*OpenAIEmbedder)(nil)

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAIEmbedder builds a client. dimensions is sent for text-embedding-3 models only.
// Request deadlines come from the caller's context.
func NewOpenAIEmbedder(apiKey, baseURL string, dimensions int, client *http.Client) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is empty")
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &OpenAIEmbedder{
		client:     client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		dimensions: dimensions,
	}, nil
}

func (o *OpenAIEmbedder) EmbedTexts(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := embeddingRequest{Model: model, Input: texts}
	if strings.HasPrefix(model, "text-embedding-3") {
		reqBody.Dimensions = o.dimensions
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, transportError("openai", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError("openai", fmt.Errorf("read response: %w", err))
	}

	var out embeddingResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if decodeErr == nil && out.Error != nil {
			msg = out.Error.Message
		}
		return nil, statusError("openai", resp.StatusCode, errors.New(msg))
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("openai error: %s", out.Error.Message)
	}

	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("openai: %w: %d vectors for %d inputs", core.ErrEmbeddingCountMismatch, len(out.Data), len(texts))
	}
	// Out-of-range indices leave nil slots, which the generator rejects.
	vectors := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			continue
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
