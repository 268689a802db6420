package embedding

import (
	"encoding/json"
	"fmt"

	"github.com/replybot/backend/internal/domain"
)

// teiRequest is the body of text-embeddings-inference POST /embed
type teiRequest struct {
	Inputs    []string `json:"inputs"`
	Normalize bool     `json:"normalize"`
	Truncate  bool     `json:"truncate"`
}

// openAIRequest is the body of an OpenAI compatible POST /embeddings
type openAIRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// encodeRequest builds the request path and body for provider
func encodeRequest(provider, model string, texts []string) (string, []byte, error) {
	switch provider {
	case ProviderOpenAI:
		body, err := json.Marshal(openAIRequest{Model: model, Input: texts})
		return "/embeddings", body, err
	default:
		body, err := json.Marshal(teiRequest{Inputs: texts, Normalize: true, Truncate: true})
		return "/embed", body, err
	}
}

// decodeResponse converts a runtime response into vectors ordered like the request
func decodeResponse(provider string, body []byte, want int) ([]domain.Vector, error) {
	switch provider {
	case ProviderOpenAI:
		return decodeOpenAI(body, want)
	default:
		return decodeTEI(body, want)
	}
}

func decodeTEI(body []byte, want int) ([]domain.Vector, error) {
	var raw [][]float32
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(raw) != want {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(raw), want)
	}

	vectors := make([]domain.Vector, len(raw))
	for i, v := range raw {
		vectors[i] = domain.Vector(v)
	}
	return vectors, nil
}

// decodeOpenAI places each embedding by its index field; the data array is not
// guaranteed to be ordered.
func decodeOpenAI(body []byte, want int) ([]domain.Vector, error) {
	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Data) != want {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), want)
	}

	vectors := make([]domain.Vector, want)
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= want {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		if vectors[item.Index] != nil {
			return nil, fmt.Errorf("duplicate embedding index %d", item.Index)
		}
		vectors[item.Index] = domain.Vector(item.Embedding)
	}
	return vectors, nil
}

// checkDimensions rejects empty vectors and mixed dimensions within one result
func checkDimensions(vectors []domain.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: empty embedding at %d", domain.ErrEncodingFailed, i)
		}
		if len(v) != dim {
			return fmt.Errorf("%w: %w: %d vs %d", domain.ErrEncodingFailed, domain.ErrDimensionMismatch, len(v), dim)
		}
	}
	return nil
}
