package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/replybot/backend/internal/domain"
	"github.com/replybot/backend/internal/metrics"
)

// The e5 embedding space is asymmetric: customer utterances are encoded as
// queries and catalog entries as passages.
const (
	QueryPrefix   = "query: "
	PassagePrefix = "passage: "
)

func queryText(text string) string {
	return QueryPrefix + strings.TrimSpace(text)
}

func passageText(text string) string {
	return PassagePrefix + strings.TrimSpace(text)
}

// encodeAll runs one batch through the encoder and checks that every input got a vector.
func encodeAll(ctx context.Context, encoder domain.Encoder, texts []string) ([]domain.Vector, error) {
	start := time.Now()
	vectors, err := encoder.Encode(ctx, texts)
	metrics.EncodeDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, domain.ErrEncodingFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrEncodingFailed, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEncodingFailed, len(vectors), len(texts))
	}
	return vectors, nil
}

// EncodeQuery encodes a single customer utterance with the query prefix.
func EncodeQuery(ctx context.Context, encoder domain.Encoder, text string) (domain.Vector, error) {
	vectors, err := encodeAll(ctx, encoder, []string{queryText(text)})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EncodePassages encodes catalog texts with the passage prefix, preserving order.
func EncodePassages(ctx context.Context, encoder domain.Encoder, texts []string) ([]domain.Vector, error) {
	if len(texts) == 0 {
		return []domain.Vector{}, nil
	}
	prefixed := make([]string, len(texts))
	for i, text := range texts {
		prefixed[i] = passageText(text)
	}
	return encodeAll(ctx, encoder, prefixed)
}
