package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/replybot/backend/internal/domain"
)

const fakeDimension = 512

// fakeStopWords are ignored by the fake encoder so short purchase phrases
// land on the same vector as the exemplars.
var fakeStopWords = map[string]bool{
	"i": true, "want": true, "to": true, "the": true, "a": true, "an": true,
	"is": true, "how": true, "can": true, "where": true, "what": true,
	"are": true, "you": true, "me": true, "please": true, "of": true,
}

// fakeEncoder is a deterministic bag-of-words encoder. Every distinct content
// token owns one dimension, so cosine similarity equals token-set overlap.
type fakeEncoder struct {
	mu       sync.Mutex
	vocab    map[string]int
	batches  [][]string
	err      error
	failN    int
	failWhen func(texts []string) bool
}

func newFakeEncoder() *fakeEncoder {
	return &fakeEncoder{vocab: make(map[string]int)}
}

func (f *fakeEncoder) Encode(ctx context.Context, texts []string) ([]domain.Vector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.batches = append(f.batches, append([]string(nil), texts...))
	if f.failN > 0 {
		f.failN--
		return nil, f.err
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.failWhen != nil && f.failWhen(texts) {
		return nil, errors.New("batch rejected")
	}

	out := make([]domain.Vector, len(texts))
	for i, text := range texts {
		text = strings.TrimPrefix(text, QueryPrefix)
		text = strings.TrimPrefix(text, PassagePrefix)

		v := make(domain.Vector, fakeDimension)
		for _, token := range Tokens(text) {
			if fakeStopWords[token] {
				continue
			}
			idx, ok := f.vocab[token]
			if !ok {
				idx = len(f.vocab)
				f.vocab[token] = idx
			}
			v[idx]++
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEncoder) calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.batches...)
}

// fakeCatalog is an in-memory CatalogRepository that records lookups
type fakeCatalog struct {
	mu       sync.Mutex
	products map[string][]domain.Product
	err      error
	lookups  int
}

func (c *fakeCatalog) ListPurchasableProducts(ctx context.Context, merchantID string) ([]domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lookups++
	if c.err != nil {
		return nil, c.err
	}
	return c.products[merchantID], nil
}

// fixedPicker always returns the same index, clamped to n
type fixedPicker int

func (p fixedPicker) Intn(n int) int {
	if int(p) >= n {
		return n - 1
	}
	return int(p)
}
