package usecase

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/replybot/backend/internal/domain"
)

// DefaultIntentThreshold is the minimum similarity to any exemplar that counts as purchase intent
const DefaultIntentThreshold = 0.8

// DefaultPurchaseExemplars are the canonical purchase phrases
var DefaultPurchaseExemplars = []string{
	"buy",
	"order",
	"purchase",
	"i want to buy",
	"how to buy",
	"can i order",
	"where to buy",
}

// IntentConfig holds configuration for the intent classifier
type IntentConfig struct {
	Threshold float64
	Exemplars []string
}

// IntentClassifier decides whether a message expresses purchase intent by
// comparing its embedding with the embeddings of the exemplar phrases.
type IntentClassifier struct {
	encoder   domain.Encoder
	threshold float64
	phrases   []string
	logger    *zap.Logger

	initMu    sync.Mutex
	exemplars atomic.Pointer[[]domain.Vector]
}

// NewIntentClassifier creates a classifier. Exemplars are encoded on Warmup or
// on the first classification, whichever comes first.
func NewIntentClassifier(encoder domain.Encoder, config IntentConfig, logger *zap.Logger) *IntentClassifier {
	threshold := config.Threshold
	if threshold <= 0 {
		// zero means unset
		if threshold < 0 {
			logger.Warn("negative intent threshold replaced with default",
				zap.Float64("configured", threshold),
				zap.Float64("threshold", DefaultIntentThreshold),
			)
		}
		threshold = DefaultIntentThreshold
	}

	phrases := config.Exemplars
	if len(phrases) == 0 {
		phrases = DefaultPurchaseExemplars
	}

	return &IntentClassifier{
		encoder:   encoder,
		threshold: threshold,
		phrases:   append([]string(nil), phrases...),
		logger:    logger,
	}
}

// Threshold returns the decision threshold in use
func (c *IntentClassifier) Threshold() float64 {
	return c.threshold
}

// Warmup encodes the exemplar set so the first customer message does not pay for it
func (c *IntentClassifier) Warmup(ctx context.Context) error {
	_, err := c.exemplarVectors(ctx)
	return err
}

// HasPurchaseIntent reports whether the best exemplar similarity reaches the threshold
func (c *IntentClassifier) HasPurchaseIntent(ctx context.Context, text string) (bool, error) {
	_, intent, err := c.Classify(ctx, text)
	return intent, err
}

// Classify returns the intent score of text together with the decision
func (c *IntentClassifier) Classify(ctx context.Context, text string) (float64, bool, error) {
	score, err := c.Score(ctx, text)
	if err != nil {
		return 0, false, err
	}

	c.logger.Debug("purchase intent scored",
		zap.Float64("score", score),
		zap.Float64("threshold", c.threshold),
	)

	return score, score >= c.threshold, nil
}

// Score returns the maximum cosine similarity between text and the exemplars
func (c *IntentClassifier) Score(ctx context.Context, text string) (float64, error) {
	exemplars, err := c.exemplarVectors(ctx)
	if err != nil {
		return 0, err
	}

	query, err := EncodeQuery(ctx, c.encoder, text)
	if err != nil {
		return 0, err
	}

	best := -1.0
	for _, exemplar := range exemplars {
		sim, err := domain.CosineSimilarity(query, exemplar)
		if err != nil {
			return 0, err
		}
		if sim > best {
			best = sim
		}
	}
	return best, nil
}

// exemplarVectors returns the encoded exemplars, encoding them once.
// A failed attempt is not remembered so a later call can retry.
func (c *IntentClassifier) exemplarVectors(ctx context.Context) ([]domain.Vector, error) {
	if v := c.exemplars.Load(); v != nil {
		return *v, nil
	}

	c.initMu.Lock()
	defer c.initMu.Unlock()

	if v := c.exemplars.Load(); v != nil {
		return *v, nil
	}

	texts := make([]string, len(c.phrases))
	for i, phrase := range c.phrases {
		texts[i] = queryText(phrase)
	}

	vectors, err := encodeAll(ctx, c.encoder, texts)
	if err != nil {
		c.logger.Error("encode purchase exemplars", zap.Error(err))
		return nil, err
	}

	c.exemplars.Store(&vectors)
	c.logger.Info("purchase exemplars encoded", zap.Int("count", len(vectors)))
	return vectors, nil
}
