package usecase

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/replybot/backend/internal/domain"
)

// Matching defaults
const (
	DefaultMatchTopK      = 1
	DefaultMatchThreshold = 0.6
)

// MatchConfig holds configuration for the matching service
type MatchConfig struct {
	TopK               int
	Threshold          float64
	Strict             bool
	EnableDebugLogging bool
}

// MatchingService resolves free text to catalog product names by embedding
// similarity, optionally requiring lexical overlap with the product name.
type MatchingService struct {
	encoder            domain.Encoder
	defaults           domain.MatchOptions
	enableDebugLogging bool
	logger             *zap.Logger
}

// NewMatchingService creates a new matching service with the given configuration.
// A zero threshold is kept as is: together with Strict=false it returns the
// closest name unconditionally.
func NewMatchingService(encoder domain.Encoder, config MatchConfig, logger *zap.Logger) *MatchingService {
	topK := config.TopK
	if topK <= 0 {
		topK = DefaultMatchTopK
	}

	return &MatchingService{
		encoder: encoder,
		defaults: domain.MatchOptions{
			TopK:      topK,
			Threshold: config.Threshold,
			Strict:    config.Strict,
		},
		enableDebugLogging: config.EnableDebugLogging,
		logger:             logger,
	}
}

// Defaults returns the options configured for this service
func (s *MatchingService) Defaults() domain.MatchOptions {
	return s.defaults
}

// MatchProducts returns the names of the best matching products, most similar first
func (s *MatchingService) MatchProducts(
	ctx context.Context,
	text string,
	names []string,
	opts domain.MatchOptions,
) ([]string, error) {
	ranked, err := s.RankProducts(ctx, text, names, opts)
	if err != nil {
		return nil, err
	}

	result := make([]string, len(ranked))
	for i, match := range ranked {
		result[i] = match.Name
	}
	return result, nil
}

// RankProducts scores names against text and returns the accepted candidates
// with their similarity, most similar first. It is ScoreProducts followed by
// SelectMatches.
func (s *MatchingService) RankProducts(
	ctx context.Context,
	text string,
	names []string,
	opts domain.MatchOptions,
) ([]domain.ProductMatch, error) {
	if len(names) == 0 {
		return []domain.ProductMatch{}, nil
	}

	scored, err := s.ScoreProducts(ctx, text, names)
	if err != nil {
		return nil, err
	}
	return s.SelectMatches(text, scored, opts), nil
}

// ScoreProducts encodes text and names in one batch and returns every name with
// its similarity, most similar first. Ties keep list order.
func (s *MatchingService) ScoreProducts(ctx context.Context, text string, names []string) ([]domain.ProductMatch, error) {
	if len(names) == 0 {
		return []domain.ProductMatch{}, nil
	}

	// Query first, passages after, in a single batch.
	texts := make([]string, 0, len(names)+1)
	texts = append(texts, queryText(text))
	for _, name := range names {
		texts = append(texts, passageText(name))
	}

	vectors, err := encodeAll(ctx, s.encoder, texts)
	if err != nil {
		return nil, err
	}
	query, passages := vectors[0], vectors[1:]

	scored := make([]domain.ProductMatch, len(names))
	for i, passage := range passages {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		score, err := domain.CosineSimilarity(query, passage)
		if err != nil {
			return nil, err
		}
		scored[i] = domain.ProductMatch{Name: names[i], Score: score}

		if s.enableDebugLogging {
			s.logger.Debug("product scored",
				zap.String("product", names[i]),
				zap.Float64("score", score),
			)
		}
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].Score > scored[b].Score
	})
	return scored, nil
}

// SelectMatches applies opts to candidates ordered by ScoreProducts.
//
// The top opts.TopK candidates are considered; those below opts.Threshold are
// dropped, and in strict mode so is any candidate none of whose normalized
// tokens appears in the normalized text.
func (s *MatchingService) SelectMatches(text string, scored []domain.ProductMatch, opts domain.MatchOptions) []domain.ProductMatch {
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultMatchTopK
	}
	if topK > len(scored) {
		topK = len(scored)
	}

	result := make([]domain.ProductMatch, 0, topK)
	for _, candidate := range scored[:topK] {
		if candidate.Score < opts.Threshold {
			continue
		}

		matched := SharedTokens(text, candidate.Name)
		if opts.Strict && len(matched) == 0 {
			if s.enableDebugLogging {
				s.logger.Debug("product rejected: no shared token",
					zap.String("product", candidate.Name),
					zap.Float64("score", candidate.Score),
				)
			}
			continue
		}

		candidate.MatchedTokens = matched
		result = append(result, candidate)
	}

	if s.enableDebugLogging {
		s.logger.Debug("products matched",
			zap.Int("candidates", len(scored)),
			zap.Int("accepted", len(result)),
		)
	}

	return result
}
