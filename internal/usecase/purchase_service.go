package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/replybot/backend/internal/domain"
	"github.com/replybot/backend/internal/metrics"
)

// PurchaseService turns a customer message into a purchase reply.
// Flow: detect intent -> load catalog -> match product -> compose
type PurchaseService struct {
	classifier *IntentClassifier
	matcher    *MatchingService
	catalog    domain.CatalogRepository
	picker     Picker
	logger     *zap.Logger
}

// NewPurchaseService creates a new purchase service with dependencies
func NewPurchaseService(
	classifier *IntentClassifier,
	matcher *MatchingService,
	catalog domain.CatalogRepository,
	picker Picker,
	logger *zap.Logger,
) *PurchaseService {
	return &PurchaseService{
		classifier: classifier,
		matcher:    matcher,
		catalog:    catalog,
		picker:     picker,
		logger:     logger,
	}
}

// Compose decides the reply for one message. A NoIntent result means the
// caller should defer to the general assistant. Encoder and catalog failures
// are returned as errors rather than folded into NoIntent.
func (s *PurchaseService) Compose(ctx context.Context, merchantID, text string) (*domain.ComposedResponse, error) {
	resp, _, err := s.compose(ctx, merchantID, text, false)
	return resp, err
}

// ComposeExplained is Compose that also reports the intent score and every
// product accepted by the matcher defaults, taken from the same evaluation.
// Candidates stay empty when there is no intent or no eligible product.
func (s *PurchaseService) ComposeExplained(ctx context.Context, merchantID, text string) (*domain.ComposedResponse, *domain.Explanation, error) {
	return s.compose(ctx, merchantID, text, true)
}

func (s *PurchaseService) compose(
	ctx context.Context,
	merchantID, text string,
	explain bool,
) (*domain.ComposedResponse, *domain.Explanation, error) {
	merchantID = strings.TrimSpace(merchantID)
	if merchantID == "" {
		return nil, nil, domain.ErrInvalidRequest
	}

	log := s.logger.With(zap.String("merchant_id", merchantID))

	score, intent, err := s.classifier.Classify(ctx, text)
	if err != nil {
		metrics.PipelineFailures.WithLabelValues("intent").Inc()
		return nil, nil, err
	}

	var explanation *domain.Explanation
	if explain {
		explanation = &domain.Explanation{
			IntentScore:     score,
			IntentThreshold: s.classifier.Threshold(),
			Candidates:      []domain.ProductMatch{},
		}
	}

	if !intent {
		return s.finish(log, domain.NoIntent()), explanation, nil
	}

	products, err := s.catalog.ListPurchasableProducts(ctx, merchantID)
	if err != nil {
		metrics.PipelineFailures.WithLabelValues("catalog").Inc()
		if !errors.Is(err, domain.ErrCatalogUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrCatalogUnavailable, err)
		}
		return nil, nil, err
	}

	products = eligibleProducts(products)
	if len(products) == 0 {
		log.Info("purchase intent without catalog")
		return s.finish(log, domain.NoIntent()), explanation, nil
	}

	names := make([]string, len(products))
	for i, p := range products {
		names[i] = p.Name
	}

	scored, err := s.matcher.ScoreProducts(ctx, text, names)
	if err != nil {
		metrics.PipelineFailures.WithLabelValues("match").Inc()
		return nil, nil, err
	}

	opts := s.matcher.Defaults()
	if explain {
		all := opts
		all.TopK = len(names)
		explanation.Candidates = s.matcher.SelectMatches(text, scored, all)
	}

	opts.TopK = 1
	if matched := s.matcher.SelectMatches(text, scored, opts); len(matched) > 0 {
		if product, ok := findProduct(products, matched[0].Name); ok {
			resp := &domain.ComposedResponse{
				Kind:        domain.KindMatchedProduct,
				PurchaseURL: strings.TrimSpace(product.PurchaseURL),
			}
			if len(product.Images) > 0 {
				resp.ImageURL = product.Images[s.picker.Intn(len(product.Images))]
				resp.HasImage = true
			}
			return s.finish(log, resp), explanation, nil
		}
	}

	return s.finish(log, &domain.ComposedResponse{
		Kind:             domain.KindUnmatchedIntent,
		SuggestedProduct: names[s.picker.Intn(len(names))],
	}), explanation, nil
}

func (s *PurchaseService) finish(log *zap.Logger, resp *domain.ComposedResponse) *domain.ComposedResponse {
	metrics.ComposedResponses.WithLabelValues(string(resp.Kind)).Inc()
	log.Debug("purchase reply composed",
		zap.String("kind", string(resp.Kind)),
		zap.String("purchase_url", resp.PurchaseURL),
		zap.String("suggested_product", resp.SuggestedProduct),
	)
	return resp
}

// eligibleProducts drops entries without a name or purchase URL
func eligibleProducts(products []domain.Product) []domain.Product {
	eligible := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if p.Eligible() {
			eligible = append(eligible, p)
		}
	}
	return eligible
}

// findProduct returns the first product with the given name
func findProduct(products []domain.Product, name string) (domain.Product, bool) {
	for _, p := range products {
		if p.Name == name {
			return p, true
		}
	}
	return domain.Product{}, false
}
