package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/replybot/backend/internal/domain"
	"github.com/replybot/backend/internal/usecase"
)

// HandlerConfig holds request-level settings for the handlers
type HandlerConfig struct {
	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	purchase   *usecase.PurchaseService
	classifier *usecase.IntentClassifier
	matcher    *usecase.MatchingService
	processed  domain.CacheRepository
	config     HandlerConfig
	logger     *zap.Logger
}

// NewHandler creates a new HTTP handler. processed may be nil, which turns
// message de-duplication off.
func NewHandler(
	purchase *usecase.PurchaseService,
	classifier *usecase.IntentClassifier,
	matcher *usecase.MatchingService,
	processed domain.CacheRepository,
	config HandlerConfig,
	logger *zap.Logger,
) *Handler {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Second
	}
	if config.IdempotencyTTL <= 0 {
		config.IdempotencyTTL = 24 * time.Hour
	}

	return &Handler{
		purchase:   purchase,
		classifier: classifier,
		matcher:    matcher,
		processed:  processed,
		config:     config,
		logger:     logger,
	}
}

// RespondRequest is the body of POST /api/v1/messages/respond
type RespondRequest struct {
	MerchantID string `json:"merchantId" binding:"required"`
	Text       string `json:"text"`
	MessageID  string `json:"messageId"`
	Explain    bool   `json:"explain"`
}

// RespondResponse is the reply decision for one customer message
type RespondResponse struct {
	Kind             domain.ResponseKind `json:"kind,omitempty"`
	Response         string              `json:"response"`
	PurchaseURL      string              `json:"purchaseUrl,omitempty"`
	ImageURL         string              `json:"imageUrl,omitempty"`
	SuggestedProduct string              `json:"suggestedProduct,omitempty"`
	Fallback         bool                `json:"fallback"`
	FallbackText     string              `json:"fallbackText,omitempty"`
	FallbackBlocked  bool                `json:"fallbackBlocked,omitempty"`
	Duplicate        bool                `json:"duplicate"`
	Explanation      *domain.Explanation `json:"explanation,omitempty"`
}

// MatchRequest is the body of POST /api/v1/products/match
type MatchRequest struct {
	Text      string   `json:"text"`
	Names     []string `json:"names"`
	TopK      *int     `json:"topK"`
	Threshold *float64 `json:"threshold"`
	Strict    *bool    `json:"strict"`
}

// IntentRequest is the body of POST /api/v1/intent
type IntentRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "replybot-backend",
		"version": "1.0.0",
	})
}

// RespondToMessage decides whether a customer message gets a purchase reply
// or is handed back to the caller for the general assistant.
func (h *Handler) RespondToMessage(c *gin.Context) {
	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if strings.TrimSpace(req.MerchantID) == "" {
		h.badRequest(c, errors.New("merchantId must not be blank"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.config.RequestTimeout)
	defer cancel()

	log := h.logger.With(
		zap.String("request_id", c.GetString(requestIDKey)),
		zap.String("merchant_id", req.MerchantID),
		zap.String("message_id", req.MessageID),
	)

	key, claimed := h.claimMessage(ctx, log, req)
	if key != "" && !claimed {
		log.Info("duplicate message skipped")
		c.JSON(http.StatusOK, RespondResponse{Duplicate: true})
		return
	}

	var (
		resp        *domain.ComposedResponse
		explanation *domain.Explanation
		err         error
	)
	if req.Explain {
		resp, explanation, err = h.purchase.ComposeExplained(ctx, req.MerchantID, req.Text)
	} else {
		resp, err = h.purchase.Compose(ctx, req.MerchantID, req.Text)
	}
	if err != nil {
		if claimed {
			h.releaseMessage(log, key)
		}
		h.writeError(c, log, err)
		return
	}

	out := RespondResponse{
		Kind:             resp.Kind,
		Response:         resp.Render(),
		PurchaseURL:      resp.PurchaseURL,
		ImageURL:         resp.ImageURL,
		SuggestedProduct: resp.SuggestedProduct,
		Explanation:      explanation,
	}

	if resp.Kind == domain.KindNoIntent {
		out.Fallback = true
		sanitized, err := usecase.SanitizeInput(req.Text)
		if err != nil {
			log.Warn("fallback text blocked", zap.Error(err))
			out.FallbackBlocked = true
		} else {
			out.FallbackText = sanitized
		}
	}

	c.JSON(http.StatusOK, out)
}

// MatchProducts exposes the product matcher for threshold tuning
func (h *Handler) MatchProducts(c *gin.Context) {
	var req MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	opts := h.matcher.Defaults()
	if req.TopK != nil {
		opts.TopK = *req.TopK
	}
	if req.Threshold != nil {
		opts.Threshold = *req.Threshold
	}
	if req.Strict != nil {
		opts.Strict = *req.Strict
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.config.RequestTimeout)
	defer cancel()

	matches, err := h.matcher.RankProducts(ctx, req.Text, req.Names, opts)
	if err != nil {
		h.writeError(c, h.logger, err)
		return
	}

	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Name
	}

	c.JSON(http.StatusOK, gin.H{
		"matches": names,
		"scores":  matches,
	})
}

// ClassifyIntent reports whether text carries purchase intent
func (h *Handler) ClassifyIntent(c *gin.Context) {
	var req IntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.config.RequestTimeout)
	defer cancel()

	score, intent, err := h.classifier.Classify(ctx, req.Text)
	if err != nil {
		h.writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"purchaseIntent": intent,
		"score":          score,
		"threshold":      h.classifier.Threshold(),
	})
}

// claimMessage marks the message as processed. It returns the idempotency key
// (empty when de-duplication does not apply) and whether this call claimed it.
// A store failure processes the message anyway.
func (h *Handler) claimMessage(ctx context.Context, log *zap.Logger, req RespondRequest) (string, bool) {
	if h.processed == nil || strings.TrimSpace(req.MessageID) == "" {
		return "", false
	}

	key := "processed:" + strings.TrimSpace(req.MerchantID) + ":" + strings.TrimSpace(req.MessageID)
	stamp := []byte(time.Now().UTC().Format(time.RFC3339))

	claimed, err := h.processed.SetIfAbsent(ctx, key, stamp, h.config.IdempotencyTTL)
	if err != nil {
		log.Warn("idempotency store unavailable", zap.Error(err))
		return "", false
	}
	return key, claimed
}

// releaseMessage forgets a claim so the sender can retry after a failure
func (h *Handler) releaseMessage(log *zap.Logger, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := h.processed.Delete(ctx, key); err != nil {
		log.Warn("release processed message", zap.String("key", key), zap.Error(err))
	}
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorResponse{
		Error:   "invalid_request",
		Message: err.Error(),
	})
}

// writeError maps pipeline errors to HTTP status codes
func (h *Handler) writeError(c *gin.Context, log *zap.Logger, err error) {
	_ = c.Error(err)

	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		log.Error("request deadline exceeded", zap.Error(err))
		c.JSON(http.StatusGatewayTimeout, errorResponse{Error: "deadline_exceeded"})
	case errors.Is(err, domain.ErrCatalogUnavailable):
		log.Error("catalog unavailable", zap.Error(err))
		c.JSON(http.StatusBadGateway, errorResponse{Error: "catalog_unavailable"})
	case errors.Is(err, domain.ErrEncodingFailed), errors.Is(err, domain.ErrDimensionMismatch):
		log.Error("encoding failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "encoding_failed"})
	default:
		log.Error("unexpected pipeline error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal_error"})
	}
}
