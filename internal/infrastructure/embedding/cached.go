package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/replybot/backend/internal/domain"
	"github.com/replybot/backend/internal/metrics"
)

// sharedEncodeTimeout bounds a collapsed encode call that no caller can cancel
const sharedEncodeTimeout = 2 * time.Minute

// CachedEncoder serves vectors from a cache and forwards only misses to the
// wrapped encoder. Cache failures degrade to a direct encode.
type CachedEncoder struct {
	next   domain.Encoder
	cache  domain.CacheRepository
	model  string
	ttl    time.Duration
	logger *zap.Logger
	group  singleflight.Group
}

// NewCachedEncoder wraps next with cache. Keys are namespaced by model so a
// model change never serves stale vectors.
func NewCachedEncoder(next domain.Encoder, cache domain.CacheRepository, model string, ttl time.Duration, logger *zap.Logger) *CachedEncoder {
	return &CachedEncoder{
		next:   next,
		cache:  cache,
		model:  model,
		ttl:    ttl,
		logger: logger,
	}
}

// Encode implements domain.Encoder
func (e *CachedEncoder) Encode(ctx context.Context, texts []string) ([]domain.Vector, error) {
	out := make([]domain.Vector, len(texts))

	// positions of every missing text, keyed by text so repeats are encoded once
	pending := make(map[string][]int)
	var missing []string

	for i, text := range texts {
		if v, ok := e.lookup(ctx, text); ok {
			out[i] = v
			continue
		}
		if _, seen := pending[text]; !seen {
			missing = append(missing, text)
		}
		pending[text] = append(pending[text], i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := e.encodeShared(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEncodingFailed, len(vectors), len(missing))
	}

	for j, text := range missing {
		for _, i := range pending[text] {
			out[i] = vectors[j]
		}
		e.store(ctx, text, vectors[j])
	}

	return out, nil
}

// encodeShared collapses concurrent identical miss batches into one runtime call.
// The shared call is detached from the cancellation of whichever caller started
// it; each caller stops waiting when its own context ends.
func (e *CachedEncoder) encodeShared(ctx context.Context, texts []string) ([]domain.Vector, error) {
	detached := context.WithoutCancel(ctx)
	ch := e.group.DoChan(batchKey(texts), func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(detached, sharedEncodeTimeout)
		defer cancel()
		return e.next.Encode(callCtx, texts)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", domain.ErrEncodingFailed, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, domain.ErrEncodingFailed) {
				return nil, res.Err
			}
			return nil, fmt.Errorf("%w: %w", domain.ErrEncodingFailed, res.Err)
		}
		return res.Val.([]domain.Vector), nil
	}
}

func (e *CachedEncoder) lookup(ctx context.Context, text string) (domain.Vector, bool) {
	data, err := e.cache.Get(ctx, e.key(text))
	if err != nil {
		if errors.Is(err, domain.ErrCacheMiss) {
			metrics.EncodeCache.WithLabelValues("miss").Inc()
		} else {
			metrics.EncodeCache.WithLabelValues("error").Inc()
			e.logger.Warn("embedding cache read failed", zap.Error(err))
		}
		return nil, false
	}

	v, err := unmarshalVector(data)
	if err != nil {
		metrics.EncodeCache.WithLabelValues("error").Inc()
		e.logger.Warn("embedding cache entry corrupt", zap.Error(err))
		return nil, false
	}

	metrics.EncodeCache.WithLabelValues("hit").Inc()
	return v, true
}

func (e *CachedEncoder) store(ctx context.Context, text string, v domain.Vector) {
	if err := e.cache.Set(ctx, e.key(text), marshalVector(v), e.ttl); err != nil {
		e.logger.Warn("embedding cache write failed", zap.Error(err))
	}
}

func (e *CachedEncoder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + e.model + ":" + hex.EncodeToString(sum[:])
}

func batchKey(texts []string) string {
	sum := sha256.Sum256([]byte(strings.Join(texts, "\x00")))
	return hex.EncodeToString(sum[:])
}

// marshalVector packs v as little-endian float32 values
func marshalVector(v domain.Vector) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func unmarshalVector(data []byte) (domain.Vector, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector encoding of %d bytes", len(data))
	}
	v := make(domain.Vector, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return v, nil
}
