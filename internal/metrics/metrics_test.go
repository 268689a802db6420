package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestWatchCacheEntries(t *testing.T) {
	entries := 3
	gauge := WatchCacheEntries(func() int { return entries })

	assert.Equal(t, float64(3), testutil.ToFloat64(gauge))

	entries = 7
	assert.Equal(t, float64(7), testutil.ToFloat64(gauge))
}
