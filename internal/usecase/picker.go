package usecase

import (
	"math/rand"
	"sync"
)

// Picker chooses an index uniformly from [0, n)
type Picker interface {
	Intn(n int) int
}

// lockedRand is a Picker safe for concurrent use
type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomPicker returns a Picker backed by a seeded pseudo-random source
func NewRandomPicker(seed int64) Picker {
	return &lockedRand{rnd: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rnd.Intn(n)
}
