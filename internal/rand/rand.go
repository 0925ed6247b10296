package rand

import (
	"math/rand"
	"sync"
	"time"
)

// Seeded is a seeded source of pseudo-random numbers that, unlike
// *rand.Rand, is safe for concurrent use.
type Seeded struct {
	mu   sync.Mutex
	rand *rand.Rand
}

// NewSeeded returns a Seeded seeded with the current time.
func NewSeeded() *Seeded {
	return &Seeded{
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (s *Seeded) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Float64()
}

// Intn returns a non-negative pseudo-random number in [0,n). It panics if
// n <= 0.
func (s *Seeded) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Intn(n)
}
