package command

import (
	"math/rand/v2"
	"sync"
	"time"
)

const (
	minSuffix = 10000
	maxSuffix = 99999
)

// SuffixSource yields five-digit hot-reload suffixes.
type SuffixSource interface {
	Next() int
}

// RandomSuffix draws uniformly from 10000..99999 and never returns the same
// value twice. Once every value has been used it starts over.
type RandomSuffix struct {
	mu   sync.Mutex
	rng  *rand.Rand
	used map[int]struct{}
}

// NewRandomSuffix creates a RandomSuffix seeded from the clock.
func NewRandomSuffix() *RandomSuffix {
	return NewSeededSuffix(time.Now().UnixNano())
}

// NewSeededSuffix creates a RandomSuffix with a fixed seed.
func NewSeededSuffix(seed int64) *RandomSuffix {
	return &RandomSuffix{
		rng:  rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>32|1)),
		used: make(map[int]struct{}),
	}
}

// Next implements SuffixSource.
func (s *RandomSuffix) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.used) > maxSuffix-minSuffix {
		clear(s.used)
	}
	for {
		n := minSuffix + s.rng.IntN(maxSuffix-minSuffix+1)
		if _, seen := s.used[n]; seen {
			continue
		}
		s.used[n] = struct{}{}
		return n
	}
}
