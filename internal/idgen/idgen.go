// Package idgen provides the process-wide random source for trace and
// span identifiers.
//
// Identifiers are plain random 64-bit values. Collisions are accepted as
// negligible and never checked; the generator only guarantees that it
// never hands out zero, which is reserved to mean "absent".
package idgen

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"
)

// Generator produces random 64-bit identifiers. It is safe for
// concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a generator seeded from crypto/rand, falling back to the
// wall clock if the system source is unavailable.
func New() *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed()))}
}

// Uint64 returns a non-zero random 64-bit value.
func (g *Generator) Uint64() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	for {
		if v := g.rng.Uint64(); v != 0 {
			return v
		}
	}
}

func seed() int64 {
	var b [8]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}
