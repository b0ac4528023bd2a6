package core

import (
	"math/rand"
	"strconv"
	"sync"
	"time"
)

// guestNamer produces "guest<0-99999>" candidates (the number is not
// zero-padded), retried by
// the dispatcher until one is not taken (spec glossary: Guest name).
type guestNamer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newGuestNamer() *guestNamer {
	return &guestNamer{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (g *guestNamer) Next() string {
	g.mu.Lock()
	n := g.rng.Intn(100000)
	g.mu.Unlock()
	return "guest" + strconv.Itoa(n)
}
