package usecase

import "sync"

// IndexGate keeps queries off the vector index while a rebuild replaces its
// contents. Queries share the gate; a rebuild holds it exclusively from
// Reset until its last Insert. A nil gate never blocks.
type IndexGate struct {
	mu sync.RWMutex
}

func NewIndexGate() *IndexGate {
	return &IndexGate{}
}

func (g *IndexGate) read() func() {
	if g == nil {
		return func() {}
	}
	g.mu.RLock()
	return g.mu.RUnlock
}

func (g *IndexGate) write() func() {
	if g == nil {
		return func() {}
	}
	g.mu.Lock()
	return g.mu.Unlock
}
