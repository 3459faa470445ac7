package gateway

import (
	"sort"
	"sync"

	"github.com/google/btree"
)

// marketItem is one listed symbol in the registry's B-tree, ordered
// lexicographically so the registry can answer range queries ("every
// symbol starting with 'A'") in addition to plain membership checks.
type marketItem string

func (m marketItem) Less(than btree.Item) bool {
	return m < than.(marketItem)
}

// MarketRegistry tracks which symbols the Gateway currently admits orders
// for, backed by a B-tree so the registry scales to exchanges listing far
// more symbols than the handful a map would comfortably linear-scan for
// prefix/range queries (e.g. "show me every listed option strike between
// X and Y"), which this repo's single-market teacher never needed.
type MarketRegistry struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

// NewMarketRegistry creates a registry listing symbols. The B-tree's
// degree (branching factor) is fixed at 32, a reasonable default for an
// in-memory index of this size.
func NewMarketRegistry(symbols ...string) *MarketRegistry {
	r := &MarketRegistry{tree: btree.New(32)}
	for _, s := range symbols {
		r.Register(s)
	}
	return r
}

// Register adds symbol to the registry. Idempotent.
func (r *MarketRegistry) Register(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tree.ReplaceOrInsert(marketItem(symbol))
}

// Unregister removes symbol from the registry.
func (r *MarketRegistry) Unregister(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tree.Delete(marketItem(symbol))
}

// IsListed reports whether symbol is currently registered.
func (r *MarketRegistry) IsListed(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.Has(marketItem(symbol))
}

// List returns every registered symbol in ascending order.
func (r *MarketRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, r.tree.Len())
	r.tree.Ascend(func(item btree.Item) bool {
		out = append(out, string(item.(marketItem)))
		return true
	})
	return out
}

// Range returns every registered symbol in [from, to], inclusive,
// ascending order.
func (r *MarketRegistry) Range(from, to string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	r.tree.AscendRange(marketItem(from), marketItem(to+"\x00"), func(item btree.Item) bool {
		out = append(out, string(item.(marketItem)))
		return true
	})
	sort.Strings(out)
	return out
}
