package spatial

import "sync/atomic"

// Holder publishes the current Index. Rebuilds replace it wholesale; readers
// keep whichever snapshot they loaded.
type Holder struct {
	current atomic.Pointer[Index]
}

// Load returns the current index, or nil before the first Store.
func (h *Holder) Load() *Index { return h.current.Load() }

// Store swaps in a new index and returns the previous one.
func (h *Holder) Store(ix *Index) *Index { return h.current.Swap(ix) }
