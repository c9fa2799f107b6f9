package book

import "slices"

// handleSeed sits above a sentinel so that zero and small ids can never be
// mistaken for valid handles.
const handleSeed = 1000

// Registry is a keyed collection of aggregated order books. Each inserted
// book receives a monotonically increasing numeric handle. The registry is
// purely organizational and assumes a single writer; it performs no
// internal locking.
type Registry struct {
	currID uint64
	books  map[uint64]*AggregatedOrderBook
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		currID: handleSeed,
		books:  make(map[uint64]*AggregatedOrderBook),
	}
}

// Insert registers a book and returns its handle.
func (r *Registry) Insert(b *AggregatedOrderBook) uint64 {
	r.currID++
	r.books[r.currID] = b
	return r.currID
}

// Get returns the book registered under a handle.
func (r *Registry) Get(handle uint64) (*AggregatedOrderBook, bool) {
	b, ok := r.books[handle]
	return b, ok
}

// Len returns the number of registered books.
func (r *Registry) Len() int {
	return len(r.books)
}

// Handles returns every handle in ascending order.
func (r *Registry) Handles() []uint64 {
	handles := make([]uint64, 0, len(r.books))
	for h := range r.books {
		handles = append(handles, h)
	}
	slices.Sort(handles)
	return handles
}
