package venue

import "sync"

// PendingTable maps correlation ids to raw response payloads received on
// the session loop. It is a multimap: a stray duplicate response must not
// overwrite the one a requester is waiting on.
//
// The session loop is the sole writer, the request path the sole remover.
// Entries whose requester timed out stay orphaned until removed by id
// reuse after counter wraparound; an accepted leak.
type PendingTable struct {
	mu      sync.Mutex
	entries map[uint64][][]byte
}

// NewPendingTable creates an empty table.
func NewPendingTable() *PendingTable {
	return &PendingTable{
		entries: make(map[uint64][][]byte),
	}
}

// Store appends a payload under a correlation id.
func (t *PendingTable) Store(id uint64, payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[id] = append(t.entries[id], payload)
}

// Get returns the first payload stored under id without removing it.
func (t *PendingTable) Get(id uint64) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	payloads, ok := t.entries[id]
	if !ok || len(payloads) == 0 {
		return nil, false
	}
	return payloads[0], true
}

// Remove deletes every payload stored under id.
func (t *PendingTable) Remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// Len returns the number of ids with stored payloads.
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
