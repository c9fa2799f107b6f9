package venue

import (
	"sync"
	"testing"
)

func TestPendingTable_StoreAndGet(t *testing.T) {
	table := NewPendingTable()

	if _, ok := table.Get(10001); ok {
		t.Error("expected no payload before Store")
	}

	table.Store(10001, []byte(`{"id":"10001"}`))

	payload, ok := table.Get(10001)
	if !ok {
		t.Fatal("expected payload after Store")
	}
	if string(payload) != `{"id":"10001"}` {
		t.Errorf("payload = %s, want stored bytes", payload)
	}

	// Get does not remove
	if _, ok := table.Get(10001); !ok {
		t.Error("expected payload to survive Get")
	}
}

func TestPendingTable_DuplicateResponsesCoexist(t *testing.T) {
	table := NewPendingTable()

	table.Store(10001, []byte("first"))
	table.Store(10001, []byte("second"))

	// The first stored payload wins; a stray duplicate must not
	// overwrite it.
	payload, ok := table.Get(10001)
	if !ok {
		t.Fatal("expected payload")
	}
	if string(payload) != "first" {
		t.Errorf("payload = %s, want first", payload)
	}

	if table.Len() != 1 {
		t.Errorf("Len() = %d, want 1", table.Len())
	}
}

func TestPendingTable_Remove(t *testing.T) {
	table := NewPendingTable()

	table.Store(10001, []byte("a"))
	table.Store(10001, []byte("b"))
	table.Store(10002, []byte("c"))

	table.Remove(10001)

	if _, ok := table.Get(10001); ok {
		t.Error("expected id 10001 gone after Remove")
	}
	if _, ok := table.Get(10002); !ok {
		t.Error("expected id 10002 untouched")
	}
	if table.Len() != 1 {
		t.Errorf("Len() = %d, want 1", table.Len())
	}

	// Removing an absent id is a no-op
	table.Remove(99999)
}

func TestPendingTable_ConcurrentAccess(t *testing.T) {
	table := NewPendingTable()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				table.Store(id, []byte("payload"))
				table.Get(id)
				table.Remove(id)
			}
		}(uint64(10000 + i))
	}
	wg.Wait()

	if table.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after removal", table.Len())
	}
}
