package kernel

import "fmt"

// Allocator hands out the stack regions owned by threads.
type Allocator interface {
	Alloc(size int) ([]byte, error)
	Free(b []byte)
}

// HeapAllocator allocates from the Go heap.
type HeapAllocator struct{}

func (HeapAllocator) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("stack size %d", size)
	}
	return make([]byte, size), nil
}

func (HeapAllocator) Free([]byte) {}

// CountingAllocator tracks live regions and can be capped to inject failures.
type CountingAllocator struct {
	// Limit caps live regions. Zero means unlimited.
	Limit int

	live   int
	bytes  int
	allocs int
	frees  int
}

func (a *CountingAllocator) Alloc(size int) ([]byte, error) {
	if a.Limit > 0 && a.live >= a.Limit {
		return nil, fmt.Errorf("limit of %d regions reached", a.Limit)
	}
	b, err := HeapAllocator{}.Alloc(size)
	if err != nil {
		return nil, err
	}
	a.live++
	a.allocs++
	a.bytes += len(b)
	return b, nil
}

func (a *CountingAllocator) Free(b []byte) {
	a.live--
	a.frees++
	a.bytes -= len(b)
}

// Live returns the number of regions not yet freed.
func (a *CountingAllocator) Live() int { return a.live }

// LiveBytes returns the size of all regions not yet freed.
func (a *CountingAllocator) LiveBytes() int { return a.bytes }

// Allocs returns the number of successful allocations.
func (a *CountingAllocator) Allocs() int { return a.allocs }

// Frees returns the number of released regions.
func (a *CountingAllocator) Frees() int { return a.frees }
