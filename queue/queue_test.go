package queue

import (
	"container/heap"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaxQueueTopK(t *testing.T) {
	// Bounded top-3 selection over lower-is-better distances.
	pq := NewMax(3)
	heap.Init(pq)

	items := []PriorityQueueItem{
		{Row: 0, Distance: 0.9},
		{Row: 1, Distance: 0.1},
		{Row: 2, Distance: 0.5},
		{Row: 3, Distance: 0.3},
		{Row: 4, Distance: 0.7},
	}

	for _, it := range items {
		if pq.Len() < 3 {
			heap.Push(pq, it)
			continue
		}
		if worst := pq.Top().(PriorityQueueItem); it.Distance < worst.Distance {
			heap.Pop(pq)
			heap.Push(pq, it)
		}
	}

	got := make([]PriorityQueueItem, pq.Len())
	for i := pq.Len() - 1; i >= 0; i-- {
		got[i] = heap.Pop(pq).(PriorityQueueItem)
	}

	assert.Equal(t, []PriorityQueueItem{
		{Row: 1, Distance: 0.1},
		{Row: 3, Distance: 0.3},
		{Row: 2, Distance: 0.5},
	}, got)
}

func TestTieBreakByRow(t *testing.T) {
	pq := NewMax(4)
	heap.Init(pq)

	// All equal distances; pops must come back in descending row order so
	// that the final ascending fill preserves insertion order.
	for _, row := range []uint32{2, 0, 3, 1} {
		heap.Push(pq, PriorityQueueItem{Row: row, Distance: 0.5})
	}

	got := make([]uint32, 0, 4)
	for pq.Len() > 0 {
		got = append(got, heap.Pop(pq).(PriorityQueueItem).Row)
	}

	assert.Equal(t, []uint32{3, 2, 1, 0}, got)
}

func TestMinQueue(t *testing.T) {
	pq := NewMin(4)
	heap.Init(pq)

	heap.Push(pq, PriorityQueueItem{Row: 0, Distance: 0.8})
	heap.Push(pq, PriorityQueueItem{Row: 1, Distance: 0.2})
	heap.Push(pq, PriorityQueueItem{Row: 2, Distance: 0.2})

	assert.Equal(t, uint32(1), pq.Top().(PriorityQueueItem).Row)
	assert.Equal(t, uint32(1), heap.Pop(pq).(PriorityQueueItem).Row)
	assert.Equal(t, uint32(2), heap.Pop(pq).(PriorityQueueItem).Row)
	assert.Equal(t, uint32(0), heap.Pop(pq).(PriorityQueueItem).Row)
}

func TestEmptyQueue(t *testing.T) {
	pq := NewMin(0)

	assert.Equal(t, 0, pq.Len())
	assert.Equal(t, PriorityQueueItem{}, pq.Top())
	assert.Equal(t, PriorityQueueItem{}, pq.Pop())

	pq.Push(PriorityQueueItem{Row: 7, Distance: 1})
	pq.Reset()
	assert.Equal(t, 0, pq.Len())
}
