package utils

import (
	"stock-pulse/src/models"
)

// -----------------------------------------------------------------------------
// PriceRing is a fixed-size circular buffer of price updates.
// True ring buffer - no resizing on append, oldest entries are overwritten.
// -----------------------------------------------------------------------------

type PriceRing struct {
	data     []models.MPriceUpdate
	capacity int
	index    int // Next write position
	size     int // Current number of elements
}

// -----------------------------------------------------------------------------

// NewPriceRing creates a new buffer with fixed capacity
func NewPriceRing(capacity int) *PriceRing {
	if capacity <= 0 {
		capacity = 400 // Default: roughly one trading day of minute points
	}

	return &PriceRing{
		data:     make([]models.MPriceUpdate, capacity),
		capacity: capacity,
	}
}

// -----------------------------------------------------------------------------

// Append adds an update, evicting the oldest entry when full.
func (rb *PriceRing) Append(update models.MPriceUpdate) {
	rb.data[rb.index] = update
	rb.index = (rb.index + 1) % rb.capacity

	if rb.size < rb.capacity {
		rb.size++
	}
}

// -----------------------------------------------------------------------------

// Latest returns the n most recent updates, oldest first.
func (rb *PriceRing) Latest(n int) []models.MPriceUpdate {
	if rb.size == 0 || n <= 0 {
		return []models.MPriceUpdate{}
	}

	count := n
	if n > rb.size {
		count = rb.size
	}

	result := make([]models.MPriceUpdate, count)
	startIdx := (rb.index - count + rb.capacity) % rb.capacity

	for i := 0; i < count; i++ {
		result[i] = rb.data[(startIdx+i)%rb.capacity]
	}

	return result
}

// -----------------------------------------------------------------------------

// All returns the buffered updates in insertion order (oldest to newest)
func (rb *PriceRing) All() []models.MPriceUpdate {
	return rb.Latest(rb.size)
}

// -----------------------------------------------------------------------------

// Size returns current number of elements
func (rb *PriceRing) Size() int {
	return rb.size
}

// -----------------------------------------------------------------------------

// Capacity returns buffer capacity (fixed)
func (rb *PriceRing) Capacity() int {
	return rb.capacity
}

// -----------------------------------------------------------------------------

// IsFull returns whether buffer is full
func (rb *PriceRing) IsFull() bool {
	return rb.size == rb.capacity
}

// -----------------------------------------------------------------------------

// Clear resets the buffer
func (rb *PriceRing) Clear() {
	rb.index = 0
	rb.size = 0
}
