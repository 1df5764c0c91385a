package aggregator

import (
	"sync"

	"enviroscan-backend/internal/models"
)

// DefaultHistoryCapacity is the number of readings retained
const DefaultHistoryCapacity = 100

// HistoryBuffer keeps the most recent readings in arrival order.
// The acquisition loop is the only writer; readers get snapshots.
type HistoryBuffer struct {
	mu       sync.RWMutex
	readings []models.Reading
	capacity int
}

// NewHistoryBuffer creates a buffer holding at most capacity readings
func NewHistoryBuffer(capacity int) *HistoryBuffer {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &HistoryBuffer{
		readings: make([]models.Reading, 0, capacity),
		capacity: capacity,
	}
}

// Append adds a reading, evicting the oldest entries beyond capacity.
// It returns the buffer length after the insert.
func (hb *HistoryBuffer) Append(reading models.Reading) int {
	hb.mu.Lock()
	defer hb.mu.Unlock()

	if len(hb.readings) >= hb.capacity {
		// Shift in place so the backing array never grows past capacity
		excess := len(hb.readings) - hb.capacity + 1
		copy(hb.readings, hb.readings[excess:])
		hb.readings = hb.readings[:len(hb.readings)-excess]
	}
	hb.readings = append(hb.readings, reading)
	return len(hb.readings)
}

// Recent returns a copy of the last n readings, or all of them when fewer exist
func (hb *HistoryBuffer) Recent(n int) []models.Reading {
	hb.mu.RLock()
	defer hb.mu.RUnlock()

	if n < 0 {
		n = 0
	}
	if n > len(hb.readings) {
		n = len(hb.readings)
	}

	result := make([]models.Reading, n)
	copy(result, hb.readings[len(hb.readings)-n:])
	return result
}

// Latest returns the newest reading, if any
func (hb *HistoryBuffer) Latest() (models.Reading, bool) {
	hb.mu.RLock()
	defer hb.mu.RUnlock()

	if len(hb.readings) == 0 {
		return models.Reading{}, false
	}
	return hb.readings[len(hb.readings)-1], true
}

// Len returns the number of readings held
func (hb *HistoryBuffer) Len() int {
	hb.mu.RLock()
	defer hb.mu.RUnlock()
	return len(hb.readings)
}

// Capacity returns the configured bound
func (hb *HistoryBuffer) Capacity() int {
	return hb.capacity
}
