// Package testutils provides id and clock sources that are random in production
// and deterministic in test mode, so golden output stays stable across runs.
package testutils

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Source produces message/conversation identifiers and timestamps.
type Source interface {
	NewID() string
	Now() time.Time
}

// NewSource returns a deterministic source in test mode and a random one otherwise.
func NewSource(testMode bool) Source {
	if testMode {
		return NewDeterministicSource()
	}
	return RandomSource{}
}

// RandomSource uses random UUIDs and the wall clock.
type RandomSource struct{}

// NewID returns a random UUID.
func (RandomSource) NewID() string {
	return uuid.New().String()
}

// Now returns time.Now().
func (RandomSource) Now() time.Time {
	return time.Now()
}

// DeterministicSource generates counter-based UUIDs in format
// 00000001-0000-4000-8000-000000000001 and timestamps that advance by one
// second per call, starting at 2025-01-01T00:00:01Z.
type DeterministicSource struct {
	mu          sync.Mutex
	idCounter   uint64
	timeCounter int64
}

// NewDeterministicSource creates a DeterministicSource with zeroed counters.
func NewDeterministicSource() *DeterministicSource {
	return &DeterministicSource{}
}

// NewID returns the next deterministic UUID.
func (d *DeterministicSource) NewID() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.idCounter++
	return fmt.Sprintf("%08x-0000-4000-8000-%012x", d.idCounter, d.idCounter)
}

// Now returns the next deterministic timestamp.
func (d *DeterministicSource) Now() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.timeCounter++
	baseTime := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return baseTime.Add(time.Duration(d.timeCounter) * time.Second)
}

// Reset zeroes the counters.
func (d *DeterministicSource) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.idCounter = 0
	d.timeCounter = 0
}

// EpochMillis converts t to epoch milliseconds.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}
