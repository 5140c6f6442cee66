// Package bubble assigns stable bubble identities within a response turn.
//
// A bubble is identified by (groupID, sentenceID). Sentence ids are dense
// and zero-based per group, assigned in strict creation order, capped by a
// configurable limit. Once a group is at cap the orchestrator stops opening
// bubbles and appends all remaining text to the last one.
package bubble

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultCap is the bubble cap used when none is configured.
const DefaultCap = 4

// ErrAtCap is returned by Open when the group already holds the maximum
// number of bubbles.
var ErrAtCap = errors.New("bubble: group is at cap")

// Allocator hands out dense sentence ids per group. It is safe for
// concurrent use, though a single turn only ever calls it from the
// orchestrator goroutine.
type Allocator struct {
	cap int

	mu   sync.Mutex
	next map[string]int
}

// NewAllocator creates an allocator with the given bubble cap. A cap of
// zero or less selects DefaultCap.
func NewAllocator(cap int) *Allocator {
	if cap <= 0 {
		cap = DefaultCap
	}
	return &Allocator{
		cap:  cap,
		next: make(map[string]int),
	}
}

// Open returns the next sentence id for the group: 0, 1, 2, … with no gaps.
// It returns ErrAtCap once the cap is reached; callers are expected to check
// AtCap first and stop opening rather than rely on the error.
func (a *Allocator) Open(groupID string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.next[groupID]
	if id >= a.cap {
		return 0, fmt.Errorf("%w (cap %d)", ErrAtCap, a.cap)
	}
	a.next[groupID] = id + 1
	return id, nil
}

// AtCap reports whether the group has reached the bubble cap.
func (a *Allocator) AtCap(groupID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next[groupID] >= a.cap
}

// Count returns the number of bubbles opened for the group so far.
func (a *Allocator) Count(groupID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next[groupID]
}

// Release forgets a group's counter. Called at turn end so long-lived
// allocators do not accumulate finished groups.
func (a *Allocator) Release(groupID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.next, groupID)
}

// Cap returns the configured bubble cap.
func (a *Allocator) Cap() int {
	return a.cap
}
