package generation

import (
	"sync"
	"time"
)

// StatusKind classifies a status message for display.
type StatusKind string

const (
	StatusInfo     StatusKind = "info"
	StatusProgress StatusKind = "progress"
	StatusError    StatusKind = "error"
	StatusComplete StatusKind = "complete"
)

// Status is the latest human-readable run status.
type Status struct {
	Message   string     `json:"message"`
	Kind      StatusKind `json:"kind"`
	RunID     string     `json:"run_id,omitempty"`
	Processed int        `json:"processed"`
	Total     int        `json:"total"`
	Running   bool       `json:"running"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// StatusBoard is a single overwrite slot. Readers only ever see the most
// recent value; no history is kept. Subscribers are called synchronously
// on every write and must not block.
type StatusBoard struct {
	mu      sync.RWMutex
	current Status
	subs    map[int]func(Status)
	nextSub int
	now     func() time.Time
}

// NewStatusBoard creates an empty board.
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{subs: make(map[int]func(Status)), now: time.Now}
}

// Set overwrites the slot and notifies subscribers.
func (b *StatusBoard) Set(s Status) {
	b.mu.Lock()
	s.UpdatedAt = b.now()
	b.current = s
	subs := make([]func(Status), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}

// Latest returns the current value.
func (b *StatusBoard) Latest() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// Subscribe registers fn for future writes and returns a function that
// removes it.
func (b *StatusBoard) Subscribe(fn func(Status)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}
