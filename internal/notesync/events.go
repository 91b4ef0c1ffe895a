package notesync

import (
	"sync"
	"time"
)

const defaultEventBuffer = 64

// NoteEvent describes one committed write. Type is "created" or "updated".
type NoteEvent struct {
	Type          string    `json:"type"`
	NoteID        string    `json:"noteId"`
	Owner         string    `json:"owner"`
	Kind          string    `json:"kind"`
	Completed     bool      `json:"completed"`
	UpdatedAt     time.Time `json:"updatedAt"`
	CorrelationID string    `json:"correlationId,omitempty"`
}

// Broadcaster fans committed-note events out to per-owner subscribers.
// Publishing never blocks: a subscriber whose channel is full misses the
// event rather than stalling a sync call.
type Broadcaster struct {
	mu     sync.Mutex
	closed bool
	buffer int
	subs   map[string]map[chan NoteEvent]struct{}
}

func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &Broadcaster{
		buffer: buffer,
		subs:   map[string]map[chan NoteEvent]struct{}{},
	}
}

func (b *Broadcaster) Subscribe(owner string) (<-chan NoteEvent, func()) {
	ch := make(chan NoteEvent, b.buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	set, ok := b.subs[owner]
	if !ok {
		set = map[chan NoteEvent]struct{}{}
		b.subs[owner] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[owner]; ok {
				if _, present := set[ch]; present {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(b.subs, owner)
				}
			}
		})
	}
	return ch, cancel
}

func (b *Broadcaster) Publish(evt NoteEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for ch := range b.subs[evt.Owner] {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for owner, set := range b.subs {
		for ch := range set {
			close(ch)
		}
		delete(b.subs, owner)
	}
}
