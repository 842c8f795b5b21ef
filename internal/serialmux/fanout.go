package serialmux

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"
)

// DefaultSubscriberBuffer is the channel capacity given to subscribers.
const DefaultSubscriberBuffer = 64

// Fanout delivers hub lines to every subscriber. A subscriber whose buffer
// is full misses the line; the hub is never stalled. The zero value is
// ready to use.
type Fanout struct {
	mu     sync.Mutex
	subs   map[string]chan string
	closed bool
	done   chan struct{}

	// Buffer overrides DefaultSubscriberBuffer when positive.
	Buffer int
}

// randomID returns 16 hex characters.
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe registers a new subscriber. Once the fanout is closed it
// returns an empty id and an already closed channel.
func (f *Fanout) Subscribe() (string, chan string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		ch := make(chan string)
		close(ch)
		return "", ch
	}
	if f.subs == nil {
		f.subs = make(map[string]chan string)
	}
	size := f.Buffer
	if size <= 0 {
		size = DefaultSubscriberBuffer
	}
	id := randomID()
	ch := make(chan string, size)
	f.subs[id] = ch
	return id, ch
}

// Unsubscribe closes and forgets the subscriber. Unknown ids are ignored.
func (f *Fanout) Unsubscribe(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.subs[id]; ok {
		close(ch)
		delete(f.subs, id)
	}
}

// Publish offers line to every subscriber and returns how many took it.
func (f *Fanout) Publish(line string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	delivered := 0
	for _, ch := range f.subs {
		select {
		case ch <- line:
			delivered++
		default:
		}
	}
	return delivered
}

// Len returns the number of subscribers.
func (f *Fanout) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close closes every subscriber channel. It reports false when the fanout
// was already closed.
func (f *Fanout) Close() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.closed = true
	for id, ch := range f.subs {
		close(ch)
		delete(f.subs, id)
	}
	if f.done != nil {
		close(f.done)
	}
	return true
}

// Closed reports whether Close has been called.
func (f *Fanout) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Done is closed by Close.
func (f *Fanout) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done == nil {
		f.done = make(chan struct{})
		if f.closed {
			close(f.done)
		}
	}
	return f.done
}
