package ephemeral

import (
	"context"
	"sync"
)

// BoolSubject is a boolean with last-value caching and multicast delivery.
//
// Each subscriber channel holds at most one value: when a subscriber falls
// behind, the unread value is replaced by the newest one.
type BoolSubject struct {
	mu          sync.Mutex
	value       bool
	closed      bool
	nextID      int64
	subscribers map[int64]chan bool
}

// NewBoolSubject returns a subject holding initial.
func NewBoolSubject(initial bool) *BoolSubject {
	return &BoolSubject{
		value:       initial,
		subscribers: make(map[int64]chan bool),
	}
}

// Value returns the last published value.
func (s *BoolSubject) Value() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set stores value and delivers it to every subscriber, even when unchanged.
func (s *BoolSubject) Set(value bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.value = value
	for _, stream := range s.subscribers {
		deliverLatest(stream, value)
	}
}

// Subscribe returns a stream that first yields the current value. The stream
// is closed when ctx ends, when the returned cancel func runs, or when the
// subject is closed.
func (s *BoolSubject) Subscribe(ctx context.Context) (<-chan bool, func()) {
	stream := make(chan bool, 1)

	s.mu.Lock()
	stream <- s.value
	if s.closed {
		s.mu.Unlock()
		close(stream)
		return stream, func() {}
	}
	s.nextID++
	id := s.nextID
	s.subscribers[id] = stream
	s.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			s.unsubscribe(id)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return stream, cancel
}

func (s *BoolSubject) unsubscribe(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stream, ok := s.subscribers[id]; ok {
		delete(s.subscribers, id)
		close(stream)
	}
}

// Close ends every subscription. Later Set calls are ignored.
func (s *BoolSubject) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, stream := range s.subscribers {
		delete(s.subscribers, id)
		close(stream)
	}
}

// deliverLatest sends value without blocking, evicting an unread older value.
func deliverLatest(stream chan bool, value bool) {
	select {
	case stream <- value:
		return
	default:
	}
	select {
	case <-stream:
	default:
	}
	select {
	case stream <- value:
	default:
	}
}
