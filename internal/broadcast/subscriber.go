package broadcast

import "sync"

// Subscriber is one connection's view of the hub. Frames are queued in a
// bounded FIFO and drained by a single writer.
type Subscriber struct {
	id    string
	queue chan []byte
	done  chan struct{}

	mu      sync.Mutex
	closed  bool
	evicted bool
}

// NewSubscriber allocates a subscriber whose queue holds at most size frames.
func NewSubscriber(id string, size int) *Subscriber {
	if size <= 0 {
		size = 1
	}
	return &Subscriber{
		id:    id,
		queue: make(chan []byte, size),
		done:  make(chan struct{}),
	}
}

// ID returns the subscriber id.
func (s *Subscriber) ID() string { return s.id }

// Frames yields queued frames in publish order. The channel is closed when
// the subscriber is closed or evicted.
func (s *Subscriber) Frames() <-chan []byte { return s.queue }

// Done is closed together with the frame queue.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Evicted reports whether the hub dropped the subscriber for falling behind.
func (s *Subscriber) Evicted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evicted
}

// Close stops delivery. Safe to call more than once.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Subscriber) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.queue)
	close(s.done)
}

// enqueue appends frame without blocking. A full queue evicts the subscriber.
func (s *Subscriber) enqueue(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- frame:
		return true
	default:
		s.evicted = true
		s.closeLocked()
		return false
	}
}
