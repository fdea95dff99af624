package events

import "sync"

type envelope struct {
	event Event
	// Non-nil for flush markers, closed by the handler goroutine.
	flushed chan struct{}
}

type subscription struct {
	kind    Kind
	handler Handler

	queue    chan envelope
	done     chan struct{}
	stopOnce sync.Once

	// Markers a publisher took off the queue under DropOldest.
	// They are closed once the handler is idle or finishes its current event.
	mu      sync.Mutex
	orphans []chan struct{}
	wake    chan struct{}
}

func newSubscription(kind Kind, handler Handler, capacity int) *subscription {
	return &subscription{
		kind:    kind,
		handler: handler,
		queue:   make(chan envelope, capacity),
		done:    make(chan struct{}),
		wake:    make(chan struct{}, 1),
	}
}

func (s *subscription) run() {
	for {
		select {
		case env := <-s.queue:
			if env.flushed != nil {
				close(env.flushed)
				continue
			}
			// stop may have raced with a ready queue, don't deliver after it
			select {
			case <-s.done:
				return
			default:
			}
			s.handler(env.event)
			s.releaseOrphans()
		case <-s.wake:
			s.releaseOrphans()
		case <-s.done:
			return
		}
	}
}

func (s *subscription) offerBlocking(event Event) {
	select {
	case s.queue <- envelope{event: event}:
	case <-s.done:
	}
}

// Enqueue event, discarding the oldest queued events while the queue is full.
func (s *subscription) offerDropOldest(event Event, onDrop func(Event)) {
	env := envelope{event: event}
	for {
		select {
		case s.queue <- env:
			return
		case <-s.done:
			return
		default:
		}

		select {
		case old := <-s.queue:
			if old.flushed != nil {
				// the handler may still be running the event ahead of the marker
				s.adopt(old.flushed)
				continue
			}
			onDrop(old.event)
		default:
		}
	}
}

func (s *subscription) adopt(marker chan struct{}) {
	s.mu.Lock()
	s.orphans = append(s.orphans, marker)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) releaseOrphans() {
	s.mu.Lock()
	orphans := s.orphans
	s.orphans = nil
	s.mu.Unlock()
	for _, marker := range orphans {
		close(marker)
	}
}

func (s *subscription) flush() {
	marker := envelope{flushed: make(chan struct{})}
	select {
	case s.queue <- marker:
	case <-s.done:
		return
	}
	select {
	case <-marker.flushed:
	case <-s.done:
	}
}

func (s *subscription) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}
