package live

import (
	"sync"

	"backend-runtracker/internal/tracker"
)

// Feed is the GPS subscription of one user's session, fed by HTTP uploads.
type Feed struct {
	mu       sync.Mutex
	next     int
	handlers map[int]func(tracker.Fix)
}

func NewFeed() *Feed {
	return &Feed{handlers: map[int]func(tracker.Fix){}}
}

func (f *Feed) Subscribe(handler func(tracker.Fix)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := f.next
	f.handlers[id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.handlers, id)
			f.mu.Unlock()
		})
	}
}

// Push delivers fixes in order and reports how many reached a subscriber.
func (f *Feed) Push(fixes ...tracker.Fix) int {
	delivered := 0
	for _, fix := range fixes {
		f.mu.Lock()
		hs := make([]func(tracker.Fix), 0, len(f.handlers))
		for _, h := range f.handlers {
			hs = append(hs, h)
		}
		f.mu.Unlock()

		for _, h := range hs {
			h(fix)
		}
		if len(hs) > 0 {
			delivered++
		}
	}
	return delivered
}

func (f *Feed) Subscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers) > 0
}
