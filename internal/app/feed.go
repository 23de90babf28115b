package app

import (
	"context"
	"sync"

	"quiz-attempt-service/internal/domain"
)

// ScoreboardFeed fans scoreboard changes out to live subscribers. It is a
// read-only presentation channel; nothing in it feeds back into scoring.
type ScoreboardFeed struct {
	mu          sync.Mutex
	subscribers map[chan domain.ScoreChange]struct{}
}

func NewScoreboardFeed() *ScoreboardFeed {
	return &ScoreboardFeed{subscribers: make(map[chan domain.ScoreChange]struct{})}
}

// Subscribe returns a channel of changes. The caller must invoke the returned
// cancel function to avoid leaks.
func (f *ScoreboardFeed) Subscribe() (<-chan domain.ScoreChange, func()) {
	ch := make(chan domain.ScoreChange, 8)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// ScoreboardChanged implements ScoreboardNotifier.
func (f *ScoreboardFeed) ScoreboardChanged(_ context.Context, change domain.ScoreChange) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers {
		select {
		case ch <- change:
		default:
			// slow subscriber: drop its oldest pending change
			select {
			case <-ch:
			default:
			}
			ch <- change
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (f *ScoreboardFeed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}
