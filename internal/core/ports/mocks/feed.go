package mocks

import (
	"sync"

	"github.com/lueurxax/artist-pulse/internal/core/domain"
)

// ChangeFeed is an in-memory implementation of ports.ChangeFeed.
// Events are delivered synchronously from Emit.
type ChangeFeed struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]feedSub

	// SubscribeErr, when set, is returned by Subscribe.
	SubscribeErr error

	subscribes   int
	unsubscribes int
}

type feedSub struct {
	filter  domain.ChangeFilter
	onEvent func(domain.ChangeEvent)
}

// NewChangeFeed creates an empty mock change feed.
func NewChangeFeed() *ChangeFeed {
	return &ChangeFeed{subs: make(map[int]feedSub)}
}

// Subscribe registers onEvent for events matching filter.
func (f *ChangeFeed) Subscribe(filter domain.ChangeFilter, onEvent func(domain.ChangeEvent)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}

	id := f.nextID
	f.nextID++
	f.subs[id] = feedSub{filter: filter, onEvent: onEvent}
	f.subscribes++

	var once sync.Once

	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()

			delete(f.subs, id)
			f.unsubscribes++
		})
	}, nil
}

// Emit delivers ev to every matching subscriber.
func (f *ChangeFeed) Emit(ev domain.ChangeEvent) error {
	f.mu.Lock()

	targets := make([]func(domain.ChangeEvent), 0, len(f.subs))

	for _, s := range f.subs {
		if s.filter.Matches(ev) {
			targets = append(targets, s.onEvent)
		}
	}

	f.mu.Unlock()

	if len(targets) == 0 {
		return ErrUnsubscribed
	}

	for _, fn := range targets {
		fn(ev)
	}

	return nil
}

// Active returns the number of live subscriptions.
func (f *ChangeFeed) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.subs)
}

// Filters returns the filters of live subscriptions.
func (f *ChangeFeed) Filters() []domain.ChangeFilter {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]domain.ChangeFilter, 0, len(f.subs))
	for _, s := range f.subs {
		out = append(out, s.filter)
	}

	return out
}

// Counts returns how many subscribe and unsubscribe calls happened.
func (f *ChangeFeed) Counts() (subscribes, unsubscribes int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.subscribes, f.unsubscribes
}
