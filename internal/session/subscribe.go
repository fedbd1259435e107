package session

import (
	"context"
	"sync"
)

// Subscribe registers fn to be called after every state transition. Calls
// happen on the goroutine that made the transition, after all store locks
// are released, so fn may call back into the Store. Events from racing
// transitions can arrive out of order; compare Session.Epoch to drop stale
// ones.
//
// Subscribing to a nil Store panics: a consumer wired to no store would
// otherwise silently see a logged-out session forever.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	if s == nil {
		panic(ErrNotInitialized)
	}
	if fn == nil {
		panic("session: Subscribe called with nil func")
	}

	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) notify(ev Event) {
	s.subMu.Lock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.fn(ev)
	}
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying s. Screens look the store up
// with FromContext.
func NewContext(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the Store in ctx, or ErrNoProvider when there is none.
func FromContext(ctx context.Context) (*Store, error) {
	s, ok := ctx.Value(ctxKey{}).(*Store)
	if !ok || s == nil {
		return nil, ErrNoProvider
	}
	return s, nil
}

// MustFromContext is FromContext for wiring code that cannot continue
// without a store.
func MustFromContext(ctx context.Context) *Store {
	s, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return s
}
