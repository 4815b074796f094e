// internal/session/memory_source.go
package session

import (
	"context"
	"sync"

	"clinicsync/internal/model"
)

// MemorySource is a process-local Source used by tests and offline runs. It
// is driven explicitly through SignIn / RefreshToken / SignOut.
type MemorySource struct {
	mu      sync.Mutex
	current model.Session
	subs    map[int]chan Event
	nextID  int
}

func NewMemorySource() *MemorySource {
	return &MemorySource{subs: make(map[int]chan Event)}
}

func (s *MemorySource) GetSession(ctx context.Context) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

func (s *MemorySource) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Event, 16)
	s.subs[id] = ch

	// Cancel only detaches; the channel is left open so an emit that
	// snapshotted the subscriber list just before cancellation cannot panic.
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
	return ch, cancel
}

func (s *MemorySource) SignIn(token, userID string) {
	s.emit(Event{Kind: KindSignedIn, Session: model.Session{Present: true, AccessToken: token, UserID: userID}})
}

func (s *MemorySource) RefreshToken(token string) {
	s.mu.Lock()
	userID := s.current.UserID
	s.mu.Unlock()
	s.emit(Event{Kind: KindTokenRefreshed, Session: model.Session{Present: true, AccessToken: token, UserID: userID}})
}

func (s *MemorySource) SignOut() {
	s.emit(Event{Kind: KindSignedOut, Session: model.Session{}})
}

func (s *MemorySource) emit(ev Event) {
	s.mu.Lock()
	s.current = ev.Session
	subs := make([]chan Event, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		ch <- ev
	}
}
