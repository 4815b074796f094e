// internal/session/http_source.go
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"clinicsync/internal/logger"
	"clinicsync/internal/model"
)

// HTTPSource observes the identity provider by polling its session endpoint
// and synthesizing auth events from state changes:
//
//	absent -> present            SIGNED_IN
//	present -> different token   TOKEN_REFRESHED
//	present -> absent            SIGNED_OUT
type HTTPSource struct {
	endpoint string
	apiKey   string
	client   *http.Client
	interval time.Duration

	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	last   model.Session
	stop   chan struct{}
	once   sync.Once
}

func NewHTTPSource(endpoint, apiKey string, interval time.Duration) *HTTPSource {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HTTPSource{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 15 * time.Second},
		interval: interval,
		subs:     make(map[int]chan Event),
		stop:     make(chan struct{}),
	}
}

// GetSession queries the provider's session endpoint. A 401/404 response is
// an absent session, not an error.
func (s *HTTPSource) GetSession(ctx context.Context) (model.Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/session", nil)
	if err != nil {
		return model.Session{}, fmt.Errorf("failed to build session request: %w", err)
	}
	req.Header.Set("apikey", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return model.Session{}, fmt.Errorf("session request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusNotFound {
		return model.Session{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return model.Session{}, fmt.Errorf("session endpoint returned status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		UserID      string `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return model.Session{}, fmt.Errorf("failed to decode session response: %w", err)
	}
	if payload.AccessToken == "" {
		return model.Session{}, nil
	}

	return model.Session{Present: true, AccessToken: payload.AccessToken, UserID: payload.UserID}, nil
}

// Start begins the polling loop. Safe to call once; events flow to all
// current and future subscribers.
func (s *HTTPSource) Start() {
	s.once.Do(func() {
		go s.pollLoop()
	})
}

// Stop terminates the polling loop and closes subscriber channels.
func (s *HTTPSource) Stop() {
	close(s.stop)
}

func (s *HTTPSource) pollLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.poll()
	for {
		select {
		case <-s.stop:
			s.mu.Lock()
			for id, ch := range s.subs {
				close(ch)
				delete(s.subs, id)
			}
			s.mu.Unlock()
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

func (s *HTTPSource) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	current, err := s.GetSession(ctx)
	if err != nil {
		// Provider unreachable: keep the last known state rather than
		// synthesizing a spurious sign-out.
		logger.LogWarn("Session poll failed: %v", err)
		return
	}

	s.mu.Lock()
	prev := s.last
	s.last = current
	var ev *Event
	switch {
	case !prev.Present && current.Present:
		ev = &Event{Kind: KindSignedIn, Session: current}
	case prev.Present && !current.Present:
		ev = &Event{Kind: KindSignedOut, Session: current}
	case prev.Present && current.Present && prev.AccessToken != current.AccessToken:
		ev = &Event{Kind: KindTokenRefreshed, Session: current}
	}
	subs := make([]chan Event, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	if ev == nil {
		return
	}
	logger.LogInfo("Auth event %s (user %s)", ev.Kind, ev.Session.UserID)
	for _, ch := range subs {
		ch <- *ev
	}
}

// Subscribe registers a new event channel. The cancel func detaches it; the
// channel itself is closed only by the poll loop on Stop, so a concurrent
// poll can never send on a closed channel.
func (s *HTTPSource) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Event, 16)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
	return ch, cancel
}
