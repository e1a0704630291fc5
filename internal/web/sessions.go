package web

import (
	"errors"
	"fmt"
	"sync"

	"github.com/book-expert/talktwin/internal/pipeline"
	"github.com/book-expert/talktwin/internal/workspace"
)

// progressBuffer bounds the updates queued for one websocket client.
const progressBuffer = 64

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionBusy     = errors.New("a pass is already running for this session")
	ErrAudioNotReady   = errors.New("audio has not been generated yet")
	ErrUnknownKind     = errors.New("audio kind must be base or cloned")
)

// session is one user's workspace and the results of its passes.
type session struct {
	workspace *workspace.Workspace

	mu          sync.Mutex
	busy        bool
	base        *pipeline.BaseResult
	cloned      *pipeline.CloneResult
	last        *pipeline.Progress
	subscribers map[chan pipeline.Progress]struct{}
}

func newSession(ws *workspace.Workspace) *session {
	return &session{
		workspace:   ws,
		subscribers: make(map[chan pipeline.Progress]struct{}),
	}
}

// acquire marks the session busy. It reports false when a pass already
// holds it.
func (s *session) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return false
	}

	s.busy = true
	s.last = nil

	return true
}

func (s *session) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.busy = false
}

// setBase stores a finished base pass. A previous clone no longer matches
// the new base audio and is dropped.
func (s *session) setBase(result *pipeline.BaseResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.base = result
	s.cloned = nil
}

// clearBase forgets the base and clone results. A failed base pass may
// already have replaced the chunk files the old results point at.
func (s *session) clearBase() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.base = nil
	s.cloned = nil
}

func (s *session) setCloned(result *pipeline.CloneResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cloned = result
}

func (s *session) baseResult() *pipeline.BaseResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.base
}

// outputFor returns the merged file of the given kind.
func (s *session) outputFor(kind string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case string(pipeline.PassBase):
		if s.base != nil {
			return s.base.Output, nil
		}
	case kindCloned:
		if s.cloned != nil {
			return s.cloned.Output, nil
		}
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	return "", ErrAudioNotReady
}

// publish fans a progress update out to every subscriber without blocking
// the pass. Slow subscribers miss updates.
func (s *session) publish(progress pipeline.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.last = &progress

	for updates := range s.subscribers {
		select {
		case updates <- progress:
		default:
		}
	}
}

// subscribe registers a progress listener. The returned function removes it.
func (s *session) subscribe() (<-chan pipeline.Progress, pipeline.Progress, func()) {
	updates := make(chan pipeline.Progress, progressBuffer)

	s.mu.Lock()
	s.subscribers[updates] = struct{}{}

	current := pipeline.Progress{Status: statusIdle}
	if s.last != nil {
		current = *s.last
	}

	s.mu.Unlock()

	return updates, current, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		delete(s.subscribers, updates)
	}
}

// state is the JSON view of a session.
func (s *session) state() sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := sessionState{ID: s.workspace.ID(), Busy: s.busy}

	if s.base != nil {
		state.Base = &passState{
			Voice:    s.base.Voice.ID,
			Chunks:   len(s.base.Chunks),
			Gaps:     len(s.base.Gaps),
			Duration: s.base.Info.Duration.String(),
		}
	}

	if s.cloned != nil {
		state.Cloned = &passState{
			Chunks:   len(s.cloned.Audio),
			Duration: s.cloned.Info.Duration.String(),
		}
	}

	return state
}

// sessionStore owns every live session of the server.
type sessionStore struct {
	parent string

	mu       sync.RWMutex
	sessions map[string]*session
}

func newSessionStore(parent string) *sessionStore {
	return &sessionStore{
		parent:   parent,
		sessions: make(map[string]*session),
	}
}

func (s *sessionStore) create() (*session, error) {
	ws, err := workspace.New(s.parent)
	if err != nil {
		return nil, err
	}

	sess := newSession(ws)

	s.mu.Lock()
	s.sessions[ws.ID()] = sess
	s.mu.Unlock()

	return sess, nil
}

func (s *sessionStore) get(id string) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	return sess, nil
}

// remove deletes an idle session and its workspace.
func (s *sessionStore) remove(id string) error {
	sess, err := s.get(id)
	if err != nil {
		return err
	}

	if !sess.acquire() {
		return ErrSessionBusy
	}

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	return sess.workspace.Remove()
}

func (s *sessionStore) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}
