// Package desk - in-memory remote desk session and frame bookkeeping.
//
// DESIGN: Sessions are ephemeral: they live in a mutex-guarded map, carry
// only the latest frame per session, and a background janitor drops any
// session idle past its TTL. Nothing here touches disk; a gateway restart
// clears all desks. Durable state belongs to the snapshot store.
package desk

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaydesk/model-gateway/internal/config"
)

var (
	// ErrSessionNotFound reports an unknown or expired session id.
	ErrSessionNotFound = errors.New("desk session not found")

	// ErrFrameTooLarge reports a frame above the configured size cap.
	ErrFrameTooLarge = errors.New("desk frame exceeds size limit")
)

// Session is the public view of a desk session.
type Session struct {
	ID         string            `json:"id"`
	CreatedAt  time.Time         `json:"created_at"`
	LastActive time.Time         `json:"last_active"`
	FrameSeq   int64             `json:"frame_seq"`
	Meta       map[string]string `json:"meta,omitempty"`
}

// Frame is one pushed desk frame. Data is an opaque client payload; the
// content type travels with it so readers can interpret the bytes.
type Frame struct {
	Seq         int64     `json:"seq"`
	At          time.Time `json:"at"`
	ContentType string    `json:"content_type,omitempty"`
	Data        []byte    `json:"data"`
}

type session struct {
	id         string
	createdAt  time.Time
	lastActive time.Time
	meta       map[string]string
	frame      Frame
}

// Store holds all live desk sessions. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session

	ttl      time.Duration
	sweep    time.Duration
	maxFrame int

	stop     chan struct{}
	stopOnce sync.Once
}

// NewStore creates a session store and starts its expiry janitor.
func NewStore(cfg config.DeskConf) *Store {
	s := &Store{
		sessions: make(map[string]*session),
		ttl:      cfg.SessionTTL(),
		sweep:    cfg.SweepInterval(),
		maxFrame: cfg.FrameCap(),
		stop:     make(chan struct{}),
	}
	go s.janitor()
	return s
}

// Close stops the janitor. Sessions are not flushed anywhere.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Create registers a new session and returns its public view.
func (s *Store) Create(meta map[string]string) Session {
	now := time.Now()
	sess := &session{
		id:         uuid.NewString(),
		createdAt:  now,
		lastActive: now,
		meta:       meta,
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	return sess.view()
}

// Get returns a session's public view.
func (s *Store) Get(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess.view(), nil
}

// List returns a snapshot of all live sessions.
func (s *Store) List() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.view())
	}
	return out
}

// Delete removes a session. Deleting an unknown id is not an error.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// PushFrame stores data as the session's latest frame and returns the new
// frame sequence number. The data is copied; callers may reuse the buffer.
func (s *Store) PushFrame(id, contentType string, data []byte) (int64, error) {
	if len(data) > s.maxFrame {
		return 0, ErrFrameTooLarge
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return 0, ErrSessionNotFound
	}
	sess.frame = Frame{
		Seq:         sess.frame.Seq + 1,
		At:          time.Now(),
		ContentType: contentType,
		Data:        append([]byte(nil), data...),
	}
	sess.lastActive = sess.frame.At
	return sess.frame.Seq, nil
}

// LatestFrame returns the session's most recent frame. A session that has
// never received a frame returns Seq 0 and nil data.
func (s *Store) LatestFrame(id string) (Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Frame{}, ErrSessionNotFound
	}
	return sess.frame, nil
}

// Touch refreshes a session's activity clock without pushing a frame.
func (s *Store) Touch(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	sess.lastActive = time.Now()
	return nil
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (sess *session) view() Session {
	var meta map[string]string
	if len(sess.meta) > 0 {
		meta = make(map[string]string, len(sess.meta))
		for k, v := range sess.meta {
			meta[k] = v
		}
	}
	return Session{
		ID:         sess.id,
		CreatedAt:  sess.createdAt,
		LastActive: sess.lastActive,
		FrameSeq:   sess.frame.Seq,
		Meta:       meta,
	}
}

func (s *Store) janitor() {
	ticker := time.NewTicker(s.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.expire(time.Now())
		}
	}
}

// expire drops sessions idle past the TTL.
func (s *Store) expire(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sess := range s.sessions {
		if now.Sub(sess.lastActive) > s.ttl {
			delete(s.sessions, id)
		}
	}
}
