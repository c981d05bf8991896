package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antonykevinfernando/doorstep-sub001/internal/models"
)

const writeWait = 2 * time.Second

// Conn is the part of *websocket.Conn used by a session.
type Conn interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v interface{}) error
	Close() error
}

// WSSession represents a connected operator console.
type WSSession struct {
	conn Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(ev models.DepositEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(ev)
}

// WSRegistry holds console sessions keyed by subscriber id and broadcasts
// deposit events to them. A failed send drops the session.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry { return &WSRegistry{sessions: make(map[string]*WSSession)} }

func (r *WSRegistry) Add(id string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[id]; ok {
		_ = old.conn.Close()
	}
	r.sessions[id] = &WSSession{conn: conn}
}

func (r *WSRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		_ = s.conn.Close()
		delete(r.sessions, id)
	}
}

func (r *WSRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Publish implements events.Publisher.
func (r *WSRegistry) Publish(ctx context.Context, ev models.DepositEvent) error {
	r.mu.RLock()
	targets := make(map[string]*WSSession, len(r.sessions))
	for id, s := range r.sessions {
		targets[id] = s
	}
	r.mu.RUnlock()

	var errs []error
	for id, s := range targets {
		if err := s.Send(ev); err != nil {
			errs = append(errs, err)
			r.Remove(id)
		}
	}
	return errors.Join(errs...)
}

var _ Conn = (*websocket.Conn)(nil)
