package inbound

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-workspaces/core"
	"github.com/gorilla/websocket"
)

// session is the sink registered for one websocket connection. Gorilla
// connections allow a single concurrent writer, so every write goes through
// writeMu.
type session struct {
	id           string
	namespace    string
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex
	closed  bool

	stateMu  sync.Mutex
	attached bool
}

func newSession(id, namespace string, conn *websocket.Conn, writeTimeout time.Duration) *session {
	return &session{
		id:           id,
		namespace:    namespace,
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

func (s *session) ID() string {
	return s.id
}

func (s *session) Send(ctx context.Context, record core.TransitionRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("inbound: encode transition: %w", err)
	}
	return s.write(ctx, websocket.TextMessage, payload)
}

func (s *session) ping(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	return s.conn.WriteControl(websocket.PingMessage, nil, s.deadline(ctx))
}

func (s *session) write(ctx context.Context, messageType int, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	if err := s.conn.SetWriteDeadline(s.deadline(ctx)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, payload)
}

// deadline is the earlier of the context deadline and the write timeout.
func (s *session) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(s.writeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		return ctxDeadline
	}
	return deadline
}

func (s *session) close(code int, reason string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	message := websocket.FormatCloseMessage(code, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(s.writeTimeout))
	_ = s.conn.Close()
}

func (s *session) markAttached() {
	s.stateMu.Lock()
	s.attached = true
	s.stateMu.Unlock()
}

func (s *session) isAttached() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.attached
}

var errSessionClosed = fmt.Errorf("inbound: session closed")

var _ core.Sink = (*session)(nil)
