package inbound

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-workspaces/core"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
)

const (
	NamespaceQueryParam = "namespace"
	NamespacePathValue  = "namespace"

	sessionIDPrefix = "ws_"
)

// Subscriber is the gateway surface a watch session needs.
type Subscriber interface {
	Subscribe(ctx context.Context, namespace string, sink core.Sink, credential string) error
	Unsubscribe(ctx context.Context, namespace string, sinkID string) error
}

// ClientMessage is the only message a client sends. A new credential on an
// open session re-binds the subscription to it.
type ClientMessage struct {
	Credential string `json:"credential"`
}

type WatchHandlerConfig struct {
	Subscriber   Subscriber
	Logger       core.Logger
	PingInterval time.Duration
	WriteTimeout time.Duration
	CheckOrigin  func(r *http.Request) bool
	NewSessionID func() string
}

type WatchHandler struct {
	subscriber   Subscriber
	logger       core.Logger
	pingInterval time.Duration
	writeTimeout time.Duration
	newSessionID func() string
	upgrader     websocket.Upgrader
}

func NewWatchHandler(cfg WatchHandlerConfig) (*WatchHandler, error) {
	if cfg.Subscriber == nil {
		return nil, inboundBadInput("inbound: subscriber is required", nil)
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = core.DefaultServerPingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = core.DefaultServerWriteTimeout
	}
	if cfg.NewSessionID == nil {
		cfg.NewSessionID = func() string { return sessionIDPrefix + ulid.Make().String() }
	}
	return &WatchHandler{
		subscriber:   cfg.Subscriber,
		logger:       glog.Ensure(cfg.Logger),
		pingInterval: cfg.PingInterval,
		writeTimeout: cfg.WriteTimeout,
		newSessionID: cfg.NewSessionID,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: cfg.WriteTimeout,
			CheckOrigin:      cfg.CheckOrigin,
		},
	}, nil
}

// Namespace resolves the group a request binds to. A path value set by the
// router wins over the query parameter.
func Namespace(r *http.Request) string {
	if value := strings.TrimSpace(r.PathValue(NamespacePathValue)); value != "" {
		return value
	}
	return strings.TrimSpace(r.URL.Query().Get(NamespaceQueryParam))
}

func (h *WatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	namespace := Namespace(r)
	if namespace == "" {
		writeError(w, inboundBadInput("inbound: namespace is required", nil))
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "namespace", namespace, "error", err.Error())
		return
	}

	s := newSession(h.newSessionID(), namespace, conn, h.writeTimeout)
	h.logger.Info("watch session opened", "namespace", namespace, "session_id", s.id)
	h.serve(r.Context(), s)
}

func (h *WatchHandler) serve(parent context.Context, s *session) {
	ctx, cancel := context.WithCancel(parent)
	defer func() {
		cancel()
		s.close(websocket.CloseNormalClosure, "")
		if s.isAttached() {
			unsubscribeCtx, done := context.WithTimeout(context.WithoutCancel(parent), h.writeTimeout)
			if err := h.subscriber.Unsubscribe(unsubscribeCtx, s.namespace, s.id); err != nil {
				h.logger.Warn("watch unsubscribe failed", "namespace", s.namespace, "session_id", s.id, "error", err.Error())
			}
			done()
		}
		h.logger.Info("watch session closed", "namespace", s.namespace, "session_id", s.id)
	}()

	pongWait := 2 * h.pingInterval
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go h.keepAlive(ctx, s)

	for {
		messageType, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("watch session read failed", "namespace", s.namespace, "session_id", s.id, "error", err.Error())
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		if messageType != websocket.TextMessage {
			continue
		}
		h.handleMessage(ctx, s, payload)
	}
}

func (h *WatchHandler) handleMessage(ctx context.Context, s *session, payload []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		h.reject(ctx, s, fmt.Errorf("inbound: decode client message: %w", err))
		return
	}
	credential := strings.TrimSpace(msg.Credential)
	if credential == "" {
		h.reject(ctx, s, inboundBadInput("inbound: credential is required", nil))
		return
	}
	// A failed or abandoned Subscribe can still leave the sink registered,
	// so any attempt is enough to unsubscribe on close.
	s.markAttached()
	if err := h.subscriber.Subscribe(ctx, s.namespace, s, credential); err != nil {
		h.logger.Warn("watch subscribe failed", "namespace", s.namespace, "session_id", s.id, "error", err.Error())
		h.reject(ctx, s, err)
	}
}

// reject reports a failure on the channel as an error-shaped record; the
// session stays open so the client can retry with another credential.
func (h *WatchHandler) reject(ctx context.Context, s *session, err error) {
	if sendErr := s.Send(ctx, core.TransitionRecord{Error: err.Error()}); sendErr != nil {
		h.logger.Debug("watch error notice not delivered", "namespace", s.namespace, "session_id", s.id, "error", sendErr.Error())
	}
}

func (h *WatchHandler) keepAlive(ctx context.Context, s *session) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ping(ctx); err != nil {
				return
			}
		}
	}
}
