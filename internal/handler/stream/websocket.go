package stream

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-arena/backend/internal/model/chat"
	modeldebate "github.com/zhouzirui/z-arena/backend/internal/model/debate"
	"github.com/zhouzirui/z-arena/backend/internal/service/ai"
	"github.com/zhouzirui/z-arena/backend/internal/service/debate"
	"github.com/zhouzirui/z-arena/backend/internal/service/relay"
	"github.com/zhouzirui/z-arena/backend/internal/store"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 54 * time.Second
)

// errTurnStopped is the cancel cause for a client {"type":"stop"}.
var errTurnStopped = errors.New("turn stopped by client")

// WebSocketHandler runs debate turns over a WebSocket. One connection
// carries any number of turns, one at a time.
type WebSocketHandler struct {
	debate   *debate.Service
	relay    *relay.Controller
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(debateSvc *debate.Service) *WebSocketHandler {
	return &WebSocketHandler{
		debate: debateSvc,
		relay:  relay.NewController(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/debate/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type    string                   `json:"type"`
	Request *modeldebate.TurnRequest `json:"request,omitempty"`
}

type outgoingMessage struct {
	Type      string        `json:"type"`
	SessionID string        `json:"sessionId,omitempty"`
	Content   string        `json:"content,omitempty"`
	Error     string        `json:"error,omitempty"`
	Status    int           `json:"status,omitempty"`
	Message   *chat.Message `json:"message,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

// wsConn serializes writes; gorilla allows one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(msg outgoingMessage) error {
	msg.Timestamp = time.Now().UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

func (c *wsConn) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

// wsSink is the relay.Sink for one turn on a shared connection. Fragments
// go out immediately; the terminal done/error event is held back and
// returned by runTurn so it is sent after the connection is free for the
// next turn.
type wsSink struct {
	ctx       context.Context
	conn      *wsConn
	sessionID string

	mu       sync.Mutex
	closed   bool
	text     strings.Builder
	terminal *outgoingMessage
}

func (s *wsSink) live() error {
	if s.closed {
		return relay.ErrClientDisconnected
	}
	if s.ctx.Err() != nil {
		s.closed = true
		return relay.ErrClientDisconnected
	}
	return nil
}

func (s *wsSink) Fragment(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(); err != nil {
		return err
	}
	if err := s.conn.send(outgoingMessage{Type: "fragment", SessionID: s.sessionID, Content: text}); err != nil {
		s.closed = true
		return relay.ErrClientDisconnected
	}
	s.text.WriteString(text)
	return nil
}

func (s *wsSink) Done() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(); err != nil {
		return err
	}
	s.terminal = &outgoingMessage{Type: "done", SessionID: s.sessionID, Content: s.text.String()}
	return nil
}

func (s *wsSink) Fail(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(); err != nil {
		return err
	}
	s.terminal = &outgoingMessage{Type: "error", SessionID: s.sessionID, Error: message, Status: http.StatusBadGateway}
	return nil
}

func (s *wsSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *wsSink) terminalEvent() *outgoingMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &wsConn{conn: conn}

	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	go c.pingLoop(ctx)

	var (
		mu       sync.Mutex
		stopTurn context.CancelCauseFunc
		wg       sync.WaitGroup
	)
	defer func() {
		mu.Lock()
		if stopTurn != nil {
			stopTurn(relay.ErrClientDisconnected)
		}
		mu.Unlock()
		wg.Wait()
	}()

	_ = c.send(outgoingMessage{Type: "connected"})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		switch msg.Type {
		case "stop":
			mu.Lock()
			if stopTurn != nil {
				stopTurn(errTurnStopped)
			}
			mu.Unlock()

		case "turn":
			if msg.Request == nil {
				_ = c.send(outgoingMessage{Type: "error", Error: "request is required", Status: http.StatusBadRequest})
				continue
			}

			mu.Lock()
			if stopTurn != nil {
				mu.Unlock()
				_ = c.send(outgoingMessage{Type: "error", Error: "a turn is already in progress", Status: http.StatusConflict})
				continue
			}
			turnCtx, turnCancel := context.WithCancelCause(ctx)
			stopTurn = turnCancel
			mu.Unlock()

			wg.Add(1)
			go func(req modeldebate.TurnRequest) {
				defer wg.Done()
				final := h.runTurn(turnCtx, c, req)

				mu.Lock()
				stopTurn = nil
				mu.Unlock()
				turnCancel(nil)

				for _, event := range final {
					_ = c.send(event)
				}
			}(*msg.Request)

		case "ping":
			_ = c.send(outgoingMessage{Type: "pong"})

		default:
			_ = c.send(outgoingMessage{Type: "error", Error: "unsupported message type: " + msg.Type})
		}
	}
}

// runTurn relays one turn and returns its closing events, which the
// caller sends once the connection accepts a new turn.
func (h *WebSocketHandler) runTurn(ctx context.Context, c *wsConn, req modeldebate.TurnRequest) []outgoingMessage {
	ctx, cancel := context.WithTimeout(ctx, h.debate.SessionTimeout())
	defer cancel()

	turn, err := h.debate.StartTurn(ctx, req)
	if err != nil {
		return []outgoingMessage{startErrorMessage(err)}
	}

	sink := &wsSink{ctx: ctx, conn: c, sessionID: turn.Session.ID}
	result := h.relay.Run(ctx, turn.Session, turn.Stream, sink)

	stored, err := h.debate.FinishTurn(context.WithoutCancel(ctx), turn, result)
	if err != nil {
		log.Printf("[websocket] session=%s finish failed: %v", turn.Session.ID, err)
	}

	var final []outgoingMessage
	if terminal := sink.terminalEvent(); terminal != nil {
		final = append(final, *terminal)
	}
	switch {
	case stored != nil:
		final = append(final, outgoingMessage{Type: "saved", SessionID: turn.Session.ID, Message: stored})
	case result.State == relay.StateCancelled && errors.Is(context.Cause(ctx), errTurnStopped):
		final = append(final, outgoingMessage{Type: "stopped", SessionID: turn.Session.ID, Content: result.Text})
	}
	return final
}

func startErrorMessage(err error) outgoingMessage {
	msg := outgoingMessage{Type: "error", Error: err.Error(), Status: http.StatusInternalServerError}
	var reqErr *ai.RequestError
	switch {
	case debate.IsClientError(err):
		msg.Status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		msg.Status = http.StatusNotFound
	case errors.As(err, &reqErr):
		msg.Status = http.StatusBadGateway
	}
	return msg
}
