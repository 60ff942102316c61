package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"botkit/internal/domain"
)

// WSMessage is the JSON frame protocol on the socket.
type WSMessage struct {
	Type    string `json:"type"` // "message" | "typing" | "interactive"
	Content string `json:"content,omitempty"`
	ChatID  string `json:"chat_id,omitempty"`
	UserID  string `json:"user_id,omitempty"`
	Value   string `json:"value,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocket runs a socket endpoint for browser clients. Inbound frames
// become tagged requests for the dispatcher; replies are pushed back on
// the originating connection.
type WebSocket struct {
	port   int
	path   string
	logger *slog.Logger

	server *http.Server

	cmu     sync.RWMutex
	clients map[string]*wsClient
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

type WebSocketConfig struct {
	Port   int
	Path   string
	Logger *slog.Logger
}

func NewWebSocket(cfg WebSocketConfig) *WebSocket {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.Port == 0 {
		cfg.Port = 8081
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WebSocket{
		port:    cfg.Port,
		path:    cfg.Path,
		logger:  cfg.Logger,
		clients: make(map[string]*wsClient),
	}
}

// Start runs the socket server until ctx is done.
func (ws *WebSocket) Start(ctx context.Context, publish func(*domain.Request)) error {
	mux := http.NewServeMux()
	mux.HandleFunc(ws.path, func(w http.ResponseWriter, r *http.Request) {
		ws.handleUpgrade(w, r, publish)
	})

	ws.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", ws.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ws.logger.Info("websocket server starting", "port", ws.port, "path", ws.path)

	errCh := make(chan error, 1)
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ws.closeAllClients()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return ws.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (ws *WebSocket) handleUpgrade(w http.ResponseWriter, r *http.Request, publish func(*domain.Request)) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	chatID := r.URL.Query().Get("chat_id")
	if chatID == "" {
		chatID = fmt.Sprintf("ws-%d", time.Now().UnixNano())
	}

	client := &wsClient{conn: conn}
	ws.cmu.Lock()
	ws.clients[chatID] = client
	ws.cmu.Unlock()

	defer func() {
		ws.cmu.Lock()
		delete(ws.clients, chatID)
		ws.cmu.Unlock()
		conn.Close()
	}()

	for {
		var frame WSMessage
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.logger.Warn("websocket read failed", "chat_id", chatID, "err", err)
			}
			return
		}
		if frame.Type != "message" && frame.Type != "interactive" {
			continue
		}
		frame.ChatID = chatID
		if frame.UserID == "" {
			frame.UserID = chatID
		}
		body, _ := json.Marshal(frame)
		req := domain.NewRequest(body)
		req.Headers.Set(requestDriverHeader, "websocket")
		publish(req)
	}
}

func (ws *WebSocket) closeAllClients() {
	ws.cmu.Lock()
	defer ws.cmu.Unlock()
	for id, c := range ws.clients {
		c.conn.Close()
		delete(ws.clients, id)
	}
}

// Driver is the registry factory: a request-scoped view sharing the
// client table for the send path.
func (ws *WebSocket) Driver(req *domain.Request) domain.Driver {
	v := &wsView{host: ws}
	if req == nil || req.Headers.Get(requestDriverHeader) != "websocket" {
		return v
	}
	if err := json.Unmarshal(req.Body, &v.inbound); err != nil {
		return v
	}
	v.matched = true
	return v
}

// wsView is the per-request driver over the shared socket host.
type wsView struct {
	host    *WebSocket
	inbound WSMessage
	matched bool
}

func (v *wsView) Name() string         { return "websocket" }
func (v *wsView) MatchesRequest() bool { return v.matched }
func (v *wsView) IsBot() bool          { return false }
func (v *wsView) IsConfigured() bool   { return true }

// SerializesCallbacks is false: the connection outlives the request.
func (v *wsView) SerializesCallbacks() bool { return false }

func (v *wsView) Event() (*domain.DriverEvent, bool) { return nil, false }

func (v *wsView) Messages() []*domain.IncomingMessage {
	if !v.matched {
		return nil
	}
	msg := domain.NewIncomingMessage(v.inbound.Content, v.inbound.UserID, v.inbound.ChatID, nil)
	return []*domain.IncomingMessage{msg}
}

func (v *wsView) User(msg *domain.IncomingMessage) (*domain.User, error) {
	return &domain.User{ID: msg.Sender}, nil
}

func (v *wsView) ConversationAnswer(msg *domain.IncomingMessage) *domain.Answer {
	answer := domain.NewAnswer(msg)
	if v.inbound.Type == "interactive" {
		answer.FromCallback = true
		answer.Value = v.inbound.Value
	}
	return answer
}

func (v *wsView) BuildServicePayload(out *domain.OutgoingMessage, matching *domain.IncomingMessage, extras map[string]any) (domain.Payload, error) {
	payload := domain.Payload{
		"type":    "message",
		"content": out.Text,
	}
	if matching != nil {
		payload["chat_id"] = matching.Recipient
	}
	for k, v := range extras {
		payload[k] = v
	}
	return payload, nil
}

func (v *wsView) SendPayload(p domain.Payload) error {
	chatID, _ := p["chat_id"].(string)
	content, _ := p["content"].(string)
	return v.host.push(chatID, WSMessage{Type: "message", Content: content, ChatID: chatID})
}

func (v *wsView) Types(msg *domain.IncomingMessage) error {
	if msg == nil {
		return nil
	}
	return v.host.push(msg.Recipient, WSMessage{Type: "typing", ChatID: msg.Recipient})
}

func (ws *WebSocket) push(chatID string, frame WSMessage) error {
	ws.cmu.RLock()
	client, ok := ws.clients[chatID]
	ws.cmu.RUnlock()
	if !ok {
		return fmt.Errorf("no websocket client for chat %q", chatID)
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	if err := client.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}
