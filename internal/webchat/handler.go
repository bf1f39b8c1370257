package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/internal/matching"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// ContactPrefix marks contacts that talk to the assistant through the widget.
const ContactPrefix = "webchat:"

// Handler serves the chat widget. Turns run synchronously; the reply goes
// back on the same connection with choices kept structural.
type Handler struct {
	turns  conversation.TurnHandler
	logger *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*wsConn // tenant + contact -> active connection
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(msg OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return websocket.JSON.Send(c.conn, msg)
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type       string `json:"type"` // "message", "ping"
	Text       string `json:"text"`
	SelectedID string `json:"selected_id,omitempty"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type      string            `json:"type"` // "message", "session", "pong", "error"
	Text      string            `json:"text,omitempty"`
	Choices   []matching.Choice `json:"choices,omitempty"`
	State     string            `json:"state,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Timestamp string            `json:"timestamp,omitempty"`
}

func NewHandler(turns conversation.TurnHandler, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		turns:    turns,
		logger:   logger,
		sessions: make(map[string]*wsConn),
	}
}

// ContactID builds the contact id used for a widget session.
func ContactID(sessionID string) string {
	return ContactPrefix + sessionID
}

func sessionKey(tenantID, contactID string) string {
	return tenantID + "\x00" + contactID
}

func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// HandleWebSocket upgrades GET /chat/ws?tenant=..&session=.. to a socket.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant"))
	if tenantID == "" {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "missing tenant parameter"})
		return
	}
	sessionID := strings.TrimSpace(r.URL.Query().Get("session"))
	if sessionID == "" {
		sessionID = generateSessionID()
	}
	contactID := ContactID(sessionID)
	key := sessionKey(tenantID, contactID)

	wsc := &wsConn{conn: conn}
	if err := wsc.send(OutboundMessage{Type: "session", SessionID: sessionID}); err != nil {
		return
	}

	h.mu.Lock()
	h.sessions[key] = wsc
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		if h.sessions[key] == wsc {
			delete(h.sessions, key)
		}
		h.mu.Unlock()
	}()

	logger := h.logger.WithTenant(tenantID)
	logger.Info("webchat: connection opened", "session_id", sessionID)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			logger.Debug("webchat: connection closed", "session_id", sessionID, "error", err)
			return
		}
		switch msg.Type {
		case "ping":
			_ = wsc.send(OutboundMessage{Type: "pong"})
			continue
		case "message":
		default:
			continue
		}
		if strings.TrimSpace(msg.Text) == "" && strings.TrimSpace(msg.SelectedID) == "" {
			continue
		}

		out, err := h.turn(r.Context(), tenantID, contactID, msg.Text, msg.SelectedID)
		if err != nil {
			_ = wsc.send(OutboundMessage{Type: "error", Text: errorText(err)})
			if errors.Is(err, conversation.ErrUnknownTenant) {
				return
			}
			continue
		}
		if err := wsc.send(toOutbound(*out)); err != nil {
			logger.Warn("webchat: failed to send reply", "session_id", sessionID, "error", err)
			return
		}
	}
}

func (h *Handler) turn(ctx context.Context, tenantID, contactID, text, selectedID string) (*conversation.OutgoingMessage, error) {
	out, err := h.turns.HandleTurn(ctx, conversation.IncomingMessage{
		TenantID:   tenantID,
		ContactID:  contactID,
		Text:       text,
		SelectedID: strings.TrimSpace(selectedID),
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("webchat: turn failed", "error", err, "tenant_id", tenantID, "contact_id", contactID)
		return nil, err
	}
	return out, nil
}

func errorText(err error) string {
	if errors.Is(err, conversation.ErrUnknownTenant) {
		return "unknown tenant"
	}
	return conversation.FailureReply
}

func toOutbound(out conversation.OutgoingMessage) OutboundMessage {
	return OutboundMessage{
		Type:      "message",
		Text:      out.Content,
		Choices:   out.Choices,
		State:     string(out.State),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Push sends msg to the contact's open socket. It reports false when the
// contact has no connection on this instance.
func (h *Handler) Push(tenantID, contactID string, msg OutboundMessage) (bool, error) {
	h.mu.RLock()
	wsc, ok := h.sessions[sessionKey(tenantID, contactID)]
	h.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, wsc.send(msg)
}

type messageRequest struct {
	TenantID   string `json:"tenant_id"`
	SessionID  string `json:"session_id"`
	Text       string `json:"text"`
	SelectedID string `json:"selected_id"`
}

// HandleMessage is the HTTP fallback for clients that cannot hold a socket.
// It answers with the reply and the session id to reuse.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.TenantID = strings.TrimSpace(req.TenantID)
	if req.TenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		req.SessionID = generateSessionID()
	}

	out, err := h.turn(r.Context(), req.TenantID, ContactID(req.SessionID), req.Text, req.SelectedID)
	if err != nil {
		if errors.Is(err, conversation.ErrUnknownTenant) {
			http.Error(w, "unknown tenant", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to process message", http.StatusInternalServerError)
		return
	}

	reply := toOutbound(*out)
	reply.SessionID = req.SessionID
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reply)
}
