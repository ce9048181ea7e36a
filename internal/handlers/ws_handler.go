package handlers

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/schoolhub/social-api/internal/models"
	"github.com/schoolhub/social-api/internal/repository"
	jwtutil "github.com/schoolhub/social-api/pkg/jwt"
	"github.com/schoolhub/social-api/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub tracks open websocket connections per user and fans conversation
// events out to connected members. A user may hold several sockets at once
// (one per tab); each is keyed by a connection id.
type Hub struct {
	convRepo repository.ConversationRepository

	mu      sync.Mutex
	clients map[string]map[string]*websocket.Conn // userID hex -> connID -> conn
}

func NewHub(convRepo repository.ConversationRepository) *Hub {
	return &Hub{
		convRepo: convRepo,
		clients:  make(map[string]map[string]*websocket.Conn),
	}
}

func (h *Hub) register(userID string, conn *websocket.Conn) string {
	connID := uuid.NewString()
	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[string]*websocket.Conn)
	}
	h.clients[userID][connID] = conn
	h.mu.Unlock()
	return connID
}

func (h *Hub) unregister(userID, connID string) {
	h.mu.Lock()
	if conns, ok := h.clients[userID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.clients, userID)
		}
	}
	h.mu.Unlock()
}

// BroadcastMessage pushes a stored message to every connected member of its
// conversation, the sender's other tabs included. Delivery is best effort.
func (h *Hub) BroadcastMessage(ctx context.Context, msg *models.Message) {
	members, err := h.convRepo.GetMembers(ctx, msg.ConversationID)
	if err != nil {
		logger.Log.Warnf("Failed to load members for fanout: %v", err)
		return
	}

	payload := map[string]interface{}{
		"event":           "message",
		"id":              msg.ID.Hex(),
		"conversation_id": msg.ConversationID.Hex(),
		"sender_id":       msg.SenderID.Hex(),
		"type":            msg.Type,
		"text":            msg.Text,
		"file_url":        msg.FileURL,
		"file_name":       msg.FileName,
		"created_at":      msg.CreatedAt,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range members {
		for _, conn := range h.clients[m.MemberID.Hex()] {
			if err := conn.WriteJSON(payload); err != nil {
				logger.Log.Warnf("Failed to push message to %s: %v", m.MemberID.Hex(), err)
			}
		}
	}
}

// broadcastSeen notifies members that a user's read watermark moved.
func (h *Hub) broadcastSeen(ctx context.Context, conversationID primitive.ObjectID, userID, messageID string) {
	members, err := h.convRepo.GetMembers(ctx, conversationID)
	if err != nil {
		return
	}

	payload := map[string]interface{}{
		"event":           "seen",
		"conversation_id": conversationID.Hex(),
		"user_id":         userID,
		"message_id":      messageID,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range members {
		for _, conn := range h.clients[m.MemberID.Hex()] {
			_ = conn.WriteJSON(payload)
		}
	}
}

// wsInbound is a frame from the client. Clients authenticate with a token
// query param, then send {"conversation_id", "type", "text"} frames to post
// and {"event": "read", ...} frames to move their watermark.
type wsInbound struct {
	Event          string `json:"event,omitempty"` // "" or "message", "read"
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id,omitempty"`
	Type           string `json:"type,omitempty"`
	Text           string `json:"text,omitempty"`
	FileURL        string `json:"file_url,omitempty"`
	FileName       string `json:"file_name,omitempty"`
}

// ServeWS upgrades the connection and pumps inbound frames into the chat
// service.
func (h *ChatHandler) ServeWS(jwtSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "Missing token", http.StatusUnauthorized)
			return
		}
		claims, err := jwtutil.ValidateToken(token, jwtSecret)
		if err != nil {
			logger.Log.Warnf("WebSocket auth failed: %v", err)
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Log.Warnf("WebSocket upgrade failed: %v", err)
			return
		}

		user, err := h.Service.ResolveCaller(r.Context(), claims.ExternalID)
		if err != nil {
			conn.Close()
			return
		}
		userID := user.ID.Hex()

		connID := h.Hub.register(userID, conn)
		logger.Log.Infof("WebSocket connected: %s", userID)

		defer func() {
			h.Hub.unregister(userID, connID)
			conn.Close()
			logger.Log.Infof("WebSocket disconnected: %s", userID)
		}()

		for {
			var in wsInbound
			if err := conn.ReadJSON(&in); err != nil {
				break
			}

			conversationID, err := primitive.ObjectIDFromHex(in.ConversationID)
			if err != nil {
				continue
			}

			switch in.Event {
			case "read":
				messageID, err := primitive.ObjectIDFromHex(in.MessageID)
				if err != nil {
					continue
				}
				if err := h.Service.MarkRead(r.Context(), claims.ExternalID, conversationID, messageID); err != nil {
					logger.Log.Warnf("WebSocket mark read failed: %v", err)
					continue
				}
				h.Hub.broadcastSeen(r.Context(), conversationID, userID, in.MessageID)
			default:
				msg, err := h.Service.SendMessage(r.Context(), claims.ExternalID, conversationID, in.Type, in.Text, in.FileURL, in.FileName)
				if err != nil {
					logger.Log.Warnf("WebSocket send failed: %v", err)
					continue
				}
				h.Hub.BroadcastMessage(r.Context(), msg)
			}
		}
	}
}
