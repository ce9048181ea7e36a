package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/schoolhub/social-api/internal/apperrors"
	"github.com/schoolhub/social-api/internal/services"
	"github.com/schoolhub/social-api/pkg/logger"
)

// ChatHandler manages message endpoints within a conversation.
type ChatHandler struct {
	Service *services.ChatService
	Hub     *Hub
}

func NewChatHandler(service *services.ChatService, hub *Hub) *ChatHandler {
	return &ChatHandler{Service: service, Hub: hub}
}

// SendMessageHandler appends a message to a conversation and fans it out to
// connected members.
func (h *ChatHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(w, r)
	if claims == nil {
		return
	}

	conversationID, ok := pathObjectID(w, r, "id")
	if !ok {
		return
	}

	var body struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		FileURL  string `json:"file_url"`
		FileName string `json:"file_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	message, err := h.Service.SendMessage(r.Context(), claims.ExternalID, conversationID, body.Type, body.Text, body.FileURL, body.FileName)
	if err != nil {
		logger.Log.Warnf("Failed to send message to %s: %v", conversationID.Hex(), err)
		http.Error(w, err.Error(), apperrors.HTTPStatus(err))
		return
	}

	if h.Hub != nil {
		h.Hub.BroadcastMessage(r.Context(), message)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(message)
}

// ListMessagesHandler returns the conversation's messages newest first.
func (h *ChatHandler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(w, r)
	if claims == nil {
		return
	}

	conversationID, ok := pathObjectID(w, r, "id")
	if !ok {
		return
	}

	messages, err := h.Service.ListMessages(r.Context(), claims.ExternalID, conversationID)
	if err != nil {
		logger.Log.Warnf("Failed to list messages for %s: %v", conversationID.Hex(), err)
		http.Error(w, err.Error(), apperrors.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messages)
}

// MarkReadHandler moves the caller's read watermark.
func (h *ChatHandler) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(w, r)
	if claims == nil {
		return
	}

	conversationID, ok := pathObjectID(w, r, "id")
	if !ok {
		return
	}
	messageID, ok := pathObjectID(w, r, "messageId")
	if !ok {
		return
	}

	if err := h.Service.MarkRead(r.Context(), claims.ExternalID, conversationID, messageID); err != nil {
		logger.Log.Warnf("Failed to mark read in %s: %v", conversationID.Hex(), err)
		http.Error(w, err.Error(), apperrors.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Read position updated"})
}

// SeenByHandler returns who has seen a message and the UI label for it.
func (h *ChatHandler) SeenByHandler(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(w, r)
	if claims == nil {
		return
	}

	conversationID, ok := pathObjectID(w, r, "id")
	if !ok {
		return
	}
	messageID, ok := pathObjectID(w, r, "messageId")
	if !ok {
		return
	}

	names, label, err := h.Service.SeenBy(r.Context(), claims.ExternalID, conversationID, messageID)
	if err != nil {
		logger.Log.Warnf("Failed to get seen-by for %s: %v", messageID.Hex(), err)
		http.Error(w, err.Error(), apperrors.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"seen_by": names,
		"label":   label,
	})
}
