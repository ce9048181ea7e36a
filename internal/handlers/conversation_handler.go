package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/schoolhub/social-api/internal/apperrors"
	"github.com/schoolhub/social-api/internal/services"
	"github.com/schoolhub/social-api/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConversationHandler manages group lifecycle and conversation reads.
type ConversationHandler struct {
	Service *services.ConversationService
	Chat    *services.ChatService
}

func NewConversationHandler(service *services.ConversationService, chat *services.ChatService) *ConversationHandler {
	return &ConversationHandler{Service: service, Chat: chat}
}

// CreateGroupHandler creates a group conversation with the caller and the
// supplied member ids.
func (h *ConversationHandler) CreateGroupHandler(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(w, r)
	if claims == nil {
		return
	}

	var body struct {
		Name      string   `json:"name"`
		MemberIDs []string `json:"member_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	memberIDs := make([]primitive.ObjectID, 0, len(body.MemberIDs))
	for _, hex := range body.MemberIDs {
		id, err := primitive.ObjectIDFromHex(hex)
		if err != nil {
			http.Error(w, "Invalid member id", http.StatusBadRequest)
			return
		}
		memberIDs = append(memberIDs, id)
	}

	conversation, err := h.Service.CreateGroup(r.Context(), claims.ExternalID, body.Name, memberIDs)
	if err != nil {
		logger.Log.Warnf("Failed to create group: %v", err)
		http.Error(w, err.Error(), apperrors.HTTPStatus(err))
		return
	}

	logger.Log.Infof("User %s created group %s", claims.Username, conversation.ID.Hex())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(conversation)
}

// GetConversationHandler returns the membership-gated conversation view.
func (h *ConversationHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(w, r)
	if claims == nil {
		return
	}

	conversationID, ok := pathObjectID(w, r, "id")
	if !ok {
		return
	}

	view, err := h.Service.GetConversation(r.Context(), claims.ExternalID, conversationID)
	if err != nil {
		logger.Log.Warnf("Failed to get conversation %s: %v", conversationID.Hex(), err)
		http.Error(w, err.Error(), apperrors.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// ListConversationsHandler returns the caller's conversations with unseen
// counts.
func (h *ConversationHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(w, r)
	if claims == nil {
		return
	}

	summaries, err := h.Service.ListConversations(r.Context(), claims.ExternalID, h.Chat)
	if err != nil {
		logger.Log.Errorf("Failed to list conversations for %s: %v", claims.Username, err)
		http.Error(w, err.Error(), apperrors.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

// LeaveGroupHandler removes the caller's membership from a group.
func (h *ConversationHandler) LeaveGroupHandler(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(w, r)
	if claims == nil {
		return
	}

	conversationID, ok := pathObjectID(w, r, "id")
	if !ok {
		return
	}

	if err := h.Service.LeaveGroup(r.Context(), claims.ExternalID, conversationID); err != nil {
		logger.Log.Warnf("Failed to leave group %s: %v", conversationID.Hex(), err)
		http.Error(w, err.Error(), apperrors.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Left group"})
}

// DeleteGroupHandler tears a group conversation down entirely.
func (h *ConversationHandler) DeleteGroupHandler(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(w, r)
	if claims == nil {
		return
	}

	conversationID, ok := pathObjectID(w, r, "id")
	if !ok {
		return
	}

	if err := h.Service.DeleteGroup(r.Context(), claims.ExternalID, conversationID); err != nil {
		logger.Log.Warnf("Failed to delete group %s: %v", conversationID.Hex(), err)
		http.Error(w, err.Error(), apperrors.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Group deleted"})
}

// RemoveFriendHandler removes the friendship behind a direct conversation.
func (h *ConversationHandler) RemoveFriendHandler(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(w, r)
	if claims == nil {
		return
	}

	conversationID, ok := pathObjectID(w, r, "id")
	if !ok {
		return
	}

	if err := h.Service.RemoveFriend(r.Context(), claims.ExternalID, conversationID); err != nil {
		logger.Log.Warnf("Failed to remove friend via conversation %s: %v", conversationID.Hex(), err)
		http.Error(w, err.Error(), apperrors.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Friend removed"})
}
