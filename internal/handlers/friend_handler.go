package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/schoolhub/social-api/internal/apperrors"
	"github.com/schoolhub/social-api/internal/services"
	"github.com/schoolhub/social-api/pkg/logger"
)

// FriendHandler manages HTTP endpoints for friend requests and friendships.
type FriendHandler struct {
	Service *services.FriendService
}

func NewFriendHandler(service *services.FriendService) *FriendHandler {
	return &FriendHandler{Service: service}
}

// SendFriendRequestHandler sends a friend request to a username.
func (h *FriendHandler) SendFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(w, r)
	if claims == nil {
		return
	}

	var body struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	request, err := h.Service.CreateRequest(r.Context(), claims.ExternalID, body.Username)
	if err != nil {
		logger.Log.Warnf("Failed to send friend request: %v", err)
		http.Error(w, err.Error(), apperrors.HTTPStatus(err))
		return
	}

	logger.Log.Infof("User %s sent a friend request to %s", claims.Username, body.Username)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(request)
}

// GetPendingRequestsHandler shows all incoming friend requests.
func (h *FriendHandler) GetPendingRequestsHandler(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(w, r)
	if claims == nil {
		return
	}

	requests, err := h.Service.ListPending(r.Context(), claims.ExternalID)
	if err != nil {
		logger.Log.Errorf("Failed to get pending requests: %v", err)
		http.Error(w, err.Error(), apperrors.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(requests)
}

// AcceptFriendRequestHandler accepts a request addressed to the caller.
func (h *FriendHandler) AcceptFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(w, r)
	if claims == nil {
		return
	}

	requestID, ok := pathObjectID(w, r, "id")
	if !ok {
		return
	}

	friendship, err := h.Service.Accept(r.Context(), claims.ExternalID, requestID)
	if err != nil {
		logger.Log.Warnf("Failed to accept friend request %s: %v", requestID.Hex(), err)
		http.Error(w, err.Error(), apperrors.HTTPStatus(err))
		return
	}

	logger.Log.Infof("User %s accepted friend request %s", claims.Username, requestID.Hex())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(friendship)
}

// RejectFriendRequestHandler rejects (deletes) a request by id.
func (h *FriendHandler) RejectFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(w, r)
	if claims == nil {
		return
	}

	requestID, ok := pathObjectID(w, r, "id")
	if !ok {
		return
	}

	if err := h.Service.Reject(r.Context(), claims.ExternalID, requestID); err != nil {
		logger.Log.Warnf("Failed to reject friend request %s: %v", requestID.Hex(), err)
		http.Error(w, err.Error(), apperrors.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Friend request rejected"})
}

// GetFriendsHandler returns the caller's friends.
func (h *FriendHandler) GetFriendsHandler(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(w, r)
	if claims == nil {
		return
	}

	friends, err := h.Service.GetFriends(r.Context(), claims.ExternalID)
	if err != nil {
		logger.Log.Errorf("Failed to fetch friends for %s: %v", claims.Username, err)
		http.Error(w, err.Error(), apperrors.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(friends)
}
