package services

import (
	"context"
	"fmt"

	"github.com/schoolhub/social-api/internal/apperrors"
	"github.com/schoolhub/social-api/internal/database"
	"github.com/schoolhub/social-api/internal/models"
	"github.com/schoolhub/social-api/internal/repository"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FriendService handles the friend-request lifecycle and friend listing.
type FriendService struct {
	friendRepo repository.FriendRepository
	convRepo   repository.ConversationRepository
	userRepo   repository.UserRepository
	txn        database.TxnRunner
}

func NewFriendService(
	friendRepo repository.FriendRepository,
	convRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	txn database.TxnRunner,
) *FriendService {
	return &FriendService{
		friendRepo: friendRepo,
		convRepo:   convRepo,
		userRepo:   userRepo,
		txn:        txn,
	}
}

// CreateRequest sends a friend request from the caller to the user holding
// targetUsername. The duplicate checks are best effort; the store's unique
// index on pending requests is the backstop for a concurrent double submit.
func (s *FriendService) CreateRequest(ctx context.Context, callerExternalID, targetUsername string) (*models.FriendRequest, error) {
	caller, err := s.resolveCaller(ctx, callerExternalID)
	if err != nil {
		return nil, err
	}

	if caller.Username == targetUsername {
		return nil, apperrors.InvalidRequestf("cannot send a friend request to yourself")
	}

	target, err := s.userRepo.FindByUsername(ctx, targetUsername)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, apperrors.NotFoundf("user %q not found", targetUsername)
	}

	pending, err := s.friendRepo.GetPendingBetween(ctx, caller.ID, target.ID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, apperrors.Conflictf("a friend request between you and %q is already pending", targetUsername)
	}

	friendship, err := s.friendRepo.GetFriendshipBetween(ctx, caller.ID, target.ID)
	if err != nil {
		return nil, err
	}
	if friendship != nil {
		return nil, apperrors.Conflictf("you are already friends with %q", targetUsername)
	}

	request := &models.FriendRequest{
		SenderID:     caller.ID,
		SenderRole:   caller.Role,
		ReceiverID:   target.ID,
		ReceiverRole: target.Role,
	}

	created, err := s.friendRepo.CreateRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"requestID": created.ID.Hex(),
		"sender":    caller.Username,
		"receiver":  target.Username,
	}).Info("Friend request created")

	return created, nil
}

// Accept turns a pending request into a friendship with its direct
// conversation and both memberships, then deletes the request. The four
// writes run as one unit.
func (s *FriendService) Accept(ctx context.Context, callerExternalID string, requestID primitive.ObjectID) (*models.Friendship, error) {
	caller, err := s.resolveCaller(ctx, callerExternalID)
	if err != nil {
		return nil, err
	}

	request, err := s.friendRepo.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request == nil || request.ReceiverID != caller.ID {
		return nil, apperrors.NotFoundf("friend request not found")
	}

	var friendship *models.Friendship
	err = s.txn.WithTransaction(ctx, func(ctx context.Context) error {
		conversation, err := s.convRepo.CreateConversation(ctx, &models.Conversation{IsGroup: false})
		if err != nil {
			return err
		}

		friendship, err = s.friendRepo.CreateFriendship(ctx, &models.Friendship{
			User1:          caller.ID,
			Role1:          caller.Role,
			User2:          request.SenderID,
			Role2:          request.SenderRole,
			ConversationID: conversation.ID,
		})
		if err != nil {
			return err
		}

		for _, memberID := range []primitive.ObjectID{caller.ID, request.SenderID} {
			if _, err := s.convRepo.AddMember(ctx, &models.ConversationMember{
				MemberID:       memberID,
				ConversationID: conversation.ID,
			}); err != nil {
				return err
			}
		}

		return s.friendRepo.DeleteRequest(ctx, request.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to accept friend request: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"friendshipID":   friendship.ID.Hex(),
		"conversationID": friendship.ConversationID.Hex(),
	}).Info("Friend request accepted")

	return friendship, nil
}

// Reject deletes a pending request. Any authenticated caller may reject any
// request by id; unlike Accept there is no receiver check. That matches the
// original behavior, so the deletion is logged with both ids.
func (s *FriendService) Reject(ctx context.Context, callerExternalID string, requestID primitive.ObjectID) error {
	caller, err := s.resolveCaller(ctx, callerExternalID)
	if err != nil {
		return err
	}

	request, err := s.friendRepo.GetRequestByID(ctx, requestID)
	if err != nil {
		return err
	}
	if request == nil {
		return apperrors.NotFoundf("friend request not found")
	}

	if err := s.friendRepo.DeleteRequest(ctx, request.ID); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"requestID": request.ID.Hex(),
		"callerID":  caller.ID.Hex(),
		"receiver":  request.ReceiverID.Hex(),
	}).Info("Friend request rejected")

	return nil
}

// ListPending returns the caller's incoming requests with resolved senders.
func (s *FriendService) ListPending(ctx context.Context, callerExternalID string) ([]models.PendingRequest, error) {
	caller, err := s.resolveCaller(ctx, callerExternalID)
	if err != nil {
		return nil, err
	}

	requests, err := s.friendRepo.GetRequestsByReceiver(ctx, caller.ID)
	if err != nil {
		return nil, err
	}

	pending := make([]models.PendingRequest, 0, len(requests))
	for _, req := range requests {
		sender, err := s.userRepo.FindByID(ctx, req.SenderID)
		if err != nil {
			return nil, err
		}
		if sender == nil {
			logrus.WithField("requestID", req.ID.Hex()).Warn("Skipping request with missing sender")
			continue
		}
		pending = append(pending, models.PendingRequest{
			ID:     req.ID,
			Sender: sender.Public(),
			SentAt: req.CreatedAt,
		})
	}

	return pending, nil
}

// GetFriends lists the caller's friends. A friendship whose other party no
// longer resolves is logged and skipped rather than failing the whole list.
func (s *FriendService) GetFriends(ctx context.Context, callerExternalID string) ([]models.Friend, error) {
	caller, err := s.resolveCaller(ctx, callerExternalID)
	if err != nil {
		return nil, err
	}

	friendships, err := s.friendRepo.GetFriendshipsByUser(ctx, caller.ID)
	if err != nil {
		return nil, err
	}

	friends := make([]models.Friend, 0, len(friendships))
	for _, f := range friendships {
		otherID, _, ok := f.OtherParty(caller.ID)
		if !ok {
			continue
		}

		other, err := s.userRepo.FindByID(ctx, otherID)
		if err != nil {
			return nil, err
		}
		if other == nil {
			logrus.WithFields(logrus.Fields{
				"friendshipID": f.ID.Hex(),
				"otherID":      otherID.Hex(),
			}).Warn("Skipping friendship with missing user record")
			continue
		}

		friends = append(friends, models.Friend{
			User:           other.Public(),
			ConversationID: f.ConversationID,
			Since:          f.CreatedAt,
		})
	}

	return friends, nil
}

func (s *FriendService) resolveCaller(ctx context.Context, externalID string) (*models.User, error) {
	user, err := s.userRepo.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.Unauthenticatedf("unknown caller %q", externalID)
	}
	return user, nil
}
