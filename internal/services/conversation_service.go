package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/schoolhub/social-api/internal/apperrors"
	"github.com/schoolhub/social-api/internal/database"
	"github.com/schoolhub/social-api/internal/models"
	"github.com/schoolhub/social-api/internal/repository"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConversationService manages group lifecycle and conversation reads.
type ConversationService struct {
	convRepo   repository.ConversationRepository
	friendRepo repository.FriendRepository
	userRepo   repository.UserRepository
	txn        database.TxnRunner
}

func NewConversationService(
	convRepo repository.ConversationRepository,
	friendRepo repository.FriendRepository,
	userRepo repository.UserRepository,
	txn database.TxnRunner,
) *ConversationService {
	return &ConversationService{
		convRepo:   convRepo,
		friendRepo: friendRepo,
		userRepo:   userRepo,
		txn:        txn,
	}
}

// CreateGroup creates a group conversation with the given members plus the
// caller. Duplicate member ids are dropped before the inserts; a duplicate
// insert inside the transaction would abort it, and the unique index stays
// as the backstop for writes outside this call.
func (s *ConversationService) CreateGroup(ctx context.Context, callerExternalID, name string, memberIDs []primitive.ObjectID) (*models.Conversation, error) {
	caller, err := s.resolveCaller(ctx, callerExternalID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(name) == "" {
		return nil, apperrors.InvalidRequestf("group name is required")
	}

	seen := map[primitive.ObjectID]bool{caller.ID: true}
	members := []primitive.ObjectID{caller.ID}
	for _, memberID := range memberIDs {
		if seen[memberID] {
			continue
		}
		seen[memberID] = true
		members = append(members, memberID)
	}

	var conversation *models.Conversation
	err = s.txn.WithTransaction(ctx, func(ctx context.Context) error {
		conversation, err = s.convRepo.CreateConversation(ctx, &models.Conversation{
			Name:    name,
			IsGroup: true,
		})
		if err != nil {
			return err
		}

		for _, memberID := range members {
			_, err := s.convRepo.AddMember(ctx, &models.ConversationMember{
				MemberID:       memberID,
				ConversationID: conversation.ID,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"conversationID": conversation.ID.Hex(),
		"name":           name,
		"creator":        caller.Username,
	}).Info("Group conversation created")

	return conversation, nil
}

// LeaveGroup removes only the caller's membership; the group, its other
// members and its messages stay.
func (s *ConversationService) LeaveGroup(ctx context.Context, callerExternalID string, conversationID primitive.ObjectID) error {
	caller, err := s.resolveCaller(ctx, callerExternalID)
	if err != nil {
		return err
	}

	conversation, err := s.convRepo.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return apperrors.NotFoundf("conversation not found")
	}

	member, err := s.convRepo.GetMember(ctx, caller.ID, conversationID)
	if err != nil {
		return err
	}
	if member == nil {
		return apperrors.Forbiddenf("you are not a member of this conversation")
	}

	if err := s.convRepo.DeleteMember(ctx, caller.ID, conversationID); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"conversationID": conversationID.Hex(),
		"userID":         caller.ID.Hex(),
	}).Info("Member left group")

	return nil
}

// DeleteGroup tears down a group conversation, its memberships and its
// messages. A group with at most one member is not deletable through this
// path; the lone member leaves instead.
func (s *ConversationService) DeleteGroup(ctx context.Context, callerExternalID string, conversationID primitive.ObjectID) error {
	if _, err := s.resolveCaller(ctx, callerExternalID); err != nil {
		return err
	}

	conversation, err := s.convRepo.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return apperrors.NotFoundf("conversation not found")
	}

	count, err := s.convRepo.CountMembers(ctx, conversationID)
	if err != nil {
		return err
	}
	if count <= 1 {
		return apperrors.NotFoundf("group conversation not found")
	}

	err = s.txn.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.convRepo.DeleteMessages(ctx, conversationID); err != nil {
			return err
		}
		if err := s.convRepo.DeleteMembers(ctx, conversationID); err != nil {
			return err
		}
		return s.convRepo.DeleteConversation(ctx, conversationID)
	})
	if err != nil {
		return fmt.Errorf("failed to delete group: %v", err)
	}

	logrus.WithField("conversationID", conversationID.Hex()).Info("Group conversation deleted")
	return nil
}

// RemoveFriend deletes the whole social edge behind a direct conversation:
// friendship, conversation, both memberships and all messages. Group
// conversations the two users share are untouched.
func (s *ConversationService) RemoveFriend(ctx context.Context, callerExternalID string, conversationID primitive.ObjectID) error {
	if _, err := s.resolveCaller(ctx, callerExternalID); err != nil {
		return err
	}

	conversation, err := s.convRepo.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return apperrors.NotFoundf("conversation not found")
	}

	count, err := s.convRepo.CountMembers(ctx, conversationID)
	if err != nil {
		return err
	}
	if count != 2 {
		return apperrors.NotFoundf("direct conversation not found")
	}

	friendship, err := s.friendRepo.GetFriendshipByConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if friendship == nil {
		return apperrors.NotFoundf("friendship not found")
	}

	err = s.txn.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.convRepo.DeleteMessages(ctx, conversationID); err != nil {
			return err
		}
		if err := s.convRepo.DeleteMembers(ctx, conversationID); err != nil {
			return err
		}
		if err := s.friendRepo.DeleteFriendship(ctx, friendship.ID); err != nil {
			return err
		}
		return s.convRepo.DeleteConversation(ctx, conversationID)
	})
	if err != nil {
		return fmt.Errorf("failed to remove friend: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"friendshipID":   friendship.ID.Hex(),
		"conversationID": conversationID.Hex(),
	}).Info("Friendship removed")

	return nil
}

// GetConversation returns the membership-gated view of a conversation: the
// other party and their watermark for a direct chat, the other members for a
// group.
func (s *ConversationService) GetConversation(ctx context.Context, callerExternalID string, conversationID primitive.ObjectID) (*models.ConversationView, error) {
	caller, err := s.resolveCaller(ctx, callerExternalID)
	if err != nil {
		return nil, err
	}

	conversation, err := s.convRepo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, apperrors.NotFoundf("conversation not found")
	}

	member, err := s.convRepo.GetMember(ctx, caller.ID, conversationID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, apperrors.Forbiddenf("you are not a member of this conversation")
	}

	members, err := s.convRepo.GetMembers(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	view := &models.ConversationView{Conversation: *conversation}

	if !conversation.IsGroup {
		for _, m := range members {
			if m.MemberID == caller.ID {
				continue
			}
			other, err := s.userRepo.FindByID(ctx, m.MemberID)
			if err != nil {
				return nil, err
			}
			if other == nil {
				return nil, apperrors.NotFoundf("conversation member not found")
			}
			pub := other.Public()
			view.OtherUser = &pub
			view.OtherSeenID = m.LastSeenMessageID
		}
		return view, nil
	}

	for _, m := range members {
		if m.MemberID == caller.ID {
			continue
		}
		user, err := s.userRepo.FindByID(ctx, m.MemberID)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, apperrors.NotFoundf("conversation member not found")
		}
		view.Members = append(view.Members, models.GroupMember{
			ID:       user.ID,
			Username: user.Username,
		})
	}

	return view, nil
}

// ListConversations returns the caller's conversations with unseen counts
// for badge rendering.
func (s *ConversationService) ListConversations(ctx context.Context, callerExternalID string, unseen UnseenCounter) ([]models.ConversationSummary, error) {
	caller, err := s.resolveCaller(ctx, callerExternalID)
	if err != nil {
		return nil, err
	}

	memberships, err := s.convRepo.GetMembershipsByUser(ctx, caller.ID)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.ConversationSummary, 0, len(memberships))
	for _, membership := range memberships {
		conversation, err := s.convRepo.GetConversation(ctx, membership.ConversationID)
		if err != nil {
			return nil, err
		}
		if conversation == nil {
			logrus.WithField("conversationID", membership.ConversationID.Hex()).
				Warn("Skipping membership with missing conversation")
			continue
		}

		summary := models.ConversationSummary{
			Conversation: *conversation,
			DisplayName:  conversation.Name,
		}

		if !conversation.IsGroup {
			summary.DisplayName = s.directDisplayName(ctx, caller.ID, conversation.ID)
		}

		if conversation.LastMessageID != nil {
			last, err := s.convRepo.GetMessage(ctx, *conversation.LastMessageID)
			if err != nil {
				return nil, err
			}
			summary.LastMessage = last
		}

		count, err := unseen.UnseenCount(ctx, membership)
		if err != nil {
			return nil, err
		}
		summary.UnseenCount = count

		summaries = append(summaries, summary)
	}

	return summaries, nil
}

func (s *ConversationService) directDisplayName(ctx context.Context, callerID, conversationID primitive.ObjectID) string {
	members, err := s.convRepo.GetMembers(ctx, conversationID)
	if err != nil {
		return ""
	}
	for _, m := range members {
		if m.MemberID == callerID {
			continue
		}
		if other, err := s.userRepo.FindByID(ctx, m.MemberID); err == nil && other != nil {
			return other.Username
		}
	}
	return ""
}

func (s *ConversationService) resolveCaller(ctx context.Context, externalID string) (*models.User, error) {
	user, err := s.userRepo.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.Unauthenticatedf("unknown caller %q", externalID)
	}
	return user, nil
}
