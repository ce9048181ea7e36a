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

// UnseenCounter derives per-conversation unseen counts from a membership's
// read watermark.
type UnseenCounter interface {
	UnseenCount(ctx context.Context, membership models.ConversationMember) (int64, error)
}

// ChatService handles message creation, listing and read tracking.
type ChatService struct {
	convRepo repository.ConversationRepository
	userRepo repository.UserRepository
	txn      database.TxnRunner
}

func NewChatService(
	convRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	txn database.TxnRunner,
) *ChatService {
	return &ChatService{convRepo: convRepo, userRepo: userRepo, txn: txn}
}

// SendMessage appends a message and patches the conversation's last-message
// pointer; both writes run as one unit so the pointer always names the most
// recent message.
func (s *ChatService) SendMessage(ctx context.Context, callerExternalID string, conversationID primitive.ObjectID, msgType, text, fileURL, fileName string) (*models.Message, error) {
	caller, err := s.ResolveCaller(ctx, callerExternalID)
	if err != nil {
		return nil, err
	}

	member, err := s.convRepo.GetMember(ctx, caller.ID, conversationID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, apperrors.Forbiddenf("you are not a member of this conversation")
	}

	if msgType == "" {
		msgType = "text"
	}
	if msgType == "text" && strings.TrimSpace(text) == "" {
		return nil, apperrors.InvalidRequestf("message text is required")
	}

	message := &models.Message{
		SenderID:       caller.ID,
		ConversationID: conversationID,
		Type:           msgType,
		Text:           text,
		FileURL:        fileURL,
		FileName:       fileName,
	}

	err = s.txn.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.convRepo.InsertMessage(ctx, message); err != nil {
			return err
		}
		return s.convRepo.SetLastMessage(ctx, conversationID, message.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %v", err)
	}

	return message, nil
}

// ListMessages returns the conversation's messages newest first, each
// annotated with its resolved sender. A missing sender record fails the
// whole call: unlike a stale friendship, a message's sender is never
// legitimately absent.
func (s *ChatService) ListMessages(ctx context.Context, callerExternalID string, conversationID primitive.ObjectID) ([]models.MessageView, error) {
	caller, err := s.ResolveCaller(ctx, callerExternalID)
	if err != nil {
		return nil, err
	}

	member, err := s.convRepo.GetMember(ctx, caller.ID, conversationID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, apperrors.Forbiddenf("you are not a member of this conversation")
	}

	messages, err := s.convRepo.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	senders := make(map[primitive.ObjectID]*models.User)
	views := make([]models.MessageView, 0, len(messages))
	for _, msg := range messages {
		sender, ok := senders[msg.SenderID]
		if !ok {
			sender, err = s.userRepo.FindByID(ctx, msg.SenderID)
			if err != nil {
				return nil, err
			}
			if sender == nil {
				return nil, apperrors.NotFoundf("sender of message %s not found", msg.ID.Hex())
			}
			senders[msg.SenderID] = sender
		}

		views = append(views, models.MessageView{
			Message:       msg,
			SenderName:    sender.Username,
			SenderAvatar:  sender.AvatarURL,
			IsCurrentUser: msg.SenderID == caller.ID,
		})
	}

	return views, nil
}

// MarkRead moves the caller's read watermark to the given message. An id
// that no longer resolves clears the watermark instead of failing. The
// watermark is not checked for monotonicity; clients are expected to pass
// the newest message they observe.
func (s *ChatService) MarkRead(ctx context.Context, callerExternalID string, conversationID, messageID primitive.ObjectID) error {
	caller, err := s.ResolveCaller(ctx, callerExternalID)
	if err != nil {
		return err
	}

	member, err := s.convRepo.GetMember(ctx, caller.ID, conversationID)
	if err != nil {
		return err
	}
	if member == nil {
		return apperrors.Forbiddenf("you are not a member of this conversation")
	}

	message, err := s.convRepo.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if message == nil {
		logrus.WithFields(logrus.Fields{
			"conversationID": conversationID.Hex(),
			"messageID":      messageID.Hex(),
		}).Warn("Clearing read watermark for unresolvable message")
		return s.convRepo.SetLastSeen(ctx, caller.ID, conversationID, nil)
	}

	return s.convRepo.SetLastSeen(ctx, caller.ID, conversationID, &message.ID)
}

// UnseenCount counts the messages created after the membership's watermark
// message. An absent or unresolvable watermark counts everything.
func (s *ChatService) UnseenCount(ctx context.Context, membership models.ConversationMember) (int64, error) {
	if membership.LastSeenMessageID == nil {
		return s.convRepo.CountMessages(ctx, membership.ConversationID)
	}

	watermark, err := s.convRepo.GetMessage(ctx, *membership.LastSeenMessageID)
	if err != nil {
		return 0, err
	}
	if watermark == nil {
		return s.convRepo.CountMessages(ctx, membership.ConversationID)
	}

	return s.convRepo.CountMessagesAfter(ctx, membership.ConversationID, watermark.CreatedAt)
}

// SeenBy returns the usernames of the other members whose watermark sits
// exactly on the given message, plus the display label for the set.
func (s *ChatService) SeenBy(ctx context.Context, callerExternalID string, conversationID, messageID primitive.ObjectID) ([]string, string, error) {
	caller, err := s.ResolveCaller(ctx, callerExternalID)
	if err != nil {
		return nil, "", err
	}

	member, err := s.convRepo.GetMember(ctx, caller.ID, conversationID)
	if err != nil {
		return nil, "", err
	}
	if member == nil {
		return nil, "", apperrors.Forbiddenf("you are not a member of this conversation")
	}

	members, err := s.convRepo.GetMembers(ctx, conversationID)
	if err != nil {
		return nil, "", err
	}

	var names []string
	for _, m := range members {
		if m.MemberID == caller.ID {
			continue
		}
		if m.LastSeenMessageID == nil || *m.LastSeenMessageID != messageID {
			continue
		}
		user, err := s.userRepo.FindByID(ctx, m.MemberID)
		if err != nil {
			return nil, "", err
		}
		if user == nil {
			logrus.WithField("memberID", m.MemberID.Hex()).Warn("Skipping seen-by entry with missing user")
			continue
		}
		names = append(names, user.Username)
	}

	return names, SeenLabel(names), nil
}

// SeenLabel renders a seen-by set the way the conversation UI shows it.
func SeenLabel(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return "Seen"
	case 2:
		return fmt.Sprintf("Seen by %s and %s", names[0], names[1])
	default:
		return fmt.Sprintf("Seen by %s, %s, and %d more", names[0], names[1], len(names)-2)
	}
}

// ResolveCaller maps an identity-provider subject to its user record.
func (s *ChatService) ResolveCaller(ctx context.Context, externalID string) (*models.User, error) {
	user, err := s.userRepo.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.Unauthenticatedf("unknown caller %q", externalID)
	}
	return user, nil
}
