package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/schoolhub/social-api/internal/apperrors"
	"github.com/schoolhub/social-api/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memStore is an in-process stand-in for the Mongo repositories. It
// implements every repository interface plus TxnRunner, with the same
// return-nil-on-miss contract and the same uniqueness backstops the real
// indexes provide.
type memStore struct {
	mu sync.Mutex

	users       map[primitive.ObjectID]*models.User
	requests    map[primitive.ObjectID]*models.FriendRequest
	friendships map[primitive.ObjectID]*models.Friendship
	convs       map[primitive.ObjectID]*models.Conversation
	members     map[primitive.ObjectID]*models.ConversationMember
	messages    map[primitive.ObjectID]*models.Message

	seq  int
	base time.Time

	addMemberCalls int
}

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[primitive.ObjectID]*models.User),
		requests:    make(map[primitive.ObjectID]*models.FriendRequest),
		friendships: make(map[primitive.ObjectID]*models.Friendship),
		convs:       make(map[primitive.ObjectID]*models.Conversation),
		members:     make(map[primitive.ObjectID]*models.ConversationMember),
		messages:    make(map[primitive.ObjectID]*models.Message),
		base:        time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC),
	}
}

// tick hands out strictly increasing timestamps so creation order and
// created_at order agree, like they do against a single mongod clock.
func (s *memStore) tick() time.Time {
	s.seq++
	return s.base.Add(time.Duration(s.seq) * time.Millisecond)
}

func (s *memStore) addUser(username, role string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &models.User{
		ID:         primitive.NewObjectID(),
		Username:   username,
		ExternalID: "ext-" + username,
		Email:      username + "@school.test",
		Role:       role,
		CreatedAt:  s.tick(),
	}
	s.users[u.ID] = u
	return u
}

// --- UserRepository ---

func (s *memStore) CreateUser(_ context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.ID = primitive.NewObjectID()
	user.CreatedAt = s.tick()
	s.users[user.ID] = user
	return user, nil
}

func (s *memStore) FindByExternalID(_ context.Context, externalID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ExternalID == externalID {
			return u, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindByUsernameInRole(_ context.Context, role, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Role == role && u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, nil
}

func (s *memStore) UpdateLastActive(_ context.Context, _ string, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.LastActiveAt = s.tick()
	}
	return nil
}

func (s *memStore) removeUser(id primitive.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

// --- FriendRepository ---

func (s *memStore) CreateRequest(_ context.Context, req *models.FriendRequest) (*models.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.requests {
		if existing.Status == models.RequestStatusPending &&
			existing.SenderID == req.SenderID && existing.ReceiverID == req.ReceiverID {
			return nil, apperrors.Conflictf("a friend request is already pending")
		}
	}
	req.ID = primitive.NewObjectID()
	req.Status = models.RequestStatusPending
	req.CreatedAt = s.tick()
	s.requests[req.ID] = req
	return req, nil
}

func (s *memStore) GetRequestByID(_ context.Context, id primitive.ObjectID) (*models.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.requests[id]; ok {
		return r, nil
	}
	return nil, nil
}

func (s *memStore) GetPendingBetween(_ context.Context, a, b primitive.ObjectID) (*models.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.Status != models.RequestStatusPending {
			continue
		}
		if (r.SenderID == a && r.ReceiverID == b) || (r.SenderID == b && r.ReceiverID == a) {
			return r, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetRequestsByReceiver(_ context.Context, receiverID primitive.ObjectID) ([]models.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.FriendRequest
	for _, r := range s.requests {
		if r.ReceiverID == receiverID && r.Status == models.RequestStatusPending {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *memStore) DeleteRequest(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[id]; !ok {
		return fmt.Errorf("friend request %s not found", id.Hex())
	}
	delete(s.requests, id)
	return nil
}

func (s *memStore) CreateFriendship(_ context.Context, f *models.Friendship) (*models.Friendship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.ID = primitive.NewObjectID()
	f.Status = models.FriendshipStatusActive
	f.CreatedAt = s.tick()
	s.friendships[f.ID] = f
	return f, nil
}

func (s *memStore) GetFriendshipBetween(_ context.Context, a, b primitive.ObjectID) (*models.Friendship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.friendships {
		if (f.User1 == a && f.User2 == b) || (f.User1 == b && f.User2 == a) {
			return f, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetFriendshipsByUser(_ context.Context, userID primitive.ObjectID) ([]models.Friendship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Friendship
	for _, f := range s.friendships {
		if f.User1 == userID || f.User2 == userID {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (s *memStore) GetFriendshipByConversation(_ context.Context, conversationID primitive.ObjectID) (*models.Friendship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.friendships {
		if f.ConversationID == conversationID {
			return f, nil
		}
	}
	return nil, nil
}

func (s *memStore) DeleteFriendship(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.friendships, id)
	return nil
}

// --- ConversationRepository ---

func (s *memStore) CreateConversation(_ context.Context, c *models.Conversation) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = primitive.NewObjectID()
	c.CreatedAt = s.tick()
	s.convs[c.ID] = c
	return c, nil
}

func (s *memStore) GetConversation(_ context.Context, id primitive.ObjectID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[id]; ok {
		return c, nil
	}
	return nil, nil
}

func (s *memStore) SetLastMessage(_ context.Context, conversationID, messageID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[conversationID]; ok {
		id := messageID
		c.LastMessageID = &id
	}
	return nil
}

func (s *memStore) DeleteConversation(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, id)
	return nil
}

func (s *memStore) AddMember(_ context.Context, m *models.ConversationMember) (*models.ConversationMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addMemberCalls++
	for _, existing := range s.members {
		if existing.MemberID == m.MemberID && existing.ConversationID == m.ConversationID {
			return nil, fmt.Errorf("member already in conversation")
		}
	}
	m.ID = primitive.NewObjectID()
	m.JoinedAt = s.tick()
	s.members[m.ID] = m
	return m, nil
}

func (s *memStore) GetMember(_ context.Context, memberID, conversationID primitive.ObjectID) (*models.ConversationMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if m.MemberID == memberID && m.ConversationID == conversationID {
			return m, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetMembers(_ context.Context, conversationID primitive.ObjectID) ([]models.ConversationMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ConversationMember
	for _, m := range s.members {
		if m.ConversationID == conversationID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *memStore) GetMembershipsByUser(_ context.Context, memberID primitive.ObjectID) ([]models.ConversationMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ConversationMember
	for _, m := range s.members {
		if m.MemberID == memberID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *memStore) CountMembers(_ context.Context, conversationID primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, m := range s.members {
		if m.ConversationID == conversationID {
			count++
		}
	}
	return count, nil
}

func (s *memStore) SetLastSeen(_ context.Context, memberID, conversationID primitive.ObjectID, messageID *primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if m.MemberID == memberID && m.ConversationID == conversationID {
			m.LastSeenMessageID = messageID
		}
	}
	return nil
}

func (s *memStore) DeleteMember(_ context.Context, memberID, conversationID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.members {
		if m.MemberID == memberID && m.ConversationID == conversationID {
			delete(s.members, id)
		}
	}
	return nil
}

func (s *memStore) DeleteMembers(_ context.Context, conversationID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.members {
		if m.ConversationID == conversationID {
			delete(s.members, id)
		}
	}
	return nil
}

func (s *memStore) InsertMessage(_ context.Context, msg *models.Message) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.ID = primitive.NewObjectID()
	msg.CreatedAt = s.tick()
	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *memStore) GetMessage(_ context.Context, id primitive.ObjectID) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.messages[id]; ok {
		return m, nil
	}
	return nil, nil
}

func (s *memStore) GetMessages(_ context.Context, conversationID primitive.ObjectID) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) CountMessagesAfter(_ context.Context, conversationID primitive.ObjectID, after time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, m := range s.messages {
		if m.ConversationID == conversationID && m.CreatedAt.After(after) {
			count++
		}
	}
	return count, nil
}

func (s *memStore) CountMessages(_ context.Context, conversationID primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			count++
		}
	}
	return count, nil
}

func (s *memStore) DeleteMessages(_ context.Context, conversationID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.messages {
		if m.ConversationID == conversationID {
			delete(s.messages, id)
		}
	}
	return nil
}

// --- TxnRunner ---

func (s *memStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
