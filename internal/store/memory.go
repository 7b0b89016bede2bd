package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps everything in process memory. Each conversation log has
// its own lock, so traffic on one pair never waits on another.
type MemoryStore struct {
	usersMu sync.RWMutex
	users   map[string]*User

	logsMu   sync.RWMutex
	logs     map[ConversationKey]*conversationLog
	partners map[string]map[string]struct{}
}

type conversationLog struct {
	mu       sync.RWMutex
	messages []Message
	seen     map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*User),
		logs:     make(map[ConversationKey]*conversationLog),
		partners: make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) Close() error {
	return nil
}

// User methods
func (s *MemoryStore) GetUser(_ context.Context, id string) (*User, error) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	u := *user
	return &u, nil
}

func (s *MemoryStore) UpsertUser(_ context.Context, id, displayName, language string) (*User, error) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	now := time.Now()
	user, ok := s.users[id]
	if !ok {
		user = &User{ID: id, CreatedAt: now}
		s.users[id] = user
	}
	user.DisplayName = displayName
	if language != "" {
		user.Language = language
	}
	user.UpdatedAt = now

	u := *user
	return &u, nil
}

func (s *MemoryStore) SetLanguage(_ context.Context, id, language string) (*User, error) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", id, ErrNotFound)
	}
	user.Language = language
	user.UpdatedAt = time.Now()

	u := *user
	return &u, nil
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]User, error) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()

	users := make([]User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, *user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// Conversation methods
func (s *MemoryStore) lookup(key ConversationKey) *conversationLog {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return s.logs[key]
}

func (s *MemoryStore) logOrCreate(key ConversationKey) *conversationLog {
	if l := s.lookup(key); l != nil {
		return l
	}

	s.logsMu.Lock()
	defer s.logsMu.Unlock()
	l, ok := s.logs[key]
	if !ok {
		l = &conversationLog{seen: make(map[string]int)}
		s.logs[key] = l
	}
	return l
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg *Message) error {
	key := CanonicalKey(msg.SenderID, msg.RecipientID)
	l := s.logOrCreate(key)

	l.mu.Lock()
	defer l.mu.Unlock()
	msg.ID = uuid.NewString()
	msg.Seq = len(l.messages) + 1
	msg.SentAt = time.Now()
	l.messages = append(l.messages, *msg)
	l.seen[msg.SenderID] = len(l.messages)

	// Lock order is l.mu then logsMu; logsMu holders never wait on a log lock.
	if msg.Seq == 1 {
		s.logsMu.Lock()
		s.addPartnerLocked(key.Low, key.High)
		s.addPartnerLocked(key.High, key.Low)
		s.logsMu.Unlock()
	}
	return nil
}

func (s *MemoryStore) addPartnerLocked(userID, partnerID string) {
	set, ok := s.partners[userID]
	if !ok {
		set = make(map[string]struct{})
		s.partners[userID] = set
	}
	set[partnerID] = struct{}{}
}

func (s *MemoryStore) Messages(_ context.Context, userA, userB string) ([]Message, error) {
	l := s.lookup(CanonicalKey(userA, userB))
	if l == nil {
		return []Message{}, nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	messages := make([]Message, len(l.messages))
	copy(messages, l.messages)
	return messages, nil
}

func (s *MemoryStore) MessageCount(_ context.Context, userA, userB string) (int, error) {
	l := s.lookup(CanonicalKey(userA, userB))
	if l == nil {
		return 0, nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages), nil
}

func (s *MemoryStore) Partners(_ context.Context, userID string) ([]string, error) {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()

	partners := make([]string, 0, len(s.partners[userID]))
	for partnerID := range s.partners[userID] {
		partners = append(partners, partnerID)
	}
	sort.Strings(partners)
	return partners, nil
}

// Seen mark methods
func (s *MemoryStore) MarkSeen(_ context.Context, viewerID, otherID string, through int) (int, error) {
	l := s.lookup(CanonicalKey(viewerID, otherID))
	if l == nil {
		return 0, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	target := len(l.messages)
	if through >= 0 && through < target {
		target = through
	}
	if target > l.seen[viewerID] {
		l.seen[viewerID] = target
	}
	return l.seen[viewerID], nil
}

func (s *MemoryStore) ReadState(_ context.Context, viewerID, otherID string) (int, int, error) {
	l := s.lookup(CanonicalKey(viewerID, otherID))
	if l == nil {
		return 0, 0, nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages), l.seen[viewerID], nil
}
