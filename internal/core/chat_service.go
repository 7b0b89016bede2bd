package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gwi.com/polyglot-chat/internal/logger"
	"gwi.com/polyglot-chat/internal/store"
)

// Notifier is told about every stored message so connected clients can refresh.
type Notifier interface {
	NotifyMessage(recipientID, senderID string)
}

type ChatService struct {
	store      store.Store
	translator TranslationProvider
	reads      *ReadTracker
	projector  *MessageViewProjector
	dashboard  *DashboardAggregator
	notifier   Notifier
}

func NewChatService(s store.Store, translator TranslationProvider, notifier Notifier) *ChatService {
	reads := NewReadTracker(s)
	return &ChatService{
		store:      s,
		translator: translator,
		reads:      reads,
		projector:  NewMessageViewProjector(s),
		dashboard:  NewDashboardAggregator(s, s, reads),
		notifier:   notifier,
	}
}

// NormalizeUserID maps a typed username to its identity.
func NormalizeUserID(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Login creates the user on first sight and refreshes the display name (and,
// when given, the language) afterwards. A first login needs a language.
func (s *ChatService) Login(ctx context.Context, username, language string) (*store.User, error) {
	username = strings.TrimSpace(username)
	language = strings.TrimSpace(language)
	if username == "" {
		return nil, invalid("Please enter a username.")
	}
	userID := NormalizeUserID(username)

	existing, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if existing == nil && language == "" {
		return nil, invalid("Pick a preferred language for your first login.")
	}

	user, err := s.store.UpsertUser(ctx, userID, username, language)
	if err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	if existing == nil {
		logger.Infow("User registered", "user", userID, "language", user.Language)
	}
	return user, nil
}

func (s *ChatService) GetUser(ctx context.Context, userID string) (*store.User, error) {
	return s.store.GetUser(ctx, userID)
}

func (s *ChatService) UpdateLanguage(ctx context.Context, userID, language string) (*store.User, error) {
	language = strings.TrimSpace(language)
	if language == "" {
		return nil, invalid("Please enter a language before saving.")
	}
	user, err := s.store.SetLanguage(ctx, userID, language)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, invalid("Unknown user %q.", userID)
		}
		return nil, fmt.Errorf("failed to update language: %w", err)
	}
	return user, nil
}

// partner validates that partnerID names another registered user.
func (s *ChatService) partner(ctx context.Context, viewerID, partnerID string) (*store.User, error) {
	if partnerID == viewerID {
		return nil, invalid("You cannot start a conversation with yourself.")
	}
	user, err := s.store.GetUser(ctx, partnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up partner: %w", err)
	}
	if user == nil {
		return nil, invalid("Unknown user %q.", partnerID)
	}
	return user, nil
}

// AppendAndTranslate translates text into the recipient's language, stores it
// and returns the sender's view of the new message. The translation happens
// before the store is touched; if it fails nothing is stored and the
// *TranslationFailure is returned for the caller to retry.
func (s *ChatService) AppendAndTranslate(ctx context.Context, senderID, recipientID, text string) (*ViewEntry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("Type a message before sending.")
	}
	recipient, err := s.partner(ctx, senderID, recipientID)
	if err != nil {
		return nil, err
	}
	sender, err := s.store.GetUser(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up sender: %w", err)
	}
	if sender == nil {
		return nil, invalid("Unknown user %q.", senderID)
	}

	translated, err := s.translator.Translate(ctx, text, recipient.Language)
	if err != nil {
		logger.Errorf("Translation for %s -> %s failed: %v", senderID, recipientID, err)
		return nil, asFailure(err)
	}
	if strings.TrimSpace(translated) == "" {
		translated = text
	}

	msg := store.Message{
		SenderID:       senderID,
		RecipientID:    recipientID,
		OriginalText:   text,
		TranslatedText: translated,
	}
	if err := s.store.AppendMessage(ctx, &msg); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	if s.notifier != nil {
		s.notifier.NotifyMessage(recipientID, senderID)
	}

	entry, err := s.projector.Project(ctx, senderID, recipientID, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}
	return &entry, nil
}

// ListConversation renders the whole conversation for viewer. With markSeen
// the viewer's mark advances through the messages returned, never past them.
func (s *ChatService) ListConversation(ctx context.Context, viewerID, partnerID string, markSeen bool) ([]ViewEntry, error) {
	if _, err := s.partner(ctx, viewerID, partnerID); err != nil {
		return nil, err
	}

	messages, err := s.store.Messages(ctx, viewerID, partnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	entries, err := s.projector.ProjectAll(ctx, viewerID, partnerID, messages)
	if err != nil {
		return nil, fmt.Errorf("failed to render conversation: %w", err)
	}

	if markSeen {
		if err := s.reads.MarkSeenThrough(ctx, viewerID, partnerID, len(messages)); err != nil {
			return nil, fmt.Errorf("failed to mark conversation seen: %w", err)
		}
	}
	return entries, nil
}

func (s *ChatService) UnreadCount(ctx context.Context, viewerID, partnerID string) (int, error) {
	return s.reads.UnreadCount(ctx, viewerID, partnerID)
}

func (s *ChatService) Dashboard(ctx context.Context, viewerID, query string) (*Dashboard, error) {
	return s.dashboard.Build(ctx, viewerID, query)
}
