package core

import (
	"context"
	"fmt"
	"time"

	"gwi.com/polyglot-chat/internal/store"
)

// ViewEntry is a stored message as one particular viewer sees it.
type ViewEntry struct {
	ID             string    `json:"id"`
	IsSelf         bool      `json:"is_self"`
	SenderLabel    string    `json:"sender_label"`
	PrimaryText    string    `json:"primary_text"`
	SecondaryLabel string    `json:"secondary_label"`
	SecondaryText  string    `json:"secondary_text"`
	CreatedBy      string    `json:"created_by"`
	SentAt         time.Time `json:"sent_at"`
}

// MessageViewProjector renders messages for a viewer. Names and languages are
// read from the directory at render time, so renames show up in history.
type MessageViewProjector struct {
	users store.UserDirectory
}

func NewMessageViewProjector(users store.UserDirectory) *MessageViewProjector {
	return &MessageViewProjector{users: users}
}

func (p *MessageViewProjector) Project(ctx context.Context, viewerID, otherID string, msg store.Message) (ViewEntry, error) {
	entries, err := p.ProjectAll(ctx, viewerID, otherID, []store.Message{msg})
	if err != nil {
		return ViewEntry{}, err
	}
	return entries[0], nil
}

// ProjectAll renders msgs in order, looking each participant up once.
func (p *MessageViewProjector) ProjectAll(ctx context.Context, viewerID, otherID string, msgs []store.Message) ([]ViewEntry, error) {
	people := make(map[string]store.User, 2)
	lookup := func(id string) (store.User, error) {
		if u, ok := people[id]; ok {
			return u, nil
		}
		u, err := p.users.GetUser(ctx, id)
		if err != nil {
			return store.User{}, fmt.Errorf("failed to look up %q: %w", id, err)
		}
		user := store.User{ID: id, DisplayName: id}
		if u != nil {
			user = *u
		}
		people[id] = user
		return user, nil
	}

	entries := make([]ViewEntry, 0, len(msgs))
	for _, msg := range msgs {
		entry := ViewEntry{
			ID:        msg.ID,
			IsSelf:    msg.SenderID == viewerID,
			CreatedBy: msg.SenderID,
			SentAt:    msg.SentAt,
		}

		if entry.IsSelf {
			partner, err := lookup(otherID)
			if err != nil {
				return nil, err
			}
			entry.SenderLabel = "You"
			entry.PrimaryText = msg.OriginalText
			entry.SecondaryLabel = fmt.Sprintf("Translated for %s (%s):", partner.DisplayName, partner.Language)
			entry.SecondaryText = msg.TranslatedText
		} else {
			sender, err := lookup(msg.SenderID)
			if err != nil {
				return nil, err
			}
			entry.SenderLabel = sender.DisplayName
			entry.PrimaryText = msg.TranslatedText
			if entry.PrimaryText == "" {
				entry.PrimaryText = msg.OriginalText
			}
			entry.SecondaryLabel = fmt.Sprintf("Original message in %s:", sender.Language)
			entry.SecondaryText = msg.OriginalText
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
