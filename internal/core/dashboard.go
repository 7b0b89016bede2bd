package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gwi.com/polyglot-chat/internal/store"
)

type Contact struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Language    string `json:"language"`
	UnreadCount int    `json:"unread_count"`
}

type Dashboard struct {
	Matches        []Contact `json:"matches"`
	RecentContacts []Contact `json:"recent_contacts"`
}

type DashboardAggregator struct {
	users         store.UserDirectory
	conversations store.ConversationStore
	reads         *ReadTracker
}

func NewDashboardAggregator(users store.UserDirectory, conversations store.ConversationStore, reads *ReadTracker) *DashboardAggregator {
	return &DashboardAggregator{users: users, conversations: conversations, reads: reads}
}

// Build lists the users whose display name contains query (all users for an
// empty query) and the users viewer has talked to, each with viewer's unread
// count. Both lists are ordered by display name, case-insensitively.
func (d *DashboardAggregator) Build(ctx context.Context, viewerID, query string) (*Dashboard, error) {
	query = strings.ToLower(strings.TrimSpace(query))

	users, err := d.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	byID := make(map[string]store.User, len(users))
	matches := []Contact{}
	for _, user := range users {
		byID[user.ID] = user
		if user.ID == viewerID {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(user.DisplayName), query) {
			continue
		}
		contact, err := d.contact(ctx, viewerID, user)
		if err != nil {
			return nil, err
		}
		matches = append(matches, contact)
	}

	partners, err := d.conversations.Partners(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list partners: %w", err)
	}
	recent := []Contact{}
	for _, partnerID := range partners {
		user, ok := byID[partnerID]
		if !ok || partnerID == viewerID {
			continue
		}
		contact, err := d.contact(ctx, viewerID, user)
		if err != nil {
			return nil, err
		}
		recent = append(recent, contact)
	}

	sortContacts(matches)
	sortContacts(recent)
	return &Dashboard{Matches: matches, RecentContacts: recent}, nil
}

func (d *DashboardAggregator) contact(ctx context.Context, viewerID string, user store.User) (Contact, error) {
	unread, err := d.reads.UnreadCount(ctx, viewerID, user.ID)
	if err != nil {
		return Contact{}, fmt.Errorf("failed to count unread messages from %q: %w", user.ID, err)
	}
	return Contact{
		Username:    user.ID,
		DisplayName: user.DisplayName,
		Language:    user.Language,
		UnreadCount: unread,
	}, nil
}

func sortContacts(contacts []Contact) {
	sort.SliceStable(contacts, func(i, j int) bool {
		a, b := strings.ToLower(contacts[i].DisplayName), strings.ToLower(contacts[j].DisplayName)
		if a != b {
			return a < b
		}
		return contacts[i].Username < contacts[j].Username
	})
}
