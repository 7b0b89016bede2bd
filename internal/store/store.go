package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// LatestMessage asks MarkSeen to advance to the current log length. Any
// negative value does the same.
const LatestMessage = -1

type UserDirectory interface {
	// GetUser returns nil, nil when no such user exists.
	GetUser(ctx context.Context, id string) (*User, error)
	// UpsertUser creates or refreshes a user. An empty language keeps the stored one.
	UpsertUser(ctx context.Context, id, displayName, language string) (*User, error)
	SetLanguage(ctx context.Context, id, language string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

// ConversationStore owns the append-only per-pair message logs. Every method
// resolves its participants through CanonicalKey.
type ConversationStore interface {
	// AppendMessage stores msg at the end of its conversation log, filling in
	// ID, Seq and SentAt. The sender's seen mark advances to the new length in
	// the same critical section, so no reader can observe the message while
	// the sender still has it unread.
	AppendMessage(ctx context.Context, msg *Message) error
	Messages(ctx context.Context, userA, userB string) ([]Message, error)
	MessageCount(ctx context.Context, userA, userB string) (int, error)
	// Partners lists every user that shares a non-empty conversation with userID.
	Partners(ctx context.Context, userID string) ([]string, error)
}

// SeenMarks tracks how many leading messages of a conversation each viewer has seen.
type SeenMarks interface {
	// MarkSeen raises viewer's mark to min(through, length), or to the length
	// when through is LatestMessage. Marks never decrease. The resulting mark
	// is returned.
	MarkSeen(ctx context.Context, viewerID, otherID string, through int) (int, error)
	// ReadState returns the log length and viewer's mark, read together.
	ReadState(ctx context.Context, viewerID, otherID string) (total int, seen int, err error)
}

type Store interface {
	UserDirectory
	ConversationStore
	SeenMarks
	Close() error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
