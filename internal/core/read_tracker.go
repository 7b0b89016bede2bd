package core

import (
	"context"

	"gwi.com/polyglot-chat/internal/store"
)

// ReadTracker derives unread counts from per-viewer seen marks. The mark is a
// watermark into the conversation log, not a per-message flag.
type ReadTracker struct {
	marks store.SeenMarks
}

func NewReadTracker(marks store.SeenMarks) *ReadTracker {
	return &ReadTracker{marks: marks}
}

// MarkSeen catches viewer up to the latest message between the two users.
func (t *ReadTracker) MarkSeen(ctx context.Context, viewerID, otherID string) error {
	_, err := t.marks.MarkSeen(ctx, viewerID, otherID, store.LatestMessage)
	return err
}

// MarkSeenThrough catches viewer up to the first n messages only.
func (t *ReadTracker) MarkSeenThrough(ctx context.Context, viewerID, otherID string, n int) error {
	_, err := t.marks.MarkSeen(ctx, viewerID, otherID, n)
	return err
}

func (t *ReadTracker) UnreadCount(ctx context.Context, viewerID, otherID string) (int, error) {
	total, seen, err := t.marks.ReadState(ctx, viewerID, otherID)
	if err != nil {
		return 0, err
	}
	return max(total-seen, 0), nil
}
