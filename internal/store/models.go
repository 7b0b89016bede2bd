package store

import "time"

type User struct {
	ID          string    `json:"username"` // normalized lowercase identity
	DisplayName string    `json:"display_name"`
	Language    string    `json:"language"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Message is one entry of a conversation log. Seq is its 1-based position in
// the log and never changes once assigned.
type Message struct {
	ID             string    `json:"id"`
	Seq            int       `json:"seq"`
	SenderID       string    `json:"sender"`
	RecipientID    string    `json:"recipient"`
	OriginalText   string    `json:"original_text"`
	TranslatedText string    `json:"translated_text"`
	SentAt         time.Time `json:"sent_at"`
}

// ConversationKey identifies the conversation between two users regardless
// of who is asking. Build it with CanonicalKey only.
type ConversationKey struct {
	Low  string
	High string
}

// CanonicalKey orders the pair byte-wise so that CanonicalKey(a, b) and
// CanonicalKey(b, a) are equal.
func CanonicalKey(a, b string) ConversationKey {
	if b < a {
		a, b = b, a
	}
	return ConversationKey{Low: a, High: b}
}
