package domain

import (
	"context"
)

// Lookups return (nil, nil) when the row does not exist.

// UserRepository defines persistence operations for users and their block lists.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListExcept(ctx context.Context, id string) ([]*User, error)
	// IsBlocked reports whether userID has blockedID on their block list.
	IsBlocked(ctx context.Context, userID, blockedID string) (bool, error)
	Block(ctx context.Context, userID, blockedID string) error
	Unblock(ctx context.Context, userID, blockedID string) error
	ListBlocked(ctx context.Context, userID string) ([]string, error)
}

// ConversationRepository defines persistence operations for conversations.
type ConversationRepository interface {
	FindByMembers(ctx context.Context, a, b string) (*Conversation, error)
	// Upsert returns the conversation of the pair, creating it if needed.
	Upsert(ctx context.Context, a, b string) (*Conversation, error)
	// PruneDanglingRefs drops message refs whose message no longer exists.
	PruneDanglingRefs(ctx context.Context) (int64, error)
}

// PollMutation edits the message loaded inside MutatePoll's transaction.
type PollMutation func(m *Message) error

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	// CreateInConversation upserts the pair's conversation, inserts m and
	// appends it to the conversation in one transaction. m.ConversationID is set.
	CreateInConversation(ctx context.Context, m *Message) (*Conversation, error)
	GetByID(ctx context.Context, id string) (*Message, error)
	// ExistsBetween reports whether any message exists between a and b in either direction.
	ExistsBetween(ctx context.Context, a, b string) (bool, error)
	// LatestBetween returns the newest message between viewerID and otherID
	// that viewerID can see: nothing it cleared and no request still awaiting
	// its answer.
	LatestBetween(ctx context.Context, viewerID, otherID string) (*Message, error)
	// TransitionStatus moves id from one status to another and reports
	// whether a row matched the expected current status.
	TransitionStatus(ctx context.Context, id string, from, to MessageStatus) (bool, error)
	// DeleteIfStatus hard-deletes id when it is still in status.
	DeleteIfStatus(ctx context.Context, id string, status MessageStatus) (bool, error)
	MutatePoll(ctx context.Context, id string, fn PollMutation) (*Message, error)
	ListPendingFor(ctx context.Context, receiverID string) ([]*Message, error)
	// ListForConversation returns the conversation in creation order, without
	// messages hidden for viewerID and without requests still pending for viewerID.
	ListForConversation(ctx context.Context, conversationID, viewerID string) ([]*Message, error)
	// MarkSeen moves every sent/delivered message addressed to readerID in the conversation to seen.
	MarkSeen(ctx context.Context, conversationID, readerID string) (int64, error)
	HideForUser(ctx context.Context, conversationID, userID string) error
}
