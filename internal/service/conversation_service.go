package service

import (
	"context"

	"directchat/internal/domain"
)

// Conversation-scoped operations. A pair without a conversation has nothing
// to read, mark or clear.

// GetMessages returns the conversation between viewerID and otherID in
// creation order, as viewerID sees it: cleared messages and requests still
// awaiting viewerID's answer are left out.
func (s *MessageService) GetMessages(ctx context.Context, viewerID, otherID string) ([]*domain.Message, error) {
	conv, err := s.convs.FindByMembers(ctx, viewerID, otherID)
	if err != nil {
		return nil, domain.Internal("find conversation", err)
	}
	if conv == nil {
		return []*domain.Message{}, nil
	}
	msgs, err := s.messages.ListForConversation(ctx, conv.ID, viewerID)
	if err != nil {
		return nil, domain.Internal("list messages", err)
	}
	return msgs, nil
}

// MarkSeen moves every sent or delivered message addressed to readerID in the
// pair's conversation to seen and tells otherID. Pending requests stay pending.
func (s *MessageService) MarkSeen(ctx context.Context, readerID, otherID string) (int64, error) {
	conv, err := s.convs.FindByMembers(ctx, readerID, otherID)
	if err != nil {
		return 0, domain.Internal("find conversation", err)
	}
	if conv == nil {
		return 0, nil
	}
	n, err := s.messages.MarkSeen(ctx, conv.ID, readerID)
	if err != nil {
		return 0, domain.Internal("mark seen", err)
	}
	s.sink.Notify(otherID, domain.MessagesSeenEvent(readerID))
	return n, nil
}

// ClearForCaller hides the whole conversation from callerID only.
func (s *MessageService) ClearForCaller(ctx context.Context, callerID, otherID string) error {
	conv, err := s.convs.FindByMembers(ctx, callerID, otherID)
	if err != nil {
		return domain.Internal("find conversation", err)
	}
	if conv == nil {
		return nil
	}
	if err := s.messages.HideForUser(ctx, conv.ID, callerID); err != nil {
		return domain.Internal("clear conversation", err)
	}
	return nil
}
