package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"directchat/internal/domain"
)

// UserService provides the contact list and block list.
type UserService struct {
	users    domain.UserRepository
	messages domain.MessageRepository
}

func NewUserService(users domain.UserRepository, messages domain.MessageRepository) *UserService {
	return &UserService{users: users, messages: messages}
}

// ContactSummary is a user as seen from another user's sidebar.
type ContactSummary struct {
	*domain.User
	LastMessage     string     `json:"lastMessage"`
	LastMessageTime *time.Time `json:"lastMessageTime"`
}

func (s *UserService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, domain.Internal("get user", err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: user", domain.ErrNotFound)
	}
	return u, nil
}

// ListContacts returns every other user with the latest message exchanged
// with viewerID. Users with recent messages come first; the rest are ordered
// by name.
func (s *UserService) ListContacts(ctx context.Context, viewerID string) ([]ContactSummary, error) {
	users, err := s.users.ListExcept(ctx, viewerID)
	if err != nil {
		return nil, domain.Internal("list users", err)
	}

	out := make([]ContactSummary, 0, len(users))
	for _, u := range users {
		c := ContactSummary{User: u}
		last, err := s.messages.LatestBetween(ctx, viewerID, u.ID)
		if err != nil {
			return nil, domain.Internal("latest message", err)
		}
		if last != nil {
			c.LastMessage = preview(last)
			at := last.CreatedAt
			c.LastMessageTime = &at
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastMessageTime, out[j].LastMessageTime
		switch {
		case a != nil && b != nil:
			if !a.Equal(*b) {
				return a.After(*b)
			}
		case a != nil:
			return true
		case b != nil:
			return false
		}
		return out[i].Fullname < out[j].Fullname
	})
	return out, nil
}

func preview(m *domain.Message) string {
	if m.Body != "" {
		return m.Body
	}
	switch m.Type {
	case domain.TypeImage:
		return "Photo"
	case domain.TypeVideo:
		return "Video"
	case domain.TypeDocument:
		if a := m.Attachment(); a != nil && a.Name != "" {
			return a.Name
		}
		return "Document"
	case domain.TypeLocation:
		return "Location"
	case domain.TypeContact:
		if c := m.Contact(); c != nil {
			return "Contact: " + c.Name
		}
		return "Contact"
	case domain.TypePoll:
		if p := m.Poll(); p != nil {
			return "Poll: " + p.Question
		}
		return "Poll"
	}
	return ""
}

func (s *UserService) Block(ctx context.Context, userID, targetID string) error {
	if userID == targetID {
		return domain.Invalid("cannot block yourself")
	}
	if _, err := s.GetByID(ctx, targetID); err != nil {
		return err
	}
	if err := s.users.Block(ctx, userID, targetID); err != nil {
		return domain.Internal("block user", err)
	}
	return nil
}

func (s *UserService) Unblock(ctx context.Context, userID, targetID string) error {
	if err := s.users.Unblock(ctx, userID, targetID); err != nil {
		return domain.Internal("unblock user", err)
	}
	return nil
}

func (s *UserService) ListBlocked(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.users.ListBlocked(ctx, userID)
	if err != nil {
		return nil, domain.Internal("list blocked", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
