package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"directchat/internal/domain"
	"directchat/internal/security"
)

// AuthService handles signup and login.
type AuthService struct {
	users  domain.UserRepository
	tokens *security.TokenService
	hash   *security.PasswordHasher
}

func NewAuthService(users domain.UserRepository, tokens *security.TokenService, hash *security.PasswordHasher) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		hash:   hash,
	}
}

type SignupInput struct {
	Fullname        string
	Email           string
	Password        string
	ConfirmPassword string
	ProfilePic      string
}

// Session is an authenticated user together with its access token.
type Session struct {
	User      *domain.User
	Token     string
	ExpiresIn time.Duration
}

func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	in.Fullname = strings.TrimSpace(in.Fullname)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Fullname == "" || in.Email == "" || in.Password == "" {
		return nil, domain.Invalid("fullname, email and password are required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, domain.Invalid("invalid email address")
	}
	if len(in.Password) > security.MaxPasswordBytes {
		return nil, domain.Invalid("password must be at most %d bytes", security.MaxPasswordBytes)
	}
	if in.Password != in.ConfirmPassword {
		return nil, domain.Invalid("Passwords do not match")
	}

	if existing, err := s.users.GetByEmail(ctx, in.Email); err != nil {
		return nil, domain.Internal("check email", err)
	} else if existing != nil {
		return nil, fmt.Errorf("%w: User already registered", domain.ErrConflict)
	}

	hashed, err := s.hash.Hash(in.Password)
	if err != nil {
		return nil, domain.Internal("hash password", err)
	}

	pic := strings.TrimSpace(in.ProfilePic)
	if pic == "" {
		pic = domain.DefaultProfilePic
	}
	user := &domain.User{
		ID:             uuid.NewString(),
		Fullname:       in.Fullname,
		Email:          in.Email,
		HashedPassword: hashed,
		ProfilePic:     pic,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("%w: User already registered", domain.ErrConflict)
		}
		return nil, domain.Internal("create user", err)
	}
	return s.issue(user)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, domain.Internal("get user", err)
	}
	if user == nil {
		s.hash.Burn(password)
		return nil, fmt.Errorf("%w: Invalid user credential", domain.ErrUnauthorized)
	}
	if err := s.hash.Verify(password, user.HashedPassword); err != nil {
		return nil, fmt.Errorf("%w: Invalid user credential", domain.ErrUnauthorized)
	}
	return s.issue(user)
}

// Authenticate resolves a session token to its user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	sub, err := s.tokens.Subject(token)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}
	user, err := s.users.GetByID(ctx, sub)
	if err != nil {
		return nil, domain.Internal("get user", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user not found", domain.ErrUnauthorized)
	}
	return user, nil
}

func (s *AuthService) issue(user *domain.User) (*Session, error) {
	token, err := s.tokens.CreateForUser(user.ID)
	if err != nil {
		return nil, domain.Internal("create token", err)
	}
	return &Session{User: user, Token: token, ExpiresIn: s.tokens.TTL()}, nil
}
