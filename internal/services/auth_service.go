package services

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"brewbar/internal/domain"
	"brewbar/internal/repos"
	"brewbar/internal/validate"
)

var (
	ErrBadCreds    = errors.New("invalid email or password")
	ErrEmailTaken  = &domain.ValidationError{Field: "email", Reason: "an account with this email already exists"}
	ErrBadEmail    = &domain.ValidationError{Field: "email", Reason: "enter a valid email address"}
	ErrBadFullName = &domain.ValidationError{Field: "full_name", Reason: "full name must be at least 2 characters"}
	ErrBadPassword = &domain.ValidationError{Field: "password", Reason: "password must be at least 6 characters"}
)

type AuthService struct {
	Users *repos.UserRepo
}

func NewAuthService(users *repos.UserRepo) *AuthService { return &AuthService{Users: users} }

// Register creates a customer account and binds it to the session.
func (s *AuthService) Register(ctx context.Context, sid, email, password, fullName string) (*domain.User, error) {
	email, ok := validate.Email(email)
	if !ok {
		return nil, ErrBadEmail
	}
	name, ok := validate.FullName(fullName)
	if !ok {
		return nil, ErrBadFullName
	}
	if !validate.Password(password) {
		return nil, ErrBadPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &domain.User{Email: email, FullName: name, Hash: string(hash), Role: domain.RoleCustomer}
	if err := s.Users.Create(ctx, u); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	if err := s.Users.BindSession(ctx, sid, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *AuthService) Login(ctx context.Context, sid, email, password string) (*domain.User, error) {
	email, _ = validate.Email(email)
	u, err := s.Users.ByEmail(ctx, email)
	if err != nil {
		return nil, ErrBadCreds
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(password)) != nil {
		return nil, ErrBadCreds
	}
	if err := s.Users.BindSession(ctx, sid, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *AuthService) Logout(ctx context.Context, sid string) error {
	return s.Users.UnbindSession(ctx, sid)
}

// CurrentUser returns nil, nil for an anonymous session.
func (s *AuthService) CurrentUser(ctx context.Context, sid string) (*domain.User, error) {
	if sid == "" {
		return nil, nil
	}
	return s.Users.SessionUser(ctx, sid)
}
