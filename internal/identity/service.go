package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"tuition/internal/auth"
	"tuition/internal/logging"
	"tuition/internal/profile"
)

// Session is returned by SignIn.
type Session struct {
	Tokens  auth.TokenPair       `json:"tokens"`
	User    User                 `json:"user"`
	Profile profile.LocalProfile `json:"profile"`
}

// Service signs users up, in and out.
type Service struct {
	repo   Repository
	cache  profile.Cache
	issuer auth.Issuer
	cost   int
	log    *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, cache profile.Cache, issuer auth.Issuer, log *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		issuer: issuer,
		cost:   bcrypt.DefaultCost,
		log:    logging.OrNop(log),
		now:    time.Now,
	}
}

// SignUp creates an account with role tuition or student.
func (s *Service) SignUp(ctx context.Context, fullName, email, password, role string) (User, error) {
	fullName = strings.TrimSpace(fullName)
	email = normalizeEmail(email)
	if fullName == "" || email == "" || password == "" {
		return User{}, fmt.Errorf("%w: all fields are required", ErrInvalid)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return User{}, fmt.Errorf("%w: invalid email", ErrInvalid)
	}
	if role != profile.RoleTuition && role != profile.RoleStudent {
		return User{}, fmt.Errorf("%w: role must be %q or %q", ErrInvalid, profile.RoleTuition, profile.RoleStudent)
	}
	if len(password) < 6 {
		return User{}, fmt.Errorf("%w: password must be at least 6 characters", ErrInvalid)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u := User{
		ID:           uuid.NewString(),
		FullName:     fullName,
		Email:        email,
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.InsertUser(ctx, u); err != nil {
		return User{}, err
	}
	s.log.Info("user signed up", zap.String("user_id", u.ID), zap.String("role", role))
	return u, nil
}

// SignIn checks credentials, issues tokens and caches the profile.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	u, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}

	tokens, err := s.issuer.Issue(u.ID, u.Role)
	if err != nil {
		return Session{}, fmt.Errorf("issue tokens: %w", err)
	}
	p := profile.LocalProfile{FullName: u.FullName, Role: u.Role}
	if err := s.cache.Write(ctx, u.ID, p); err != nil {
		// the profile can still be rebuilt from the user document
		s.log.Warn("profile cache write failed", zap.String("user_id", u.ID), zap.Error(err))
	}
	return Session{Tokens: tokens, User: u, Profile: p}, nil
}

// Refresh exchanges a refresh token for a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	claims, err := s.issuer.Parse(refreshToken, auth.KindRefresh)
	if err != nil {
		return auth.TokenPair{}, ErrInvalidCredentials
	}
	u, err := s.repo.GetUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return auth.TokenPair{}, ErrInvalidCredentials
		}
		return auth.TokenPair{}, err
	}
	return s.issuer.Issue(u.ID, u.Role)
}

// SignOut drops the cached profile.
func (s *Service) SignOut(ctx context.Context, userID string) error {
	return s.cache.Clear(ctx, userID)
}

// Profile returns the profile cached at sign-in. After sign-out it fails
// with profile.ErrNotFound.
func (s *Service) Profile(ctx context.Context, userID string) (profile.LocalProfile, error) {
	return s.cache.Read(ctx, userID)
}

// DisplayName returns the user's full name.
func (s *Service) DisplayName(ctx context.Context, userID string) (string, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.FullName, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
