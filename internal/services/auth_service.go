package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"starterkit/internal/domain"
	"starterkit/internal/repos"
	"starterkit/internal/validate"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const DefaultBcryptCost = 12

type AuthService struct {
	Users      *repos.UserRepo
	Flags      *FlagService
	SessionTTL time.Duration
	Cost       int
	Now        func() time.Time

	dummyOnce sync.Once
	dummy     []byte
}

func NewAuthService(users *repos.UserRepo, flags *FlagService, sessionTTL time.Duration) *AuthService {
	return &AuthService{Users: users, Flags: flags, SessionTTL: sessionTTL, Cost: DefaultBcryptCost}
}

func (s *AuthService) cost() int {
	if s.Cost == 0 {
		return DefaultBcryptCost
	}
	return s.Cost
}

// HashPassword checks the policy and hashes pw.
func (s *AuthService) HashPassword(pw string) (string, error) {
	if !validate.Password(pw) {
		return "", ErrWeakPassword
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), s.cost())
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// burn spends about the same time as a real comparison.
func (s *AuthService) burn(pw string) {
	s.dummyOnce.Do(func() {
		s.dummy, _ = bcrypt.GenerateFromPassword([]byte(uuid.NewString()), s.cost())
	})
	_ = bcrypt.CompareHashAndPassword(s.dummy, []byte(pw))
}

// Login checks credentials and opens a fresh session. prevSID, if any, is
// dropped so an attacker-planted cookie never becomes authenticated.
func (s *AuthService) Login(ctx context.Context, email, password, prevSID string) (*domain.User, *domain.Session, error) {
	email, ok := validate.Email(email)
	if !ok || password == "" || len(password) > 72 {
		s.burn(password)
		return nil, nil, ErrBadCreds
	}
	u, err := s.Users.ByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repos.ErrNotFound) {
			return nil, nil, err
		}
		s.burn(password)
		return nil, nil, ErrBadCreds
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(password)) != nil {
		return nil, nil, ErrBadCreds
	}
	if prevSID != "" {
		if err := s.Users.DeleteSession(ctx, prevSID); err != nil {
			return nil, nil, err
		}
	}
	sess, err := s.StartSession(ctx, u.ID)
	if err != nil {
		return nil, nil, err
	}
	return u, sess, nil
}

func (s *AuthService) StartSession(ctx context.Context, userID string) (*domain.Session, error) {
	now := clock(s.Now).now()
	sess := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		LastSeen:  now,
		ExpiresAt: now.Add(s.SessionTTL),
	}
	if err := s.Users.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *AuthService) Logout(ctx context.Context, sid string) error {
	if sid == "" {
		return nil
	}
	return s.Users.DeleteSession(ctx, sid)
}

// CurrentUser resolves the session cookie. Expired sessions are deleted.
func (s *AuthService) CurrentUser(ctx context.Context, sid string) (*domain.User, error) {
	if sid == "" {
		return nil, ErrNoSession
	}
	sess, err := s.Users.Session(ctx, sid)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	now := clock(s.Now).now()
	if sess.Expired(now) {
		_ = s.Users.DeleteSession(ctx, sid)
		return nil, ErrSessionExpired
	}
	u, err := s.Users.ByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	if now.Sub(sess.LastSeen) >= time.Minute {
		_ = s.Users.TouchSession(ctx, sid, now)
	}
	return u, nil
}

// Register creates a USER account while the signup flag is on and logs it in.
func (s *AuthService) Register(ctx context.Context, email, name, password string) (*domain.User, *domain.Session, error) {
	email, ok := validate.Email(email)
	if !ok {
		return nil, nil, ErrInvalidEmail
	}
	if s.Flags != nil && !s.Flags.IsEnabled(ctx, "signup", email) {
		return nil, nil, ErrSignupDisabled
	}
	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, nil, err
	}
	name, ok = validate.Name(name)
	if !ok {
		return nil, nil, ErrInvalidName
	}
	u := &domain.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		Hash:      hash,
		Role:      domain.RoleUser,
		CreatedAt: clock(s.Now).now(),
	}
	if err := s.Users.Create(ctx, u); err != nil {
		if errors.Is(err, repos.ErrDuplicate) {
			return nil, nil, ErrEmailTaken
		}
		return nil, nil, err
	}
	sess, err := s.StartSession(ctx, u.ID)
	if err != nil {
		return nil, nil, err
	}
	return u, sess, nil
}

// SeedAdmin creates an ADMIN account unless one already exists. It fails
// with ErrEmailTaken when email belongs to an existing non-admin account.
func (s *AuthService) SeedAdmin(ctx context.Context, email, name, password string) (bool, error) {
	email, ok := validate.Email(email)
	if !ok {
		return false, ErrInvalidEmail
	}
	name, ok = validate.Name(name)
	if !ok {
		return false, ErrInvalidName
	}
	n, err := s.Users.CountByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	hash, err := s.HashPassword(password)
	if err != nil {
		return false, err
	}
	u := &domain.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		Hash:      hash,
		Role:      domain.RoleAdmin,
		CreatedAt: clock(s.Now).now(),
	}
	if err := s.Users.Create(ctx, u); err != nil {
		if errors.Is(err, repos.ErrDuplicate) {
			return false, ErrEmailTaken
		}
		return false, err
	}
	return true, nil
}

// ChangePassword verifies current, stores next and ends every other session.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next, keepSID string) error {
	u, err := s.Users.ByID(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(current)) != nil {
		return ErrBadCreds
	}
	hash, err := s.HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.Users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	return s.Users.DeleteUserSessions(ctx, userID, keepSID)
}
