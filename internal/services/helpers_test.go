package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"starterkit/internal/domain"
	"starterkit/internal/mail"
	"starterkit/internal/repos"
	"starterkit/internal/services"
)

const testPassword = "Sup3r-secret!"

func openDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := repos.OpenDB("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newAuth(db *sqlx.DB) *services.AuthService {
	a := services.NewAuthService(repos.NewUserRepo(db, repos.NewTxManager(db)), services.NewFlagService(repos.NewFlagRepo(db)), time.Hour)
	a.Cost = bcrypt.MinCost
	return a
}

// fixedClock is a settable time source shared by services under test.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fixedClock {
	return &fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type captureMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) Sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.sent...)
}

func createUser(t *testing.T, db *sqlx.DB, email, role string) *domain.User {
	t.Helper()
	u, _, err := newAuth(db).Register(context.Background(), email, "Test User", testPassword)
	require.NoError(t, err)
	if role != domain.RoleUser {
		require.NoError(t, repos.NewUserRepo(db, repos.NewTxManager(db)).UpdateRole(context.Background(), u.ID, role))
		u.Role = role
	}
	return u
}
