package repos

import (
	"context"
	"time"

	"starterkit/internal/domain"

	"github.com/avito-tech/go-transaction-manager/trm/v2/manager"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const userCols = `id,email,name,password_hash,role,created_at`

type UserRepo struct {
	DB  *sqlx.DB
	trm *manager.Manager
}

func NewUserRepo(db *sqlx.DB, trm *manager.Manager) *UserRepo {
	return &UserRepo{DB: db, trm: trm}
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	q := conn(ctx, r.DB)
	_, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO users(id,email,name,password_hash,role,created_at)
		VALUES(?,?,?,?,?,?)`),
		u.ID, u.Email, u.Name, u.Hash, u.Role, u.CreatedAt)
	return mapErr(err)
}

func (r *UserRepo) ByEmail(ctx context.Context, email string) (*domain.User, error) {
	q := conn(ctx, r.DB)
	var u domain.User
	err := q.GetContext(ctx, &u, q.Rebind(`SELECT `+userCols+` FROM users WHERE LOWER(email)=LOWER(?)`), email)
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (r *UserRepo) ByID(ctx context.Context, id string) (*domain.User, error) {
	q := conn(ctx, r.DB)
	var u domain.User
	err := q.GetContext(ctx, &u, q.Rebind(`SELECT `+userCols+` FROM users WHERE id=?`), id)
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (r *UserRepo) List(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	err := conn(ctx, r.DB).SelectContext(ctx, &users, `SELECT `+userCols+` FROM users ORDER BY created_at, email`)
	return users, err
}

func (r *UserRepo) CountByRole(ctx context.Context, role string) (int, error) {
	q := conn(ctx, r.DB)
	var n int
	err := q.GetContext(ctx, &n, q.Rebind(`SELECT COUNT(*) FROM users WHERE role=?`), role)
	return n, err
}

func (r *UserRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := conn(ctx, r.DB).GetContext(ctx, &n, `SELECT COUNT(*) FROM users`)
	return n, err
}

func (r *UserRepo) CountAdmins(ctx context.Context) (int, error) {
	q := conn(ctx, r.DB)
	var n int
	err := q.GetContext(ctx, &n, q.Rebind(`SELECT COUNT(*) FROM users WHERE role=?`), domain.RoleAdmin)
	return n, err
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id, hash string) error {
	q := conn(ctx, r.DB)
	res, err := q.ExecContext(ctx, q.Rebind(`UPDATE users SET password_hash=? WHERE id=?`), hash, id)
	return affected(res, err)
}

func (r *UserRepo) UpdateRole(ctx context.Context, id, role string) error {
	q := conn(ctx, r.DB)
	res, err := q.ExecContext(ctx, q.Rebind(`UPDATE users SET role=? WHERE id=?`), role, id)
	return affected(res, err)
}

// ---- sessions ----

func (r *UserRepo) CreateSession(ctx context.Context, s *domain.Session) error {
	q := conn(ctx, r.DB)
	_, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO sessions(id,user_id,created_at,last_seen,expires_at)
		VALUES(?,?,?,?,?)`),
		s.ID, s.UserID, s.CreatedAt, s.LastSeen, s.ExpiresAt)
	return mapErr(err)
}

func (r *UserRepo) Session(ctx context.Context, sid string) (*domain.Session, error) {
	q := conn(ctx, r.DB)
	var s domain.Session
	err := q.GetContext(ctx, &s, q.Rebind(`
		SELECT id,user_id,created_at,last_seen,expires_at FROM sessions WHERE id=?`), sid)
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (r *UserRepo) TouchSession(ctx context.Context, sid string, at time.Time) error {
	q := conn(ctx, r.DB)
	_, err := q.ExecContext(ctx, q.Rebind(`UPDATE sessions SET last_seen=? WHERE id=?`), at, sid)
	return err
}

func (r *UserRepo) DeleteSession(ctx context.Context, sid string) error {
	q := conn(ctx, r.DB)
	_, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM sessions WHERE id=?`), sid)
	return err
}

// DeleteUserSessions drops every session of userID except keep (may be empty).
func (r *UserRepo) DeleteUserSessions(ctx context.Context, userID, keep string) error {
	q := conn(ctx, r.DB)
	_, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM sessions WHERE user_id=? AND id<>?`), userID, keep)
	return err
}

// DeleteUserCascade removes the user with sessions and upload rows. Consent
// records stay for the audit trail but move to a fresh anonymous subject.
func (r *UserRepo) DeleteUserCascade(ctx context.Context, userID string) error {
	return r.trm.Do(ctx, func(ctx context.Context) error {
		q := conn(ctx, r.DB)
		stmts := []string{
			`DELETE FROM sessions WHERE user_id=?`,
			`DELETE FROM uploads WHERE owner_id=?`,
		}
		for _, s := range stmts {
			if _, err := q.ExecContext(ctx, q.Rebind(s), userID); err != nil {
				return err
			}
		}
		if _, err := q.ExecContext(ctx, q.Rebind(`UPDATE consent_records SET user_id=NULL, subject_id=? WHERE user_id=?`),
			uuid.NewString(), userID); err != nil {
			return err
		}
		res, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM users WHERE id=?`), userID)
		return affected(res, err)
	})
}
