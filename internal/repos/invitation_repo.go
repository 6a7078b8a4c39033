package repos

import (
	"context"
	"time"

	"starterkit/internal/domain"

	"github.com/jmoiron/sqlx"
)

const inviteCols = `id,email,role,token_hash,invited_by,created_at,expires_at,accepted_at,revoked_at`

// Time comparisons happen in Go: sqlite stores timestamps as text and the
// encoding is not guaranteed to sort.
type InvitationRepo struct{ DB *sqlx.DB }

func NewInvitationRepo(db *sqlx.DB) *InvitationRepo { return &InvitationRepo{DB: db} }

func (r *InvitationRepo) Create(ctx context.Context, inv *domain.Invitation) error {
	q := conn(ctx, r.DB)
	_, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO invitations(id,email,role,token_hash,invited_by,created_at,expires_at)
		VALUES(?,?,?,?,?,?,?)`),
		inv.ID, inv.Email, inv.Role, inv.TokenHash, inv.InvitedBy, inv.CreatedAt, inv.ExpiresAt)
	return mapErr(err)
}

func (r *InvitationRepo) ByID(ctx context.Context, id string) (*domain.Invitation, error) {
	q := conn(ctx, r.DB)
	var inv domain.Invitation
	if err := q.GetContext(ctx, &inv, q.Rebind(`SELECT `+inviteCols+` FROM invitations WHERE id=?`), id); err != nil {
		return nil, mapErr(err)
	}
	return &inv, nil
}

func (r *InvitationRepo) ByTokenHash(ctx context.Context, hash string) (*domain.Invitation, error) {
	q := conn(ctx, r.DB)
	var inv domain.Invitation
	if err := q.GetContext(ctx, &inv, q.Rebind(`SELECT `+inviteCols+` FROM invitations WHERE token_hash=?`), hash); err != nil {
		return nil, mapErr(err)
	}
	return &inv, nil
}

func (r *InvitationRepo) List(ctx context.Context) ([]domain.Invitation, error) {
	var out []domain.Invitation
	err := conn(ctx, r.DB).SelectContext(ctx, &out, `SELECT `+inviteCols+` FROM invitations ORDER BY created_at DESC`)
	return out, err
}

// Open returns invitations that were neither accepted nor revoked.
func (r *InvitationRepo) Open(ctx context.Context) ([]domain.Invitation, error) {
	var out []domain.Invitation
	err := conn(ctx, r.DB).SelectContext(ctx, &out, `
		SELECT `+inviteCols+` FROM invitations
		WHERE accepted_at IS NULL AND revoked_at IS NULL`)
	return out, err
}

// RevokeOpenForEmail revokes every open invitation addressed to email.
func (r *InvitationRepo) RevokeOpenForEmail(ctx context.Context, email string, at time.Time) (int64, error) {
	q := conn(ctx, r.DB)
	res, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE invitations SET revoked_at=?
		WHERE email=? AND accepted_at IS NULL AND revoked_at IS NULL`), at, email)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkAccepted is conditional; false means someone else consumed or revoked it first.
func (r *InvitationRepo) MarkAccepted(ctx context.Context, id string, at time.Time) (bool, error) {
	q := conn(ctx, r.DB)
	res, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE invitations SET accepted_at=?
		WHERE id=? AND accepted_at IS NULL AND revoked_at IS NULL`), at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *InvitationRepo) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	q := conn(ctx, r.DB)
	res, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE invitations SET revoked_at=?
		WHERE id=? AND accepted_at IS NULL AND revoked_at IS NULL`), at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Rotate swaps the token hash and expiry of an open invitation.
func (r *InvitationRepo) Rotate(ctx context.Context, id, hash string, expires time.Time) (bool, error) {
	q := conn(ctx, r.DB)
	res, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE invitations SET token_hash=?, expires_at=?
		WHERE id=? AND accepted_at IS NULL AND revoked_at IS NULL`), hash, expires, id)
	if err != nil {
		return false, mapErr(err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *InvitationRepo) DeleteIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM invitations WHERE id IN (?)`, ids)
	if err != nil {
		return 0, err
	}
	q := conn(ctx, r.DB)
	res, err := q.ExecContext(ctx, q.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
