package repos

import (
	"context"

	"starterkit/internal/domain"

	"github.com/jmoiron/sqlx"
)

const contactCols = `id,name,email,subject,message,ip_hash,status,created_at`

type ContactRepo struct{ DB *sqlx.DB }

func NewContactRepo(db *sqlx.DB) *ContactRepo { return &ContactRepo{DB: db} }

func (r *ContactRepo) Create(ctx context.Context, s *domain.ContactSubmission) error {
	q := conn(ctx, r.DB)
	_, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO contact_submissions(id,name,email,subject,message,ip_hash,status,created_at)
		VALUES(?,?,?,?,?,?,?,?)`),
		s.ID, s.Name, s.Email, s.Subject, s.Message, s.IPHash, s.Status, s.CreatedAt)
	return mapErr(err)
}

// List returns submissions newest first; an empty status means all.
func (r *ContactRepo) List(ctx context.Context, status string, limit int) ([]domain.ContactSubmission, error) {
	q := conn(ctx, r.DB)
	var out []domain.ContactSubmission
	var err error
	if status == "" {
		err = q.SelectContext(ctx, &out, q.Rebind(`SELECT `+contactCols+` FROM contact_submissions ORDER BY created_at DESC LIMIT ?`), limit)
	} else {
		err = q.SelectContext(ctx, &out, q.Rebind(`SELECT `+contactCols+` FROM contact_submissions WHERE status=? ORDER BY created_at DESC LIMIT ?`), status, limit)
	}
	return out, err
}

func (r *ContactRepo) SetStatus(ctx context.Context, id, status string) error {
	q := conn(ctx, r.DB)
	res, err := q.ExecContext(ctx, q.Rebind(`UPDATE contact_submissions SET status=? WHERE id=?`), status, id)
	return affected(res, err)
}

func (r *ContactRepo) Delete(ctx context.Context, id string) error {
	q := conn(ctx, r.DB)
	res, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM contact_submissions WHERE id=?`), id)
	return affected(res, err)
}

func (r *ContactRepo) CountByStatus(ctx context.Context, status string) (int, error) {
	q := conn(ctx, r.DB)
	var n int
	err := q.GetContext(ctx, &n, q.Rebind(`SELECT COUNT(*) FROM contact_submissions WHERE status=?`), status)
	return n, err
}
