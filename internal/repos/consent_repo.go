package repos

import (
	"context"

	"starterkit/internal/domain"

	"github.com/jmoiron/sqlx"
)

type ConsentRepo struct{ DB *sqlx.DB }

func NewConsentRepo(db *sqlx.DB) *ConsentRepo { return &ConsentRepo{DB: db} }

func (r *ConsentRepo) Create(ctx context.Context, rec *domain.ConsentRecord) error {
	q := conn(ctx, r.DB)
	_, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO consent_records(id,subject_id,user_id,categories,version,created_at)
		VALUES(?,?,?,?,?,?)`),
		rec.ID, rec.SubjectID, rec.UserID, rec.Categories, rec.Version, rec.CreatedAt)
	return mapErr(err)
}

// BySubject returns the audit trail for one subject, newest first.
func (r *ConsentRepo) BySubject(ctx context.Context, subjectID string) ([]domain.ConsentRecord, error) {
	q := conn(ctx, r.DB)
	var out []domain.ConsentRecord
	err := q.SelectContext(ctx, &out, q.Rebind(`
		SELECT id,subject_id,user_id,categories,version,created_at
		FROM consent_records WHERE subject_id=? ORDER BY created_at DESC`), subjectID)
	return out, err
}
