package repos

import (
	"context"

	"starterkit/internal/domain"

	"github.com/jmoiron/sqlx"
)

const uploadCols = `id,owner_id,storage_key,filename,content_type,size,checksum,created_at`

type UploadRepo struct{ DB *sqlx.DB }

func NewUploadRepo(db *sqlx.DB) *UploadRepo { return &UploadRepo{DB: db} }

func (r *UploadRepo) Create(ctx context.Context, u *domain.Upload) error {
	q := conn(ctx, r.DB)
	_, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO uploads(id,owner_id,storage_key,filename,content_type,size,checksum,created_at)
		VALUES(?,?,?,?,?,?,?,?)`),
		u.ID, u.OwnerID, u.StorageKey, u.Filename, u.ContentType, u.Size, u.Checksum, u.CreatedAt)
	return mapErr(err)
}

func (r *UploadRepo) ByID(ctx context.Context, id string) (*domain.Upload, error) {
	q := conn(ctx, r.DB)
	var u domain.Upload
	if err := q.GetContext(ctx, &u, q.Rebind(`SELECT `+uploadCols+` FROM uploads WHERE id=?`), id); err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (r *UploadRepo) ByOwner(ctx context.Context, ownerID string) ([]domain.Upload, error) {
	q := conn(ctx, r.DB)
	var out []domain.Upload
	err := q.SelectContext(ctx, &out, q.Rebind(`SELECT `+uploadCols+` FROM uploads WHERE owner_id=? ORDER BY created_at DESC`), ownerID)
	return out, err
}

func (r *UploadRepo) Delete(ctx context.Context, id string) error {
	q := conn(ctx, r.DB)
	res, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM uploads WHERE id=?`), id)
	return affected(res, err)
}

func (r *UploadRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := conn(ctx, r.DB).GetContext(ctx, &n, `SELECT COUNT(*) FROM uploads`)
	return n, err
}
