package repos

import (
	"context"

	"starterkit/internal/domain"

	"github.com/jmoiron/sqlx"
)

const flagCols = `flag_key,description,enabled,rollout_percent,updated_at`

type FlagRepo struct{ DB *sqlx.DB }

func NewFlagRepo(db *sqlx.DB) *FlagRepo { return &FlagRepo{DB: db} }

func (r *FlagRepo) Get(ctx context.Context, key string) (*domain.FeatureFlag, error) {
	q := conn(ctx, r.DB)
	var f domain.FeatureFlag
	if err := q.GetContext(ctx, &f, q.Rebind(`SELECT `+flagCols+` FROM feature_flags WHERE flag_key=?`), key); err != nil {
		return nil, mapErr(err)
	}
	return &f, nil
}

func (r *FlagRepo) List(ctx context.Context) ([]domain.FeatureFlag, error) {
	var out []domain.FeatureFlag
	err := conn(ctx, r.DB).SelectContext(ctx, &out, `SELECT `+flagCols+` FROM feature_flags ORDER BY flag_key`)
	return out, err
}

func (r *FlagRepo) Upsert(ctx context.Context, f *domain.FeatureFlag) error {
	q := conn(ctx, r.DB)
	_, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO feature_flags(flag_key,description,enabled,rollout_percent,updated_at)
		VALUES(?,?,?,?,?)
		ON CONFLICT(flag_key) DO UPDATE SET
			description=excluded.description,
			enabled=excluded.enabled,
			rollout_percent=excluded.rollout_percent,
			updated_at=excluded.updated_at`),
		f.Key, f.Description, f.Enabled, f.RolloutPercent, f.UpdatedAt)
	return err
}

func (r *FlagRepo) Delete(ctx context.Context, key string) error {
	q := conn(ctx, r.DB)
	res, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM feature_flags WHERE flag_key=?`), key)
	return affected(res, err)
}

func (r *FlagRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := conn(ctx, r.DB).GetContext(ctx, &n, `SELECT COUNT(*) FROM feature_flags`)
	return n, err
}
