package services_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starterkit/internal/domain"
	"starterkit/internal/repos"
	"starterkit/internal/services"
	"starterkit/internal/storage"
)

func TestAdminSetRoleAndDeleteUser(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	store, err := storage.NewLocalStore(t.TempDir(), "/media/")
	require.NoError(t, err)

	trm := repos.NewTxManager(db)
	users := repos.NewUserRepo(db, trm)
	uploadRepo := repos.NewUploadRepo(db)
	uploads := &services.UploadService{Uploads: uploadRepo, Store: store, MaxBytes: 1 << 20}
	invites := &services.InvitationService{Invites: repos.NewInvitationRepo(db), Users: users, Tx: trm}
	svc := &services.AdminService{
		Users:       users,
		Contacts:    repos.NewContactRepo(db),
		UploadRows:  uploadRepo,
		Flags:       repos.NewFlagRepo(db),
		Invitations: invites,
		Uploads:     uploads,
	}

	admin := createUser(t, db, "admin@example.com", domain.RoleAdmin)
	u := createUser(t, db, "user@example.com", domain.RoleUser)
	up, err := uploads.Upload(ctx, u.ID, "a.png", "", bytes.NewReader(pngHeader))
	require.NoError(t, err)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, services.Stats{Users: 2, Uploads: 1, Flags: 2}, st)

	assert.ErrorIs(t, svc.SetRole(ctx, admin, admin.ID, domain.RoleUser), services.ErrSelf)
	assert.ErrorIs(t, svc.SetRole(ctx, admin, u.ID, "ROOT"), services.ErrInvalidRole)
	assert.ErrorIs(t, svc.SetRole(ctx, admin, "missing", domain.RoleAdmin), services.ErrNotFound)
	require.NoError(t, svc.SetRole(ctx, admin, u.ID, domain.RoleAdmin))

	consents := repos.NewConsentRepo(db)
	require.NoError(t, consents.Create(ctx, &domain.ConsentRecord{
		ID: "c1", SubjectID: u.ID, UserID: &u.ID, Categories: "necessary", Version: "v1", CreatedAt: time.Now().UTC(),
	}))

	assert.ErrorIs(t, svc.DeleteUser(ctx, admin, admin.ID), services.ErrSelf)
	require.NoError(t, svc.DeleteUser(ctx, admin, u.ID))
	assert.ErrorIs(t, svc.DeleteUser(ctx, admin, u.ID), services.ErrNotFound)

	_, err = uploadRepo.ByID(ctx, up.ID)
	assert.ErrorIs(t, err, repos.ErrNotFound)
	p, err := store.Path(up.StorageKey)
	require.NoError(t, err)
	assert.NoFileExists(t, p)

	// The consent trail survives but no longer points at the deleted account.
	recs, err := consents.BySubject(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, recs)
	var left struct {
		Subject string  `db:"subject_id"`
		UserID  *string `db:"user_id"`
	}
	require.NoError(t, db.Get(&left, `SELECT subject_id, user_id FROM consent_records WHERE id='c1'`))
	assert.Nil(t, left.UserID)
	assert.NotEqual(t, u.ID, left.Subject)
	assert.NotEmpty(t, left.Subject)

	list, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
