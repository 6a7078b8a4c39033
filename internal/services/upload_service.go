package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"
	"unicode"

	"starterkit/internal/domain"
	applog "starterkit/internal/log"
	"starterkit/internal/repos"
	"starterkit/internal/storage"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AllowedTypes maps accepted MIME types to the extension used in keys.
var AllowedTypes = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
	"text/plain":      ".txt",
}

const maxFilenameRunes = 128

type UploadService struct {
	Uploads  *repos.UploadRepo
	Store    storage.Store
	MaxBytes int64
	Now      func() time.Time
}

// Upload runs the pipeline: size cap, sniff, allowlist, key, store, record.
func (s *UploadService) Upload(ctx context.Context, ownerID, filename, declaredType string, r io.Reader) (*domain.Upload, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.MaxBytes {
		return nil, ErrTooLarge
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	detected := mimetype.Detect(data)
	base := baseMIME(detected.String())
	ext, ok := AllowedTypes[base]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, base)
	}
	if d := baseMIME(declaredType); d != "" && d != "application/octet-stream" && d != base {
		return nil, fmt.Errorf("%w: declared %s, detected %s", ErrTypeMismatch, d, base)
	}

	now := clock(s.Now).now()
	sum := sha256.Sum256(data)
	u := &domain.Upload{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		StorageKey:  StorageKey(ownerID, now, ext),
		Filename:    SanitizeFilename(filename),
		ContentType: base,
		Size:        int64(len(data)),
		Checksum:    hex.EncodeToString(sum[:]),
		CreatedAt:   now,
	}
	if err := s.Store.Put(ctx, u.StorageKey, bytes.NewReader(data), u.Size, u.ContentType); err != nil {
		return nil, fmt.Errorf("store object: %w", err)
	}
	if err := s.Uploads.Create(ctx, u); err != nil {
		if delErr := s.Store.Delete(context.WithoutCancel(ctx), u.StorageKey); delErr != nil {
			applog.L().Error("upload.orphan", zap.String("key", u.StorageKey), zap.Error(delErr))
		}
		return nil, err
	}
	u.URL, _ = s.Store.URL(ctx, u.StorageKey)
	return u, nil
}

// StorageKey builds uploads/<owner>/<yyyy>/<mm>/<uuid><ext>.
func StorageKey(ownerID string, at time.Time, ext string) string {
	return path.Join("uploads", ownerID, at.Format("2006"), at.Format("01"), uuid.NewString()+ext)
}

func baseMIME(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(strings.SplitN(t, ";", 2)[0]))
}

// SanitizeFilename keeps a display-only name: basename, no control
// characters, at most 128 runes.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	var b strings.Builder
	n := 0
	for _, r := range name {
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			continue
		}
		if n == maxFilenameRunes {
			break
		}
		b.WriteRune(r)
		n++
	}
	out := strings.TrimSpace(b.String())
	if out == "" || out == "." || out == "/" || out == ".." {
		return "file"
	}
	return out
}

func (s *UploadService) withURL(ctx context.Context, u *domain.Upload) {
	if url, err := s.Store.URL(ctx, u.StorageKey); err == nil {
		u.URL = url
	}
}

func (s *UploadService) List(ctx context.Context, ownerID string) ([]domain.Upload, error) {
	out, err := s.Uploads.ByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for i := range out {
		s.withURL(ctx, &out[i])
	}
	return out, nil
}

// Get returns an upload visible to requester (its owner or an admin).
func (s *UploadService) Get(ctx context.Context, id string, requester *domain.User) (*domain.Upload, error) {
	u, err := s.Uploads.ByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if requester == nil || (u.OwnerID != requester.ID && !requester.IsAdmin()) {
		// Same answer as a missing row so ids can't be probed.
		return nil, ErrNotFound
	}
	s.withURL(ctx, u)
	return u, nil
}

func (s *UploadService) Delete(ctx context.Context, id string, requester *domain.User) error {
	u, err := s.Get(ctx, id, requester)
	if err != nil {
		return err
	}
	if err := s.Store.Delete(ctx, u.StorageKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return notFound(s.Uploads.Delete(ctx, u.ID))
}

// DeleteObjects removes the stored objects of ownerID, best effort.
func (s *UploadService) DeleteObjects(ctx context.Context, ownerID string) {
	ups, err := s.Uploads.ByOwner(ctx, ownerID)
	if err != nil {
		applog.L().Error("upload.cleanup.list.fail", zap.String("owner_id", ownerID), zap.Error(err))
		return
	}
	for i := range ups {
		if err := s.Store.Delete(ctx, ups[i].StorageKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
			applog.L().Error("upload.cleanup.fail", zap.String("key", ups[i].StorageKey), zap.Error(err))
		}
	}
}
