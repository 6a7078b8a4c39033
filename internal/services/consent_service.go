package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"starterkit/internal/domain"
	"starterkit/internal/repos"

	"github.com/google/uuid"
)

const (
	ConsentCookie  = "cookie_consent"
	ConsentVersion = "v1"
	ConsentMaxAge  = 180 * 24 * time.Hour
)

// ParseConsent reads "v1.<bits>.<unix>" where bits are analytics, marketing
// and preferences in that order. Anything else means no consent.
func ParseConsent(v string) (domain.Consent, bool) {
	parts := strings.Split(v, ".")
	if len(parts) != 3 || parts[0] != ConsentVersion || len(parts[1]) != 3 {
		return domain.Consent{}, false
	}
	bits := make([]bool, 3)
	for i, ch := range parts[1] {
		switch ch {
		case '0':
		case '1':
			bits[i] = true
		default:
			return domain.Consent{}, false
		}
	}
	ts, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || ts <= 0 {
		return domain.Consent{}, false
	}
	return domain.Consent{
		Analytics:   bits[0],
		Marketing:   bits[1],
		Preferences: bits[2],
		Given:       true,
		At:          time.Unix(ts, 0).UTC(),
	}, true
}

func FormatConsent(c domain.Consent) string {
	bit := func(b bool) byte {
		if b {
			return '1'
		}
		return '0'
	}
	bits := []byte{bit(c.Analytics), bit(c.Marketing), bit(c.Preferences)}
	return ConsentVersion + "." + string(bits) + "." + strconv.FormatInt(c.At.Unix(), 10)
}

type ConsentService struct {
	Records *repos.ConsentRepo
	Now     func() time.Time
}

// Record stores the choice for the audit trail and returns the cookie value.
func (s *ConsentService) Record(ctx context.Context, subjectID string, userID *string, c domain.Consent) (domain.Consent, string, error) {
	c.Given = true
	c.At = clock(s.Now).now().Truncate(time.Second)
	rec := &domain.ConsentRecord{
		ID:         uuid.NewString(),
		SubjectID:  subjectID,
		UserID:     userID,
		Categories: strings.Join(c.Categories(), ","),
		Version:    ConsentVersion,
		CreatedAt:  c.At,
	}
	if err := s.Records.Create(ctx, rec); err != nil {
		return domain.Consent{}, "", err
	}
	return c, FormatConsent(c), nil
}

func (s *ConsentService) History(ctx context.Context, subjectID string) ([]domain.ConsentRecord, error) {
	return s.Records.BySubject(ctx, subjectID)
}
