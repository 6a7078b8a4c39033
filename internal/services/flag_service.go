package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"starterkit/internal/domain"
	"starterkit/internal/repos"
	"starterkit/internal/validate"
)

type FlagService struct {
	Flags *repos.FlagRepo
	Now   func() time.Time
}

func NewFlagService(flags *repos.FlagRepo) *FlagService { return &FlagService{Flags: flags} }

// IsEnabled evaluates key for subject; unknown flags and lookup errors are off.
func (s *FlagService) IsEnabled(ctx context.Context, key, subject string) bool {
	f, err := s.Flags.Get(ctx, key)
	if err != nil {
		return false
	}
	return f.Evaluate(subject)
}

// All evaluates every flag for subject.
func (s *FlagService) All(ctx context.Context, subject string) (map[string]bool, error) {
	flags, err := s.Flags.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(flags))
	for i := range flags {
		out[flags[i].Key] = flags[i].Evaluate(subject)
	}
	return out, nil
}

func (s *FlagService) List(ctx context.Context) ([]domain.FeatureFlag, error) {
	return s.Flags.List(ctx)
}

func (s *FlagService) Upsert(ctx context.Context, f domain.FeatureFlag) (*domain.FeatureFlag, error) {
	f.Key = strings.TrimSpace(f.Key)
	f.Description = strings.TrimSpace(f.Description)
	if !validate.FlagKey(f.Key) || f.RolloutPercent < 0 || f.RolloutPercent > 100 || len(f.Description) > 500 {
		return nil, ErrInvalidFlag
	}
	f.UpdatedAt = clock(s.Now).now()
	if err := s.Flags.Upsert(ctx, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *FlagService) Delete(ctx context.Context, key string) error {
	if err := s.Flags.Delete(ctx, key); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
