package services_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starterkit/internal/domain"
	"starterkit/internal/repos"
	"starterkit/internal/services"
)

func TestFlagEvaluate(t *testing.T) {
	off := &domain.FeatureFlag{Key: "beta", Enabled: false, RolloutPercent: 100}
	assert.False(t, off.Evaluate("u1"))

	full := &domain.FeatureFlag{Key: "beta", Enabled: true, RolloutPercent: 100}
	assert.True(t, full.Evaluate(""))

	zero := &domain.FeatureFlag{Key: "beta", Enabled: true, RolloutPercent: 0}
	assert.False(t, zero.Evaluate("u1"))

	partial := &domain.FeatureFlag{Key: "beta", Enabled: true, RolloutPercent: 30}
	assert.False(t, partial.Evaluate(""), "anonymous subjects are outside partial rollouts")

	var nilFlag *domain.FeatureFlag
	assert.False(t, nilFlag.Evaluate("u1"))
}

func TestFlagRolloutIsStickyAndProportional(t *testing.T) {
	f := &domain.FeatureFlag{Key: "beta", Enabled: true, RolloutPercent: 30}
	on := 0
	for i := 0; i < 2000; i++ {
		subject := fmt.Sprintf("user-%d", i)
		got := f.Evaluate(subject)
		assert.Equal(t, got, f.Evaluate(subject))
		if got {
			on++
		}
	}
	assert.InDelta(t, 600, on, 120)

	for i := 0; i < 100; i++ {
		b := domain.Bucket("beta", fmt.Sprint(i))
		assert.GreaterOrEqual(t, b, 0)
		assert.Less(t, b, 100)
	}
}

func TestFlagServiceCRUD(t *testing.T) {
	db := openDB(t)
	svc := services.NewFlagService(repos.NewFlagRepo(db))
	ctx := context.Background()

	// seeded
	assert.True(t, svc.IsEnabled(ctx, "signup", ""))
	assert.False(t, svc.IsEnabled(ctx, "missing", "u1"))

	f, err := svc.Upsert(ctx, domain.FeatureFlag{Key: "new-dashboard", Description: " Shiny ", Enabled: true, RolloutPercent: 100})
	require.NoError(t, err)
	assert.Equal(t, "Shiny", f.Description)

	all, err := svc.All(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, all["new-dashboard"])
	assert.Contains(t, all, "uploads")

	_, err = svc.Upsert(ctx, domain.FeatureFlag{Key: "new-dashboard", Enabled: false, RolloutPercent: 100})
	require.NoError(t, err)
	assert.False(t, svc.IsEnabled(ctx, "new-dashboard", "u1"))

	for _, bad := range []domain.FeatureFlag{
		{Key: "Bad Key", RolloutPercent: 10},
		{Key: "ok", RolloutPercent: 101},
		{Key: "ok", RolloutPercent: -1},
		{Key: "ok", Description: strings.Repeat("x", 501)},
	} {
		_, err := svc.Upsert(ctx, bad)
		assert.ErrorIs(t, err, services.ErrInvalidFlag, "%+v", bad)
	}

	require.NoError(t, svc.Delete(ctx, "new-dashboard"))
	assert.ErrorIs(t, svc.Delete(ctx, "new-dashboard"), services.ErrNotFound)
}
