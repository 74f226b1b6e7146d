package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/bloodbank/internal/core/domain"
)

func TestInventoryService_CreateIsUpsert(t *testing.T) {
	f := newFixture(t)
	svc := NewInventoryService(f.store, f.monitor, zap.NewNop())
	ctx := context.Background()

	first, err := svc.Create(ctx, admin, domain.BloodTypeAPos, 10)
	require.NoError(t, err)

	second, err := svc.Create(ctx, admin, domain.BloodTypeAPos, 12)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 12, second.UnitsAvailable)

	all, err := svc.List(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestInventoryService_LowStockOnWrite(t *testing.T) {
	f := newFixture(t)
	svc := NewInventoryService(f.store, f.monitor, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Create(ctx, admin, domain.BloodTypeONeg, 2)
	require.NoError(t, err)

	f.flush()
	sent := f.sink.notifications()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Body, "O-")
}

func TestInventoryService_Update(t *testing.T) {
	f := newFixture(t)
	svc := NewInventoryService(f.store, f.monitor, zap.NewNop())
	ctx := context.Background()

	a, _ := svc.Create(ctx, admin, domain.BloodTypeAPos, 10)
	_, _ = svc.Create(ctx, admin, domain.BloodTypeBPos, 10)

	updated, err := svc.Update(ctx, admin, a.ID, domain.BloodTypeAPos, 20)
	require.NoError(t, err)
	assert.Equal(t, 20, updated.UnitsAvailable)

	_, err = svc.Update(ctx, admin, a.ID, domain.BloodTypeBPos, 1)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = svc.Update(ctx, admin, 999, domain.BloodTypeOPos, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Get(ctx, admin, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInventoryService_ValidationAndAccess(t *testing.T) {
	f := newFixture(t)
	svc := NewInventoryService(f.store, f.monitor, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Create(ctx, admin, domain.BloodTypeAPos, -1)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, admin, "Z", 1)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, requester, domain.BloodTypeAPos, 1)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.List(ctx, requester)
	assert.ErrorIs(t, err, ErrForbidden)
}
