package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/bloodbank/internal/adapter/storage"
	"github.com/rl1809/bloodbank/internal/core/domain"
	"github.com/rl1809/bloodbank/internal/port"
)

func newRequestService(t *testing.T) (*RequestService, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	return NewRequestService(store, storage.NewMemoryCache(0), zap.NewNop()), store
}

func TestCreateRequest_Success(t *testing.T) {
	svc, _ := newRequestService(t)

	req, err := svc.Create(context.Background(), requester, domain.BloodTypeAPos, 2, "")
	require.NoError(t, err)

	assert.Equal(t, requester.UserID, req.UserID)
	assert.Equal(t, domain.RequestStatusPending, req.Status)
	assert.Equal(t, 2, req.UnitsRequested)
	assert.False(t, req.RequestDate.IsZero())
}

func TestCreateRequest_Validation(t *testing.T) {
	svc, _ := newRequestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, requester, domain.BloodType("C+"), 2, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, requester, domain.BloodTypeAPos, 0, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, requester, domain.BloodTypeAPos, -1, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateRequest_AdminsCannotRequest(t *testing.T) {
	svc, _ := newRequestService(t)

	_, err := svc.Create(context.Background(), admin, domain.BloodTypeAPos, 1, "")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Create(context.Background(), anonymous, domain.BloodTypeAPos, 1, "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCreateRequest_DuplicateIdempotencyKey(t *testing.T) {
	svc, store := newRequestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, requester, domain.BloodTypeAPos, 1, "key-1")
	require.NoError(t, err)

	_, err = svc.Create(ctx, requester, domain.BloodTypeAPos, 1, "key-1")
	assert.ErrorIs(t, err, ErrDuplicateRequest)
	assert.ErrorIs(t, err, domain.ErrConflict)

	// keys are scoped per user
	_, err = svc.Create(ctx, other, domain.BloodTypeAPos, 1, "key-1")
	require.NoError(t, err)

	all, _ := store.ListRequests(ctx, domain.RequestFilter{})
	assert.Len(t, all, 2)
}

// failingCreates rejects the first insert and accepts the rest.
type failingCreates struct {
	port.RequestRepository
	failed bool
}

func (f *failingCreates) CreateRequest(ctx context.Context, userID int64, bloodType domain.BloodType, units int) (domain.BloodRequest, error) {
	if !f.failed {
		f.failed = true
		return domain.BloodRequest{}, errors.New("connection reset")
	}
	return f.RequestRepository.CreateRequest(ctx, userID, bloodType, units)
}

func TestCreateRequest_FailedInsertReleasesKey(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewRequestService(&failingCreates{RequestRepository: store}, storage.NewMemoryCache(0), zap.NewNop())
	ctx := context.Background()

	_, err := svc.Create(ctx, requester, domain.BloodTypeONeg, 1, "retry-me")
	require.Error(t, err)

	req, err := svc.Create(ctx, requester, domain.BloodTypeONeg, 1, "retry-me")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusPending, req.Status)
}

func TestListOwn_OnlyCallersRequests(t *testing.T) {
	svc, _ := newRequestService(t)
	ctx := context.Background()

	_, _ = svc.Create(ctx, requester, domain.BloodTypeAPos, 1, "")
	_, _ = svc.Create(ctx, other, domain.BloodTypeBPos, 1, "")
	_, _ = svc.Create(ctx, requester, domain.BloodTypeOPos, 3, "")

	own, err := svc.ListOwn(ctx, requester)
	require.NoError(t, err)
	require.Len(t, own, 2)
	for _, r := range own {
		assert.Equal(t, requester.UserID, r.UserID)
	}

	_, err = svc.ListOwn(ctx, admin)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestListAll_Filters(t *testing.T) {
	svc, _ := newRequestService(t)
	ctx := context.Background()

	_, _ = svc.Create(ctx, requester, domain.BloodTypeAPos, 1, "")
	_, _ = svc.Create(ctx, other, domain.BloodTypeBPos, 1, "")

	all, err := svc.ListAll(ctx, admin, domain.RequestFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := svc.ListAll(ctx, admin, domain.RequestFilter{BloodType: domain.BloodTypeBPos})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, other.UserID, filtered[0].UserID)

	_, err = svc.ListAll(ctx, admin, domain.RequestFilter{Status: "Lost"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.ListAll(ctx, requester, domain.RequestFilter{})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestGetRequest_Visibility(t *testing.T) {
	svc, _ := newRequestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, requester, domain.BloodTypeAPos, 1, "")
	require.NoError(t, err)

	got, err := svc.Get(ctx, requester, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)

	_, err = svc.Get(ctx, admin, req.ID)
	assert.NoError(t, err)

	_, err = svc.Get(ctx, other, req.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Get(ctx, anonymous, req.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Get(ctx, admin, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
