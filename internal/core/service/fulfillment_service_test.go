package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/bloodbank/internal/core/domain"
	"github.com/rl1809/bloodbank/internal/port"
)

// requestsOnly hides CommitFulfillment so the service falls back to the
// decrement-then-transition path.
type requestsOnly struct {
	port.RequestRepository
}

// racyRequests loses every status transition to a concurrent writer.
type racyRequests struct {
	port.RequestRepository
}

func (racyRequests) TransitionStatus(ctx context.Context, id int64, from, to domain.RequestStatus) (domain.BloodRequest, error) {
	return domain.BloodRequest{}, domain.ErrConflict
}

func TestFulfill_Success(t *testing.T) {
	f := newFixture(t)
	f.stock(t, domain.BloodTypeAPos, 10)
	req := f.request(t, domain.BloodTypeAPos, 2)

	updated, err := f.fulfillment(nil).Fulfill(context.Background(), admin, req.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.RequestStatusFulfilled, updated.Status)
	assert.Equal(t, 8, f.units(t, domain.BloodTypeAPos))

	f.flush()
	assert.Empty(t, f.sink.notifications())
}

func TestFulfill_InsufficientInventory(t *testing.T) {
	f := newFixture(t)
	f.stock(t, domain.BloodTypeAPos, 1)
	req := f.request(t, domain.BloodTypeAPos, 2)

	_, err := f.fulfillment(nil).Fulfill(context.Background(), admin, req.ID)
	assert.ErrorIs(t, err, ErrInsufficientInventory)

	assert.Equal(t, 1, f.units(t, domain.BloodTypeAPos))
	got, _ := f.store.GetRequest(context.Background(), req.ID)
	assert.Equal(t, domain.RequestStatusPending, got.Status)
}

func TestFulfill_AlreadyFulfilled(t *testing.T) {
	f := newFixture(t)
	f.stock(t, domain.BloodTypeAPos, 10)
	req := f.request(t, domain.BloodTypeAPos, 2)
	svc := f.fulfillment(nil)

	_, err := svc.Fulfill(context.Background(), admin, req.ID)
	require.NoError(t, err)

	_, err = svc.Fulfill(context.Background(), admin, req.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 8, f.units(t, domain.BloodTypeAPos))
}

func TestFulfill_DeniedRequestIsTerminal(t *testing.T) {
	f := newFixture(t)
	f.stock(t, domain.BloodTypeAPos, 10)
	req := f.request(t, domain.BloodTypeAPos, 2)
	svc := f.fulfillment(nil)

	denied, err := svc.Deny(context.Background(), admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusDenied, denied.Status)

	_, err = svc.Fulfill(context.Background(), admin, req.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = svc.Deny(context.Background(), admin, req.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 10, f.units(t, domain.BloodTypeAPos))
}

func TestFulfill_LowStockNotifiesOnce(t *testing.T) {
	f := newFixture(t)
	f.stock(t, domain.BloodTypeAPos, 6)
	f.stock(t, domain.BloodTypeOPos, 20)
	req := f.request(t, domain.BloodTypeAPos, 2)

	_, err := f.fulfillment(nil).Fulfill(context.Background(), admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, f.units(t, domain.BloodTypeAPos))

	f.flush()
	sent := f.sink.notifications()
	require.Len(t, sent, 1)
	assert.Equal(t, LowStockSubject, sent[0].Subject)
	assert.Equal(t, "The following blood types are below critical levels: A+. Please replenish soon.", sent[0].Body)
	assert.Equal(t, []string{"placeholder@example.com"}, sent[0].Recipients)
}

func TestFulfill_NotificationFailureDoesNotFailFulfillment(t *testing.T) {
	f := newFixture(t)
	f.sink.err = assert.AnError
	f.stock(t, domain.BloodTypeBNeg, 3)
	req := f.request(t, domain.BloodTypeBNeg, 1)

	updated, err := f.fulfillment(nil).Fulfill(context.Background(), admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusFulfilled, updated.Status)
	assert.Equal(t, 2, f.units(t, domain.BloodTypeBNeg))
}

func TestFulfill_Errors(t *testing.T) {
	f := newFixture(t)
	f.stock(t, domain.BloodTypeAPos, 10)
	req := f.request(t, domain.BloodTypeAPos, 2)
	orphan := f.request(t, domain.BloodTypeABNeg, 1)
	svc := f.fulfillment(nil)
	ctx := context.Background()

	_, err := svc.Fulfill(ctx, requester, req.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Fulfill(ctx, anonymous, req.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Fulfill(ctx, admin, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Fulfill(ctx, admin, orphan.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, _ := f.store.GetRequest(ctx, orphan.ID)
	assert.Equal(t, domain.RequestStatusPending, got.Status)
	assert.Equal(t, 10, f.units(t, domain.BloodTypeAPos))
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	f.stock(t, domain.BloodTypeAPos, 10)
	svc := f.fulfillment(nil)
	ctx := context.Background()

	a := f.request(t, domain.BloodTypeAPos, 1)
	updated, err := svc.UpdateStatus(ctx, admin, a.ID, domain.RequestStatusFulfilled)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusFulfilled, updated.Status)

	b := f.request(t, domain.BloodTypeAPos, 1)
	updated, err = svc.UpdateStatus(ctx, admin, b.ID, domain.RequestStatusDenied)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusDenied, updated.Status)

	c := f.request(t, domain.BloodTypeAPos, 1)
	_, err = svc.UpdateStatus(ctx, admin, c.ID, domain.RequestStatusPending)
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, 9, f.units(t, domain.BloodTypeAPos))
}

func TestFulfill_ConcurrentSameRequest(t *testing.T) {
	for name, requests := range map[string]func(f *fixture) port.RequestRepository{
		"transactional": func(f *fixture) port.RequestRepository { return f.store },
		"compensating":  func(f *fixture) port.RequestRepository { return requestsOnly{f.store} },
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.stock(t, domain.BloodTypeONeg, 10)
			req := f.request(t, domain.BloodTypeONeg, 3)
			svc := f.fulfillment(requests(f))

			var successCount atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := svc.Fulfill(context.Background(), admin, req.ID); err == nil {
						successCount.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(1), successCount.Load())
			assert.Equal(t, 7, f.units(t, domain.BloodTypeONeg))
		})
	}
}

func TestFulfill_ConcurrentRequestsNeverOversell(t *testing.T) {
	f := newFixture(t)
	f.stock(t, domain.BloodTypeABPos, 10)
	svc := f.fulfillment(nil)

	ids := make([]int64, 25)
	for i := range ids {
		ids[i] = f.request(t, domain.BloodTypeABPos, 1).ID
	}

	var successCount, shortCount atomic.Int32
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := svc.Fulfill(context.Background(), admin, id)
			switch {
			case err == nil:
				successCount.Add(1)
			case assert.ErrorIs(t, err, ErrInsufficientInventory):
				shortCount.Add(1)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, int32(10), successCount.Load())
	assert.Equal(t, int32(15), shortCount.Load())
	assert.Equal(t, 0, f.units(t, domain.BloodTypeABPos))
}

func TestFulfill_CompensatesLostTransition(t *testing.T) {
	f := newFixture(t)
	f.stock(t, domain.BloodTypeAPos, 10)
	req := f.request(t, domain.BloodTypeAPos, 4)

	svc := f.fulfillment(racyRequests{f.store})
	_, err := svc.Fulfill(context.Background(), admin, req.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)

	assert.Equal(t, 10, f.units(t, domain.BloodTypeAPos))
}
