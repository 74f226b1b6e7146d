package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/bloodbank/internal/adapter/storage"
	"github.com/rl1809/bloodbank/internal/core/domain"
	"github.com/rl1809/bloodbank/internal/port"
)

var (
	admin     = domain.Caller{UserID: 1, Username: "admin", IsStaff: true}
	requester = domain.Caller{UserID: 2, Username: "alice"}
	other     = domain.Caller{UserID: 3, Username: "bob"}
	anonymous = domain.Caller{}
)

type notification struct {
	Subject    string
	Body       string
	Recipients []string
}

// Mock NotificationSink
type recordingSink struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (s *recordingSink) Notify(ctx context.Context, subject, body string, recipients []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, notification{Subject: subject, Body: body, Recipients: recipients})
	return nil
}

func (s *recordingSink) notifications() []notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notification(nil), s.sent...)
}

type fixture struct {
	store      *storage.MemoryStore
	sink       *recordingSink
	dispatcher *AlertDispatcher
	monitor    *LowStockMonitor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	f := &fixture{store: storage.NewMemoryStore(), sink: &recordingSink{}}
	f.dispatcher = NewAlertDispatcher(f.sink, 16, time.Second, logger)
	f.dispatcher.Start(1)
	t.Cleanup(f.dispatcher.Close)

	f.monitor = NewLowStockMonitor(f.store, f.dispatcher, DefaultCriticalThreshold, []string{"placeholder@example.com"}, logger)
	return f
}

func (f *fixture) fulfillment(requests port.RequestRepository) *FulfillmentService {
	if requests == nil {
		requests = f.store
	}
	return NewFulfillmentService(requests, f.store, f.monitor, zap.NewNop())
}

func (f *fixture) stock(t *testing.T, bloodType domain.BloodType, units int) {
	t.Helper()
	_, err := f.store.UpsertInventory(context.Background(), bloodType, units)
	require.NoError(t, err)
}

func (f *fixture) units(t *testing.T, bloodType domain.BloodType) int {
	t.Helper()
	rec, err := f.store.GetInventory(context.Background(), bloodType)
	require.NoError(t, err)
	return rec.UnitsAvailable
}

func (f *fixture) request(t *testing.T, bloodType domain.BloodType, units int) domain.BloodRequest {
	t.Helper()
	req, err := f.store.CreateRequest(context.Background(), requester.UserID, bloodType, units)
	require.NoError(t, err)
	return req
}

// flush waits for queued alerts to be delivered.
func (f *fixture) flush() {
	f.dispatcher.Close()
}
