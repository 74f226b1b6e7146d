package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// blockingSink holds every delivery until release is closed.
type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	count   int
}

func (s *blockingSink) Notify(ctx context.Context, subject, body string, recipients []string) error {
	<-s.release
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	return nil
}

func TestAlertDispatcher_CloseDrainsQueue(t *testing.T) {
	sink := &recordingSink{}
	d := NewAlertDispatcher(sink, 10, time.Second, zap.NewNop())
	d.Start(2)

	for i := 0; i < 5; i++ {
		assert.True(t, d.Enqueue(Alert{Subject: "s", Body: "b"}))
	}
	d.Close()

	assert.Len(t, sink.notifications(), 5)
	assert.False(t, d.Enqueue(Alert{Subject: "late"}))
}

func TestAlertDispatcher_DropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewAlertDispatcher(sink, 1, time.Second, zap.NewNop())

	// No workers yet, so the buffer fills after one alert.
	assert.True(t, d.Enqueue(Alert{}))
	assert.False(t, d.Enqueue(Alert{}))

	d.Start(1)
	close(sink.release)
	d.Close()

	assert.Equal(t, 1, sink.count)
}

func TestLowStockMonitor_NothingBelowThreshold(t *testing.T) {
	f := newFixture(t)
	f.stock(t, "A+", 5)

	assert.Empty(t, f.monitor.Check(context.Background()))
	f.flush()
	assert.Empty(t, f.sink.notifications())
}

func TestLowStockMonitor_ListsEveryLowType(t *testing.T) {
	f := newFixture(t)
	f.stock(t, "A+", 1)
	f.stock(t, "B-", 4)
	f.stock(t, "O+", 9)

	low := f.monitor.Check(context.Background())
	assert.Len(t, low, 2)

	f.flush()
	sent := f.sink.notifications()
	if assert.Len(t, sent, 1) {
		assert.Equal(t, "The following blood types are below critical levels: A+, B-. Please replenish soon.", sent[0].Body)
	}
}
