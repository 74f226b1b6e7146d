package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/bloodbank/internal/port"
)

type Alert struct {
	ID         uuid.UUID
	Subject    string
	Body       string
	Recipients []string
	CreatedAt  time.Time
}

// AlertDispatcher hands alerts to a NotificationSink on a pool of workers so
// callers never wait on, or fail because of, the delivery.
type AlertDispatcher struct {
	sink    port.NotificationSink
	queue   chan Alert
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewAlertDispatcher(sink port.NotificationSink, queueSize int, timeout time.Duration, logger *zap.Logger) *AlertDispatcher {
	return &AlertDispatcher{
		sink:    sink,
		queue:   make(chan Alert, queueSize),
		timeout: timeout,
		logger:  logger,
	}
}

func (d *AlertDispatcher) Start(workers int) {
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
}

// Enqueue never blocks. It returns false when the queue is full or closed,
// in which case the alert is dropped.
func (d *AlertDispatcher) Enqueue(alert Alert) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("alert dropped, dispatcher closed", zap.String("alert_id", alert.ID.String()))
		return false
	}

	select {
	case d.queue <- alert:
		return true
	default:
		d.logger.Warn("alert dropped, queue full", zap.String("alert_id", alert.ID.String()))
		return false
	}
}

// Close stops accepting alerts and waits until the queued ones are delivered.
func (d *AlertDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *AlertDispatcher) workerLoop(id int) {
	for alert := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)

		if err := d.sink.Notify(ctx, alert.Subject, alert.Body, alert.Recipients); err != nil {
			recordLowStockAlert("failed")
			d.logger.Error("alert delivery failed",
				zap.Int("worker", id),
				zap.String("alert_id", alert.ID.String()),
				zap.Error(err),
			)
		} else {
			recordLowStockAlert("sent")
			d.logger.Info("alert delivered",
				zap.Int("worker", id),
				zap.String("alert_id", alert.ID.String()),
			)
		}

		cancel()
	}
}
