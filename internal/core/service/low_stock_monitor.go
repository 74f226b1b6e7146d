package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/bloodbank/internal/core/domain"
	"github.com/rl1809/bloodbank/internal/port"
)

const (
	DefaultCriticalThreshold = 5
	LowStockSubject          = "Critical Blood Inventory Alert"
)

// LowStockMonitor scans the whole inventory and raises a single alert that
// lists every blood type under the critical threshold.
type LowStockMonitor struct {
	inventory  port.InventoryRepository
	dispatcher *AlertDispatcher
	threshold  int
	recipients []string
	logger     *zap.Logger
}

func NewLowStockMonitor(inventory port.InventoryRepository, dispatcher *AlertDispatcher, threshold int, recipients []string, logger *zap.Logger) *LowStockMonitor {
	if threshold <= 0 {
		threshold = DefaultCriticalThreshold
	}
	return &LowStockMonitor{
		inventory:  inventory,
		dispatcher: dispatcher,
		threshold:  threshold,
		recipients: recipients,
		logger:     logger,
	}
}

// Check returns the blood types found below the threshold. Failures are
// logged and reported as an empty result.
func (m *LowStockMonitor) Check(ctx context.Context) []domain.BloodType {
	records, err := m.inventory.ListInventoryBelow(ctx, m.threshold)
	if err != nil {
		m.logger.Error("low stock scan failed", zap.Error(err))
		return nil
	}
	if len(records) == 0 {
		return nil
	}

	low := make([]domain.BloodType, len(records))
	names := make([]string, len(records))
	for i, rec := range records {
		low[i] = rec.BloodType
		names[i] = rec.BloodType.String()
	}

	alert := Alert{
		ID:         uuid.New(),
		Subject:    LowStockSubject,
		Body:       lowStockBody(names),
		Recipients: m.recipients,
		CreatedAt:  time.Now(),
	}
	if !m.dispatcher.Enqueue(alert) {
		recordLowStockAlert("dropped")
	}

	m.logger.Warn("inventory below critical level",
		zap.Strings("blood_types", names),
		zap.Int("threshold", m.threshold),
	)
	return low
}

func lowStockBody(bloodTypes []string) string {
	return fmt.Sprintf("The following blood types are below critical levels: %s. Please replenish soon.",
		strings.Join(bloodTypes, ", "))
}
