package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/bloodbank/internal/core/domain"
	"github.com/rl1809/bloodbank/internal/port"
)

// InventoryService is the admin CRUD over inventory records. Every write is
// followed by a low stock check.
type InventoryService struct {
	inventory port.InventoryRepository
	monitor   *LowStockMonitor
	policy    AccessPolicy
	logger    *zap.Logger
}

func NewInventoryService(inventory port.InventoryRepository, monitor *LowStockMonitor, logger *zap.Logger) *InventoryService {
	return &InventoryService{
		inventory: inventory,
		monitor:   monitor,
		logger:    logger,
	}
}

func (s *InventoryService) Create(ctx context.Context, caller domain.Caller, bloodType domain.BloodType, units int) (domain.InventoryRecord, error) {
	if err := s.policy.require(caller, RoleAdmin); err != nil {
		return domain.InventoryRecord{}, err
	}
	if err := validateStock(bloodType, units); err != nil {
		return domain.InventoryRecord{}, err
	}

	rec, err := s.inventory.UpsertInventory(ctx, bloodType, units)
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("upsert inventory: %w", err)
	}

	s.logger.Info("inventory stocked",
		zap.String("blood_type", bloodType.String()),
		zap.Int("units", units),
	)
	s.monitor.Check(ctx)
	return rec, nil
}

func (s *InventoryService) Update(ctx context.Context, caller domain.Caller, id int64, bloodType domain.BloodType, units int) (domain.InventoryRecord, error) {
	if err := s.policy.require(caller, RoleAdmin); err != nil {
		return domain.InventoryRecord{}, err
	}
	if err := validateStock(bloodType, units); err != nil {
		return domain.InventoryRecord{}, err
	}

	rec, err := s.inventory.UpdateInventory(ctx, id, bloodType, units)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) {
			return domain.InventoryRecord{}, fmt.Errorf("inventory %d: %w", id, err)
		}
		return domain.InventoryRecord{}, fmt.Errorf("update inventory: %w", err)
	}

	s.logger.Info("inventory updated",
		zap.Int64("inventory_id", id),
		zap.String("blood_type", bloodType.String()),
		zap.Int("units", units),
	)
	s.monitor.Check(ctx)
	return rec, nil
}

func (s *InventoryService) List(ctx context.Context, caller domain.Caller) ([]domain.InventoryRecord, error) {
	if err := s.policy.require(caller, RoleAdmin); err != nil {
		return nil, err
	}
	return s.inventory.ListInventory(ctx)
}

func (s *InventoryService) Get(ctx context.Context, caller domain.Caller, id int64) (domain.InventoryRecord, error) {
	if err := s.policy.require(caller, RoleAdmin); err != nil {
		return domain.InventoryRecord{}, err
	}
	rec, err := s.inventory.GetInventoryByID(ctx, id)
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("inventory %d: %w", id, err)
	}
	return rec, nil
}

func validateStock(bloodType domain.BloodType, units int) error {
	if !bloodType.Valid() {
		return validationf("unknown blood type %q", bloodType)
	}
	if units < 0 {
		return validationf("units_available must not be negative, got %d", units)
	}
	return nil
}
