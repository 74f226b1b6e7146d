package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/bloodbank/internal/core/domain"
	"github.com/rl1809/bloodbank/internal/port"
)

const tracerName = "github.com/rl1809/bloodbank/internal/core/service"

// FulfillmentService performs the terminal transitions of a blood request.
// Fulfilling deducts inventory; denying does not touch it.
type FulfillmentService struct {
	requests  port.RequestRepository
	inventory port.InventoryRepository
	committer port.FulfillmentRepository
	monitor   *LowStockMonitor
	policy    AccessPolicy
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewFulfillmentService uses the single-transaction commit when the request
// repository supports it and falls back to decrement-then-transition with a
// compensating restore otherwise.
func NewFulfillmentService(requests port.RequestRepository, inventory port.InventoryRepository, monitor *LowStockMonitor, logger *zap.Logger) *FulfillmentService {
	s := &FulfillmentService{
		requests:  requests,
		inventory: inventory,
		monitor:   monitor,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}
	if c, ok := requests.(port.FulfillmentRepository); ok {
		s.committer = c
	}
	return s
}

// UpdateStatus dispatches an admin status change to Fulfill or Deny.
func (s *FulfillmentService) UpdateStatus(ctx context.Context, caller domain.Caller, requestID int64, status domain.RequestStatus) (domain.BloodRequest, error) {
	switch status {
	case domain.RequestStatusFulfilled:
		return s.Fulfill(ctx, caller, requestID)
	case domain.RequestStatusDenied:
		return s.Deny(ctx, caller, requestID)
	}
	return domain.BloodRequest{}, validationf("status must be %q or %q, got %q",
		domain.RequestStatusFulfilled, domain.RequestStatusDenied, status)
}

func (s *FulfillmentService) Fulfill(ctx context.Context, caller domain.Caller, requestID int64) (req domain.BloodRequest, err error) {
	ctx, span := s.tracer.Start(ctx, "FulfillmentService.Fulfill",
		trace.WithAttributes(attribute.Int64("request.id", requestID)))
	defer func() {
		recordTransition(domain.RequestStatusFulfilled, err)
		endSpan(span, err)
	}()

	req, err = s.loadPending(ctx, caller, requestID)
	if err != nil {
		return domain.BloodRequest{}, err
	}
	span.SetAttributes(
		attribute.String("blood.type", req.BloodType.String()),
		attribute.Int("blood.units", req.UnitsRequested),
	)

	if _, err = s.inventory.GetInventory(ctx, req.BloodType); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.BloodRequest{}, fmt.Errorf("inventory for %s: %w", req.BloodType, domain.ErrNotFound)
		}
		return domain.BloodRequest{}, fmt.Errorf("load inventory: %w", err)
	}

	var updated domain.BloodRequest
	if s.committer != nil {
		updated, _, err = s.committer.CommitFulfillment(ctx, req.ID)
	} else {
		updated, err = s.commitWithCompensation(ctx, req)
	}
	if err != nil {
		return domain.BloodRequest{}, commitError(req, err)
	}

	recordUnitsIssued(req.BloodType, req.UnitsRequested)
	s.logger.Info("request fulfilled",
		zap.Int64("request_id", req.ID),
		zap.String("blood_type", req.BloodType.String()),
		zap.Int("units", req.UnitsRequested),
		zap.Int64("admin_id", caller.UserID),
	)

	s.monitor.Check(ctx)
	return updated, nil
}

func (s *FulfillmentService) Deny(ctx context.Context, caller domain.Caller, requestID int64) (req domain.BloodRequest, err error) {
	ctx, span := s.tracer.Start(ctx, "FulfillmentService.Deny",
		trace.WithAttributes(attribute.Int64("request.id", requestID)))
	defer func() {
		recordTransition(domain.RequestStatusDenied, err)
		endSpan(span, err)
	}()

	req, err = s.loadPending(ctx, caller, requestID)
	if err != nil {
		return domain.BloodRequest{}, err
	}

	updated, err := s.requests.TransitionStatus(ctx, req.ID, domain.RequestStatusPending, domain.RequestStatusDenied)
	if err != nil {
		return domain.BloodRequest{}, commitError(req, err)
	}

	s.logger.Info("request denied",
		zap.Int64("request_id", req.ID),
		zap.Int64("admin_id", caller.UserID),
	)
	return updated, nil
}

func (s *FulfillmentService) loadPending(ctx context.Context, caller domain.Caller, requestID int64) (domain.BloodRequest, error) {
	if err := s.policy.require(caller, RoleAdmin); err != nil {
		return domain.BloodRequest{}, err
	}

	req, err := s.requests.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.BloodRequest{}, fmt.Errorf("request %d: %w", requestID, domain.ErrNotFound)
		}
		return domain.BloodRequest{}, fmt.Errorf("load request: %w", err)
	}

	if req.Status != domain.RequestStatusPending {
		return domain.BloodRequest{}, fmt.Errorf("%w: request %d is already %s", ErrInvalidState, req.ID, req.Status)
	}
	return req, nil
}

// commitWithCompensation is used for stores without transactions: the units
// are restored if the status transition loses a race.
func (s *FulfillmentService) commitWithCompensation(ctx context.Context, req domain.BloodRequest) (domain.BloodRequest, error) {
	if _, err := s.inventory.DecrementIfSufficient(ctx, req.BloodType, req.UnitsRequested); err != nil {
		return domain.BloodRequest{}, err
	}

	updated, err := s.requests.TransitionStatus(ctx, req.ID, domain.RequestStatusPending, domain.RequestStatusFulfilled)
	if err == nil {
		return updated, nil
	}

	// Restore even if the caller went away.
	rbCtx := context.WithoutCancel(ctx)
	if rbErr := s.inventory.RestoreUnits(rbCtx, req.BloodType, req.UnitsRequested); rbErr != nil {
		s.logger.Error("CRITICAL: restoring units after failed transition",
			zap.Int64("request_id", req.ID),
			zap.String("blood_type", req.BloodType.String()),
			zap.Int("units", req.UnitsRequested),
			zap.Error(rbErr),
		)
	} else {
		s.logger.Warn("restored units after failed transition",
			zap.Int64("request_id", req.ID),
			zap.Error(err),
		)
	}
	return domain.BloodRequest{}, err
}

func commitError(req domain.BloodRequest, err error) error {
	switch {
	case errors.Is(err, domain.ErrInsufficientUnits):
		return fmt.Errorf("%w: %d units of %s requested", ErrInsufficientInventory, req.UnitsRequested, req.BloodType)
	case errors.Is(err, domain.ErrConflict):
		return fmt.Errorf("request %d changed concurrently: %w", req.ID, domain.ErrConflict)
	case errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("request %d: %w", req.ID, err)
	}
	return fmt.Errorf("commit request %d: %w", req.ID, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcomeOf(err))
	}
	span.End()
}
