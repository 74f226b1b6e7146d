package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/bloodbank/internal/core/domain"
	"github.com/rl1809/bloodbank/internal/port"
)

type RequestService struct {
	requests port.RequestRepository
	keys     port.IdempotencyStore
	policy   AccessPolicy
	logger   *zap.Logger
}

// NewRequestService builds the requester-facing service. keys may be nil, in
// which case idempotency keys are ignored.
func NewRequestService(requests port.RequestRepository, keys port.IdempotencyStore, logger *zap.Logger) *RequestService {
	return &RequestService{
		requests: requests,
		keys:     keys,
		logger:   logger,
	}
}

func (s *RequestService) Create(ctx context.Context, caller domain.Caller, bloodType domain.BloodType, units int, idempotencyKey string) (domain.BloodRequest, error) {
	if err := s.policy.require(caller, RoleRequester); err != nil {
		return domain.BloodRequest{}, err
	}
	if !bloodType.Valid() {
		return domain.BloodRequest{}, validationf("unknown blood type %q", bloodType)
	}
	if units <= 0 {
		return domain.BloodRequest{}, validationf("units_requested must be positive, got %d", units)
	}

	var claimed string
	if idempotencyKey != "" && s.keys != nil {
		key := fmt.Sprintf("request:%d:%s", caller.UserID, idempotencyKey)

		ok, err := s.keys.Claim(ctx, key)
		if err != nil {
			return domain.BloodRequest{}, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return domain.BloodRequest{}, ErrDuplicateRequest
		}
		claimed = key
	}

	req, err := s.requests.CreateRequest(ctx, caller.UserID, bloodType, units)
	if err != nil {
		if claimed != "" {
			if relErr := s.keys.Release(context.WithoutCancel(ctx), claimed); relErr != nil {
				s.logger.Warn("releasing idempotency key", zap.String("key", claimed), zap.Error(relErr))
			}
		}
		return domain.BloodRequest{}, fmt.Errorf("create request: %w", err)
	}

	s.logger.Info("blood request created",
		zap.Int64("request_id", req.ID),
		zap.Int64("user_id", caller.UserID),
		zap.String("blood_type", bloodType.String()),
		zap.Int("units", units),
	)
	return req, nil
}

func (s *RequestService) ListOwn(ctx context.Context, caller domain.Caller) ([]domain.BloodRequest, error) {
	if err := s.policy.require(caller, RoleRequester); err != nil {
		return nil, err
	}
	return s.requests.ListRequestsForUser(ctx, caller.UserID)
}

func (s *RequestService) ListAll(ctx context.Context, caller domain.Caller, filter domain.RequestFilter) ([]domain.BloodRequest, error) {
	if err := s.policy.require(caller, RoleAdmin); err != nil {
		return nil, err
	}
	if filter.BloodType != "" && !filter.BloodType.Valid() {
		return nil, validationf("unknown blood type %q", filter.BloodType)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, validationf("unknown status %q", filter.Status)
	}
	return s.requests.ListRequests(ctx, filter)
}

// Get is open to admins and to the requester who owns the request. Anyone
// else sees it as missing.
func (s *RequestService) Get(ctx context.Context, caller domain.Caller, id int64) (domain.BloodRequest, error) {
	if caller.UserID == 0 {
		return domain.BloodRequest{}, fmt.Errorf("%w: authentication required", ErrForbidden)
	}

	req, err := s.requests.GetRequest(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.BloodRequest{}, fmt.Errorf("request %d: %w", id, domain.ErrNotFound)
		}
		return domain.BloodRequest{}, err
	}

	if s.policy.Classify(caller) != RoleAdmin && req.UserID != caller.UserID {
		return domain.BloodRequest{}, fmt.Errorf("request %d: %w", id, domain.ErrNotFound)
	}
	return req, nil
}
