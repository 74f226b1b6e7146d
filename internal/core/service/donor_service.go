package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rl1809/bloodbank/internal/core/domain"
	"github.com/rl1809/bloodbank/internal/port"
)

type DonorService struct {
	donors port.DonorRepository
	policy AccessPolicy
	logger *zap.Logger
}

func NewDonorService(donors port.DonorRepository, logger *zap.Logger) *DonorService {
	return &DonorService{donors: donors, logger: logger}
}

func (s *DonorService) Create(ctx context.Context, caller domain.Caller, donor domain.Donor) (domain.Donor, error) {
	if err := s.policy.require(caller, RoleAdmin); err != nil {
		return domain.Donor{}, err
	}
	if err := validateDonor(donor); err != nil {
		return domain.Donor{}, err
	}

	created, err := s.donors.CreateDonor(ctx, donor)
	if err != nil {
		return domain.Donor{}, fmt.Errorf("create donor: %w", err)
	}
	s.logger.Info("donor registered", zap.Int64("donor_id", created.ID), zap.String("blood_type", created.BloodType.String()))
	return created, nil
}

func (s *DonorService) Get(ctx context.Context, caller domain.Caller, id int64) (domain.Donor, error) {
	if err := s.policy.require(caller, RoleAdmin); err != nil {
		return domain.Donor{}, err
	}
	donor, err := s.donors.GetDonor(ctx, id)
	if err != nil {
		return domain.Donor{}, fmt.Errorf("donor %d: %w", id, err)
	}
	return donor, nil
}

func (s *DonorService) List(ctx context.Context, caller domain.Caller, search string) ([]domain.Donor, error) {
	if err := s.policy.require(caller, RoleAdmin); err != nil {
		return nil, err
	}
	return s.donors.ListDonors(ctx, strings.TrimSpace(search))
}

func (s *DonorService) Update(ctx context.Context, caller domain.Caller, donor domain.Donor) (domain.Donor, error) {
	if err := s.policy.require(caller, RoleAdmin); err != nil {
		return domain.Donor{}, err
	}
	if err := validateDonor(donor); err != nil {
		return domain.Donor{}, err
	}

	updated, err := s.donors.UpdateDonor(ctx, donor)
	if err != nil {
		return domain.Donor{}, fmt.Errorf("donor %d: %w", donor.ID, err)
	}
	return updated, nil
}

func (s *DonorService) Delete(ctx context.Context, caller domain.Caller, id int64) error {
	if err := s.policy.require(caller, RoleAdmin); err != nil {
		return err
	}
	if err := s.donors.DeleteDonor(ctx, id); err != nil {
		return fmt.Errorf("donor %d: %w", id, err)
	}
	s.logger.Info("donor removed", zap.Int64("donor_id", id))
	return nil
}

func validateDonor(d domain.Donor) error {
	if strings.TrimSpace(d.Name) == "" {
		return validationf("name is required")
	}
	if len(d.Name) > 100 {
		return validationf("name must be at most 100 characters")
	}
	if !d.BloodType.Valid() {
		return validationf("unknown blood type %q", d.BloodType)
	}
	if strings.TrimSpace(d.ContactInfo) == "" {
		return validationf("contact_info is required")
	}
	return nil
}
