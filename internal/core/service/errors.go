package service

import (
	"errors"
	"fmt"

	"github.com/rl1809/bloodbank/internal/core/domain"
)

var (
	ErrForbidden             = errors.New("forbidden")
	ErrInvalidState          = errors.New("invalid state")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrValidation            = errors.New("validation error")
	ErrDuplicateRequest      = fmt.Errorf("duplicate request: %w", domain.ErrConflict)
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
