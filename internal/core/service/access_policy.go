package service

import (
	"fmt"

	"github.com/rl1809/bloodbank/internal/core/domain"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleRequester Role = "requester"
)

// AccessPolicy maps a caller onto one of the two roles. Staff users are
// admins, everybody else is a requester.
type AccessPolicy struct{}

func (AccessPolicy) Classify(caller domain.Caller) Role {
	if caller.IsStaff {
		return RoleAdmin
	}
	return RoleRequester
}

// Authorize requires an exact role match: admins manage, requesters request.
func (p AccessPolicy) Authorize(caller domain.Caller, required Role) bool {
	if caller.UserID == 0 {
		return false
	}
	return p.Classify(caller) == required
}

func (p AccessPolicy) require(caller domain.Caller, required Role) error {
	if !p.Authorize(caller, required) {
		return fmt.Errorf("%w: %s role required", ErrForbidden, required)
	}
	return nil
}
