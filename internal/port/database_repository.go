package port

import (
	"context"

	"github.com/rl1809/bloodbank/internal/core/domain"
)

type InventoryRepository interface {
	// GetInventory retrieves the record for a blood type, domain.ErrNotFound if never stocked
	GetInventory(ctx context.Context, bloodType domain.BloodType) (domain.InventoryRecord, error)

	GetInventoryByID(ctx context.Context, id int64) (domain.InventoryRecord, error)

	// ListInventory returns every record ordered by blood type
	ListInventory(ctx context.Context) ([]domain.InventoryRecord, error)

	// ListInventoryBelow returns records with units_available < threshold
	ListInventoryBelow(ctx context.Context, threshold int) ([]domain.InventoryRecord, error)

	// DecrementIfSufficient atomically subtracts units, domain.ErrInsufficientUnits without mutation otherwise
	DecrementIfSufficient(ctx context.Context, bloodType domain.BloodType, units int) (domain.InventoryRecord, error)

	// RestoreUnits adds units back (compensation for a failed fulfillment)
	RestoreUnits(ctx context.Context, bloodType domain.BloodType, units int) error

	// UpsertInventory creates the record for a blood type or overwrites its units
	UpsertInventory(ctx context.Context, bloodType domain.BloodType, units int) (domain.InventoryRecord, error)

	// UpdateInventory rewrites the record with the given id, domain.ErrConflict if bloodType belongs to another record
	UpdateInventory(ctx context.Context, id int64, bloodType domain.BloodType, units int) (domain.InventoryRecord, error)
}

type RequestRepository interface {
	GetRequest(ctx context.Context, id int64) (domain.BloodRequest, error)

	// ListRequestsForUser returns the user's requests in insertion order
	ListRequestsForUser(ctx context.Context, userID int64) ([]domain.BloodRequest, error)

	ListRequests(ctx context.Context, filter domain.RequestFilter) ([]domain.BloodRequest, error)

	// CreateRequest stores a new Pending request stamped with the current time
	CreateRequest(ctx context.Context, userID int64, bloodType domain.BloodType, units int) (domain.BloodRequest, error)

	// TransitionStatus is a compare-and-set on status, domain.ErrConflict if the current status is not from
	TransitionStatus(ctx context.Context, id int64, from, to domain.RequestStatus) (domain.BloodRequest, error)
}

// FulfillmentRepository is implemented by stores that can commit the
// request transition and the inventory decrement as one unit.
type FulfillmentRepository interface {
	// CommitFulfillment moves a Pending request to Fulfilled and decrements the
	// matching inventory in a single transaction. Either both happen or neither.
	CommitFulfillment(ctx context.Context, requestID int64) (domain.BloodRequest, domain.InventoryRecord, error)
}

type DonorRepository interface {
	CreateDonor(ctx context.Context, donor domain.Donor) (domain.Donor, error)
	GetDonor(ctx context.Context, id int64) (domain.Donor, error)

	// ListDonors filters by a case-insensitive substring over name, blood type, contact info and last donation date
	ListDonors(ctx context.Context, search string) ([]domain.Donor, error)

	UpdateDonor(ctx context.Context, donor domain.Donor) (domain.Donor, error)
	DeleteDonor(ctx context.Context, id int64) error
}

type UserRepository interface {
	// CreateUser returns domain.ErrDuplicate if the username is taken
	CreateUser(ctx context.Context, user domain.User) (domain.User, error)
	GetUser(ctx context.Context, id int64) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
}
