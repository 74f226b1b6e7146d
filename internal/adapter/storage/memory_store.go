package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rl1809/bloodbank/internal/core/domain"
)

// MemoryStore keeps every table in process memory behind one mutex, so each
// compare-and-mutate is atomic with respect to all other calls. Requests live
// in an arena indexed by id-1.
type MemoryStore struct {
	mu sync.Mutex

	inventory       map[int64]*domain.InventoryRecord
	inventoryByType map[domain.BloodType]int64
	requests        []domain.BloodRequest
	donors          map[int64]domain.Donor
	users           map[int64]domain.User
	usersByName     map[string]int64

	nextInventoryID int64
	nextDonorID     int64
	nextUserID      int64

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		inventory:       make(map[int64]*domain.InventoryRecord),
		inventoryByType: make(map[domain.BloodType]int64),
		donors:          make(map[int64]domain.Donor),
		users:           make(map[int64]domain.User),
		usersByName:     make(map[string]int64),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Inventory

func (m *MemoryStore) GetInventory(ctx context.Context, bloodType domain.BloodType) (domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.recordByType(bloodType)
	if !ok {
		return domain.InventoryRecord{}, domain.ErrNotFound
	}
	return *rec, nil
}

func (m *MemoryStore) GetInventoryByID(ctx context.Context, id int64) (domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.inventory[id]
	if !ok {
		return domain.InventoryRecord{}, domain.ErrNotFound
	}
	return *rec, nil
}

func (m *MemoryStore) ListInventory(ctx context.Context) ([]domain.InventoryRecord, error) {
	return m.listInventory(func(domain.InventoryRecord) bool { return true }), nil
}

func (m *MemoryStore) ListInventoryBelow(ctx context.Context, threshold int) ([]domain.InventoryRecord, error) {
	return m.listInventory(func(r domain.InventoryRecord) bool { return r.UnitsAvailable < threshold }), nil
}

func (m *MemoryStore) listInventory(keep func(domain.InventoryRecord) bool) []domain.InventoryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.InventoryRecord, 0, len(m.inventory))
	for _, rec := range m.inventory {
		if keep(*rec) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BloodType < out[j].BloodType })
	return out
}

func (m *MemoryStore) DecrementIfSufficient(ctx context.Context, bloodType domain.BloodType, units int) (domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.recordByType(bloodType)
	if !ok {
		return domain.InventoryRecord{}, domain.ErrNotFound
	}
	if !rec.CanSupply(units) {
		return domain.InventoryRecord{}, domain.ErrInsufficientUnits
	}
	m.setUnits(rec, rec.UnitsAvailable-units)
	return *rec, nil
}

func (m *MemoryStore) RestoreUnits(ctx context.Context, bloodType domain.BloodType, units int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.recordByType(bloodType)
	if !ok {
		return domain.ErrNotFound
	}
	m.setUnits(rec, rec.UnitsAvailable+units)
	return nil
}

func (m *MemoryStore) UpsertInventory(ctx context.Context, bloodType domain.BloodType, units int) (domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.recordByType(bloodType); ok {
		m.setUnits(rec, units)
		return *rec, nil
	}

	m.nextInventoryID++
	now := m.now()
	rec := &domain.InventoryRecord{
		ID:             m.nextInventoryID,
		BloodType:      bloodType,
		UnitsAvailable: units,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.inventory[rec.ID] = rec
	m.inventoryByType[bloodType] = rec.ID
	return *rec, nil
}

func (m *MemoryStore) UpdateInventory(ctx context.Context, id int64, bloodType domain.BloodType, units int) (domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.inventory[id]
	if !ok {
		return domain.InventoryRecord{}, domain.ErrNotFound
	}
	if owner, taken := m.inventoryByType[bloodType]; taken && owner != id {
		return domain.InventoryRecord{}, domain.ErrConflict
	}

	delete(m.inventoryByType, rec.BloodType)
	rec.BloodType = bloodType
	m.inventoryByType[bloodType] = id
	m.setUnits(rec, units)
	return *rec, nil
}

func (m *MemoryStore) recordByType(bloodType domain.BloodType) (*domain.InventoryRecord, bool) {
	id, ok := m.inventoryByType[bloodType]
	if !ok {
		return nil, false
	}
	return m.inventory[id], true
}

func (m *MemoryStore) setUnits(rec *domain.InventoryRecord, units int) {
	rec.UnitsAvailable = units
	rec.Version++
	rec.UpdatedAt = m.now()
}

// Requests

func (m *MemoryStore) GetRequest(ctx context.Context, id int64) (domain.BloodRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.request(id)
	if !ok {
		return domain.BloodRequest{}, domain.ErrNotFound
	}
	return *req, nil
}

func (m *MemoryStore) ListRequestsForUser(ctx context.Context, userID int64) ([]domain.BloodRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []domain.BloodRequest{}
	for _, req := range m.requests {
		if req.UserID == userID {
			out = append(out, req)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListRequests(ctx context.Context, filter domain.RequestFilter) ([]domain.BloodRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []domain.BloodRequest{}
	for _, req := range m.requests {
		if filter.Match(req) {
			out = append(out, req)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateRequest(ctx context.Context, userID int64, bloodType domain.BloodType, units int) (domain.BloodRequest, error) {
	if units <= 0 {
		return domain.BloodRequest{}, domain.ErrInvalidUnits
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	req := domain.BloodRequest{
		ID:             int64(len(m.requests) + 1),
		UserID:         userID,
		BloodType:      bloodType,
		UnitsRequested: units,
		Status:         domain.RequestStatusPending,
		RequestDate:    now,
		UpdatedAt:      now,
	}
	m.requests = append(m.requests, req)
	return req, nil
}

func (m *MemoryStore) TransitionStatus(ctx context.Context, id int64, from, to domain.RequestStatus) (domain.BloodRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.request(id)
	if !ok {
		return domain.BloodRequest{}, domain.ErrNotFound
	}
	if req.Status != from {
		return domain.BloodRequest{}, domain.ErrConflict
	}
	req.Status = to
	req.UpdatedAt = m.now()
	return *req, nil
}

func (m *MemoryStore) CommitFulfillment(ctx context.Context, requestID int64) (domain.BloodRequest, domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.request(requestID)
	if !ok {
		return domain.BloodRequest{}, domain.InventoryRecord{}, domain.ErrNotFound
	}
	if req.Status != domain.RequestStatusPending {
		return domain.BloodRequest{}, domain.InventoryRecord{}, domain.ErrConflict
	}
	rec, ok := m.recordByType(req.BloodType)
	if !ok {
		return domain.BloodRequest{}, domain.InventoryRecord{}, domain.ErrNotFound
	}
	if !rec.CanSupply(req.UnitsRequested) {
		return domain.BloodRequest{}, domain.InventoryRecord{}, domain.ErrInsufficientUnits
	}

	m.setUnits(rec, rec.UnitsAvailable-req.UnitsRequested)
	req.Status = domain.RequestStatusFulfilled
	req.UpdatedAt = m.now()
	return *req, *rec, nil
}

func (m *MemoryStore) request(id int64) (*domain.BloodRequest, bool) {
	if id <= 0 || id > int64(len(m.requests)) {
		return nil, false
	}
	return &m.requests[id-1], true
}

// Donors

func (m *MemoryStore) CreateDonor(ctx context.Context, donor domain.Donor) (domain.Donor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextDonorID++
	donor.ID = m.nextDonorID
	m.donors[donor.ID] = donor
	return donor, nil
}

func (m *MemoryStore) GetDonor(ctx context.Context, id int64) (domain.Donor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	donor, ok := m.donors[id]
	if !ok {
		return domain.Donor{}, domain.ErrNotFound
	}
	return donor, nil
}

func (m *MemoryStore) ListDonors(ctx context.Context, search string) ([]domain.Donor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []domain.Donor{}
	for _, d := range m.donors {
		if matchDonor(d, search) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpdateDonor(ctx context.Context, donor domain.Donor) (domain.Donor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.donors[donor.ID]; !ok {
		return domain.Donor{}, domain.ErrNotFound
	}
	m.donors[donor.ID] = donor
	return donor, nil
}

func (m *MemoryStore) DeleteDonor(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.donors[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.donors, id)
	return nil
}

// matchDonor mirrors the SQL search: substring on the text columns, exact
// match on the donation date.
func matchDonor(d domain.Donor, search string) bool {
	if search == "" {
		return true
	}
	needle := strings.ToLower(search)
	for _, field := range []string{d.Name, string(d.BloodType), d.ContactInfo} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	if day, ok := parseDay(search); ok && d.LastDonationDate != nil {
		return d.LastDonationDate.Format(dayLayout) == day.Format(dayLayout)
	}
	return false
}

// Users

func (m *MemoryStore) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.usersByName[user.Username]; taken {
		return domain.User{}, domain.ErrDuplicate
	}
	m.nextUserID++
	user.ID = m.nextUserID
	if user.DateJoined.IsZero() {
		user.DateJoined = m.now()
	}
	m.users[user.ID] = user
	m.usersByName[user.Username] = user.ID
	return user, nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id int64) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

func (m *MemoryStore) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.usersByName[username]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return m.users[id], nil
}
