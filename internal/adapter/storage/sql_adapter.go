package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/rl1809/bloodbank/internal/core/domain"
)

const (
	inventoryColumns = `id, blood_type, units_available, version, created_at, updated_at`
	requestColumns   = `id, user_id, blood_type, units_requested, status, request_date, updated_at`
	donorColumns     = `id, name, blood_type, contact_info, last_donation_date`
	userColumns      = `id, username, email, password_hash, is_staff, date_joined`

	dayLayout = "2006-01-02"
)

// SQLAdapter stores the blood bank tables in a relational database reached
// through sqlx. Queries are written with ? placeholders and rebound for the
// driver, so the same adapter serves sqlite, mysql and postgres.
type SQLAdapter struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSQLAdapter(db *sqlx.DB) *SQLAdapter {
	return &SQLAdapter{
		db:  db,
		now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

func (s *SQLAdapter) q(query string) string {
	return s.db.Rebind(query)
}

// insert runs an INSERT and returns the new row id. MySQL has no RETURNING.
func (s *SQLAdapter) insert(ctx context.Context, ext sqlx.ExtContext, query string, args ...any) (int64, error) {
	if s.db.DriverName() == "mysql" {
		result, err := ext.ExecContext(ctx, s.q(query), args...)
		if err != nil {
			return 0, err
		}
		return result.LastInsertId()
	}

	var id int64
	err := ext.QueryRowxContext(ctx, s.q(query+" RETURNING id"), args...).Scan(&id)
	return id, err
}

// Inventory

func (s *SQLAdapter) GetInventory(ctx context.Context, bloodType domain.BloodType) (domain.InventoryRecord, error) {
	return s.getInventory(ctx, s.db, `SELECT `+inventoryColumns+` FROM blood_inventory WHERE blood_type = ?`, bloodType)
}

func (s *SQLAdapter) GetInventoryByID(ctx context.Context, id int64) (domain.InventoryRecord, error) {
	return s.getInventory(ctx, s.db, `SELECT `+inventoryColumns+` FROM blood_inventory WHERE id = ?`, id)
}

func (s *SQLAdapter) getInventory(ctx context.Context, q sqlx.QueryerContext, query string, arg any) (domain.InventoryRecord, error) {
	var rec domain.InventoryRecord
	err := sqlx.GetContext(ctx, q, &rec, s.q(query), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.InventoryRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("query inventory: %w", err)
	}
	return rec, nil
}

func (s *SQLAdapter) ListInventory(ctx context.Context) ([]domain.InventoryRecord, error) {
	records := []domain.InventoryRecord{}
	err := s.db.SelectContext(ctx, &records, `SELECT `+inventoryColumns+` FROM blood_inventory ORDER BY blood_type`)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	return records, nil
}

func (s *SQLAdapter) ListInventoryBelow(ctx context.Context, threshold int) ([]domain.InventoryRecord, error) {
	records := []domain.InventoryRecord{}
	err := s.db.SelectContext(ctx, &records, s.q(`
		SELECT `+inventoryColumns+` FROM blood_inventory
		WHERE units_available < ? ORDER BY blood_type`), threshold)
	if err != nil {
		return nil, fmt.Errorf("list low inventory: %w", err)
	}
	return records, nil
}

func (s *SQLAdapter) DecrementIfSufficient(ctx context.Context, bloodType domain.BloodType, units int) (domain.InventoryRecord, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.decrement(ctx, tx, bloodType, units); err != nil {
		return domain.InventoryRecord{}, err
	}

	rec, err := s.getInventory(ctx, tx, `SELECT `+inventoryColumns+` FROM blood_inventory WHERE blood_type = ?`, bloodType)
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	return rec, tx.Commit()
}

// decrement subtracts units only if enough are available. When no row
// matches it tells a missing record apart from a short one.
func (s *SQLAdapter) decrement(ctx context.Context, tx *sqlx.Tx, bloodType domain.BloodType, units int) error {
	result, err := tx.ExecContext(ctx, s.q(`
		UPDATE blood_inventory
		SET units_available = units_available - ?, version = version + 1, updated_at = ?
		WHERE blood_type = ? AND units_available >= ?`),
		units, s.now(), bloodType, units,
	)
	if err != nil {
		return fmt.Errorf("update inventory: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}

	var count int
	if err := tx.GetContext(ctx, &count, s.q(`SELECT COUNT(*) FROM blood_inventory WHERE blood_type = ?`), bloodType); err != nil {
		return fmt.Errorf("query inventory: %w", err)
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrInsufficientUnits
}

func (s *SQLAdapter) RestoreUnits(ctx context.Context, bloodType domain.BloodType, units int) error {
	result, err := s.db.ExecContext(ctx, s.q(`
		UPDATE blood_inventory
		SET units_available = units_available + ?, version = version + 1, updated_at = ?
		WHERE blood_type = ?`),
		units, s.now(), bloodType,
	)
	if err != nil {
		return fmt.Errorf("restore inventory: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *SQLAdapter) UpsertInventory(ctx context.Context, bloodType domain.BloodType, units int) (domain.InventoryRecord, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	result, err := tx.ExecContext(ctx, s.q(`
		UPDATE blood_inventory
		SET units_available = ?, version = version + 1, updated_at = ?
		WHERE blood_type = ?`),
		units, now, bloodType,
	)
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("update inventory: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		_, err = s.insert(ctx, tx, `
			INSERT INTO blood_inventory (blood_type, units_available, version, created_at, updated_at)
			VALUES (?, ?, 0, ?, ?)`,
			bloodType, units, now, now,
		)
		if isUniqueViolation(err) {
			return domain.InventoryRecord{}, domain.ErrConflict
		}
		if err != nil {
			return domain.InventoryRecord{}, fmt.Errorf("insert inventory: %w", err)
		}
	}

	rec, err := s.getInventory(ctx, tx, `SELECT `+inventoryColumns+` FROM blood_inventory WHERE blood_type = ?`, bloodType)
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	return rec, tx.Commit()
}

func (s *SQLAdapter) UpdateInventory(ctx context.Context, id int64, bloodType domain.BloodType, units int) (domain.InventoryRecord, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, s.q(`
		UPDATE blood_inventory
		SET blood_type = ?, units_available = ?, version = version + 1, updated_at = ?
		WHERE id = ?`),
		bloodType, units, s.now(), id,
	)
	if isUniqueViolation(err) {
		return domain.InventoryRecord{}, domain.ErrConflict
	}
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("update inventory: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.InventoryRecord{}, domain.ErrNotFound
	}

	rec, err := s.getInventory(ctx, tx, `SELECT `+inventoryColumns+` FROM blood_inventory WHERE id = ?`, id)
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	return rec, tx.Commit()
}

// Requests

func (s *SQLAdapter) GetRequest(ctx context.Context, id int64) (domain.BloodRequest, error) {
	return s.getRequest(ctx, s.db, id)
}

func (s *SQLAdapter) getRequest(ctx context.Context, q sqlx.QueryerContext, id int64) (domain.BloodRequest, error) {
	var req domain.BloodRequest
	err := sqlx.GetContext(ctx, q, &req, s.q(`SELECT `+requestColumns+` FROM blood_requests WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BloodRequest{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.BloodRequest{}, fmt.Errorf("query request: %w", err)
	}
	return req, nil
}

func (s *SQLAdapter) ListRequestsForUser(ctx context.Context, userID int64) ([]domain.BloodRequest, error) {
	requests := []domain.BloodRequest{}
	err := s.db.SelectContext(ctx, &requests, s.q(`
		SELECT `+requestColumns+` FROM blood_requests
		WHERE user_id = ? ORDER BY id`), userID)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return requests, nil
}

func (s *SQLAdapter) ListRequests(ctx context.Context, filter domain.RequestFilter) ([]domain.BloodRequest, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.BloodType != "" {
		clauses = append(clauses, "blood_type = ?")
		args = append(args, filter.BloodType)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + requestColumns + ` FROM blood_requests`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"

	requests := []domain.BloodRequest{}
	if err := s.db.SelectContext(ctx, &requests, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return requests, nil
}

func (s *SQLAdapter) CreateRequest(ctx context.Context, userID int64, bloodType domain.BloodType, units int) (domain.BloodRequest, error) {
	if units <= 0 {
		return domain.BloodRequest{}, domain.ErrInvalidUnits
	}

	now := s.now()
	req := domain.BloodRequest{
		UserID:         userID,
		BloodType:      bloodType,
		UnitsRequested: units,
		Status:         domain.RequestStatusPending,
		RequestDate:    now,
		UpdatedAt:      now,
	}

	id, err := s.insert(ctx, s.db, `
		INSERT INTO blood_requests (user_id, blood_type, units_requested, status, request_date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		req.UserID, req.BloodType, req.UnitsRequested, req.Status, req.RequestDate, req.UpdatedAt,
	)
	if err != nil {
		return domain.BloodRequest{}, fmt.Errorf("insert request: %w", err)
	}
	req.ID = id
	return req, nil
}

func (s *SQLAdapter) TransitionStatus(ctx context.Context, id int64, from, to domain.RequestStatus) (domain.BloodRequest, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.BloodRequest{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.transition(ctx, tx, id, from, to); err != nil {
		return domain.BloodRequest{}, err
	}

	req, err := s.getRequest(ctx, tx, id)
	if err != nil {
		return domain.BloodRequest{}, err
	}
	return req, tx.Commit()
}

func (s *SQLAdapter) transition(ctx context.Context, tx *sqlx.Tx, id int64, from, to domain.RequestStatus) error {
	result, err := tx.ExecContext(ctx, s.q(`
		UPDATE blood_requests SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`),
		to, s.now(), id, from,
	)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}

	var count int
	if err := tx.GetContext(ctx, &count, s.q(`SELECT COUNT(*) FROM blood_requests WHERE id = ?`), id); err != nil {
		return fmt.Errorf("query request: %w", err)
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

// CommitFulfillment flips the request to Fulfilled and decrements the stock
// inside one transaction; any failure rolls both back.
func (s *SQLAdapter) CommitFulfillment(ctx context.Context, requestID int64) (domain.BloodRequest, domain.InventoryRecord, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.BloodRequest{}, domain.InventoryRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	req, err := s.getRequest(ctx, tx, requestID)
	if err != nil {
		return domain.BloodRequest{}, domain.InventoryRecord{}, err
	}
	if req.Status != domain.RequestStatusPending {
		return domain.BloodRequest{}, domain.InventoryRecord{}, domain.ErrConflict
	}

	if err := s.transition(ctx, tx, req.ID, domain.RequestStatusPending, domain.RequestStatusFulfilled); err != nil {
		return domain.BloodRequest{}, domain.InventoryRecord{}, err
	}
	if err := s.decrement(ctx, tx, req.BloodType, req.UnitsRequested); err != nil {
		return domain.BloodRequest{}, domain.InventoryRecord{}, err
	}

	rec, err := s.getInventory(ctx, tx, `SELECT `+inventoryColumns+` FROM blood_inventory WHERE blood_type = ?`, req.BloodType)
	if err != nil {
		return domain.BloodRequest{}, domain.InventoryRecord{}, err
	}
	updated, err := s.getRequest(ctx, tx, req.ID)
	if err != nil {
		return domain.BloodRequest{}, domain.InventoryRecord{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.BloodRequest{}, domain.InventoryRecord{}, fmt.Errorf("commit: %w", err)
	}
	return updated, rec, nil
}

// Donors

func (s *SQLAdapter) CreateDonor(ctx context.Context, donor domain.Donor) (domain.Donor, error) {
	id, err := s.insert(ctx, s.db, `
		INSERT INTO donors (name, blood_type, contact_info, last_donation_date)
		VALUES (?, ?, ?, ?)`,
		donor.Name, donor.BloodType, donor.ContactInfo, donor.LastDonationDate,
	)
	if err != nil {
		return domain.Donor{}, fmt.Errorf("insert donor: %w", err)
	}
	donor.ID = id
	return donor, nil
}

func (s *SQLAdapter) GetDonor(ctx context.Context, id int64) (domain.Donor, error) {
	var donor domain.Donor
	err := s.db.GetContext(ctx, &donor, s.q(`SELECT `+donorColumns+` FROM donors WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Donor{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Donor{}, fmt.Errorf("query donor: %w", err)
	}
	return donor, nil
}

func (s *SQLAdapter) ListDonors(ctx context.Context, search string) ([]domain.Donor, error) {
	query := `SELECT ` + donorColumns + ` FROM donors`
	var args []any
	if search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query += ` WHERE LOWER(name) LIKE ? OR LOWER(blood_type) LIKE ? OR LOWER(contact_info) LIKE ?`
		args = append(args, like, like, like)
		if day, ok := parseDay(search); ok {
			query += ` OR last_donation_date = ?`
			args = append(args, day)
		}
	}
	query += " ORDER BY id"

	donors := []domain.Donor{}
	if err := s.db.SelectContext(ctx, &donors, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("list donors: %w", err)
	}
	return donors, nil
}

func (s *SQLAdapter) UpdateDonor(ctx context.Context, donor domain.Donor) (domain.Donor, error) {
	result, err := s.db.ExecContext(ctx, s.q(`
		UPDATE donors SET name = ?, blood_type = ?, contact_info = ?, last_donation_date = ?
		WHERE id = ?`),
		donor.Name, donor.BloodType, donor.ContactInfo, donor.LastDonationDate, donor.ID,
	)
	if err != nil {
		return domain.Donor{}, fmt.Errorf("update donor: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		// MySQL reports zero rows for an update that changes nothing.
		if _, err := s.GetDonor(ctx, donor.ID); err != nil {
			return domain.Donor{}, err
		}
	}
	return donor, nil
}

func (s *SQLAdapter) DeleteDonor(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, s.q(`DELETE FROM donors WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete donor: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Users

func (s *SQLAdapter) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	if user.DateJoined.IsZero() {
		user.DateJoined = s.now()
	}

	id, err := s.insert(ctx, s.db, `
		INSERT INTO users (username, email, password_hash, is_staff, date_joined)
		VALUES (?, ?, ?, ?, ?)`,
		user.Username, user.Email, user.PasswordHash, user.IsStaff, user.DateJoined,
	)
	if isUniqueViolation(err) {
		return domain.User{}, domain.ErrDuplicate
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	user.ID = id
	return user, nil
}

func (s *SQLAdapter) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (s *SQLAdapter) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

func (s *SQLAdapter) getUser(ctx context.Context, query string, arg any) (domain.User, error) {
	var user domain.User
	err := s.db.GetContext(ctx, &user, s.q(query), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func parseDay(s string) (time.Time, bool) {
	day, err := time.Parse(dayLayout, s)
	return day, err == nil
}
