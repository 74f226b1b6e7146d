package domain

import "time"

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "Pending"
	RequestStatusFulfilled RequestStatus = "Fulfilled"
	RequestStatusDenied    RequestStatus = "Denied"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusFulfilled, RequestStatusDenied:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusFulfilled || s == RequestStatusDenied
}

// CanTransition reports whether from -> to is an edge of the request state
// machine: Pending -> {Fulfilled, Denied}.
func CanTransition(from, to RequestStatus) bool {
	return from == RequestStatusPending && to.Terminal()
}

type BloodRequest struct {
	ID             int64         `db:"id" json:"id"`
	UserID         int64         `db:"user_id" json:"user"`
	BloodType      BloodType     `db:"blood_type" json:"blood_type"`
	UnitsRequested int           `db:"units_requested" json:"units_requested"`
	Status         RequestStatus `db:"status" json:"status"`
	RequestDate    time.Time     `db:"request_date" json:"request_date"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// RequestFilter narrows the admin request listing. Zero values match all.
type RequestFilter struct {
	BloodType BloodType
	Status    RequestStatus
}

func (f RequestFilter) Match(r BloodRequest) bool {
	if f.BloodType != "" && r.BloodType != f.BloodType {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}
