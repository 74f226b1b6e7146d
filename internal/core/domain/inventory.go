package domain

import "time"

// InventoryRecord is the stock of a single blood type. There is at most one
// record per blood type and UnitsAvailable never drops below zero.
type InventoryRecord struct {
	ID             int64     `db:"id" json:"id"`
	BloodType      BloodType `db:"blood_type" json:"blood_type"`
	UnitsAvailable int       `db:"units_available" json:"units_available"`
	Version        int       `db:"version" json:"-"` // bumped on every mutation
	CreatedAt      time.Time `db:"created_at" json:"-"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

func (r InventoryRecord) CanSupply(units int) bool {
	return r.UnitsAvailable >= units
}
