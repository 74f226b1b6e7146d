package domain

import "time"

type Donor struct {
	ID               int64      `db:"id" json:"id"`
	Name             string     `db:"name" json:"name"`
	BloodType        BloodType  `db:"blood_type" json:"blood_type"`
	ContactInfo      string     `db:"contact_info" json:"contact_info"`
	LastDonationDate *time.Time `db:"last_donation_date" json:"last_donation_date"`
}
