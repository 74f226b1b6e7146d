package domain

import "time"

type User struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsStaff      bool      `db:"is_staff" json:"is_staff"`
	DateJoined   time.Time `db:"date_joined" json:"date_joined"`
}

// Caller is the authenticated identity a service operation runs on behalf of.
type Caller struct {
	UserID   int64
	Username string
	IsStaff  bool
}

func (u User) Caller() Caller {
	return Caller{UserID: u.ID, Username: u.Username, IsStaff: u.IsStaff}
}
