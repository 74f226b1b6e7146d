package migrations

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schemas = map[string][]string{
	"sqlite": {
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            username TEXT NOT NULL UNIQUE,
            email TEXT NOT NULL DEFAULT '',
            password_hash TEXT NOT NULL,
            is_staff BOOLEAN NOT NULL DEFAULT 0,
            date_joined DATETIME NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS donors (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            blood_type TEXT NOT NULL,
            contact_info TEXT NOT NULL,
            last_donation_date DATE
        );`,
		`CREATE TABLE IF NOT EXISTS blood_inventory (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            blood_type TEXT NOT NULL UNIQUE,
            units_available INTEGER NOT NULL CHECK (units_available >= 0),
            version INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS blood_requests (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            blood_type TEXT NOT NULL,
            units_requested INTEGER NOT NULL CHECK (units_requested > 0),
            status TEXT NOT NULL DEFAULT 'Pending',
            request_date DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            FOREIGN KEY(user_id) REFERENCES users(id)
        );`,
	},
	"mysql": {
		`CREATE TABLE IF NOT EXISTS users (
            id BIGINT AUTO_INCREMENT PRIMARY KEY,
            username VARCHAR(150) NOT NULL UNIQUE,
            email VARCHAR(254) NOT NULL DEFAULT '',
            password_hash VARCHAR(255) NOT NULL,
            is_staff BOOLEAN NOT NULL DEFAULT FALSE,
            date_joined DATETIME(6) NOT NULL
        ) ENGINE=InnoDB;`,
		`CREATE TABLE IF NOT EXISTS donors (
            id BIGINT AUTO_INCREMENT PRIMARY KEY,
            name VARCHAR(100) NOT NULL,
            blood_type VARCHAR(3) NOT NULL,
            contact_info VARCHAR(255) NOT NULL,
            last_donation_date DATE NULL
        ) ENGINE=InnoDB;`,
		`CREATE TABLE IF NOT EXISTS blood_inventory (
            id BIGINT AUTO_INCREMENT PRIMARY KEY,
            blood_type VARCHAR(3) NOT NULL UNIQUE,
            units_available INT UNSIGNED NOT NULL,
            version INT NOT NULL DEFAULT 0,
            created_at DATETIME(6) NOT NULL,
            updated_at DATETIME(6) NOT NULL
        ) ENGINE=InnoDB;`,
		`CREATE TABLE IF NOT EXISTS blood_requests (
            id BIGINT AUTO_INCREMENT PRIMARY KEY,
            user_id BIGINT NOT NULL,
            blood_type VARCHAR(3) NOT NULL,
            units_requested INT UNSIGNED NOT NULL,
            status VARCHAR(10) NOT NULL DEFAULT 'Pending',
            request_date DATETIME(6) NOT NULL,
            updated_at DATETIME(6) NOT NULL,
            INDEX idx_blood_requests_user (user_id),
            FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
        ) ENGINE=InnoDB;`,
	},
	"postgres": {
		`CREATE TABLE IF NOT EXISTS users (
            id BIGSERIAL PRIMARY KEY,
            username VARCHAR(150) NOT NULL UNIQUE,
            email VARCHAR(254) NOT NULL DEFAULT '',
            password_hash VARCHAR(255) NOT NULL,
            is_staff BOOLEAN NOT NULL DEFAULT FALSE,
            date_joined TIMESTAMPTZ NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS donors (
            id BIGSERIAL PRIMARY KEY,
            name VARCHAR(100) NOT NULL,
            blood_type VARCHAR(3) NOT NULL,
            contact_info VARCHAR(255) NOT NULL,
            last_donation_date DATE
        );`,
		`CREATE TABLE IF NOT EXISTS blood_inventory (
            id BIGSERIAL PRIMARY KEY,
            blood_type VARCHAR(3) NOT NULL UNIQUE,
            units_available INTEGER NOT NULL CHECK (units_available >= 0),
            version INTEGER NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS blood_requests (
            id BIGSERIAL PRIMARY KEY,
            user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            blood_type VARCHAR(3) NOT NULL,
            units_requested INTEGER NOT NULL CHECK (units_requested > 0),
            status VARCHAR(10) NOT NULL DEFAULT 'Pending',
            request_date TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_blood_requests_user ON blood_requests (user_id);`,
	},
}

// Run creates the blood bank schema for the connection's driver.
func Run(ctx context.Context, db *sqlx.DB) error {
	schema, ok := schemas[db.DriverName()]
	if !ok {
		return fmt.Errorf("no schema for driver %q", db.DriverName())
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
