package database

import (
	"database/sql"
	"fmt"
	"time"

	"stock-alerting/internal/models"
)

// ErrUserExists is returned when a username is already taken
var ErrUserExists = fmt.Errorf("username already exists")

// CreateUser inserts a new user account
func (db *DB) CreateUser(u *models.User) error {
	query := `
		INSERT INTO users (username, email, password_hash, first_name, last_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (username) DO NOTHING
		RETURNING id
	`
	now := time.Now()
	err := db.conn.QueryRow(query,
		u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName, now,
	).Scan(&u.ID)

	if err == sql.ErrNoRows {
		return ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	u.CreatedAt = now
	return nil
}

// GetUserByID retrieves a user by ID
func (db *DB) GetUserByID(id int) (*models.User, error) {
	query := `
		SELECT id, username, email, password_hash, first_name, last_name, created_at
		FROM users
		WHERE id = $1
	`
	return db.scanUser(db.conn.QueryRow(query, id))
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(username string) (*models.User, error) {
	query := `
		SELECT id, username, email, password_hash, first_name, last_name, created_at
		FROM users
		WHERE username = $1
	`
	return db.scanUser(db.conn.QueryRow(query, username))
}

func (db *DB) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&u.FirstName, &u.LastName, &u.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// UpdateUserProfile updates the mutable profile fields of a user
func (db *DB) UpdateUserProfile(u *models.User) error {
	query := `
		UPDATE users SET email = $2, first_name = $3, last_name = $4
		WHERE id = $1
	`
	result, err := db.conn.Exec(query, u.ID, u.Email, u.FirstName, u.LastName)
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %d", u.ID)
	}
	return nil
}
