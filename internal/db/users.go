// CLAUDE:SUMMARY User record store: signup, lookup by id/email/username, credibility awards with level recompute, leaderboard
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email,omitempty"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
	Credibility int       `json:"credibility"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	Level       int       `json:"level"`
	CreatedAt   time.Time `json:"created_at"`
}

// Public strips the email for profile and leaderboard responses.
func (u *User) Public() *User {
	cp := *u
	cp.Email = ""
	return &cp
}

type CreateUserInput struct {
	Email        string
	Username     string
	PasswordHash string
	Role         string
	Credibility  int
}

const userColumns = `id, email, username, role, credibility, wins, losses, level, created_at`

func scanUser(s interface{ Scan(...any) error }) (*User, error) {
	u := &User{}
	var created int64
	err := s.Scan(&u.ID, &u.Email, &u.Username, &u.Role, &u.Credibility, &u.Wins, &u.Losses, &u.Level, &created)
	if err != nil {
		return nil, err
	}
	u.CreatedAt = unixTime(created)
	return u, nil
}

func (db *DB) CreateUser(ctx context.Context, input CreateUserInput) (*User, error) {
	role := input.Role
	if role == "" {
		role = RoleUser
	}
	u := &User{
		ID:          NewID(),
		Email:       input.Email,
		Username:    input.Username,
		Role:        role,
		Credibility: input.Credibility,
		Level:       1,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, email, username, password_hash, role, credibility, level, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
		u.ID, u.Email, u.Username, input.PasswordHash, u.Role, u.Credibility, u.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("creating user: %w", ErrDuplicate)
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// GetUserByEmail returns the user and its password hash for login.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*User, string, error) {
	u := &User{}
	var created int64
	var passwordHash string
	err := db.QueryRowContext(ctx, `
		SELECT id, email, username, role, credibility, wins, losses, level, created_at, password_hash
		FROM users WHERE email = ?`, email).Scan(
		&u.ID, &u.Email, &u.Username, &u.Role, &u.Credibility, &u.Wins, &u.Losses, &u.Level, &created, &passwordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	u.CreatedAt = unixTime(created)
	return u, passwordHash, nil
}

func (db *DB) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	res, err := db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE email = ?`, passwordHash, email)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AwardCredibility adds delta to the user's credibility and recomputes
// level as max(1, credibility / levelStep) in the same statement.
func (db *DB) AwardCredibility(ctx context.Context, userID string, delta, levelStep int) (*User, error) {
	if levelStep <= 0 {
		levelStep = 100
	}
	err := withRetry(func() error {
		res, err := db.ExecContext(ctx, `
			UPDATE users
			SET credibility = credibility + ?,
			    level = MAX(1, (credibility + ?) / ?)
			WHERE id = ?`, delta, delta, levelStep, userID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("awarding credibility: %w", err)
	}
	return db.GetUserByID(ctx, userID)
}

// Leaderboard returns users ordered by credibility, highest first.
func (db *DB) Leaderboard(ctx context.Context, limit int) ([]*User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		ORDER BY credibility DESC, wins DESC, created_at ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u.Public())
	}
	return users, rows.Err()
}
