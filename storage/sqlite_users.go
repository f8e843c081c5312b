package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"seclabel/core"
)

// SQLiteUserStorage implements UserStorage using SQLite
type SQLiteUserStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteUserStorage creates a new SQLite-based user storage
func NewSQLiteUserStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteUserStorage {
	return &SQLiteUserStorage{sqlite: sqlite, logger: logger}
}

// HashPassword returns the bcrypt hash stored for a console password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// ListUsers returns all users ordered by id.
func (s *SQLiteUserStorage) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := s.sqlite.ReadDB.QueryContext(ctx,
		"SELECT id, username, description, role, password_hash, created_at FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]core.User, 0)
	for rows.Next() {
		var u core.User
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Username, &u.Description, &u.Role, &u.PasswordHash, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if u.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateUser inserts a user and sets its ID and CreatedAt. A taken username
// returns ErrUserExists.
func (s *SQLiteUserStorage) CreateUser(ctx context.Context, user *core.User) error {
	if user.Role == "" {
		user.Role = core.RoleAnalyst
	}
	user.CreatedAt = time.Now().UTC()

	res, err := s.sqlite.WriteDB.ExecContext(ctx,
		"INSERT INTO users (username, description, role, password_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		user.Username, user.Description, user.Role, user.PasswordHash, formatTime(user.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	if user.ID, err = res.LastInsertId(); err != nil {
		return err
	}

	s.logger.Infow("Created user", "username", user.Username, "role", user.Role)
	return nil
}

// DeleteUser removes a user by id.
func (s *SQLiteUserStorage) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.sqlite.WriteDB.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete user %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}
