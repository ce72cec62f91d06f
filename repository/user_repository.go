package repository

import (
	"context"
	"database/sql"
	"fmt"

	"Tunevault/model"
)

// UserRepository defines the interface for user and linked account data.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error

	CreateLink(ctx context.Context, link *model.LinkedAccount) error
	// CreateUserWithLink 在同一个事务里创建用户和第三方账号绑定
	CreateUserWithLink(ctx context.Context, user *model.User, link *model.LinkedAccount) error
	GetLink(ctx context.Context, provider, providerUserID string) (*model.LinkedAccount, error)
	ListLinks(ctx context.Context, userID string) ([]*model.LinkedAccount, error)
	DeleteLink(ctx context.Context, userID, provider string) error
}

// mysqlUserRepository implements UserRepository for MySQL.
type mysqlUserRepository struct {
	db *sql.DB
}

// NewMySQLUserRepository creates a new mysqlUserRepository.
func NewMySQLUserRepository(db *sql.DB) UserRepository {
	return &mysqlUserRepository{db: db}
}

// CreateUser adds a new user to the database.
func (r *mysqlUserRepository) CreateUser(ctx context.Context, user *model.User) error {
	query := "INSERT INTO users (id, email, display_name, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)"
	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare create user statement: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, user.ID, user.Email, user.DisplayName, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isDuplicateEntry(err) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("failed to execute create user statement: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *mysqlUserRepository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return r.getUser(ctx, "id", id)
}

// GetUserByEmail retrieves a user by their email address.
func (r *mysqlUserRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getUser(ctx, "email", email)
}

func (r *mysqlUserRepository) getUser(ctx context.Context, column, value string) (*model.User, error) {
	query := "SELECT id, email, display_name, password_hash, created_at, updated_at FROM users WHERE " + column + " = ?"
	user := &model.User{}
	err := r.db.QueryRowContext(ctx, query, value).
		Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to scan user row for %s %s: %w", column, value, err)
	}
	return user, nil
}

// UpdatePassword replaces the user's password hash.
func (r *mysqlUserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE users SET password_hash = ?, updated_at = NOW() WHERE id = ?", passwordHash, userID)
	if err != nil {
		return fmt.Errorf("failed to update password for user %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return nil
}

// CreateLink links a provider account to a user.
func (r *mysqlUserRepository) CreateLink(ctx context.Context, link *model.LinkedAccount) error {
	query := "INSERT INTO linked_accounts (user_id, provider, provider_user_id, email, linked_at) VALUES (?, ?, ?, ?, ?)"
	_, err := r.db.ExecContext(ctx, query, link.UserID, link.Provider, link.ProviderUserID, link.Email, link.LinkedAt)
	if err != nil {
		if isDuplicateEntry(err) {
			return ErrDuplicateLink
		}
		return fmt.Errorf("failed to link %s account: %w", link.Provider, err)
	}
	return nil
}

// CreateUserWithLink inserts a federated user and its provider link atomically.
func (r *mysqlUserRepository) CreateUserWithLink(ctx context.Context, user *model.User, link *model.LinkedAccount) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO users (id, email, display_name, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		user.ID, user.Email, user.DisplayName, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isDuplicateEntry(err) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO linked_accounts (user_id, provider, provider_user_id, email, linked_at) VALUES (?, ?, ?, ?, ?)",
		link.UserID, link.Provider, link.ProviderUserID, link.Email, link.LinkedAt)
	if err != nil {
		if isDuplicateEntry(err) {
			return ErrDuplicateLink
		}
		return fmt.Errorf("failed to link %s account: %w", link.Provider, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user creation: %w", err)
	}
	return nil
}

// GetLink finds the link of a provider account. Returns nil, nil when not linked.
func (r *mysqlUserRepository) GetLink(ctx context.Context, provider, providerUserID string) (*model.LinkedAccount, error) {
	query := "SELECT user_id, provider, provider_user_id, email, linked_at FROM linked_accounts WHERE provider = ? AND provider_user_id = ?"
	link := &model.LinkedAccount{}
	err := r.db.QueryRowContext(ctx, query, provider, providerUserID).
		Scan(&link.UserID, &link.Provider, &link.ProviderUserID, &link.Email, &link.LinkedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan linked account %s/%s: %w", provider, providerUserID, err)
	}
	return link, nil
}

// ListLinks returns all provider links of a user.
func (r *mysqlUserRepository) ListLinks(ctx context.Context, userID string) ([]*model.LinkedAccount, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT user_id, provider, provider_user_id, email, linked_at FROM linked_accounts WHERE user_id = ? ORDER BY linked_at",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query linked accounts: %w", err)
	}
	defer rows.Close()

	var links []*model.LinkedAccount
	for rows.Next() {
		link := &model.LinkedAccount{}
		if err := rows.Scan(&link.UserID, &link.Provider, &link.ProviderUserID, &link.Email, &link.LinkedAt); err != nil {
			return nil, fmt.Errorf("failed to scan linked account: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// DeleteLink unlinks a provider from a user.
func (r *mysqlUserRepository) DeleteLink(ctx context.Context, userID, provider string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM linked_accounts WHERE user_id = ? AND provider = ?", userID, provider)
	if err != nil {
		return fmt.Errorf("failed to unlink %s: %w", provider, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s link: %w", provider, ErrNotFound)
	}
	return nil
}
