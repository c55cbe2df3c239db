package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// User roles.
const (
	RoleCreator = "creator"
	RoleBuyer   = "buyer"
)

// User is a marketplace participant keyed by wallet address.
type User struct {
	WalletAddress string
	Username      *string
	Role          string
	CreatedAt     time.Time
}

// CreateUserParams contains the parameters for registering a user.
type CreateUserParams struct {
	WalletAddress string
	Username      *string
	Role          string
}

// CreateUser registers a new user. Returns ErrAlreadyExists if the wallet
// address or username is already taken.
func (s *Store) CreateUser(ctx context.Context, params CreateUserParams) (_ *User, err error) {
	start := time.Now()
	defer func() { s.record("CreateUser", "users", start, err) }()

	sql, args, err := psql.Insert("users").
		Columns("wallet_address", "username", "role").
		Values(params.WalletAddress, params.Username, params.Role).
		Suffix("RETURNING wallet_address, username, role, created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert: %w", err)
	}

	var u User
	err = s.pool.QueryRow(ctx, sql, args...).
		Scan(&u.WalletAddress, &u.Username, &u.Role, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("user %s: %w", params.WalletAddress, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &u, nil
}

// GetUser retrieves a user by wallet address.
func (s *Store) GetUser(ctx context.Context, walletAddress string) (_ *User, err error) {
	start := time.Now()
	defer func() { s.record("GetUser", "users", start, err) }()

	sql, args, err := psql.Select("wallet_address", "username", "role", "created_at").
		From("users").
		Where(squirrel.Eq{"wallet_address": walletAddress}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var u User
	err = s.pool.QueryRow(ctx, sql, args...).
		Scan(&u.WalletAddress, &u.Username, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", walletAddress, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &u, nil
}

// UpdateUsername changes a user's display name; a nil username clears it.
// Returns ErrNotFound for unknown wallets and ErrAlreadyExists when the
// username is already taken.
func (s *Store) UpdateUsername(ctx context.Context, walletAddress string, username *string) (_ *User, err error) {
	start := time.Now()
	defer func() { s.record("UpdateUsername", "users", start, err) }()

	sql, args, err := psql.Update("users").
		Set("username", username).
		Where(squirrel.Eq{"wallet_address": walletAddress}).
		Suffix("RETURNING wallet_address, username, role, created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build update: %w", err)
	}

	var u User
	err = s.pool.QueryRow(ctx, sql, args...).
		Scan(&u.WalletAddress, &u.Username, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", walletAddress, ErrNotFound)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("username: %w", ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to update username: %w", err)
	}

	return &u, nil
}

// ListUsers returns users ordered by registration time, newest first.
func (s *Store) ListUsers(ctx context.Context, limit, offset int32) (_ []*User, err error) {
	start := time.Now()
	defer func() { s.record("ListUsers", "users", start, err) }()

	sql, args, err := psql.Select("wallet_address", "username", "role", "created_at").
		From("users").
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.WalletAddress, &u.Username, &u.Role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}

	return users, rows.Err()
}
