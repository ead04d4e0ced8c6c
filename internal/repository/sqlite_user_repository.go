package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"device-hub-server/internal/domain"
)

type sqliteUserRepository struct {
	db *sql.DB
}

func NewSQLiteUserRepository(db *sql.DB) UserRepository {
	return &sqliteUserRepository{db: db}
}

func (r *sqliteUserRepository) Create(ctx context.Context, user *domain.User) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO users (id, name, email, password, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		user.ID,
		user.Name,
		user.Email,
		user.Password,
		user.Role,
		unixNano(user.CreatedAt),
		unixNano(user.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (r *sqliteUserRepository) findOne(ctx context.Context, where string, arg any) (*domain.User, error) {
	var (
		u       domain.User
		created int64
		updated int64
	)

	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, email, password, role, created_at, updated_at FROM users WHERE "+where+" = ?",
		arg,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Role, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	u.CreatedAt = fromUnixNano(created)
	u.UpdatedAt = fromUnixNano(updated)

	return &u, nil
}

func (r *sqliteUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "email", email)
}

func (r *sqliteUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, "id", id)
}

func (r *sqliteUserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := r.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
