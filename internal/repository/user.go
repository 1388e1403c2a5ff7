package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"road-report-service/internal/domain"

	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

type postgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *postgresUserRepository {
	return &postgresUserRepository{db: db}
}

func (r *postgresUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT id, email, name, role, status, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user domain.User
	var role string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&role,
		&user.Status,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		log.WithError(err).WithField("user_id", id).Error("Failed to get user by ID")
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	user.Role = domain.Role(role)
	return &user, nil
}

// FindByIDs returns the users that still exist among ids. Missing ids are
// simply absent from the result.
func (r *postgresUserRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.User, error) {
	users := make(map[string]domain.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT id, email, name, role, status, created_at, updated_at
		FROM users
		WHERE id::text = ANY($1)
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		log.WithError(err).Error("Failed to look up users")
		return nil, fmt.Errorf("failed to look up users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var user domain.User
		var role string
		if err := rows.Scan(&user.ID, &user.Email, &user.Name, &role, &user.Status, &user.CreatedAt, &user.UpdatedAt); err != nil {
			log.WithError(err).Error("Failed to scan user row")
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		user.Role = domain.Role(role)
		users[user.ID] = user
	}
	if err := rows.Err(); err != nil {
		log.WithError(err).Error("Error iterating over user rows")
		return nil, fmt.Errorf("error iterating over user rows: %w", err)
	}
	return users, nil
}

// CreationEvent treats a user as self-created at its created_at.
func (r *postgresUserRepository) CreationEvent(ctx context.Context, id string) (*domain.CreationEvent, error) {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.CreationEvent{CreatedAt: user.CreatedAt, CreatedBy: &user.ID}, nil
}
