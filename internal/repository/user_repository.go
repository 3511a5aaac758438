package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-perpus-api/internal/models"
)

// UserRepository reads account records. Accounts are written by the
// account-management service; circulation only needs lookups.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = "id, email, full_name, role, school_id, active, created_at, updated_at"

// FindByID fetches a user by ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE id = $1 LIMIT 1", userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindFirstActiveAdmin returns the oldest active admin account, used as the
// escalation target for delivery failures.
func (r *UserRepository) FindFirstActiveAdmin(ctx context.Context) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE role = $1 AND active = TRUE ORDER BY created_at ASC LIMIT 1", userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, models.RoleAdmin); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindLibrarianForSchool returns the oldest active librarian of a school,
// used as the default recipient for stock and request notifications.
func (r *UserRepository) FindLibrarianForSchool(ctx context.Context, schoolID string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE role = $1 AND active = TRUE AND school_id = $2 ORDER BY created_at ASC LIMIT 1", userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, models.RoleLibrarian, schoolID); err != nil {
		return nil, err
	}
	return &user, nil
}
