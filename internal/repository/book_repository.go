package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-perpus-api/internal/models"
	"github.com/noah-isme/sma-perpus-api/internal/scope"
)

// BookRepository reads catalog rows and adjusts on-shelf copy counts.
// Catalog metadata itself is owned by the catalog service.
type BookRepository struct {
	db *sqlx.DB
}

// NewBookRepository constructs a BookRepository.
func NewBookRepository(db *sqlx.DB) *BookRepository {
	return &BookRepository{db: db}
}

const bookColumns = "b.id, b.title, b.author, b.isbn, b.category, b.quantity, b.school_id, b.added_by, b.created_at, b.updated_at"

// FindByID fetches a book by ID.
func (r *BookRepository) FindByID(ctx context.Context, id string) (*models.Book, error) {
	query := fmt.Sprintf("SELECT %s FROM books b WHERE b.id = $1 LIMIT 1", bookColumns)
	var book models.Book
	if err := r.db.GetContext(ctx, &book, query, id); err != nil {
		return nil, err
	}
	return &book, nil
}

// Reserve consumes one on-shelf copy. The guard clause makes the decrement
// atomic: two concurrent approvals of the last copy cannot both succeed.
// Returns false when no copy is available.
func Reserve(ctx context.Context, tx sqlx.ExtContext, bookID string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE books SET quantity = quantity - 1, updated_at = NOW() WHERE id = $1 AND quantity >= 1`, bookID)
	if err != nil {
		return false, fmt.Errorf("reserve copy: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserve copy result: %w", err)
	}
	return affected == 1, nil
}

// Release returns one copy to the shelf. Used on return, and on deletion of
// a still-active loan so voiding the record does not strand the copy.
func Release(ctx context.Context, tx sqlx.ExtContext, bookID string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE books SET quantity = quantity + 1, updated_at = NOW() WHERE id = $1`, bookID); err != nil {
		return fmt.Errorf("release copy: %w", err)
	}
	return nil
}

// ListLowStock returns books at or below the threshold, scoped by the actor.
func (r *BookRepository) ListLowStock(ctx context.Context, pred scope.Predicate, threshold int) ([]models.Book, error) {
	if pred.Denied() {
		return nil, nil
	}
	conditions := []string{fmt.Sprintf("b.quantity <= $%d", 1)}
	args := []interface{}{threshold}
	conditions, args = pred.Append(conditions, args)

	query := fmt.Sprintf("SELECT %s FROM books b WHERE %s ORDER BY b.quantity ASC", bookColumns, strings.Join(conditions, " AND "))
	var books []models.Book
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	return books, nil
}
