package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/coupon-book-system/internal/model"
	"github.com/fairyhunter13/coupon-book-system/internal/service"
	"github.com/fairyhunter13/coupon-book-system/pkg/database"
)

const bookColumns = `id, name, description, active, valid_from, valid_until,
	max_redemptions_per_user, max_assignments_per_user, code_pattern, max_codes,
	total_codes, metadata, created_at, updated_at`

// BookRepository provides data access for coupon books using pgx.
type BookRepository struct {
	pool database.TxQuerier
}

// NewBookRepository creates a new BookRepository with the given pool.
func NewBookRepository(pool *pgxpool.Pool) *BookRepository {
	return &BookRepository{pool: pool}
}

// NewBookRepositoryWithQuerier creates a BookRepository with a custom
// querier. Primarily used for testing.
func NewBookRepositoryWithQuerier(q database.TxQuerier) *BookRepository {
	return &BookRepository{pool: q}
}

func scanBook(row pgx.Row) (*model.CouponBook, error) {
	var b model.CouponBook
	err := row.Scan(
		&b.ID, &b.Name, &b.Description, &b.Active, &b.ValidFrom, &b.ValidUntil,
		&b.MaxRedemptionsPerUser, &b.MaxAssignmentsPerUser, &b.CodePattern, &b.MaxCodes,
		&b.TotalCodes, &b.Metadata, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Insert creates a new coupon book row.
// Returns service.ErrBookExists when (name, description) is taken.
func (r *BookRepository) Insert(ctx context.Context, book *model.CouponBook) error {
	query := `INSERT INTO coupon_books
		(id, name, description, active, valid_from, valid_until,
		 max_redemptions_per_user, max_assignments_per_user, code_pattern, max_codes, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	metadata := book.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	err := r.pool.QueryRow(ctx, query,
		book.ID, book.Name, book.Description, book.Active, book.ValidFrom, book.ValidUntil,
		book.MaxRedemptionsPerUser, book.MaxAssignmentsPerUser, book.CodePattern, book.MaxCodes, metadata,
	).Scan(&book.CreatedAt, &book.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return service.ErrBookExists
		}
		return fmt.Errorf("insert coupon book: %w", err)
	}
	return nil
}

// GetByID retrieves a book by id.
// Returns nil, nil if the book is not found (service layer handles this).
func (r *BookRepository) GetByID(ctx context.Context, q database.TxQuerier, id uuid.UUID) (*model.CouponBook, error) {
	query := `SELECT ` + bookColumns + ` FROM coupon_books WHERE id = $1`

	book, err := scanBook(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found - let service handle
		}
		return nil, fmt.Errorf("get coupon book %s: %w", id, err)
	}
	return book, nil
}

// GetForUpdate retrieves a book with a row lock (SELECT FOR UPDATE).
// Concurrent bulk inserts on the same book serialize on this lock so
// total_codes stays consistent.
// Returns service.ErrBookNotFound if the book doesn't exist.
func (r *BookRepository) GetForUpdate(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (*model.CouponBook, error) {
	query := `SELECT ` + bookColumns + ` FROM coupon_books WHERE id = $1 FOR UPDATE`

	book, err := scanBook(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrBookNotFound
		}
		return nil, fmt.Errorf("get coupon book for update %s: %w", id, err)
	}
	return book, nil
}

// List returns a page of books ordered by creation time descending.
func (r *BookRepository) List(ctx context.Context, offset, limit int) ([]model.CouponBook, error) {
	query := `SELECT ` + bookColumns + ` FROM coupon_books
		ORDER BY created_at DESC OFFSET $1 LIMIT $2`

	rows, err := r.pool.Query(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list coupon books: %w", err)
	}
	defer rows.Close()

	books := []model.CouponBook{}
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon book: %w", err)
		}
		books = append(books, *book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coupon books: %w", err)
	}
	return books, nil
}

// Count returns the total number of books.
func (r *BookRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM coupon_books`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count coupon books: %w", err)
	}
	return n, nil
}

// Deactivate flips active from true to false. Returns false when no
// row changed, meaning the book was already inactive (or missing; the
// service disambiguates with GetByID).
func (r *BookRepository) Deactivate(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE coupon_books SET active = FALSE, updated_at = now() WHERE id = $1 AND active`, id)
	if err != nil {
		return false, fmt.Errorf("deactivate coupon book %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// AddTotalCodes increments the book's total_codes counter.
// Must be called within the same transaction as the bulk insert.
func (r *BookRepository) AddTotalCodes(ctx context.Context, tx database.TxQuerier, id uuid.UUID, delta int) error {
	_, err := tx.Exec(ctx,
		`UPDATE coupon_books SET total_codes = total_codes + $2, updated_at = now() WHERE id = $1`,
		id, delta)
	if err != nil {
		return fmt.Errorf("add total codes for %s: %w", id, err)
	}
	return nil
}
