package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/coupon-book-system/internal/model"
	"github.com/fairyhunter13/coupon-book-system/internal/service"
	"github.com/fairyhunter13/coupon-book-system/pkg/database"
)

const assignmentColumns = `id, coupon_id, user_id, assigned_at, locked_at,
	lock_expires_at, redeemed_at, redemption_count, metadata`

// AssignmentRepository provides data access for coupon assignments using pgx.
type AssignmentRepository struct {
	pool database.TxQuerier
}

// NewAssignmentRepository creates a new AssignmentRepository with the given pool.
func NewAssignmentRepository(pool *pgxpool.Pool) *AssignmentRepository {
	return &AssignmentRepository{pool: pool}
}

// NewAssignmentRepositoryWithQuerier creates an AssignmentRepository
// with a custom querier. Primarily used for testing.
func NewAssignmentRepositoryWithQuerier(q database.TxQuerier) *AssignmentRepository {
	return &AssignmentRepository{pool: q}
}

func scanAssignment(row pgx.Row) (*model.CouponAssignment, error) {
	var a model.CouponAssignment
	err := row.Scan(
		&a.ID, &a.CouponID, &a.UserID, &a.AssignedAt, &a.LockedAt,
		&a.LockExpiresAt, &a.RedeemedAt, &a.RedemptionCount, &a.Metadata,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Insert creates an assignment row within a transaction.
// Returns service.ErrAlreadyAssigned when the (coupon, user) pair exists.
func (r *AssignmentRepository) Insert(ctx context.Context, tx database.TxQuerier, a *model.CouponAssignment) error {
	query := `INSERT INTO coupon_assignments (id, coupon_id, user_id, assigned_at, metadata)
		VALUES ($1, $2, $3, $4, $5)`

	metadata := a.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	_, err := tx.Exec(ctx, query, a.ID, a.CouponID, a.UserID, a.AssignedAt, metadata)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return service.ErrAlreadyAssigned
		}
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

// GetForUpdateNoWait locks the (coupon, user) assignment row, failing
// immediately on contention.
// Returns service.ErrAssignmentNotFound or service.ErrCouponContended.
func (r *AssignmentRepository) GetForUpdateNoWait(ctx context.Context, tx database.TxQuerier, couponID uuid.UUID, userID string) (*model.CouponAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM coupon_assignments
		WHERE coupon_id = $1 AND user_id = $2 FOR UPDATE NOWAIT`

	a, err := scanAssignment(tx.QueryRow(ctx, query, couponID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrAssignmentNotFound
		}
		if database.IsLockNotAvailable(err) {
			return nil, service.ErrCouponContended
		}
		return nil, fmt.Errorf("lock assignment %s/%s: %w", couponID, userID, err)
	}
	return a, nil
}

// GetByCouponAndUser retrieves the assignment without locking.
// Returns nil, nil if no binding exists (service layer handles this).
func (r *AssignmentRepository) GetByCouponAndUser(ctx context.Context, q database.TxQuerier, couponID uuid.UUID, userID string) (*model.CouponAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM coupon_assignments
		WHERE coupon_id = $1 AND user_id = $2`

	a, err := scanAssignment(q.QueryRow(ctx, query, couponID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get assignment %s/%s: %w", couponID, userID, err)
	}
	return a, nil
}

// CountByUserAndBook counts the user's assignment rows in a book.
// Counts rows regardless of coupon status: assignment rows are never
// deleted, so the limit caps historical as well as current bindings.
func (r *AssignmentRepository) CountByUserAndBook(ctx context.Context, q database.TxQuerier, userID string, bookID uuid.UUID) (int, error) {
	query := `SELECT count(*) FROM coupon_assignments a
		JOIN coupons c ON c.id = a.coupon_id
		WHERE a.user_id = $1 AND c.coupon_book_id = $2`

	var n int
	if err := q.QueryRow(ctx, query, userID, bookID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count assignments for user %s in book %s: %w", userID, bookID, err)
	}
	return n, nil
}

// SetLock records the reservation window on the assignment row.
// Must be called within a transaction after locking the row.
func (r *AssignmentRepository) SetLock(ctx context.Context, tx database.TxQuerier, id uuid.UUID, lockedAt, lockExpiresAt time.Time) error {
	_, err := tx.Exec(ctx,
		`UPDATE coupon_assignments SET locked_at = $2, lock_expires_at = $3 WHERE id = $1`,
		id, lockedAt, lockExpiresAt)
	if err != nil {
		return fmt.Errorf("set lock on assignment %s: %w", id, err)
	}
	return nil
}

// ClearLock nulls both reservation fields.
func (r *AssignmentRepository) ClearLock(ctx context.Context, tx database.TxQuerier, id uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`UPDATE coupon_assignments SET locked_at = NULL, lock_expires_at = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("clear lock on assignment %s: %w", id, err)
	}
	return nil
}

// RecordRedemption writes the new redemption counter, stamps
// redeemed_at, clears the reservation fields and merges metadata.
// Must be called within the redemption transaction.
func (r *AssignmentRepository) RecordRedemption(ctx context.Context, tx database.TxQuerier, id uuid.UUID, count int, redeemedAt time.Time, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	query := `UPDATE coupon_assignments
		SET redemption_count = $2, redeemed_at = $3,
		    locked_at = NULL, lock_expires_at = NULL,
		    metadata = metadata || $4
		WHERE id = $1`

	_, err := tx.Exec(ctx, query, id, count, redeemedAt, metadata)
	if err != nil {
		return fmt.Errorf("record redemption on assignment %s: %w", id, err)
	}
	return nil
}

// ListByUser returns a page of the user's coupons joined with book
// context, most recently assigned first.
func (r *AssignmentRepository) ListByUser(ctx context.Context, userID string, offset, limit int) ([]model.UserCoupon, error) {
	query := `SELECT c.code, b.id, b.name, c.status, a.assigned_at,
			a.redeemed_at, a.redemption_count, b.valid_until
		FROM coupon_assignments a
		JOIN coupons c ON c.id = a.coupon_id
		JOIN coupon_books b ON b.id = c.coupon_book_id
		WHERE a.user_id = $1
		ORDER BY a.assigned_at DESC OFFSET $2 LIMIT $3`

	rows, err := r.pool.Query(ctx, query, userID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list coupons for user %s: %w", userID, err)
	}
	defer rows.Close()

	items := []model.UserCoupon{}
	for rows.Next() {
		var uc model.UserCoupon
		err := rows.Scan(&uc.Code, &uc.BookID, &uc.BookName, &uc.Status,
			&uc.AssignedAt, &uc.RedeemedAt, &uc.RedemptionCount, &uc.ValidUntil)
		if err != nil {
			return nil, fmt.Errorf("scan user coupon: %w", err)
		}
		items = append(items, uc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user coupons: %w", err)
	}
	return items, nil
}

// CountByUser returns the user's total assignment count.
func (r *AssignmentRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM coupon_assignments WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count assignments for user %s: %w", userID, err)
	}
	return n, nil
}
