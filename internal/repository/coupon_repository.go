package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/coupon-book-system/internal/model"
	"github.com/fairyhunter13/coupon-book-system/internal/service"
	"github.com/fairyhunter13/coupon-book-system/pkg/database"
)

// BulkInsertBatchSize is the fixed number of rows per INSERT statement.
// At 3 parameters per row this stays far below the Postgres limit of
// 65535 bind parameters.
const BulkInsertBatchSize = 5000

const couponColumns = `id, coupon_book_id, code, status, version, created_at, updated_at`

// CouponRepository provides data access for coupons using pgx.
type CouponRepository struct {
	pool database.TxQuerier
}

// NewCouponRepository creates a new CouponRepository with the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// NewCouponRepositoryWithQuerier creates a CouponRepository with a
// custom querier. Primarily used for testing.
func NewCouponRepositoryWithQuerier(q database.TxQuerier) *CouponRepository {
	return &CouponRepository{pool: q}
}

func scanCoupon(row pgx.Row) (*model.Coupon, error) {
	var c model.Coupon
	err := row.Scan(&c.ID, &c.BookID, &c.Code, &c.Status, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// BulkInsert inserts codes as AVAILABLE coupons in batches, ignoring
// rows whose code already exists anywhere (codes are globally unique,
// not book-scoped). Returns the number of rows actually inserted.
// Must run inside a transaction holding the book row lock.
func (r *CouponRepository) BulkInsert(ctx context.Context, tx database.TxQuerier, bookID uuid.UUID, codes []string) (int, error) {
	inserted := 0
	for start := 0; start < len(codes); start += BulkInsertBatchSize {
		end := start + BulkInsertBatchSize
		if end > len(codes) {
			end = len(codes)
		}
		n, err := r.insertBatch(ctx, tx, bookID, codes[start:end])
		if err != nil {
			return inserted, err
		}
		inserted += n
	}
	return inserted, nil
}

func (r *CouponRepository) insertBatch(ctx context.Context, tx database.TxQuerier, bookID uuid.UUID, codes []string) (int, error) {
	if len(codes) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO coupons (id, coupon_book_id, code) VALUES `)
	args := make([]any, 0, len(codes)*3)
	for i, code := range codes {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "($%d, $%d, $%d)", i*3+1, i*3+2, i*3+3)
		args = append(args, uuid.New(), bookID, code)
	}
	sb.WriteString(` ON CONFLICT (code) DO NOTHING`)

	tag, err := tx.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("bulk insert coupons: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// PickAvailableForUpdate picks one random AVAILABLE coupon of the book
// and locks its row, skipping rows locked by concurrent assigners so
// parallel requests proceed on disjoint coupons without queueing.
// Returns service.ErrNoAvailableCoupons when the book is drained.
func (r *CouponRepository) PickAvailableForUpdate(ctx context.Context, tx database.TxQuerier, bookID uuid.UUID) (*model.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons
		WHERE coupon_book_id = $1 AND status = 'AVAILABLE'
		ORDER BY random() LIMIT 1
		FOR UPDATE SKIP LOCKED`

	coupon, err := scanCoupon(tx.QueryRow(ctx, query, bookID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrNoAvailableCoupons
		}
		return nil, fmt.Errorf("pick available coupon for book %s: %w", bookID, err)
	}
	return coupon, nil
}

// GetByCode retrieves a coupon by its globally unique code.
// Returns nil, nil if the coupon is not found (service layer handles this).
func (r *CouponRepository) GetByCode(ctx context.Context, q database.TxQuerier, code string) (*model.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	coupon, err := scanCoupon(q.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found - let service handle
		}
		return nil, fmt.Errorf("get coupon by code %s: %w", code, err)
	}
	return coupon, nil
}

// LockByCodeNoWait locks the coupon row, failing immediately when
// another transaction holds it. Targeted operations surface contention
// as a fast error instead of queueing.
// Returns service.ErrCouponNotFound or service.ErrCouponContended.
func (r *CouponRepository) LockByCodeNoWait(ctx context.Context, tx database.TxQuerier, code string) (*model.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1 FOR UPDATE NOWAIT`

	coupon, err := scanCoupon(tx.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrCouponNotFound
		}
		if database.IsLockNotAvailable(err) {
			return nil, service.ErrCouponContended
		}
		return nil, fmt.Errorf("lock coupon %s: %w", code, err)
	}
	return coupon, nil
}

// UpdateStatus sets the coupon status and bumps the version.
// Must be called within a transaction after locking the row.
func (r *CouponRepository) UpdateStatus(ctx context.Context, tx database.TxQuerier, id uuid.UUID, status model.CouponStatus) error {
	_, err := tx.Exec(ctx,
		`UPDATE coupons SET status = $2, version = version + 1, updated_at = now() WHERE id = $1`,
		id, status)
	if err != nil {
		return fmt.Errorf("update coupon %s status: %w", id, err)
	}
	return nil
}

// UpdateStatusCAS sets the status only if the version still matches
// the value read earlier, bumping it on success. The version column is
// the final arbiter of concurrent redemptions; cache locks and row
// locks only reduce how often this loses.
// Returns service.ErrVersionConflict when another writer won.
func (r *CouponRepository) UpdateStatusCAS(ctx context.Context, tx database.TxQuerier, id uuid.UUID, status model.CouponStatus, version int) error {
	tag, err := tx.Exec(ctx,
		`UPDATE coupons SET status = $2, version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $3`,
		id, status, version)
	if err != nil {
		return fmt.Errorf("cas update coupon %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrVersionConflict
	}
	return nil
}

// ListByBook returns a page of (code, status) pairs for the book,
// newest first.
func (r *CouponRepository) ListByBook(ctx context.Context, bookID uuid.UUID, offset, limit int) ([]model.CouponListItem, error) {
	query := `SELECT code, status FROM coupons
		WHERE coupon_book_id = $1
		ORDER BY created_at DESC OFFSET $2 LIMIT $3`

	rows, err := r.pool.Query(ctx, query, bookID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list coupons for book %s: %w", bookID, err)
	}
	defer rows.Close()

	items := []model.CouponListItem{}
	for rows.Next() {
		var item model.CouponListItem
		if err := rows.Scan(&item.Code, &item.Status); err != nil {
			return nil, fmt.Errorf("scan coupon list item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coupon list: %w", err)
	}
	return items, nil
}

// CountByBook returns the number of coupons in the book.
func (r *CouponRepository) CountByBook(ctx context.Context, bookID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM coupons WHERE coupon_book_id = $1`, bookID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count coupons for book %s: %w", bookID, err)
	}
	return n, nil
}

// StatusCounts returns per-status coupon counts for a book.
func (r *CouponRepository) StatusCounts(ctx context.Context, bookID uuid.UUID) (*model.BookStats, error) {
	query := `SELECT status, count(*) FROM coupons
		WHERE coupon_book_id = $1 GROUP BY status`

	rows, err := r.pool.Query(ctx, query, bookID)
	if err != nil {
		return nil, fmt.Errorf("count coupon statuses for book %s: %w", bookID, err)
	}
	defer rows.Close()

	var stats model.BookStats
	for rows.Next() {
		var status model.CouponStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		switch status {
		case model.StatusAvailable:
			stats.Available = n
		case model.StatusAssigned:
			stats.Assigned = n
		case model.StatusLocked:
			stats.Locked = n
		case model.StatusRedeemed:
			stats.Redeemed = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return &stats, nil
}
