package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fairyhunter13/coupon-book-system/internal/model"
	"github.com/fairyhunter13/coupon-book-system/pkg/database"
)

func intPtr(i int) *int { return &i }

func strPtr(s string) *string { return &s }

// mockTx is a mock implementation of pgx.Tx for testing transactions.
type mockTx struct {
	commitFn   func(ctx context.Context) error
	rollbackFn func(ctx context.Context) error
	committed  bool
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("nested transactions not supported")
}

func (m *mockTx) Commit(ctx context.Context) error {
	m.committed = true
	if m.commitFn != nil {
		return m.commitFn(ctx)
	}
	return nil
}

func (m *mockTx) Rollback(ctx context.Context) error {
	if m.rollbackFn != nil {
		return m.rollbackFn(ctx)
	}
	return nil
}

func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }

func (m *mockTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }

func (m *mockTx) Conn() *pgx.Conn { return nil }

// mockDB is a mock implementation of the DB handle.
type mockDB struct {
	beginFn func(ctx context.Context) (pgx.Tx, error)
}

func (m *mockDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.beginFn != nil {
		return m.beginFn(ctx)
	}
	return &mockTx{}, nil
}

func (m *mockDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }

// mockBookRepository is a mock implementation of BookRepositoryInterface.
type mockBookRepository struct {
	insertFn        func(ctx context.Context, book *model.CouponBook) error
	getByIDFn       func(ctx context.Context, q database.TxQuerier, id uuid.UUID) (*model.CouponBook, error)
	getForUpdateFn  func(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (*model.CouponBook, error)
	listFn          func(ctx context.Context, offset, limit int) ([]model.CouponBook, error)
	countFn         func(ctx context.Context) (int, error)
	deactivateFn    func(ctx context.Context, id uuid.UUID) (bool, error)
	addTotalCodesFn func(ctx context.Context, tx database.TxQuerier, id uuid.UUID, delta int) error
}

func (m *mockBookRepository) Insert(ctx context.Context, book *model.CouponBook) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, book)
	}
	return nil
}

func (m *mockBookRepository) GetByID(ctx context.Context, q database.TxQuerier, id uuid.UUID) (*model.CouponBook, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, q, id)
	}
	return nil, nil
}

func (m *mockBookRepository) GetForUpdate(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (*model.CouponBook, error) {
	if m.getForUpdateFn != nil {
		return m.getForUpdateFn(ctx, tx, id)
	}
	return nil, ErrBookNotFound
}

func (m *mockBookRepository) List(ctx context.Context, offset, limit int) ([]model.CouponBook, error) {
	if m.listFn != nil {
		return m.listFn(ctx, offset, limit)
	}
	return []model.CouponBook{}, nil
}

func (m *mockBookRepository) Count(ctx context.Context) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx)
	}
	return 0, nil
}

func (m *mockBookRepository) Deactivate(ctx context.Context, id uuid.UUID) (bool, error) {
	if m.deactivateFn != nil {
		return m.deactivateFn(ctx, id)
	}
	return false, nil
}

func (m *mockBookRepository) AddTotalCodes(ctx context.Context, tx database.TxQuerier, id uuid.UUID, delta int) error {
	if m.addTotalCodesFn != nil {
		return m.addTotalCodesFn(ctx, tx, id, delta)
	}
	return nil
}

// mockCouponRepository is a mock implementation of CouponRepositoryInterface.
type mockCouponRepository struct {
	bulkInsertFn      func(ctx context.Context, tx database.TxQuerier, bookID uuid.UUID, codes []string) (int, error)
	pickAvailableFn   func(ctx context.Context, tx database.TxQuerier, bookID uuid.UUID) (*model.Coupon, error)
	getByCodeFn       func(ctx context.Context, q database.TxQuerier, code string) (*model.Coupon, error)
	lockByCodeFn      func(ctx context.Context, tx database.TxQuerier, code string) (*model.Coupon, error)
	updateStatusFn    func(ctx context.Context, tx database.TxQuerier, id uuid.UUID, status model.CouponStatus) error
	updateStatusCASFn func(ctx context.Context, tx database.TxQuerier, id uuid.UUID, status model.CouponStatus, version int) error
	listByBookFn      func(ctx context.Context, bookID uuid.UUID, offset, limit int) ([]model.CouponListItem, error)
	countByBookFn     func(ctx context.Context, bookID uuid.UUID) (int, error)
	statusCountsFn    func(ctx context.Context, bookID uuid.UUID) (*model.BookStats, error)
}

func (m *mockCouponRepository) BulkInsert(ctx context.Context, tx database.TxQuerier, bookID uuid.UUID, codes []string) (int, error) {
	if m.bulkInsertFn != nil {
		return m.bulkInsertFn(ctx, tx, bookID, codes)
	}
	return len(codes), nil
}

func (m *mockCouponRepository) PickAvailableForUpdate(ctx context.Context, tx database.TxQuerier, bookID uuid.UUID) (*model.Coupon, error) {
	if m.pickAvailableFn != nil {
		return m.pickAvailableFn(ctx, tx, bookID)
	}
	return nil, ErrNoAvailableCoupons
}

func (m *mockCouponRepository) GetByCode(ctx context.Context, q database.TxQuerier, code string) (*model.Coupon, error) {
	if m.getByCodeFn != nil {
		return m.getByCodeFn(ctx, q, code)
	}
	return nil, nil
}

func (m *mockCouponRepository) LockByCodeNoWait(ctx context.Context, tx database.TxQuerier, code string) (*model.Coupon, error) {
	if m.lockByCodeFn != nil {
		return m.lockByCodeFn(ctx, tx, code)
	}
	return nil, ErrCouponNotFound
}

func (m *mockCouponRepository) UpdateStatus(ctx context.Context, tx database.TxQuerier, id uuid.UUID, status model.CouponStatus) error {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, tx, id, status)
	}
	return nil
}

func (m *mockCouponRepository) UpdateStatusCAS(ctx context.Context, tx database.TxQuerier, id uuid.UUID, status model.CouponStatus, version int) error {
	if m.updateStatusCASFn != nil {
		return m.updateStatusCASFn(ctx, tx, id, status, version)
	}
	return nil
}

func (m *mockCouponRepository) ListByBook(ctx context.Context, bookID uuid.UUID, offset, limit int) ([]model.CouponListItem, error) {
	if m.listByBookFn != nil {
		return m.listByBookFn(ctx, bookID, offset, limit)
	}
	return []model.CouponListItem{}, nil
}

func (m *mockCouponRepository) CountByBook(ctx context.Context, bookID uuid.UUID) (int, error) {
	if m.countByBookFn != nil {
		return m.countByBookFn(ctx, bookID)
	}
	return 0, nil
}

func (m *mockCouponRepository) StatusCounts(ctx context.Context, bookID uuid.UUID) (*model.BookStats, error) {
	if m.statusCountsFn != nil {
		return m.statusCountsFn(ctx, bookID)
	}
	return &model.BookStats{}, nil
}

// mockAssignmentRepository is a mock implementation of AssignmentRepositoryInterface.
type mockAssignmentRepository struct {
	insertFn             func(ctx context.Context, tx database.TxQuerier, a *model.CouponAssignment) error
	getForUpdateNoWaitFn func(ctx context.Context, tx database.TxQuerier, couponID uuid.UUID, userID string) (*model.CouponAssignment, error)
	getByCouponAndUserFn func(ctx context.Context, q database.TxQuerier, couponID uuid.UUID, userID string) (*model.CouponAssignment, error)
	countByUserAndBookFn func(ctx context.Context, q database.TxQuerier, userID string, bookID uuid.UUID) (int, error)
	setLockFn            func(ctx context.Context, tx database.TxQuerier, id uuid.UUID, lockedAt, lockExpiresAt time.Time) error
	clearLockFn          func(ctx context.Context, tx database.TxQuerier, id uuid.UUID) error
	recordRedemptionFn   func(ctx context.Context, tx database.TxQuerier, id uuid.UUID, count int, redeemedAt time.Time, metadata map[string]any) error
	listByUserFn         func(ctx context.Context, userID string, offset, limit int) ([]model.UserCoupon, error)
	countByUserFn        func(ctx context.Context, userID string) (int, error)
}

func (m *mockAssignmentRepository) Insert(ctx context.Context, tx database.TxQuerier, a *model.CouponAssignment) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, tx, a)
	}
	return nil
}

func (m *mockAssignmentRepository) GetForUpdateNoWait(ctx context.Context, tx database.TxQuerier, couponID uuid.UUID, userID string) (*model.CouponAssignment, error) {
	if m.getForUpdateNoWaitFn != nil {
		return m.getForUpdateNoWaitFn(ctx, tx, couponID, userID)
	}
	return nil, ErrAssignmentNotFound
}

func (m *mockAssignmentRepository) GetByCouponAndUser(ctx context.Context, q database.TxQuerier, couponID uuid.UUID, userID string) (*model.CouponAssignment, error) {
	if m.getByCouponAndUserFn != nil {
		return m.getByCouponAndUserFn(ctx, q, couponID, userID)
	}
	return nil, nil
}

func (m *mockAssignmentRepository) CountByUserAndBook(ctx context.Context, q database.TxQuerier, userID string, bookID uuid.UUID) (int, error) {
	if m.countByUserAndBookFn != nil {
		return m.countByUserAndBookFn(ctx, q, userID, bookID)
	}
	return 0, nil
}

func (m *mockAssignmentRepository) SetLock(ctx context.Context, tx database.TxQuerier, id uuid.UUID, lockedAt, lockExpiresAt time.Time) error {
	if m.setLockFn != nil {
		return m.setLockFn(ctx, tx, id, lockedAt, lockExpiresAt)
	}
	return nil
}

func (m *mockAssignmentRepository) ClearLock(ctx context.Context, tx database.TxQuerier, id uuid.UUID) error {
	if m.clearLockFn != nil {
		return m.clearLockFn(ctx, tx, id)
	}
	return nil
}

func (m *mockAssignmentRepository) RecordRedemption(ctx context.Context, tx database.TxQuerier, id uuid.UUID, count int, redeemedAt time.Time, metadata map[string]any) error {
	if m.recordRedemptionFn != nil {
		return m.recordRedemptionFn(ctx, tx, id, count, redeemedAt, metadata)
	}
	return nil
}

func (m *mockAssignmentRepository) ListByUser(ctx context.Context, userID string, offset, limit int) ([]model.UserCoupon, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID, offset, limit)
	}
	return []model.UserCoupon{}, nil
}

func (m *mockAssignmentRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	if m.countByUserFn != nil {
		return m.countByUserFn(ctx, userID)
	}
	return 0, nil
}

// mockCacheStore is a mock implementation of cache.Store. The zero
// value grants every dedup flag and lock.
type mockCacheStore struct {
	setDedupFn    func(ctx context.Context, feature, resource string, ttl time.Duration) (bool, error)
	hasDedupFn    func(ctx context.Context, feature, resource string) (bool, error)
	acquireLockFn func(ctx context.Context, feature, resource string, ttl time.Duration) (bool, error)

	clearedDedup  []string
	releasedLocks []string
}

func (m *mockCacheStore) SetDedup(ctx context.Context, feature, resource string, ttl time.Duration) (bool, error) {
	if m.setDedupFn != nil {
		return m.setDedupFn(ctx, feature, resource, ttl)
	}
	return true, nil
}

func (m *mockCacheStore) HasDedup(ctx context.Context, feature, resource string) (bool, error) {
	if m.hasDedupFn != nil {
		return m.hasDedupFn(ctx, feature, resource)
	}
	return false, nil
}

func (m *mockCacheStore) ClearDedup(ctx context.Context, feature, resource string) {
	m.clearedDedup = append(m.clearedDedup, feature+":"+resource)
}

func (m *mockCacheStore) AcquireLock(ctx context.Context, feature, resource string, ttl time.Duration) (bool, error) {
	if m.acquireLockFn != nil {
		return m.acquireLockFn(ctx, feature, resource, ttl)
	}
	return true, nil
}

func (m *mockCacheStore) ReleaseLock(ctx context.Context, feature, resource string) {
	m.releasedLocks = append(m.releasedLocks, feature+":"+resource)
}
