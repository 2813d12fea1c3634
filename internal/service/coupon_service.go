package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/coupon-book-system/internal/cache"
	"github.com/fairyhunter13/coupon-book-system/internal/model"
	"github.com/fairyhunter13/coupon-book-system/pkg/database"
)

// Lock duration bounds for checkout reservations, in seconds.
const (
	LockDurationMin     = 30
	LockDurationMax     = 600
	LockDurationDefault = 300
)

// Cache plane TTLs for redemption. The mutex is short because the
// transaction completes in milliseconds; the dedup flag outlives it to
// absorb client double-submits.
const (
	redeemDedupTTL = 60 * time.Second
	redeemLockTTL  = 10 * time.Second
)

// Cache plane feature names.
const (
	featureCouponLock = "coupon-lock"
	featureRedeem     = "coupon-redeem"
)

// AssignmentRepositoryInterface defines the interface for assignment data access.
type AssignmentRepositoryInterface interface {
	Insert(ctx context.Context, tx database.TxQuerier, a *model.CouponAssignment) error
	GetForUpdateNoWait(ctx context.Context, tx database.TxQuerier, couponID uuid.UUID, userID string) (*model.CouponAssignment, error)
	GetByCouponAndUser(ctx context.Context, q database.TxQuerier, couponID uuid.UUID, userID string) (*model.CouponAssignment, error)
	CountByUserAndBook(ctx context.Context, q database.TxQuerier, userID string, bookID uuid.UUID) (int, error)
	SetLock(ctx context.Context, tx database.TxQuerier, id uuid.UUID, lockedAt, lockExpiresAt time.Time) error
	ClearLock(ctx context.Context, tx database.TxQuerier, id uuid.UUID) error
	RecordRedemption(ctx context.Context, tx database.TxQuerier, id uuid.UUID, count int, redeemedAt time.Time, metadata map[string]any) error
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]model.UserCoupon, error)
	CountByUser(ctx context.Context, userID string) (int, error)
}

// CouponService owns assignment, reservation and redemption of
// individual coupons. It coordinates the cache plane (fast-path
// contention control) with the persistence plane (authoritative state
// transitions); the coupon version column is the final arbiter when
// both cache layers fail.
type CouponService struct {
	db          DB
	books       BookRepositoryInterface
	coupons     CouponRepositoryInterface
	assignments AssignmentRepositoryInterface
	cache       cache.Store
	now         func() time.Time
}

// NewCouponService creates a new CouponService.
func NewCouponService(db DB, books BookRepositoryInterface, coupons CouponRepositoryInterface, assignments AssignmentRepositoryInterface, store cache.Store) *CouponService {
	return &CouponService{
		db:          db,
		books:       books,
		coupons:     coupons,
		assignments: assignments,
		cache:       store,
		now:         time.Now,
	}
}

// WithClock pins the service clock. Primarily used for testing.
func (s *CouponService) WithClock(now func() time.Time) *CouponService {
	s.now = now
	return s
}

// checkBookUsable rejects books that are inactive or outside their
// validity window.
func checkBookUsable(book *model.CouponBook, now time.Time) error {
	if !book.Active {
		return ErrBookInactive
	}
	if now.Before(book.ValidFrom) {
		return ErrBookNotStarted
	}
	if now.After(book.ValidUntil) {
		return ErrBookExpired
	}
	return nil
}

// checkAssignmentLimit enforces max_assignments_per_user by counting
// the user's assignment rows, regardless of coupon status.
func (s *CouponService) checkAssignmentLimit(ctx context.Context, book *model.CouponBook, userID string) error {
	if book.MaxAssignmentsPerUser == nil {
		return nil
	}
	n, err := s.assignments.CountByUserAndBook(ctx, s.db, userID, book.ID)
	if err != nil {
		return fmt.Errorf("count assignments: %w", err)
	}
	if n >= *book.MaxAssignmentsPerUser {
		return ErrAssignmentLimitReached
	}
	return nil
}

// AssignRandom binds one random AVAILABLE coupon of the book to the
// user. The skip-locked pick lets concurrent assigners proceed on
// disjoint rows without queueing.
func (s *CouponService) AssignRandom(ctx context.Context, bookID uuid.UUID, userID string) (*model.AssignmentResult, error) {
	book, err := s.books.GetByID(ctx, s.db, bookID)
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if book == nil {
		return nil, ErrBookNotFound
	}
	now := s.now()
	if err := checkBookUsable(book, now); err != nil {
		return nil, err
	}
	if err := s.checkAssignmentLimit(ctx, book, userID); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	coupon, err := s.coupons.PickAvailableForUpdate(ctx, tx, bookID)
	if err != nil {
		return nil, err
	}
	if err := s.coupons.UpdateStatus(ctx, tx, coupon.ID, model.StatusAssigned); err != nil {
		return nil, err
	}

	assignment := &model.CouponAssignment{
		ID:         uuid.New(),
		CouponID:   coupon.ID,
		UserID:     userID,
		AssignedAt: now,
	}
	if err := s.assignments.Insert(ctx, tx, assignment); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &model.AssignmentResult{
		Code:       coupon.Code,
		BookID:     bookID,
		UserID:     userID,
		AssignedAt: now,
	}, nil
}

// AssignSpecific binds the named coupon to the user. The no-wait row
// lock turns contention into an immediate conflict instead of queueing.
func (s *CouponService) AssignSpecific(ctx context.Context, code, userID string) (*model.AssignmentResult, error) {
	coupon, err := s.coupons.GetByCode(ctx, s.db, code)
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}

	book, err := s.books.GetByID(ctx, s.db, coupon.BookID)
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if book == nil {
		return nil, ErrBookNotFound
	}
	now := s.now()
	if err := checkBookUsable(book, now); err != nil {
		return nil, err
	}
	if err := s.checkAssignmentLimit(ctx, book, userID); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	// Re-read under the row lock; the unlocked read above could be stale.
	coupon, err = s.coupons.LockByCodeNoWait(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	if coupon.Status != model.StatusAvailable {
		return nil, ErrCouponNotAvailable
	}
	if err := s.coupons.UpdateStatus(ctx, tx, coupon.ID, model.StatusAssigned); err != nil {
		return nil, err
	}

	assignment := &model.CouponAssignment{
		ID:         uuid.New(),
		CouponID:   coupon.ID,
		UserID:     userID,
		AssignedAt: now,
	}
	if err := s.assignments.Insert(ctx, tx, assignment); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &model.AssignmentResult{
		Code:       coupon.Code,
		BookID:     coupon.BookID,
		UserID:     userID,
		AssignedAt: now,
	}, nil
}

// Lock places a short-lived checkout reservation on the user's coupon.
// The cache lock suppresses concurrent lockers cheaply; the database
// lock_expires_at is the authoritative expiry and survives a cache
// wipe. durationSeconds of 0 selects the default.
func (s *CouponService) Lock(ctx context.Context, code, userID string, durationSeconds int) (*model.LockResult, error) {
	if durationSeconds == 0 {
		durationSeconds = LockDurationDefault
	}
	if durationSeconds < LockDurationMin || durationSeconds > LockDurationMax {
		return nil, ErrInvalidLockDuration
	}
	ttl := time.Duration(durationSeconds) * time.Second

	acquired, _ := s.cache.AcquireLock(ctx, featureCouponLock, code, ttl)
	if !acquired {
		return nil, ErrCouponLockHeld
	}
	defer s.cache.ReleaseLock(ctx, featureCouponLock, code)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	coupon, err := s.coupons.LockByCodeNoWait(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	assignment, err := s.assignments.GetForUpdateNoWait(ctx, tx, coupon.ID, userID)
	if err != nil {
		return nil, err
	}

	book, err := s.books.GetByID(ctx, tx, coupon.BookID)
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if book == nil {
		return nil, ErrBookNotFound
	}
	now := s.now()
	if book.Expired(now) {
		return nil, ErrBookExpired
	}

	if coupon.Status != model.StatusAssigned && coupon.Status != model.StatusLocked {
		return nil, ErrCouponNotLockable
	}

	expiresAt := now.Add(ttl)
	if err := s.coupons.UpdateStatus(ctx, tx, coupon.ID, model.StatusLocked); err != nil {
		return nil, err
	}
	if err := s.assignments.SetLock(ctx, tx, assignment.ID, now, expiresAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &model.LockResult{Code: code, LockedAt: now, LockExpiresAt: expiresAt}, nil
}

// Unlock releases the user's checkout reservation, returning the
// coupon to ASSIGNED with both lock fields cleared.
func (s *CouponService) Unlock(ctx context.Context, code, userID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	coupon, err := s.coupons.LockByCodeNoWait(ctx, tx, code)
	if err != nil {
		return err
	}
	assignment, err := s.assignments.GetForUpdateNoWait(ctx, tx, coupon.ID, userID)
	if err != nil {
		return err
	}

	if coupon.Status != model.StatusLocked {
		return ErrCouponNotLocked
	}

	if err := s.coupons.UpdateStatus(ctx, tx, coupon.ID, model.StatusAssigned); err != nil {
		return err
	}
	if err := s.assignments.ClearLock(ctx, tx, assignment.ID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Redeem consumes one redemption of the user's coupon. Four layers
// cooperate:
//
//	A. dedup flag      - kills accidental double-submits without a DB hit
//	B. cache mutex     - kills simultaneous distinct requests cheaply
//	C. no-wait row lock - only one transaction reads the row at a time
//	D. version CAS     - rejects the loser when two transactions read
//	                     the same version anyway
//
// Losing any layer is a Conflict; the database alone is sufficient for
// correctness when the cache is gone.
func (s *CouponService) Redeem(ctx context.Context, code, userID string, metadata map[string]any) (*model.RedeemResult, error) {
	resource := code + ":" + userID

	// Layer A
	set, _ := s.cache.SetDedup(ctx, featureRedeem, resource, redeemDedupTTL)
	if !set {
		return nil, ErrRedeemInProgress
	}
	defer s.cache.ClearDedup(ctx, featureRedeem, resource)

	// Layer B
	acquired, _ := s.cache.AcquireLock(ctx, featureRedeem, resource, redeemLockTTL)
	if !acquired {
		return nil, ErrRedeemInProgress
	}
	defer s.cache.ReleaseLock(ctx, featureRedeem, resource)

	// Layer C
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	coupon, err := s.coupons.LockByCodeNoWait(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	assignment, err := s.assignments.GetForUpdateNoWait(ctx, tx, coupon.ID, userID)
	if err != nil {
		return nil, err
	}
	book, err := s.books.GetByID(ctx, tx, coupon.BookID)
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if book == nil {
		return nil, ErrBookNotFound
	}
	now := s.now()
	if book.Expired(now) {
		return nil, ErrBookExpired
	}

	switch coupon.Status {
	case model.StatusAssigned, model.StatusLocked:
		// LOCKED is redeemable by the owner; the assignment join above
		// already proved ownership.
	case model.StatusRedeemed:
		return nil, ErrRedemptionLimitReached
	default:
		return nil, ErrCouponNotRedeemable
	}

	// Layer D
	max := book.MaxRedemptionsPerUser
	newCount := assignment.RedemptionCount + 1
	if max != nil && newCount > *max {
		return nil, ErrRedemptionLimitReached
	}
	newStatus := model.StatusAssigned
	fullyRedeemed := false
	if max != nil && newCount == *max {
		newStatus = model.StatusRedeemed
		fullyRedeemed = true
	}

	if err := s.coupons.UpdateStatusCAS(ctx, tx, coupon.ID, newStatus, coupon.Version); err != nil {
		return nil, err
	}
	if err := s.assignments.RecordRedemption(ctx, tx, assignment.ID, newCount, now, metadata); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	var remaining *int
	if max != nil {
		r := *max - newCount
		remaining = &r
	}
	return &model.RedeemResult{
		Code:            code,
		RedeemedAt:      now,
		RedemptionCount: newCount,
		Remaining:       remaining,
		FullyRedeemed:   fullyRedeemed,
	}, nil
}

// GetStatus reports the coupon's state as seen by the given user:
// ownership, derived expiry, reservation lock state and redemption
// counters.
func (s *CouponService) GetStatus(ctx context.Context, code, userID string) (*model.CouponStatusResult, error) {
	coupon, err := s.coupons.GetByCode(ctx, s.db, code)
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}
	book, err := s.books.GetByID(ctx, s.db, coupon.BookID)
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if book == nil {
		return nil, ErrBookNotFound
	}
	assignment, err := s.assignments.GetByCouponAndUser(ctx, s.db, coupon.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}

	now := s.now()
	status := coupon.Status
	if book.Expired(now) && status != model.StatusRedeemed {
		status = model.StatusExpired
	}

	result := &model.CouponStatusResult{
		Code:           coupon.Code,
		Status:         status,
		Owned:          assignment != nil,
		MaxRedemptions: book.MaxRedemptionsPerUser,
		ValidUntil:     book.ValidUntil,
	}
	if assignment != nil {
		result.RedemptionCount = assignment.RedemptionCount
		result.Locked = assignment.LockActive(now)
		result.LockExpiresAt = assignment.LockExpiresAt
	}
	return result, nil
}

// GetUserCoupons returns a page of the user's coupons, most recently
// assigned first.
func (s *CouponService) GetUserCoupons(ctx context.Context, userID string, page, limit int) (*model.UserCouponsResponse, error) {
	page, limit, offset := normalizePage(page, limit)

	items, err := s.assignments.ListByUser(ctx, userID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list user coupons: %w", err)
	}
	total, err := s.assignments.CountByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count user coupons: %w", err)
	}
	return &model.UserCouponsResponse{
		Items:      items,
		Pagination: model.Pagination{Page: page, Limit: limit, Total: total},
	}, nil
}
