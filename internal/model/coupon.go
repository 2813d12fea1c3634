package model

import (
	"time"

	"github.com/google/uuid"
)

// CouponStatus is the lifecycle state of a single coupon.
type CouponStatus string

const (
	StatusAvailable CouponStatus = "AVAILABLE"
	StatusAssigned  CouponStatus = "ASSIGNED"
	StatusLocked    CouponStatus = "LOCKED"
	StatusRedeemed  CouponStatus = "REDEEMED"
	// StatusExpired is derived from the book's validity window on read
	// paths; it is never written by the engine.
	StatusExpired CouponStatus = "EXPIRED"
)

// Coupon is an individual code drawn from a book. The version column
// is read before and written back with a compare-and-set; every
// mutation increments it.
type Coupon struct {
	ID        uuid.UUID    `json:"id"`
	BookID    uuid.UUID    `json:"coupon_book_id"`
	Code      string       `json:"code"`
	Status    CouponStatus `json:"status"`
	Version   int          `json:"version"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// CouponAssignment binds a coupon to a user and carries its redemption
// counters and reservation lock state. At most one row exists per
// (coupon, user) pair; rows are never deleted.
type CouponAssignment struct {
	ID              uuid.UUID      `json:"id"`
	CouponID        uuid.UUID      `json:"coupon_id"`
	UserID          string         `json:"user_id"`
	AssignedAt      time.Time      `json:"assigned_at"`
	LockedAt        *time.Time     `json:"locked_at,omitempty"`
	LockExpiresAt   *time.Time     `json:"lock_expires_at,omitempty"`
	RedeemedAt      *time.Time     `json:"redeemed_at,omitempty"`
	RedemptionCount int            `json:"redemption_count"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// LockActive reports whether the checkout reservation is still in
// force at the given instant.
func (a *CouponAssignment) LockActive(now time.Time) bool {
	return a.LockExpiresAt != nil && a.LockExpiresAt.After(now)
}

// AssignRandomRequest is the DTO for POST /coupons/assign/random.
type AssignRandomRequest struct {
	BookID uuid.UUID `json:"coupon_book_id" validate:"required"`
	UserID string    `json:"user_id" validate:"required,notblank,max=255"`
}

// AssignSpecificRequest is the DTO for POST /coupons/assign/:code.
type AssignSpecificRequest struct {
	UserID string `json:"user_id" validate:"required,notblank,max=255"`
}

// AssignmentResult is the response body for both assignment operations.
type AssignmentResult struct {
	Code       string    `json:"code"`
	BookID     uuid.UUID `json:"coupon_book_id"`
	UserID     string    `json:"user_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

// LockRequest is the DTO for POST /coupons/:code/lock.
// DurationSeconds defaults to 300 and is bounded to [30, 600].
type LockRequest struct {
	UserID          string `json:"user_id" validate:"required,notblank,max=255"`
	DurationSeconds *int   `json:"duration_seconds" validate:"omitempty,gte=30,lte=600"`
}

// UnlockRequest is the DTO for POST /coupons/:code/unlock.
type UnlockRequest struct {
	UserID string `json:"user_id" validate:"required,notblank,max=255"`
}

// LockResult is the response body for a successful lock.
type LockResult struct {
	Code          string    `json:"code"`
	LockedAt      time.Time `json:"locked_at"`
	LockExpiresAt time.Time `json:"lock_expires_at"`
}

// RedeemRequest is the DTO for POST /coupons/:code/redeem.
type RedeemRequest struct {
	UserID   string         `json:"user_id" validate:"required,notblank,max=255"`
	Metadata map[string]any `json:"metadata"`
}

// RedeemResult is the response body for a successful redemption.
// Remaining is nil when the book allows unlimited redemptions.
type RedeemResult struct {
	Code            string    `json:"code"`
	RedeemedAt      time.Time `json:"redeemed_at"`
	RedemptionCount int       `json:"redemption_count"`
	Remaining       *int      `json:"remaining,omitempty"`
	FullyRedeemed   bool      `json:"fully_redeemed"`
}

// CouponStatusResult is the read-only projection for GET /coupons/:code/status.
type CouponStatusResult struct {
	Code            string       `json:"code"`
	Status          CouponStatus `json:"status"`
	Owned           bool         `json:"owned"`
	Locked          bool         `json:"locked"`
	LockExpiresAt   *time.Time   `json:"lock_expires_at,omitempty"`
	RedemptionCount int          `json:"redemption_count"`
	MaxRedemptions  *int         `json:"max_redemptions,omitempty"`
	ValidUntil      time.Time    `json:"valid_until"`
}

// UserCoupon is one row of a user's coupon listing, joining the
// assignment with its coupon and book.
type UserCoupon struct {
	Code            string       `json:"code"`
	BookID          uuid.UUID    `json:"coupon_book_id"`
	BookName        string       `json:"coupon_book_name"`
	Status          CouponStatus `json:"status"`
	AssignedAt      time.Time    `json:"assigned_at"`
	RedeemedAt      *time.Time   `json:"redeemed_at,omitempty"`
	RedemptionCount int          `json:"redemption_count"`
	ValidUntil      time.Time    `json:"valid_until"`
}

// UserCouponsResponse is the envelope for GET /coupons/my-coupons.
type UserCouponsResponse struct {
	Items      []UserCoupon `json:"items"`
	Pagination Pagination   `json:"pagination"`
}
