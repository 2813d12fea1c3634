package model

import (
	"time"

	"github.com/google/uuid"
)

// CouponBook is a named collection of coupon codes sharing validity
// rules, per-user limits and an optional generation pattern.
type CouponBook struct {
	ID                    uuid.UUID      `json:"id"`
	Name                  string         `json:"name"`
	Description           *string        `json:"description,omitempty"`
	Active                bool           `json:"active"`
	ValidFrom             time.Time      `json:"valid_from"`
	ValidUntil            time.Time      `json:"valid_until"`
	MaxRedemptionsPerUser *int           `json:"max_redemptions_per_user,omitempty"`
	MaxAssignmentsPerUser *int           `json:"max_assignments_per_user,omitempty"`
	CodePattern           *string        `json:"code_pattern,omitempty"`
	MaxCodes              *int           `json:"max_codes,omitempty"`
	TotalCodes            int            `json:"total_codes"`
	Metadata              map[string]any `json:"metadata,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// InValidityWindow reports whether now falls inside the book's
// inclusive [valid_from, valid_until] interval.
func (b *CouponBook) InValidityWindow(now time.Time) bool {
	return !now.Before(b.ValidFrom) && !now.After(b.ValidUntil)
}

// Expired reports whether the book's validity window has passed.
// Coupon EXPIRED status is derived from this, never stored eagerly.
func (b *CouponBook) Expired(now time.Time) bool {
	return now.After(b.ValidUntil)
}

// BookStats carries per-status coupon counts for a book.
type BookStats struct {
	Available int `json:"available"`
	Assigned  int `json:"assigned"`
	Locked    int `json:"locked"`
	Redeemed  int `json:"redeemed"`
}

// BookResponse is the API DTO for a single book, optionally with
// coupon statistics.
type BookResponse struct {
	CouponBook
	Stats *BookStats `json:"stats,omitempty"`
}

// CreateBookRequest is the DTO for creating a coupon book.
type CreateBookRequest struct {
	Name                  string         `json:"name" validate:"required,notblank,max=255"`
	Description           *string        `json:"description" validate:"omitempty,max=1024"`
	ValidFrom             time.Time      `json:"valid_from" validate:"required"`
	ValidUntil            time.Time      `json:"valid_until" validate:"required"`
	MaxRedemptionsPerUser *int           `json:"max_redemptions_per_user" validate:"omitempty,gte=1"`
	MaxAssignmentsPerUser *int           `json:"max_assignments_per_user" validate:"omitempty,gte=1"`
	CodePattern           *string        `json:"code_pattern" validate:"omitempty,notblank,max=255"`
	MaxCodes              *int           `json:"max_codes" validate:"omitempty,gte=1"`
	Metadata              map[string]any `json:"metadata"`
}

// UploadCodesRequest is the DTO for uploading externally generated codes.
type UploadCodesRequest struct {
	Codes []string `json:"codes" validate:"required,min=1,max=10000"`
}

// GenerateCodesRequest is the DTO for server-side code generation.
type GenerateCodesRequest struct {
	Count int `json:"count" validate:"required,gte=1"`
}

// CodeBatchResult reports the outcome of a bulk code insertion,
// shared by upload and generate.
type CodeBatchResult struct {
	Uploaded   int  `json:"uploaded"`
	Duplicates int  `json:"duplicates"`
	Invalid    int  `json:"invalid"`
	NewTotal   int  `json:"new_total"`
	MaxCodes   *int `json:"max_codes,omitempty"`
}

// Pagination describes the window of a list response.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// BookListResponse is the envelope for GET /coupon-books.
type BookListResponse struct {
	Items      []CouponBook `json:"items"`
	Pagination Pagination   `json:"pagination"`
}

// CouponListItem is one row of a book's coupon listing.
type CouponListItem struct {
	Code   string       `json:"code"`
	Status CouponStatus `json:"status"`
}

// CouponListResponse is the envelope for GET /coupon-books/:id/coupons.
type CouponListResponse struct {
	Items      []CouponListItem `json:"items"`
	Pagination Pagination       `json:"pagination"`
}
