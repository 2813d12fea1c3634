package service

import "errors"

// Kind classifies a service error for transport mapping. The engine
// never recovers silently from NotFound, Conflict or Business errors;
// they surface to the caller verbatim and retries are the caller's
// decision.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindBusiness
)

// Validation errors: input failed grammar or shape checks.
var (
	// ErrInvalidRequest is returned when request data is invalid or incomplete
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidPattern is returned when a code pattern fails the grammar
	ErrInvalidPattern = errors.New("invalid code pattern")

	// ErrPatternRequiresMaxCodes is returned when a book sets a pattern without max_codes
	ErrPatternRequiresMaxCodes = errors.New("code pattern requires max_codes")

	// ErrInvalidValidityWindow is returned when valid_from is not before valid_until
	ErrInvalidValidityWindow = errors.New("valid_from must be before valid_until")

	// ErrTooManyCodes is returned when an upload exceeds the per-call cap
	ErrTooManyCodes = errors.New("too many codes in one call")

	// ErrCountExceedsCapacity is returned when the requested count breaks
	// the 80% pattern capacity rule
	ErrCountExceedsCapacity = errors.New("count exceeds 80% of pattern capacity")

	// ErrInvalidLockDuration is returned when a lock duration falls outside [30, 600] seconds
	ErrInvalidLockDuration = errors.New("lock duration out of range")
)

// NotFound errors: the referenced entity does not exist.
var (
	// ErrBookNotFound is returned when a coupon book cannot be found
	ErrBookNotFound = errors.New("coupon book not found")

	// ErrCouponNotFound is returned when a coupon cannot be found
	ErrCouponNotFound = errors.New("coupon not found")

	// ErrAssignmentNotFound is returned when the coupon is not bound to the user
	ErrAssignmentNotFound = errors.New("coupon not assigned to user")
)

// Conflict errors: concurrent-access loser, duplicate insert, or repeat action.
var (
	// ErrBookExists is returned when a book with the same name and description already exists
	ErrBookExists = errors.New("coupon book already exists")

	// ErrBookAlreadyInactive is returned when deactivating an inactive book
	ErrBookAlreadyInactive = errors.New("coupon book already inactive")

	// ErrAlreadyAssigned is returned when the coupon is already bound to the user
	ErrAlreadyAssigned = errors.New("coupon already assigned to user")

	// ErrCouponContended is returned when a no-wait row lock loses to another transaction
	ErrCouponContended = errors.New("coupon is being modified by another request")

	// ErrCouponLockHeld is returned when the cache-plane coupon lock is taken
	ErrCouponLockHeld = errors.New("coupon is currently locked")

	// ErrRedeemInProgress is returned when a redemption for the same coupon
	// and user is already in flight
	ErrRedeemInProgress = errors.New("redemption already in progress")

	// ErrVersionConflict is returned when the compare-and-set on the coupon
	// version loses; the caller may safely retry
	ErrVersionConflict = errors.New("coupon was modified concurrently, retry")
)

// Business errors: legitimate requests disallowed by rule.
var (
	// ErrBookInactive is returned when operating on a deactivated book
	ErrBookInactive = errors.New("coupon book is inactive")

	// ErrBookNotStarted is returned before the book's validity window opens
	ErrBookNotStarted = errors.New("coupon book validity has not started")

	// ErrBookExpired is returned after the book's validity window closes
	ErrBookExpired = errors.New("coupon book has expired")

	// ErrBookFull is returned when a book already holds max_codes coupons
	ErrBookFull = errors.New("coupon book is full")

	// ErrBookHasPattern is returned when uploading codes to a pattern book
	ErrBookHasPattern = errors.New("book generates its own codes")

	// ErrBookHasNoPattern is returned when generating codes for a patternless book
	ErrBookHasNoPattern = errors.New("book has no code pattern")

	// ErrNoAvailableCoupons is returned when a book has no AVAILABLE coupon left
	ErrNoAvailableCoupons = errors.New("no available coupons")

	// ErrAssignmentLimitReached is returned when the user hit max_assignments_per_user
	ErrAssignmentLimitReached = errors.New("assignment limit reached for user")

	// ErrRedemptionLimitReached is returned when the user hit max_redemptions_per_user
	ErrRedemptionLimitReached = errors.New("redemption limit reached")

	// ErrCouponNotAvailable is returned when assigning a coupon that is not AVAILABLE
	ErrCouponNotAvailable = errors.New("coupon is not available")

	// ErrCouponNotLockable is returned when locking a coupon that is neither
	// ASSIGNED nor LOCKED
	ErrCouponNotLockable = errors.New("coupon cannot be locked in its current state")

	// ErrCouponNotLocked is returned when unlocking a coupon that is not LOCKED
	ErrCouponNotLocked = errors.New("coupon is not locked")

	// ErrCouponNotRedeemable is returned when redeeming a coupon that is
	// neither ASSIGNED nor LOCKED
	ErrCouponNotRedeemable = errors.New("coupon cannot be redeemed in its current state")

	// ErrPatternExhausted is returned when the generator ran out of draws
	ErrPatternExhausted = errors.New("pattern exhausted")
)

var kinds = map[error]Kind{
	ErrInvalidRequest:          KindValidation,
	ErrInvalidPattern:          KindValidation,
	ErrPatternRequiresMaxCodes: KindValidation,
	ErrInvalidValidityWindow:   KindValidation,
	ErrTooManyCodes:            KindValidation,
	ErrCountExceedsCapacity:    KindValidation,
	ErrInvalidLockDuration:     KindValidation,

	ErrBookNotFound:       KindNotFound,
	ErrCouponNotFound:     KindNotFound,
	ErrAssignmentNotFound: KindNotFound,

	ErrBookExists:          KindConflict,
	ErrBookAlreadyInactive: KindConflict,
	ErrAlreadyAssigned:     KindConflict,
	ErrCouponContended:     KindConflict,
	ErrCouponLockHeld:      KindConflict,
	ErrRedeemInProgress:    KindConflict,
	ErrVersionConflict:     KindConflict,

	ErrBookInactive:           KindBusiness,
	ErrBookNotStarted:         KindBusiness,
	ErrBookExpired:            KindBusiness,
	ErrBookFull:               KindBusiness,
	ErrBookHasPattern:         KindBusiness,
	ErrBookHasNoPattern:       KindBusiness,
	ErrNoAvailableCoupons:     KindBusiness,
	ErrAssignmentLimitReached: KindBusiness,
	ErrRedemptionLimitReached: KindBusiness,
	ErrCouponNotAvailable:     KindBusiness,
	ErrCouponNotLockable:      KindBusiness,
	ErrCouponNotLocked:        KindBusiness,
	ErrCouponNotRedeemable:    KindBusiness,
	ErrPatternExhausted:       KindBusiness,
}

// KindOf classifies err by its sentinel. Unrecognized errors are
// Internal: unexpected backend failures that handlers log and mask.
func KindOf(err error) Kind {
	for sentinel, kind := range kinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}
