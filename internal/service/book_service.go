package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fairyhunter13/coupon-book-system/internal/codegen"
	"github.com/fairyhunter13/coupon-book-system/internal/model"
	"github.com/fairyhunter13/coupon-book-system/pkg/database"
)

// MaxUploadCodes caps the number of codes accepted per upload call.
const MaxUploadCodes = 10000

// DB is the database handle the services need: plain queries plus
// transaction begin. *pgxpool.Pool satisfies it.
type DB interface {
	database.TxQuerier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// BookRepositoryInterface defines the interface for coupon book data access.
type BookRepositoryInterface interface {
	Insert(ctx context.Context, book *model.CouponBook) error
	GetByID(ctx context.Context, q database.TxQuerier, id uuid.UUID) (*model.CouponBook, error)
	GetForUpdate(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (*model.CouponBook, error)
	List(ctx context.Context, offset, limit int) ([]model.CouponBook, error)
	Count(ctx context.Context) (int, error)
	Deactivate(ctx context.Context, id uuid.UUID) (bool, error)
	AddTotalCodes(ctx context.Context, tx database.TxQuerier, id uuid.UUID, delta int) error
}

// CouponRepositoryInterface defines the interface for coupon data access.
type CouponRepositoryInterface interface {
	BulkInsert(ctx context.Context, tx database.TxQuerier, bookID uuid.UUID, codes []string) (int, error)
	PickAvailableForUpdate(ctx context.Context, tx database.TxQuerier, bookID uuid.UUID) (*model.Coupon, error)
	GetByCode(ctx context.Context, q database.TxQuerier, code string) (*model.Coupon, error)
	LockByCodeNoWait(ctx context.Context, tx database.TxQuerier, code string) (*model.Coupon, error)
	UpdateStatus(ctx context.Context, tx database.TxQuerier, id uuid.UUID, status model.CouponStatus) error
	UpdateStatusCAS(ctx context.Context, tx database.TxQuerier, id uuid.UUID, status model.CouponStatus, version int) error
	ListByBook(ctx context.Context, bookID uuid.UUID, offset, limit int) ([]model.CouponListItem, error)
	CountByBook(ctx context.Context, bookID uuid.UUID) (int, error)
	StatusCounts(ctx context.Context, bookID uuid.UUID) (*model.BookStats, error)
}

// BookService provides business logic for the coupon book catalog and
// the bulk materialization of codes.
type BookService struct {
	db      DB
	books   BookRepositoryInterface
	coupons CouponRepositoryInterface
}

// NewBookService creates a new BookService.
func NewBookService(db DB, books BookRepositoryInterface, coupons CouponRepositoryInterface) *BookService {
	return &BookService{db: db, books: books, coupons: coupons}
}

// CreateBook validates and persists a new coupon book.
// Returns ErrInvalidValidityWindow, ErrPatternRequiresMaxCodes,
// ErrInvalidPattern or ErrBookExists on rule violations.
func (s *BookService) CreateBook(ctx context.Context, req *model.CreateBookRequest) (*model.CouponBook, error) {
	// Defense-in-depth: check for nil pointer even though handler validates
	if req == nil {
		return nil, ErrInvalidRequest
	}
	if !req.ValidFrom.Before(req.ValidUntil) {
		return nil, ErrInvalidValidityWindow
	}
	if req.CodePattern != nil {
		if req.MaxCodes == nil {
			return nil, ErrPatternRequiresMaxCodes
		}
		if _, err := codegen.Parse(*req.CodePattern); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPattern, err)
		}
	}

	book := &model.CouponBook{
		ID:                    uuid.New(),
		Name:                  req.Name,
		Description:           req.Description,
		Active:                true,
		ValidFrom:             req.ValidFrom,
		ValidUntil:            req.ValidUntil,
		MaxRedemptionsPerUser: req.MaxRedemptionsPerUser,
		MaxAssignmentsPerUser: req.MaxAssignmentsPerUser,
		CodePattern:           req.CodePattern,
		MaxCodes:              req.MaxCodes,
		Metadata:              req.Metadata,
	}
	if err := s.books.Insert(ctx, book); err != nil {
		if errors.Is(err, ErrBookExists) {
			return nil, ErrBookExists
		}
		return nil, fmt.Errorf("create book: %w", err)
	}
	return book, nil
}

// GetBook retrieves a book with its per-status coupon statistics.
// Returns ErrBookNotFound if the book doesn't exist.
func (s *BookService) GetBook(ctx context.Context, id uuid.UUID) (*model.BookResponse, error) {
	book, err := s.books.GetByID(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if book == nil {
		return nil, ErrBookNotFound
	}

	stats, err := s.coupons.StatusCounts(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get book stats: %w", err)
	}
	return &model.BookResponse{CouponBook: *book, Stats: stats}, nil
}

// ListBooks returns a page of books, newest first.
func (s *BookService) ListBooks(ctx context.Context, page, limit int) (*model.BookListResponse, error) {
	page, limit, offset := normalizePage(page, limit)

	items, err := s.books.List(ctx, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	total, err := s.books.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count books: %w", err)
	}
	return &model.BookListResponse{
		Items:      items,
		Pagination: model.Pagination{Page: page, Limit: limit, Total: total},
	}, nil
}

// ListCoupons returns a page of (code, status) pairs for the book,
// newest first.
// Returns ErrBookNotFound if the book doesn't exist.
func (s *BookService) ListCoupons(ctx context.Context, bookID uuid.UUID, page, limit int) (*model.CouponListResponse, error) {
	book, err := s.books.GetByID(ctx, s.db, bookID)
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if book == nil {
		return nil, ErrBookNotFound
	}

	page, limit, offset := normalizePage(page, limit)
	items, err := s.coupons.ListByBook(ctx, bookID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	total, err := s.coupons.CountByBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("count coupons: %w", err)
	}
	return &model.CouponListResponse{
		Items:      items,
		Pagination: model.Pagination{Page: page, Limit: limit, Total: total},
	}, nil
}

// DeactivateBook transitions active from true to false. The transition
// is one-way; repeating it is a conflict, not a no-op.
// Returns ErrBookNotFound or ErrBookAlreadyInactive.
func (s *BookService) DeactivateBook(ctx context.Context, id uuid.UUID) error {
	updated, err := s.books.Deactivate(ctx, id)
	if err != nil {
		return fmt.Errorf("deactivate book: %w", err)
	}
	if updated {
		return nil
	}

	// Nothing changed: either the book is missing or already inactive.
	book, err := s.books.GetByID(ctx, s.db, id)
	if err != nil {
		return fmt.Errorf("get book: %w", err)
	}
	if book == nil {
		return ErrBookNotFound
	}
	return ErrBookAlreadyInactive
}

// UploadCodes validates, normalizes and bulk-inserts caller-provided
// codes into a patternless book. All batches commit in one transaction
// together with the total_codes bump.
func (s *BookService) UploadCodes(ctx context.Context, bookID uuid.UUID, codes []string) (*model.CodeBatchResult, error) {
	if len(codes) == 0 {
		return nil, ErrInvalidRequest
	}
	if len(codes) > MaxUploadCodes {
		return nil, ErrTooManyCodes
	}

	// Validation happens before the transaction opens; invalid codes
	// never consume lock time.
	invalid := 0
	duplicates := 0
	seen := make(map[string]struct{}, len(codes))
	valid := make([]string, 0, len(codes))
	for _, raw := range codes {
		code := codegen.Normalize(raw)
		if err := codegen.ValidateCode(code); err != nil {
			invalid++
			continue
		}
		if _, dup := seen[code]; dup {
			duplicates++
			continue
		}
		seen[code] = struct{}{}
		valid = append(valid, code)
	}

	book, err := s.books.GetByID(ctx, s.db, bookID)
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if book == nil {
		return nil, ErrBookNotFound
	}
	if !book.Active {
		return nil, ErrBookInactive
	}
	if book.CodePattern != nil {
		return nil, ErrBookHasPattern
	}

	inserted := 0
	newTotal := book.TotalCodes
	if len(valid) > 0 {
		tx, err := s.db.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

		// The book row lock serializes concurrent bulk inserts so the
		// total_codes counter never drifts.
		book, err = s.books.GetForUpdate(ctx, tx, bookID)
		if err != nil {
			return nil, err
		}
		if !book.Active {
			return nil, ErrBookInactive
		}

		inserted, err = s.coupons.BulkInsert(ctx, tx, bookID, valid)
		if err != nil {
			return nil, fmt.Errorf("bulk insert: %w", err)
		}
		duplicates += len(valid) - inserted

		if err := s.books.AddTotalCodes(ctx, tx, bookID, inserted); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit tx: %w", err)
		}
		newTotal = book.TotalCodes + inserted
	}

	return &model.CodeBatchResult{
		Uploaded:   inserted,
		Duplicates: duplicates,
		Invalid:    invalid,
		NewTotal:   newTotal,
		MaxCodes:   book.MaxCodes,
	}, nil
}

// GenerateCodes materializes codes from the book's pattern. The count
// is clamped to the remaining capacity under the book row lock; the
// 80% combinatorial capacity rule then applies to the clamped count.
func (s *BookService) GenerateCodes(ctx context.Context, bookID uuid.UUID, count int) (*model.CodeBatchResult, error) {
	if count <= 0 {
		return nil, ErrInvalidRequest
	}

	book, err := s.books.GetByID(ctx, s.db, bookID)
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if book == nil {
		return nil, ErrBookNotFound
	}
	if !book.Active {
		return nil, ErrBookInactive
	}
	if book.CodePattern == nil {
		return nil, ErrBookHasNoPattern
	}

	pattern, err := codegen.Parse(*book.CodePattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPattern, err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	book, err = s.books.GetForUpdate(ctx, tx, bookID)
	if err != nil {
		return nil, err
	}
	if !book.Active {
		return nil, ErrBookInactive
	}

	remaining := *book.MaxCodes - book.TotalCodes
	if remaining <= 0 {
		return nil, ErrBookFull
	}
	if count > remaining {
		count = remaining
	}
	if !pattern.CanGenerate(count) {
		return nil, ErrCountExceedsCapacity
	}

	codes, err := pattern.Generate(count)
	if err != nil {
		if errors.Is(err, codegen.ErrPatternExhausted) {
			return nil, fmt.Errorf("%w: %s", ErrPatternExhausted, err)
		}
		return nil, fmt.Errorf("generate codes: %w", err)
	}

	// Generated codes may still collide with rows already in the
	// store (globally unique codes); conflict-ignore absorbs those.
	inserted, err := s.coupons.BulkInsert(ctx, tx, bookID, codes)
	if err != nil {
		return nil, fmt.Errorf("bulk insert: %w", err)
	}
	if err := s.books.AddTotalCodes(ctx, tx, bookID, inserted); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &model.CodeBatchResult{
		Uploaded:   inserted,
		Duplicates: count - inserted,
		Invalid:    0,
		NewTotal:   book.TotalCodes + inserted,
		MaxCodes:   book.MaxCodes,
	}, nil
}

// normalizePage applies 1-based pagination defaults and caps.
func normalizePage(page, limit int) (p, l, offset int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit, (page - 1) * limit
}
