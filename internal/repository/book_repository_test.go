package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/coupon-book-system/internal/model"
	"github.com/fairyhunter13/coupon-book-system/internal/service"
)

func TestBookRepository_Insert_Success(t *testing.T) {
	var capturedSQL string
	var capturedArgs []any
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	mock := &mockQuerier{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			capturedSQL = sql
			capturedArgs = args
			return &mockRow{scanFn: func(dest ...any) error {
				*dest[0].(*time.Time) = now
				*dest[1].(*time.Time) = now
				return nil
			}}
		},
	}
	repo := NewBookRepositoryWithQuerier(mock)

	book := &model.CouponBook{
		ID:         uuid.New(),
		Name:       "Summer Sale",
		Active:     true,
		ValidFrom:  now,
		ValidUntil: now.Add(24 * time.Hour),
	}
	err := repo.Insert(context.Background(), book)

	require.NoError(t, err)
	assert.Contains(t, capturedSQL, "INSERT INTO coupon_books")
	assert.Contains(t, capturedSQL, "RETURNING created_at, updated_at")
	require.Len(t, capturedArgs, 11)
	assert.Equal(t, book.ID, capturedArgs[0])
	assert.Equal(t, "Summer Sale", capturedArgs[1])
	assert.Equal(t, map[string]any{}, capturedArgs[10], "nil metadata coerces to an empty object")
	assert.Equal(t, now, book.CreatedAt)
}

func TestBookRepository_Insert_DuplicatePair(t *testing.T) {
	mock := &mockQuerier{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &mockRow{scanFn: func(dest ...any) error {
				return &pgconn.PgError{Code: "23505", ConstraintName: "coupon_books_name_description_key"}
			}}
		},
	}
	repo := NewBookRepositoryWithQuerier(mock)

	err := repo.Insert(context.Background(), &model.CouponBook{ID: uuid.New(), Name: "Summer Sale"})

	assert.ErrorIs(t, err, service.ErrBookExists)
}

func TestBookRepository_GetByID_NotFound(t *testing.T) {
	mock := &mockQuerier{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row { return noRows },
	}
	repo := NewBookRepositoryWithQuerier(mock)

	book, err := repo.GetByID(context.Background(), mock, uuid.New())

	require.NoError(t, err, "a missing book is not an error at this layer")
	assert.Nil(t, book)
}

func TestBookRepository_GetForUpdate_NotFound(t *testing.T) {
	var capturedSQL string
	mock := &mockQuerier{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			capturedSQL = sql
			return noRows
		},
	}
	repo := NewBookRepositoryWithQuerier(mock)

	_, err := repo.GetForUpdate(context.Background(), mock, uuid.New())

	assert.ErrorIs(t, err, service.ErrBookNotFound)
	assert.Contains(t, capturedSQL, "FOR UPDATE")
}

func TestBookRepository_Deactivate(t *testing.T) {
	var capturedSQL string
	tag := pgconn.NewCommandTag("UPDATE 1")
	mock := &mockQuerier{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			capturedSQL = sql
			return tag, nil
		},
	}
	repo := NewBookRepositoryWithQuerier(mock)

	updated, err := repo.Deactivate(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Contains(t, capturedSQL, "AND active", "already-inactive rows must not match")

	tag = pgconn.NewCommandTag("UPDATE 0")
	updated, err = repo.Deactivate(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestBookRepository_AddTotalCodes(t *testing.T) {
	var capturedSQL string
	var capturedArgs []any
	mock := &mockQuerier{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			capturedSQL = sql
			capturedArgs = arguments
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}
	repo := NewBookRepositoryWithQuerier(mock)

	bookID := uuid.New()
	err := repo.AddTotalCodes(context.Background(), mock, bookID, 250)

	require.NoError(t, err)
	assert.Contains(t, capturedSQL, "total_codes = total_codes + $2")
	assert.Equal(t, []any{bookID, 250}, capturedArgs)
}
