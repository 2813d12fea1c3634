package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(ErrInvalidValidityWindow))
	assert.Equal(t, KindValidation, KindOf(ErrCountExceedsCapacity))
	assert.Equal(t, KindNotFound, KindOf(ErrBookNotFound))
	assert.Equal(t, KindNotFound, KindOf(ErrAssignmentNotFound))
	assert.Equal(t, KindConflict, KindOf(ErrVersionConflict))
	assert.Equal(t, KindConflict, KindOf(ErrRedeemInProgress))
	assert.Equal(t, KindBusiness, KindOf(ErrRedemptionLimitReached))
	assert.Equal(t, KindBusiness, KindOf(ErrPatternExhausted))
}

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("generate codes: %w", ErrPatternExhausted)
	assert.Equal(t, KindBusiness, KindOf(err))
}

func TestKindOf_UnknownIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("dial tcp: connection refused")))
	assert.Equal(t, KindInternal, KindOf(nil))
}
