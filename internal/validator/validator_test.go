package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type subject struct {
	UserID string `validate:"required,notblank"`
}

func TestNotBlank(t *testing.T) {
	v := New()

	require.NoError(t, v.Struct(subject{UserID: "user-1"}))

	assert.Error(t, v.Struct(subject{UserID: "   "}), "whitespace-only fails notblank")
	assert.Error(t, v.Struct(subject{UserID: "\t\n"}))
	assert.Error(t, v.Struct(subject{UserID: ""}), "empty fails required first")
}

func TestNotBlank_NonString(t *testing.T) {
	v := New()

	// notblank passes through non-string fields untouched.
	type intSubject struct {
		Count int `validate:"notblank"`
	}
	assert.NoError(t, v.Struct(intSubject{Count: 0}))
}
