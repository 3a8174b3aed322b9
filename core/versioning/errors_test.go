package versioning

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionError_Is(t *testing.T) {
	err := newVersionError(KindDuplicateVersion, "record", "doc1", "1.0.0", "", nil)

	assert.True(t, errors.Is(err, ErrDuplicateVersion))
	assert.False(t, errors.Is(err, ErrVersionNotFound))
	assert.True(t, IsDuplicate(fmt.Errorf("wrapped: %w", err)))
}

func TestVersionError_Unwrap(t *testing.T) {
	err := newVersionError(KindContentUnavailable, "read", "doc1", "1.0.0", "", context.Canceled)

	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, errors.Is(err, ErrContentUnavailable))
}

func TestVersionError_Message(t *testing.T) {
	err := newVersionError(KindVersionNotFound, "tag", "doc1", "2.0.0", "no such version", nil)

	assert.Equal(t, "[version_not_found] tag doc1@2.0.0: no such version", err.Error())
}

func TestKindOf(t *testing.T) {
	kind, ok := KindOf(fmt.Errorf("outer: %w", ErrNilContent))
	assert.True(t, ok)
	assert.Equal(t, KindValidation, kind)

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestErrorKind_String(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindValidation, "validation"},
		{KindDuplicateVersion, "duplicate_version"},
		{KindVersionNotFound, "version_not_found"},
		{KindContentUnavailable, "content_unavailable"},
		{KindConflictPresent, "conflict_present"},
		{ErrorKind(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.String())
		})
	}
}
