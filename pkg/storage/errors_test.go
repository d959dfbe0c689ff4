package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/blobnode/pkg/store/file"
)

func TestCodeString(t *testing.T) {
	assert.Equal(t, "invalid_argument", CodeInvalidArgument.String())
	assert.Equal(t, "not_found", CodeNotFound.String())
	assert.Equal(t, "no_space", CodeNoSpace.String())
	assert.Equal(t, "cancelled", CodeCancelled.String())
	assert.Equal(t, "internal", CodeInternal.String())
	assert.Equal(t, "unknown", Code(0).String())
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{
			name: "classified fault",
			err:  Errorf(CodeNotFound, "object not found"),
			want: CodeNotFound,
		},
		{
			name: "classified fault behind wrapping",
			err:  fmt.Errorf("outer: %w", Errorf(CodeNoSpace, "volume full")),
			want: CodeNoSpace,
		},
		{
			name: "context cancellation",
			err:  context.Canceled,
			want: CodeCancelled,
		},
		{
			name: "deadline expiry behind wrapping",
			err:  fmt.Errorf("stream payload: %w", context.DeadlineExceeded),
			want: CodeCancelled,
		},
		{
			name: "store not-found sentinel",
			err:  fmt.Errorf("open object: %w", file.ErrNotFound),
			want: CodeNotFound,
		},
		{
			name: "store no-space sentinel",
			err:  fmt.Errorf("write chunk: %w", file.ErrNoSpace),
			want: CodeNoSpace,
		},
		{
			name: "no-space message without sentinel",
			err:  errors.New("write /srv/blob: no space left on device"),
			want: CodeNoSpace,
		},
		{
			name: "quota message without sentinel",
			err:  errors.New("write: Quota Exceeded"),
			want: CodeNoSpace,
		},
		{
			name: "unrecognized error",
			err:  errors.New("boom"),
			want: CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestErrorf(t *testing.T) {
	t.Run("SupportsWrapping", func(t *testing.T) {
		inner := errors.New("inner failure")
		err := Errorf(CodeInternal, "commit: %w", inner)

		require.True(t, errors.Is(err, inner))
		assert.Equal(t, CodeInternal, CodeOf(err))
		assert.Equal(t, "commit: inner failure", err.Error())
	})

	t.Run("OutermostClassificationWins", func(t *testing.T) {
		inner := Errorf(CodeInternal, "disk exploded")
		outer := Errorf(CodeCancelled, "gave up waiting: %w", inner)

		assert.Equal(t, CodeCancelled, CodeOf(outer))
	})

	t.Run("SentinelSurvivesClassification", func(t *testing.T) {
		err := Errorf(CodeNotFound, "object gone: %w", file.ErrNotFound)

		assert.True(t, errors.Is(err, file.ErrNotFound))
	})
}
