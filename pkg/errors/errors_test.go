package errors

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppErrorErrorIncludesInternal(t *testing.T) {
	inner := stderrors.New("boom")
	err := Wrap(inner, "operation failed")

	require.Contains(t, err.Error(), "operation failed")
	require.Contains(t, err.Error(), "boom")
	require.ErrorIs(t, err, inner)
}

func TestWithInternalDoesNotMutateSentinel(t *testing.T) {
	wrapped := ErrNotFound.WithInternal(stderrors.New("row missing"))

	require.NotSame(t, ErrNotFound, wrapped)
	require.Nil(t, ErrNotFound.Internal)
	require.Equal(t, ErrNotFound.Code, wrapped.Code)
}

func TestFromErrorPassesThroughAppErrors(t *testing.T) {
	require.Same(t, ErrRecipientNotFound, FromError(ErrRecipientNotFound))

	generic := FromError(stderrors.New("unexpected"))
	require.Equal(t, ErrInternalServer.Code, generic.Code)
	require.Equal(t, http.StatusInternalServerError, generic.StatusCode)
}

func TestErrorsIsMatchesWrappedSentinels(t *testing.T) {
	wrapped := ErrRecipientNotFound.WithInternal(stderrors.New("user row gone"))
	var appErr *AppError
	require.True(t, stderrors.As(wrapped, &appErr))
	require.Equal(t, "RECIPIENT_NOT_FOUND", appErr.Code)
}
