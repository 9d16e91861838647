package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapKeepsCauseOutOfMessage(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(cause, "cache write failed")

	require.Equal(t, "cache write failed: disk full", err.Error())
	require.Equal(t, "cache write failed", err.Message)
	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, err, ErrInternalServer)
}

func TestDerivedCopiesLeaveSentinelUntouched(t *testing.T) {
	got := ErrBadRequest.
		WithMessage("limit must be positive").
		WithDetails([]string{"limit"}).
		WithInternal(stderrors.New("strconv"))

	require.NotSame(t, ErrBadRequest, got)
	require.Equal(t, "Invalid request", ErrBadRequest.Message)
	require.Nil(t, ErrBadRequest.Details)
	require.Nil(t, ErrBadRequest.Internal)
	require.Equal(t, http.StatusBadRequest, got.StatusCode)
	require.Equal(t, []string{"limit"}, got.Details)
}

func TestIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("sync: %w", ErrOffline.WithInternal(stderrors.New("dial tcp: refused")))

	require.ErrorIs(t, wrapped, ErrOffline)
	require.NotErrorIs(t, wrapped, ErrNotFound)
}

func TestFromError(t *testing.T) {
	require.Nil(t, FromError(nil))
	require.Same(t, ErrNotFound, FromError(ErrNotFound))

	nested := fmt.Errorf("handler: %w", NewBadRequest("bad id"))
	require.Equal(t, "bad id", FromError(nested).Message)

	out := FromError(stderrors.New("raw"))
	require.Equal(t, ErrInternalServer.Code, out.Code)
	require.EqualError(t, out.Internal, "raw")
}

func TestNilAppError(t *testing.T) {
	var err *AppError
	require.Equal(t, "<nil>", err.Error())
	require.Nil(t, err.WithMessage("x"))
	require.NoError(t, err.Unwrap())
}
