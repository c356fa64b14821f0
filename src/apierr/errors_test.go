package apierr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesSameKind(t *testing.T) {
	t.Parallel()
	err1 := Storage("save failed", errors.New("disk full"))
	err2 := Storage("read failed", nil)
	require.True(t, errors.Is(err1, err2))

	validation := Validation("bad request")
	require.False(t, errors.Is(err1, validation))
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()
	inner := errors.New("boom")
	wrapped := Upstream("fetch failed", inner)
	require.ErrorIs(t, wrapped, inner)
}

func TestAsKind(t *testing.T) {
	t.Parallel()
	kind, ok := AsKind(RateLimited("too many requests", nil))
	require.True(t, ok)
	require.Equal(t, KindRateLimited, kind)

	_, ok = AsKind(errors.New("plain error"))
	require.False(t, ok)
}

func TestExhausted_CarriesExhaustedKind(t *testing.T) {
	t.Parallel()
	err := Exhausted("series ended at the exchange")
	kind, ok := AsKind(err)
	require.True(t, ok)
	require.Equal(t, KindExhausted, kind)
}
