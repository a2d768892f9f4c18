package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/context-fabric/contextfabric/internal/ferrors"
)

func TestMapErrorNilReturnsNil(t *testing.T) {
	require.Nil(t, MapError(nil))
}

func TestMapErrorPreservesFabricErrorKind(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{ferrors.NotFound("x"), ErrCodeNotFound},
		{ferrors.InvalidTier(9), ErrCodeInvalidTier},
		{ferrors.ImmutableTier("update", 1), ErrCodeImmutableTier},
		{ferrors.InvalidPromotion("terminal"), ErrCodeInvalidPromotion},
		{ferrors.StoreUnavailable(context.Canceled), ErrCodeStoreUnavailable},
		{ferrors.InvalidInput("bad"), ErrCodeInvalidParams},
	}
	for _, c := range cases {
		mcpErr := MapError(c.err)
		require.Equal(t, c.code, mcpErr.Code)
		require.Equal(t, c.err.Error(), mcpErr.Message)
	}
}

func TestMapErrorFallsBackForUnknownError(t *testing.T) {
	mcpErr := MapError(context.DeadlineExceeded)
	require.Equal(t, ErrCodeInternalError, mcpErr.Code)
}
