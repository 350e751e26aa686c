package stakegrpc

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/blockberries/stakeberry"
	"github.com/blockberries/stakeberry/server"
)

func TestToStatus_HaltOutsideRPCLogsTrailerFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	// A bare context has no server stream, so the trailer cannot be set.
	err := toStatus(context.Background(), logger, stakeberry.NewHaltError(4, "diverged"))
	require.Equal(t, codes.Aborted, status.Code(err))
	require.Contains(t, buf.String(), "cannot attach halt height to trailer")
	require.Contains(t, buf.String(), `"height":4`)
}

func TestStatusRoundTrip(t *testing.T) {
	cases := map[string]struct {
		err  error
		code codes.Code
		want error
	}{
		"unexpected height": {server.ErrUnexpectedHeight, codes.FailedPrecondition, server.ErrUnexpectedHeight},
		"unsupported":       {server.ErrUnsupported, codes.Unimplemented, server.ErrUnsupported},
		"canceled":          {context.Canceled, codes.Canceled, context.Canceled},
		"deadline":          {context.DeadlineExceeded, codes.DeadlineExceeded, context.DeadlineExceeded},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			st := toStatus(context.Background(), zerolog.Nop(), tc.err)
			require.Equal(t, tc.code, status.Code(st))
			require.ErrorIs(t, fromStatus(st, nil), tc.want)
		})
	}

	t.Run("halt", func(t *testing.T) {
		st := status.Error(codes.Aborted, "diverged")
		err := fromStatus(st, metadata.Pairs(haltHeightKey, "9"))
		h, ok := stakeberry.IsHalt(err)
		require.True(t, ok)
		require.Equal(t, uint64(9), h.Height)

		// Without the trailer the status is passed through.
		require.Equal(t, st, fromStatus(st, nil))
	})

	t.Run("internal", func(t *testing.T) {
		st := toStatus(context.Background(), zerolog.Nop(), errors.New("boom"))
		require.Equal(t, codes.Internal, status.Code(st))
	})
}
