package stakegrpc

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/blockberries/stakeberry"
	"github.com/blockberries/stakeberry/server"
)

// haltHeightKey carries HaltError.Height in the response trailer.
const haltHeightKey = "stakeberry-halt-height"

// toStatus maps an application error onto a gRPC status. A HaltError
// also stores its height in the trailer so the client can rebuild it.
func toStatus(ctx context.Context, logger zerolog.Logger, err error) error {
	if err == nil {
		return nil
	}
	if h, ok := stakeberry.IsHalt(err); ok {
		if terr := grpc.SetTrailer(ctx, metadata.Pairs(haltHeightKey, strconv.FormatUint(h.Height, 10))); terr != nil {
			logger.Error().Err(terr).Uint64("height", h.Height).Msg("cannot attach halt height to trailer")
		}
		return status.Error(codes.Aborted, h.Reason)
	}
	switch {
	case errors.Is(err, server.ErrUnexpectedHeight):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, server.ErrUnsupported):
		return status.Error(codes.Unimplemented, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, err.Error())
}

// fromStatus reverses toStatus on the client side.
func fromStatus(err error, trailer metadata.MD) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Aborted:
		if vals := trailer.Get(haltHeightKey); len(vals) > 0 {
			if height, perr := strconv.ParseUint(vals[0], 10, 64); perr == nil {
				return stakeberry.NewHaltError(height, st.Message())
			}
		}
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", server.ErrUnexpectedHeight, st.Message())
	case codes.Unimplemented:
		return fmt.Errorf("%w: %s", server.ErrUnsupported, st.Message())
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", context.DeadlineExceeded, st.Message())
	}
	return err
}
