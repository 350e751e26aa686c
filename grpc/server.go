package stakegrpc

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/blockberries/stakeberry"
	"github.com/blockberries/stakeberry/server"
	"github.com/blockberries/stakeberry/types"
)

var _ HostServer = (*GRPCServer)(nil)

// GRPCServer exposes an application to a remote host.
type GRPCServer struct {
	srv    *server.Server
	logger zerolog.Logger
}

// NewGRPCServer wraps app. Server options apply to the underlying
// lifecycle server.
func NewGRPCServer(app stakeberry.Lifecycle, logger zerolog.Logger, opts ...server.Option) *GRPCServer {
	opts = append([]server.Option{server.WithLogger(logger)}, opts...)
	return &GRPCServer{
		srv:    server.New(app, opts...),
		logger: logger.With().Str("component", "grpc").Logger(),
	}
}

// Register adds the host service to gs.
func (s *GRPCServer) Register(gs *grpc.Server) {
	RegisterHostServer(gs, s)
}

// NewServer builds a grpc.Server with request logging and panic
// recovery, and registers s on it.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(s.interceptor)}, opts...)
	gs := grpc.NewServer(opts...)
	s.Register(gs)
	return gs
}

// Server returns the underlying lifecycle server.
func (s *GRPCServer) Server() *server.Server {
	return s.srv
}

func (s *GRPCServer) interceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("method", info.FullMethod).Interface("panic", r).Msg("handler panicked")
			err = status.Error(codes.Internal, fmt.Sprint(r))
		}
		ev := s.logger.Debug()
		if err != nil {
			ev = s.logger.Warn().Err(err)
		}
		ev.Str("method", info.FullMethod).Dur("took", time.Since(start)).Msg("rpc")
	}()
	return handler(ctx, req)
}

func (s *GRPCServer) Handshake(ctx context.Context, req *types.HandshakeRequest) (*types.HandshakeResponse, error) {
	resp, err := s.srv.Handshake(ctx, *req)
	if err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}
	return &resp, nil
}

func (s *GRPCServer) CheckTx(ctx context.Context, req *CheckTxRequest) (*types.GateVerdict, error) {
	verdict, err := s.srv.CheckTx(ctx, req.Tx, req.Context)
	if err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}
	return &verdict, nil
}

func (s *GRPCServer) ExecuteBlock(ctx context.Context, block *types.FinalizedBlock) (*types.BlockOutcome, error) {
	outcome, err := s.srv.ExecuteBlock(ctx, *block)
	if err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}
	return &outcome, nil
}

func (s *GRPCServer) Commit(ctx context.Context, _ *CommitRequest) (*types.CommitResult, error) {
	result, err := s.srv.Commit(ctx)
	if err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}
	return &result, nil
}

func (s *GRPCServer) Query(ctx context.Context, req *types.StateQuery) (*types.StateQueryResult, error) {
	result, err := s.srv.Query(ctx, *req)
	if err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}
	return &result, nil
}

func (s *GRPCServer) Simulate(ctx context.Context, req *SimulateRequest) (*types.TxOutcome, error) {
	outcome, err := s.srv.Simulate(ctx, req.Tx)
	if err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}
	return &outcome, nil
}
