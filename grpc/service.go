package stakegrpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/blockberries/stakeberry/types"
)

const serviceName = "stakeberry.v1.Host"

// HostServer is the server side of the host service.
type HostServer interface {
	Handshake(context.Context, *types.HandshakeRequest) (*types.HandshakeResponse, error)
	CheckTx(context.Context, *CheckTxRequest) (*types.GateVerdict, error)
	ExecuteBlock(context.Context, *types.FinalizedBlock) (*types.BlockOutcome, error)
	Commit(context.Context, *CommitRequest) (*types.CommitResult, error)
	Query(context.Context, *types.StateQuery) (*types.StateQueryResult, error)
	Simulate(context.Context, *SimulateRequest) (*types.TxOutcome, error)
}

// RegisterHostServer registers srv on s.
func RegisterHostServer(s grpc.ServiceRegistrar, srv HostServer) {
	s.RegisterService(&serviceDesc, srv)
}

// unary builds a method handler that decodes a *Req, runs it through
// the interceptor chain if any and dispatches to call.
func unary[Req, Resp any](method string, call func(HostServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(HostServer), ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(HostServer), ctx, req.(*Req))
			})
		},
	}
}

// fullMethod builds the full gRPC method path.
func fullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*HostServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Handshake", HostServer.Handshake),
		unary("CheckTx", HostServer.CheckTx),
		unary("ExecuteBlock", HostServer.ExecuteBlock),
		unary("Commit", HostServer.Commit),
		unary("Query", HostServer.Query),
		unary("Simulate", HostServer.Simulate),
	},
	Metadata: "stakeberry/v1/host.cram",
}
