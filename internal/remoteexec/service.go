package remoteexec

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service path remote peers dial.
const ServiceName = "flow.remoteexec.RemoteExec"

// runJobMethod is the single unary RPC the remote executor contract needs.
const runJobMethod = "/" + ServiceName + "/RunJob"

// Handler is implemented by whatever runs a job on the remote peer --
// normally a Server wrapping a local dispatcher.Runner.
type Handler interface {
	RunJob(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func runJobHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).RunJob(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: runJobMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Handler).RunJob(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the hand-written equivalent of what protoc-gen-go-grpc
// would emit for a service with one unary method -- the same low-level
// *grpc.ServiceDesc shape grpc.Server.RegisterService consumes, built
// directly since no .pb.go exists for this contract (see wire.go).
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "RunJob",
			Handler:    runJobHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "flow/remoteexec.proto",
}

// RegisterServer attaches a Handler implementation to a gRPC server.
func RegisterServer(s *grpc.Server, h Handler) {
	s.RegisterService(&ServiceDesc, h)
}
