package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified name of the export service.
const ServiceName = "fluxo.tsvexport.v1.ExportService"

const (
	streamExportMethod    = "/" + ServiceName + "/StreamExport"
	queryTaskStatusMethod = "/" + ServiceName + "/QueryTaskStatus"
)

// ExportServiceServer is the server API for ExportService.
//
// StreamExport receives a metadata message followed by record batches and
// answers once with the finished task. Payloads are google.protobuf.Struct
// values; see Server for their layout.
type ExportServiceServer interface {
	StreamExport(grpc.ClientStreamingServer[structpb.Struct, structpb.Struct]) error
	QueryTaskStatus(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// RegisterExportServiceServer registers srv on s.
func RegisterExportServiceServer(s grpc.ServiceRegistrar, srv ExportServiceServer) {
	s.RegisterService(&ExportServiceDesc, srv)
}

func streamExportHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(ExportServiceServer).StreamExport(&grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

func queryTaskStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExportServiceServer).QueryTaskStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: queryTaskStatusMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ExportServiceServer).QueryTaskStatus(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// ExportServiceDesc describes ExportService for grpc.Server.RegisterService.
var ExportServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExportServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "QueryTaskStatus",
			Handler:    queryTaskStatusHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamExport",
			Handler:       streamExportHandler,
			ClientStreams: true,
		},
	},
	Metadata: "tsvexport/v1/export.proto",
}

// ExportServiceClient calls ExportService.
type ExportServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewExportServiceClient returns a client using cc.
func NewExportServiceClient(cc grpc.ClientConnInterface) *ExportServiceClient {
	return &ExportServiceClient{cc: cc}
}

// StreamExport opens an export stream.
func (c *ExportServiceClient) StreamExport(ctx context.Context, opts ...grpc.CallOption) (grpc.ClientStreamingClient[structpb.Struct, structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ExportServiceDesc.Streams[0], streamExportMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}, nil
}

// QueryTaskStatus fetches the state of a task.
func (c *ExportServiceClient) QueryTaskStatus(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, queryTaskStatusMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
