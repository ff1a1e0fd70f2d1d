package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "constitutional.v1.ConstitutionalService"

const (
	validateMethod   = "/" + ServiceName + "/Validate"
	getMetricsMethod = "/" + ServiceName + "/GetMetrics"
)

// ConstitutionalService is the server API. Payloads are google.protobuf.Struct
// documents carrying the same JSON shapes as the HTTP API.
type ConstitutionalService interface {
	Validate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetMetrics(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes ConstitutionalService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ConstitutionalService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Validate", Handler: validateHandler},
		{MethodName: "GetMetrics", Handler: getMetricsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "constitutional/v1/constitutional.proto",
}

func validateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConstitutionalService).Validate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: validateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ConstitutionalService).Validate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getMetricsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConstitutionalService).GetMetrics(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getMetricsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ConstitutionalService).GetMetrics(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Client calls ConstitutionalService over a client connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Validate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, validateMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetMetrics(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getMetricsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
