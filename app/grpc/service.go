package grpc

import (
	"context"

	"github.com/vibast-solutions/ms-go-ajo/app/types"
	"google.golang.org/grpc"
)

const serviceName = "ajo.AjoInternalService"

type HealthRequest struct{}

type PaymentReferenceRequest struct {
	Reference string `json:"reference"`
}

type ListReconciliationsRequest struct {
	Status string `json:"status"`
	Limit  int32  `json:"limit"`
	Offset int32  `json:"offset"`
}

// AjoInternalServiceServer is the internal surface other services call.
type AjoInternalServiceServer interface {
	Health(ctx context.Context, req *HealthRequest) (*types.HealthResponse, error)
	GetPaymentStatus(ctx context.Context, req *PaymentReferenceRequest) (*types.PaymentStatusResponse, error)
	ReprocessPayment(ctx context.Context, req *PaymentReferenceRequest) (*types.ReprocessPaymentResponse, error)
	ListReconciliations(ctx context.Context, req *ListReconciliationsRequest) (*types.ListReconciliationsResponse, error)
}

func RegisterAjoInternalServiceServer(s grpc.ServiceRegistrar, srv AjoInternalServiceServer) {
	s.RegisterService(&ajoInternalServiceDesc, srv)
}

var ajoInternalServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AjoInternalServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Health", Handler: healthHandler},
		{MethodName: "GetPaymentStatus", Handler: getPaymentStatusHandler},
		{MethodName: "ReprocessPayment", Handler: reprocessPaymentHandler},
		{MethodName: "ListReconciliations", Handler: listReconciliationsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ajo/internal.json",
}

func healthHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(HealthRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AjoInternalServiceServer).Health(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Health"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AjoInternalServiceServer).Health(ctx, req.(*HealthRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getPaymentStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PaymentReferenceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AjoInternalServiceServer).GetPaymentStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetPaymentStatus"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AjoInternalServiceServer).GetPaymentStatus(ctx, req.(*PaymentReferenceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func reprocessPaymentHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PaymentReferenceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AjoInternalServiceServer).ReprocessPayment(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ReprocessPayment"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AjoInternalServiceServer).ReprocessPayment(ctx, req.(*PaymentReferenceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listReconciliationsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListReconciliationsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AjoInternalServiceServer).ListReconciliations(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ListReconciliations"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AjoInternalServiceServer).ListReconciliations(ctx, req.(*ListReconciliationsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// AjoInternalServiceClient calls the internal service over a connection that
// uses the JSON codec.
type AjoInternalServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAjoInternalServiceClient(cc grpc.ClientConnInterface) *AjoInternalServiceClient {
	return &AjoInternalServiceClient{cc: cc}
}

func (c *AjoInternalServiceClient) Health(ctx context.Context, in *HealthRequest, opts ...grpc.CallOption) (*types.HealthResponse, error) {
	out := new(types.HealthResponse)
	if err := c.invoke(ctx, "Health", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AjoInternalServiceClient) GetPaymentStatus(ctx context.Context, in *PaymentReferenceRequest, opts ...grpc.CallOption) (*types.PaymentStatusResponse, error) {
	out := new(types.PaymentStatusResponse)
	if err := c.invoke(ctx, "GetPaymentStatus", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AjoInternalServiceClient) ReprocessPayment(ctx context.Context, in *PaymentReferenceRequest, opts ...grpc.CallOption) (*types.ReprocessPaymentResponse, error) {
	out := new(types.ReprocessPaymentResponse)
	if err := c.invoke(ctx, "ReprocessPayment", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AjoInternalServiceClient) ListReconciliations(ctx context.Context, in *ListReconciliationsRequest, opts ...grpc.CallOption) (*types.ListReconciliationsResponse, error) {
	out := new(types.ListReconciliationsResponse)
	if err := c.invoke(ctx, "ListReconciliations", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AjoInternalServiceClient) invoke(ctx context.Context, method string, in, out interface{}, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...)
}
