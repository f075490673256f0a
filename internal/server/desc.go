package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "invoice.v1.ExtractionService"

	MethodExtractDocument = "/" + ServiceName + "/ExtractDocument"
	MethodCheckDuplicates = "/" + ServiceName + "/CheckDuplicates"
	MethodExportInvoices  = "/" + ServiceName + "/ExportInvoices"
)

// ExtractionService is the server API. Messages are generic structs so the
// service needs no generated stubs; field names follow the JSON tags of the
// request and response types.
type ExtractionService interface {
	ExtractDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckDuplicates(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportInvoices(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(ExtractionService, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ExtractionService), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ExtractionService), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var ExtractionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExtractionService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ExtractDocument", Handler: unaryHandler(MethodExtractDocument, ExtractionService.ExtractDocument)},
		{MethodName: "CheckDuplicates", Handler: unaryHandler(MethodCheckDuplicates, ExtractionService.CheckDuplicates)},
		{MethodName: "ExportInvoices", Handler: unaryHandler(MethodExportInvoices, ExtractionService.ExportInvoices)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "invoice/v1/extraction.proto",
}

func RegisterExtractionService(s grpc.ServiceRegistrar, srv ExtractionService) {
	s.RegisterService(&ExtractionServiceDesc, srv)
}

// Client calls an ExtractionService over a connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ExtractDocument(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodExtractDocument, in, opts...)
}

func (c *Client) CheckDuplicates(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodCheckDuplicates, in, opts...)
}

func (c *Client) ExportInvoices(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodExportInvoices, in, opts...)
}
