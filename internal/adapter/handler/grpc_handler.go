package handler

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/bloodbank/internal/auth"
	"github.com/rl1809/bloodbank/internal/core/domain"
	"github.com/rl1809/bloodbank/internal/core/service"
)

const adminServiceName = "bloodbank.v1.AdminService"

type RequestIDMessage struct {
	RequestID int64 `json:"request_id"`
}

type ListInventoryMessage struct{}

type InventoryListMessage struct {
	Records []domain.InventoryRecord `json:"records"`
}

// AdminServiceServer is the admin surface served over gRPC.
type AdminServiceServer interface {
	Fulfill(context.Context, *RequestIDMessage) (*domain.BloodRequest, error)
	Deny(context.Context, *RequestIDMessage) (*domain.BloodRequest, error)
	ListInventory(context.Context, *ListInventoryMessage) (*InventoryListMessage, error)
}

var AdminServiceDesc = grpc.ServiceDesc{
	ServiceName: adminServiceName,
	HandlerType: (*AdminServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Fulfill",
			Handler: unaryHandler("Fulfill", func(s AdminServiceServer, ctx context.Context, in *RequestIDMessage) (any, error) {
				return s.Fulfill(ctx, in)
			}),
		},
		{
			MethodName: "Deny",
			Handler: unaryHandler("Deny", func(s AdminServiceServer, ctx context.Context, in *RequestIDMessage) (any, error) {
				return s.Deny(ctx, in)
			}),
		},
		{
			MethodName: "ListInventory",
			Handler: unaryHandler("ListInventory", func(s AdminServiceServer, ctx context.Context, in *ListInventoryMessage) (any, error) {
				return s.ListInventory(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bloodbank/v1/admin",
}

func unaryHandler[In any](method string, call func(AdminServiceServer, context.Context, *In) (any, error)) grpc.MethodHandler {
	fullMethod := "/" + adminServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(In)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AdminServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AdminServiceServer), ctx, req.(*In))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type GRPCHandler struct {
	fulfillment *service.FulfillmentService
	inventory   *service.InventoryService
	logger      *zap.Logger
}

func NewGRPCHandler(fulfillment *service.FulfillmentService, inventory *service.InventoryService, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{fulfillment: fulfillment, inventory: inventory, logger: logger}
}

func (h *GRPCHandler) Fulfill(ctx context.Context, req *RequestIDMessage) (*domain.BloodRequest, error) {
	updated, err := h.fulfillment.Fulfill(ctx, callerFrom(ctx), req.RequestID)
	if err != nil {
		return nil, h.status(err)
	}
	return &updated, nil
}

func (h *GRPCHandler) Deny(ctx context.Context, req *RequestIDMessage) (*domain.BloodRequest, error) {
	updated, err := h.fulfillment.Deny(ctx, callerFrom(ctx), req.RequestID)
	if err != nil {
		return nil, h.status(err)
	}
	return &updated, nil
}

func (h *GRPCHandler) ListInventory(ctx context.Context, _ *ListInventoryMessage) (*InventoryListMessage, error) {
	records, err := h.inventory.List(ctx, callerFrom(ctx))
	if err != nil {
		return nil, h.status(err)
	}
	return &InventoryListMessage{Records: records}, nil
}

func (h *GRPCHandler) status(err error) error {
	code := grpcCode(err)
	if code == codes.Internal {
		h.logger.Error("grpc call failed", zap.Error(err))
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}

func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		return codes.Unauthenticated
	case errors.Is(err, service.ErrForbidden):
		return codes.PermissionDenied
	case errors.Is(err, domain.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, service.ErrInvalidState), errors.Is(err, service.ErrInsufficientInventory):
		return codes.FailedPrecondition
	case errors.Is(err, domain.ErrConflict):
		return codes.Aborted
	case errors.Is(err, service.ErrValidation):
		return codes.InvalidArgument
	}
	return codes.Internal
}

// AuthInterceptor resolves the bearer token in the authorization metadata
// into a Caller on the context.
func AuthInterceptor(verifier *auth.Service) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}

		token, ok := bearerToken(values[0])
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		caller, err := verifier.Verify(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		return handler(withCaller(ctx, caller), req)
	}
}

// AdminClient calls AdminService with the JSON codec.
type AdminClient struct {
	conn grpc.ClientConnInterface
}

func NewAdminClient(conn grpc.ClientConnInterface) *AdminClient {
	return &AdminClient{conn: conn}
}

func (c *AdminClient) Fulfill(ctx context.Context, requestID int64, opts ...grpc.CallOption) (*domain.BloodRequest, error) {
	out := new(domain.BloodRequest)
	err := c.invoke(ctx, "Fulfill", &RequestIDMessage{RequestID: requestID}, out, opts)
	return out, err
}

func (c *AdminClient) Deny(ctx context.Context, requestID int64, opts ...grpc.CallOption) (*domain.BloodRequest, error) {
	out := new(domain.BloodRequest)
	err := c.invoke(ctx, "Deny", &RequestIDMessage{RequestID: requestID}, out, opts)
	return out, err
}

func (c *AdminClient) ListInventory(ctx context.Context, opts ...grpc.CallOption) (*InventoryListMessage, error) {
	out := new(InventoryListMessage)
	err := c.invoke(ctx, "ListInventory", &ListInventoryMessage{}, out, opts)
	return out, err
}

func (c *AdminClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	return c.conn.Invoke(ctx, "/"+adminServiceName+"/"+method, in, out, opts...)
}
