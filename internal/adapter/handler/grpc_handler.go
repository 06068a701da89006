package handler

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/rl1809/fitfast/internal/core/domain"
	"github.com/rl1809/fitfast/internal/core/service"
)

// JSONCodecName is the content-subtype clients select with
// grpc.CallContentSubtype.
const JSONCodecName = "json"

const stockServiceName = "fitfast.stock.v1.StockService"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return JSONCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type PurchaseRequest struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	ItemID    string `json:"item_id"`
	Color     string `json:"color,omitempty"`
	Size      string `json:"size,omitempty"`
	Quantity  int32  `json:"quantity"`
}

type PurchaseResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	OrderID string `json:"order_id,omitempty"`
}

// GetStockRequest asks for one variant, or the whole item when Color and
// Size are empty.
type GetStockRequest struct {
	ItemID string `json:"item_id"`
	Color  string `json:"color,omitempty"`
	Size   string `json:"size,omitempty"`
}

type GetStockResponse struct {
	ItemID      string                  `json:"item_id"`
	Stock       int32                   `json:"stock"`
	Variants    []domain.Variant        `json:"variants,omitempty"`
	Aggregation *domain.AggregationView `json:"aggregation,omitempty"`
}

type CancelOrderRequest struct {
	OrderID string `json:"order_id"`
}

type CancelOrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type StockServiceServer interface {
	Purchase(context.Context, *PurchaseRequest) (*PurchaseResponse, error)
	GetStock(context.Context, *GetStockRequest) (*GetStockResponse, error)
	CancelOrder(context.Context, *CancelOrderRequest) (*CancelOrderResponse, error)
}

type GRPCHandler struct {
	orderService *service.OrderService
	logger       *zap.Logger
}

func NewGRPCHandler(orderService *service.OrderService, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{orderService: orderService, logger: logger}
}

func (h *GRPCHandler) Purchase(ctx context.Context, req *PurchaseRequest) (*PurchaseResponse, error) {
	if req.RequestID == "" || req.UserID == "" || req.ItemID == "" || req.Quantity <= 0 {
		return nil, status.Error(codes.InvalidArgument, "missing required fields")
	}

	order, err := h.orderService.Purchase(ctx, req.RequestID, req.UserID, req.ItemID, req.Color, req.Size, int(req.Quantity))
	if err != nil {
		var oos *service.OutOfStockError
		switch {
		case errors.Is(err, service.ErrDuplicateRequest):
			return &PurchaseResponse{Success: false, Message: "duplicate request"}, nil
		case errors.As(err, &oos):
			return &PurchaseResponse{Success: false, Message: oos.Error()}, nil
		}
		return nil, h.grpcError("purchase", err)
	}

	return &PurchaseResponse{
		Success: true,
		Message: "order placed successfully",
		OrderID: order.ID,
	}, nil
}

func (h *GRPCHandler) GetStock(ctx context.Context, req *GetStockRequest) (*GetStockResponse, error) {
	l := h.orderService.Ledger(req.ItemID)

	if req.Color != "" || req.Size != "" {
		stock, err := l.GetStock(ctx, req.Color, req.Size)
		if err != nil {
			return nil, h.grpcError("get stock", err)
		}
		return &GetStockResponse{ItemID: req.ItemID, Stock: int32(stock)}, nil
	}

	variants, err := l.Variants(ctx)
	if err != nil {
		return nil, h.grpcError("get stock", err)
	}
	view, err := l.Aggregation(ctx)
	if err != nil {
		return nil, h.grpcError("get stock", err)
	}
	return &GetStockResponse{
		ItemID:      req.ItemID,
		Stock:       int32(view.GrandTotal),
		Variants:    variants,
		Aggregation: &view,
	}, nil
}

func (h *GRPCHandler) CancelOrder(ctx context.Context, req *CancelOrderRequest) (*CancelOrderResponse, error) {
	err := h.orderService.Cancel(ctx, req.OrderID)
	if errors.Is(err, service.ErrOrderNotEligible) {
		return &CancelOrderResponse{Success: false, Message: err.Error()}, nil
	}
	if err != nil {
		return nil, h.grpcError("cancel order", err)
	}
	return &CancelOrderResponse{Success: true, Message: "order cancelled"}, nil
}

func (h *GRPCHandler) grpcError(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidVariantKey), errors.Is(err, domain.ErrInvalidQuantity):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrItemNotFound), errors.Is(err, domain.ErrOrderNotFound):
		return status.Error(codes.NotFound, err.Error())
	}
	h.logger.Error("grpc call failed", zap.String("op", op), zap.Error(err))
	return status.Error(codes.Internal, "internal error")
}

// RegisterStockServiceServer registers srv on s.
func RegisterStockServiceServer(s grpc.ServiceRegistrar, srv StockServiceServer) {
	s.RegisterService(&StockServiceDesc, srv)
}

var StockServiceDesc = grpc.ServiceDesc{
	ServiceName: stockServiceName,
	HandlerType: (*StockServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Purchase", Handler: purchaseHandler},
		{MethodName: "GetStock", Handler: getStockHandler},
		{MethodName: "CancelOrder", Handler: cancelOrderHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func purchaseHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, interceptor, "Purchase", StockServiceServer.Purchase)
}

func getStockHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, interceptor, "GetStock", StockServiceServer.GetStock)
}

func cancelOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, interceptor, "CancelOrder", StockServiceServer.CancelOrder)
}

func unary[Req, Resp any](
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
	method string,
	call func(StockServiceServer, context.Context, *Req) (*Resp, error),
) (any, error) {
	in := new(Req)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return call(srv.(StockServiceServer), ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + stockServiceName + "/" + method,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return call(srv.(StockServiceServer), ctx, req.(*Req))
	}
	return interceptor(ctx, in, info, handler)
}

// StockServiceClient calls StockService using the json codec.
type StockServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewStockServiceClient(cc grpc.ClientConnInterface) *StockServiceClient {
	return &StockServiceClient{cc: cc}
}

func (c *StockServiceClient) Purchase(ctx context.Context, in *PurchaseRequest, opts ...grpc.CallOption) (*PurchaseResponse, error) {
	out := new(PurchaseResponse)
	if err := c.invoke(ctx, "Purchase", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StockServiceClient) GetStock(ctx context.Context, in *GetStockRequest, opts ...grpc.CallOption) (*GetStockResponse, error) {
	out := new(GetStockResponse)
	if err := c.invoke(ctx, "GetStock", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StockServiceClient) CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*CancelOrderResponse, error) {
	out := new(CancelOrderResponse)
	if err := c.invoke(ctx, "CancelOrder", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StockServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+stockServiceName+"/"+method, in, out, opts...)
}
