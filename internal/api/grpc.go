package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"traderbot/internal/domain"
	"traderbot/internal/store"
)

// BacktestServiceName is the fully qualified gRPC service name.
const BacktestServiceName = "traderbot.v1.BacktestService"

// Messages travel as google.protobuf.Struct holding the JSON form of
// BacktestRequest and BacktestResponse, so no generated stubs are needed.

// BacktestServer is the server API for the backtest gRPC service.
type BacktestServer interface {
	RunBacktest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetRun(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type backtestGRPC struct {
	svc *Service
}

// NewBacktestGRPC adapts svc to BacktestServer.
func NewBacktestGRPC(svc *Service) BacktestServer {
	return &backtestGRPC{svc: svc}
}

func (g *backtestGRPC) RunBacktest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req BacktestRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	resp, err := g.svc.RunBacktest(ctx, req)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(resp)
}

func (g *backtestGRPC) GetRun(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := in.GetFields()["id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	resp, err := g.svc.GetRun(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(resp)
}

// RegisterBacktestServer registers srv with s.
func RegisterBacktestServer(s grpc.ServiceRegistrar, srv BacktestServer) {
	s.RegisterService(&backtestServiceDesc, srv)
}

var backtestServiceDesc = grpc.ServiceDesc{
	ServiceName: BacktestServiceName,
	HandlerType: (*BacktestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RunBacktest", Handler: unaryHandler("RunBacktest", BacktestServer.RunBacktest)},
		{MethodName: "GetRun", Handler: unaryHandler("GetRun", BacktestServer.GetRun)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "traderbot/v1/backtest.proto",
}

func unaryHandler(method string, call func(BacktestServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	fullMethod := "/" + BacktestServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BacktestServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BacktestServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// BacktestClient calls the backtest gRPC service.
type BacktestClient struct {
	cc grpc.ClientConnInterface
}

// NewBacktestClient wraps an established connection.
func NewBacktestClient(cc grpc.ClientConnInterface) *BacktestClient {
	return &BacktestClient{cc: cc}
}

// RunBacktest runs a backtest on the server.
func (c *BacktestClient) RunBacktest(ctx context.Context, req BacktestRequest, opts ...grpc.CallOption) (*BacktestResponse, error) {
	in, err := toStruct(req)
	if err != nil {
		return nil, err
	}
	var resp BacktestResponse
	if err := c.invoke(ctx, "RunBacktest", in, &resp, opts...); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetRun fetches a stored run.
func (c *BacktestClient) GetRun(ctx context.Context, id string, opts ...grpc.CallOption) (*BacktestResponse, error) {
	in, err := structpb.NewStruct(map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	var resp BacktestResponse
	if err := c.invoke(ctx, "GetRun", in, &resp, opts...); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *BacktestClient) invoke(ctx context.Context, method string, in *structpb.Struct, out any, opts ...grpc.CallOption) error {
	reply := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+BacktestServiceName+"/"+method, in, reply, opts...); err != nil {
		return err
	}
	return fromStruct(reply, out)
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	return structpb.NewStruct(m)
}

func fromStruct(s *structpb.Struct, v any) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case domain.IsCoreError(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
