// Package rpc carries the market data calls the calendar and the bundle
// ingester depend on over gRPC. Every call is the single unary method
// DataService/Call with a google.protobuf.Struct request {"func", "params"}
// and response {"data"}, so new functions need no generated code.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"tradecal/internal/store"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "tradecal.rpc.DataService"
	// CallMethod is the full method name of the single RPC.
	CallMethod = "/" + ServiceName + "/Call"
)

// Function names served by the data service.
const (
	FuncTdays = "Tdays"
	FuncKline = "Kline"
	FuncDivid = "Divid"
)

// Handler serves one function. It returns a value structpb.NewValue accepts.
type Handler func(ctx context.Context, params map[string]any) (any, error)

// Server dispatches Call requests to handlers registered by function name.
type Server struct {
	handlers map[string]Handler
	log      *slog.Logger
}

// NewServer creates a Server with no handlers.
func NewServer(log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{handlers: make(map[string]Handler), log: log}
}

// Handle registers h under name, replacing any previous handler.
func (s *Server) Handle(name string, h Handler) {
	s.handlers[name] = h
}

// Functions lists the registered function names.
func (s *Server) Functions() []string {
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterGRPC registers the server on the given gRPC server instance.
func (s *Server) RegisterGRPC(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

// Call implements the DataService/Call RPC.
func (s *Server) Call(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fn := req.GetFields()["func"].GetStringValue()
	h, ok := s.handlers[fn]
	if !ok {
		return nil, status.Errorf(codes.Unimplemented, "unknown function %q", fn)
	}

	var params map[string]any
	if p := req.GetFields()["params"].GetStructValue(); p != nil {
		params = p.AsMap()
	}

	start := time.Now()
	data, err := h(ctx, params)
	if err != nil {
		s.log.Warn("rpc call failed", "func", fn, "error", err)
		return nil, toStatus(err)
	}

	resp, err := structpb.NewStruct(map[string]any{"data": data})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding %s response: %v", fn, err)
	}
	s.log.Debug("rpc call", "func", fn, "elapsed", time.Since(start))
	return resp, nil
}

// toStatus keeps status errors as they are and maps store sentinels.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, store.ErrUnknownAsset):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// invalidParam reports a bad request parameter.
func invalidParam(name string, format string, args ...any) error {
	return status.Errorf(codes.InvalidArgument, "param %s: %s", name, fmt.Sprintf(format, args...))
}

// ---------------------------------------------------------------------------
// Service descriptor
// ---------------------------------------------------------------------------

type dataServiceServer interface {
	Call(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*dataServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Call", Handler: callHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tradecal/rpc",
}

func callHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(dataServiceServer).Call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CallMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(dataServiceServer).Call(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
