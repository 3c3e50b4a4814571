package api

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "mdwindow.v1.MarketFiles"

// MarketFilesServer is the handler type of the MarketFiles service. Every
// method takes and returns a google.protobuf.Struct holding the same JSON
// documents as the HTTP API.
type MarketFilesServer interface {
	service() *Service
}

// GRPCServer serves a Service over gRPC.
type GRPCServer struct {
	svc *Service
}

func (g *GRPCServer) service() *Service { return g.svc }

// Compile-time interface check.
var _ MarketFilesServer = (*GRPCServer)(nil)

// NewGRPCServer wraps svc for gRPC.
func NewGRPCServer(svc *Service) *GRPCServer {
	return &GRPCServer{svc: svc}
}

// Register registers MarketFiles and the standard health service on gs.
func (g *GRPCServer) Register(gs *grpc.Server) *health.Server {
	gs.RegisterService(&marketFilesDesc, g)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return hs
}

var marketFilesDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MarketFilesServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Paths", (*Service).Paths),
		unary("Count", (*Service).Count),
		unary("MinuteData", (*Service).MinuteData),
		unary("MinuteHalfData", (*Service).MinuteHalfData),
		unary("MinutePage", (*Service).MinutePage),
		unary("DayData", (*Service).DayData),
		unary("TickData", (*Service).TickData),
		unary("LiveBars", (*Service).LiveBars),
		unary("LiveTrades", (*Service).LiveTrades),
		unary("LiveHistory", (*Service).LiveHistory),
		unary("SymbolCount", (*Service).SymbolCount),
		unary("Symbols", (*Service).Symbols),
		unary("Audit", (*Service).Audit),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mdwindow/v1/market_files.proto",
}

func unary[Req, Resp any](name string, op func(*Service, context.Context, Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			call := func(ctx context.Context, msg any) (any, error) {
				var req Req
				if err := fromStruct(msg.(*structpb.Struct), &req); err != nil {
					return nil, status.Error(grpcCode(ErrInvalidRequest), err.Error())
				}
				resp, err := op(srv.(MarketFilesServer).service(), ctx, req)
				if err != nil {
					return nil, status.Error(grpcCode(err), err.Error())
				}
				return toStruct(resp)
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, call)
		},
	}
}

// Invoke calls a MarketFiles method on cc, converting req and resp through
// their JSON form.
func Invoke(ctx context.Context, cc grpc.ClientConnInterface, method string, req, resp any) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return err
	}
	return fromStruct(out, resp)
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	return structpb.NewStruct(m)
}

func fromStruct(s *structpb.Struct, v any) error {
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decoding message: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decoding message: %w", err)
	}
	return nil
}
