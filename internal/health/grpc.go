package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// ServiceName is the gRPC health service name reported alongside "".
const ServiceName = "reconciler"

// readinessPoll is how often the gRPC serving status is refreshed.
const readinessPoll = 500 * time.Millisecond

// GRPCServer exposes readiness through the standard grpc.health.v1 service.
type GRPCServer struct {
	monitor *Monitor
	logger  *slog.Logger
	srv     *grpc.Server
	health  *grpchealth.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGRPCServer creates a gRPC server with recovery and logging
// interceptors and registers the health and reflection services. Both the
// overall ("") and ServiceName statuses start as NOT_SERVING and follow the
// monitor's readiness until Stop.
func NewGRPCServer(m *Monitor, logger *slog.Logger) *GRPCServer {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(logger),
			LoggingInterceptor(logger),
		),
	)
	hs := grpchealth.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	ctx, cancel := context.WithCancel(context.Background())
	g := &GRPCServer{monitor: m, logger: logger, srv: srv, health: hs, cancel: cancel}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.watch(ctx)
	}()
	return g
}

// Serve blocks serving lis until Stop.
func (g *GRPCServer) Serve(lis net.Listener) error {
	return g.srv.Serve(lis)
}

func (g *GRPCServer) watch(ctx context.Context) {
	ticker := time.NewTicker(readinessPoll)
	defer ticker.Stop()
	g.refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.refresh()
		}
	}
}

func (g *GRPCServer) refresh() {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if g.monitor.Ready() {
		st = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", st)
	g.health.SetServingStatus(ServiceName, st)
}

// Stop marks the service NOT_SERVING, stops the watcher and gracefully
// stops the server.
func (g *GRPCServer) Stop() {
	g.cancel()
	g.wg.Wait()
	g.health.Shutdown()
	g.srv.GracefulStop()
}

// LoggingInterceptor logs the method, duration, and error (if any) for every
// unary call. Health checks are logged at debug level.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		duration := time.Since(start)

		switch {
		case err != nil:
			logger.Error("rpc completed", "method", info.FullMethod, "duration", duration, "err", err)
		case info.FullMethod == healthpb.Health_Check_FullMethodName:
			logger.Debug("rpc completed", "method", info.FullMethod, "duration", duration)
		default:
			logger.Info("rpc completed", "method", info.FullMethod, "duration", duration)
		}
		return resp, err
	}
}

// RecoveryInterceptor turns a panic in a handler into codes.Internal.
func RecoveryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered in gRPC handler",
					"method", info.FullMethod,
					"panic", fmt.Sprintf("%v", r),
					"stack", string(debug.Stack()),
				)
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}
