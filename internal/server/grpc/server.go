// Package grpc exposes the wallet services as the happypaisa.wallet.v1.Wallet
// gRPC service, alongside the standard health service.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/happypaisa/internal/api"
	"github.com/dmitrijs2005/happypaisa/internal/logging"
	"github.com/dmitrijs2005/happypaisa/internal/server/metrics"
	"github.com/dmitrijs2005/happypaisa/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type GRPCServer struct {
	address string
	wallet  *services.Wallet
	metrics *metrics.WalletMetrics
	logger  logging.Logger
	health  *health.Server
}

func NewGRPCServer(a string, l logging.Logger, w *services.Wallet, mt *metrics.WalletMetrics) *GRPCServer {
	return &GRPCServer{
		address: a,
		wallet:  w,
		metrics: mt,
		logger:  l.With("module", "grpc_server"),
		health:  health.NewServer(),
	}
}

// Register builds a gRPC server with the wallet's interceptor chain and
// both services registered.
func (s *GRPCServer) Register(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(
		s.requestIDInterceptor,
		s.recoveryInterceptor,
		s.loggingInterceptor,
		s.metricsInterceptor,
	)}, opts...)
	srv := grpc.NewServer(opts...)

	api.RegisterWalletServer(srv, &handler{wallet: s.wallet, logger: s.logger})
	healthpb.RegisterHealthServer(srv, s.health)
	s.health.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return srv
}

// Serve accepts connections on l until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, l net.Listener) error {
	srv := s.Register()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", l.Addr().String())
	return srv.Serve(l)
}

func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}
