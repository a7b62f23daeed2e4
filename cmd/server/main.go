package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"stayfinder/cmd/server/config"
	grpcadapter "stayfinder/internal/adapters/grpc"
	"stayfinder/internal/booking"
	"stayfinder/internal/observability"
	"stayfinder/internal/realtime"

	"github.com/joho/godotenv"
	grpcpkg "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func run(ctx context.Context) error {
	metrics := observability.NewMetrics()
	hub := realtime.NewHub()
	go hub.Run()

	publisher, cleanupEvents, err := buildEventPublisher(ctx, hub, metrics)
	if err != nil {
		return err
	}
	defer cleanupEvents()

	bookingCfg, err := booking.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	orchestrator, cleanupStores := booking.BuildOrchestrator(ctx, os.Getenv("DATABASE_URL"), nil, publisher, bookingCfg, log.Printf)
	defer cleanupStores()

	if n, err := orchestrator.Resume(ctx); err != nil {
		log.Printf("startup resume: %v", err)
	} else if n > 0 {
		log.Printf("startup resume picked up %d bookings", n)
	}

	resumeInterval, err := resumeIntervalFromEnv()
	if err != nil {
		return err
	}
	go orchestrator.ResumeLoop(ctx, resumeInterval)

	lis, err := net.Listen("tcp", ":50051")
	if err != nil {
		return err
	}

	grpcCfg, err := config.LoadGRPC()
	if err != nil {
		return err
	}
	limiter := newGrpcRateLimiter(grpcCfg.RateLimitInterval, grpcCfg.RateLimitBurst, metrics.AddRateLimitWait)

	server := grpcpkg.NewServer(
		grpcpkg.UnaryInterceptor(rateLimitUnaryInterceptor(limiter, metrics)),
		grpcpkg.StreamInterceptor(rateLimitStreamInterceptor(limiter, metrics)),
	)
	grpcadapter.RegisterBookingServiceServer(server, grpcadapter.NewBookingServer(orchestrator))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus(grpcadapter.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	if env := os.Getenv("APP_ENV"); env != "production" {
		reflection.Register(server)
		log.Println("gRPC reflection enabled (APP_ENV=", env, ")")
	}

	log.Println("Server running on :50051...")
	obsSrv, obsErr := startObservabilityServer(hub, metrics)
	if obsErr != nil {
		return obsErr
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		healthServer.SetServingStatus(grpcadapter.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		server.GracefulStop()
		// Let in-flight sagas reach a durable checkpoint before exiting.
		orchestrator.Drain()
		metrics.MarkShutdown(0)
		if obsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = obsSrv.Shutdown(shutdownCtx)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func resumeIntervalFromEnv() (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv("BOOKING_RESUME_INTERVAL"))
	if raw == "" {
		return 30 * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func startObservabilityServer(hub *realtime.Hub, metrics *observability.Metrics) (*http.Server, error) {
	cfg, err := config.LoadObservability()
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(metrics))
	mux.Handle("/ws", realtime.ServeWS(hub, log.Printf))

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("observability server error: %v", err)
		}
	}()

	return srv, nil
}
