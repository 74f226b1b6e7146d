package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/bloodbank/internal/adapter/handler"
	"github.com/rl1809/bloodbank/internal/auth"
	"github.com/rl1809/bloodbank/internal/core/service"
	"github.com/rl1809/bloodbank/internal/observability"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	cfg, logger := a.cfg, a.logger

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Tracing)
	if err != nil {
		logger.Error("failed to set up tracing", zap.Error(err))
	}

	if cfg.Database.AutoMigrate {
		if err := a.migrate(ctx); err != nil {
			return err
		}
	}

	cache, err := a.idempotencyCache(ctx)
	if err != nil {
		return err
	}
	sink, err := a.notificationSink(ctx)
	if err != nil {
		return err
	}

	// Alert workers
	dispatcher := service.NewAlertDispatcher(sink, cfg.Alerts.QueueSize, cfg.Alerts.Timeout, logger)
	dispatcher.Start(cfg.Alerts.Workers)
	logger.Info("started alert workers", zap.Int("workers", cfg.Alerts.Workers))

	monitor := service.NewLowStockMonitor(a.store, dispatcher, cfg.Alerts.Threshold, cfg.Alerts.Recipients, logger)
	authService := auth.NewService(a.store, auth.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL), logger)
	fulfillment := service.NewFulfillmentService(a.store, a.store, monitor, logger)
	inventory := service.NewInventoryService(a.store, monitor, logger)

	// gRPC server
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.AuthInterceptor(authService)))
	grpcServer.RegisterService(&handler.AdminServiceDesc, handler.NewGRPCHandler(fulfillment, inventory, logger))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// HTTP server
	httpHandler := handler.NewHTTPHandler(handler.Services{
		Requests:    service.NewRequestService(a.store, cache, logger),
		Fulfillment: fulfillment,
		Inventory:   inventory,
		Donors:      service.NewDonorService(a.store, logger),
		Auth:        authService,
	}, logger)
	metricsPath := cfg.Metrics.Path
	if !cfg.Metrics.Enabled {
		metricsPath = ""
	}
	httpHandler.WithMetrics(metricsPath)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	// Deliver queued alerts before the sinks go away.
	dispatcher.Close()
	logger.Info("alert workers stopped")

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown", zap.Error(err))
	}
	return nil
}
