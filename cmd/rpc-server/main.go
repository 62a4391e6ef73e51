package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"tradecal/internal/bootstrap"
	"tradecal/internal/config"
	"tradecal/internal/rpc"
)

func main() {
	// Load config.
	cfgPath := "config/tradecal.yaml"
	if p := os.Getenv("TRADECAL_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// Setup logging.
	logFileName := filepath.Join(os.TempDir(), fmt.Sprintf("rpc-server-%s.log", time.Now().Format("2006-01-02")))
	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatalf("opening log file: %v", err)
	}
	defer logFile.Close()

	logger := bootstrap.Logger(cfg, io.MultiWriter(os.Stdout, logFile))
	logger = logger.With("component", "rpc-server")

	// Create stores and server.
	stores, err := bootstrap.OpenStores(cfg)
	if err != nil {
		log.Fatalf("opening stores: %v", err)
	}
	defer stores.Close()

	srv := rpc.NewServer(logger)
	rpc.RegisterDataHandlers(srv, rpc.Backend{
		Days:            stores.Bars,
		Bars:            stores.Bars,
		Adjustments:     stores.Meta,
		ReferenceSymbol: cfg.Calendar.TradingDays.ReferenceSymbol,
	})

	gs := grpc.NewServer()
	srv.RegisterGRPC(gs)

	lis, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		log.Fatalf("listening on %s: %v", cfg.Server.Addr(), err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Info("rpc server listening", "addr", lis.Addr().String(), "functions", srv.Functions())
		if err := gs.Serve(lis); err != nil {
			logger.Error("grpc server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down rpc server")

	stopped := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		logger.Warn("graceful stop timed out, forcing")
		gs.Stop()
	}
}
