package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"brandhub.dev/demodata/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the seed/reset HTTP API and gRPC health",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	mgr, err := a.manager()
	if err != nil {
		return err
	}

	api := httpapi.New(httpapi.Options{
		Runner:     mgr,
		Auth:       a.identity,
		Ready:      a.ready,
		Version:    version,
		RateBurst:  a.cfg.HTTPRateBurst,
		RatePerSec: a.cfg.HTTPRatePerSec,
		Logger:     a.log,
	})
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      a.cfg.LockTTL,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("http listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var gs *grpc.Server
	if a.cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", a.cfg.GRPCAddr)
		if err != nil {
			return err
		}
		gs = grpc.NewServer()
		health := httpapi.NewGRPCHealth(a.ready, a.log)
		health.Register(gs)
		g.Go(func() error {
			health.Watch(gctx, 10*time.Second)
			return nil
		})
		g.Go(func() error {
			a.log.Info("grpc listening", zap.String("addr", a.cfg.GRPCAddr))
			return gs.Serve(lis)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if gs != nil {
			gs.GracefulStop()
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
