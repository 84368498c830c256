package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"advisory.org/internal/auth"
	"advisory.org/internal/config"
	"advisory.org/internal/consult"
	"advisory.org/internal/httpapi"
	"advisory.org/internal/obs"
	"advisory.org/internal/store"
	"advisory.org/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	log.SetFlags(0)
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Auth.Secret != "" {
		auth.SetSecret(cfg.Auth.Secret)
	}
	policy, err := consult.ParseClosePolicy(cfg.Service.ClosePolicy)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	obs.InitBuildInfo(version, commit, cfg.Region.Backend)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	backing, err := store.Open(ctx, cfg.Region)
	if err != nil {
		cancel()
		log.Fatalf("open region: %v", err)
	}
	st, err := backing.OpenStore(ctx, cfg.Region.BucketPages)
	cancel()
	if err != nil {
		_ = backing.Close()
		log.Fatalf("open store: %v", err)
	}
	schema := st.Schema()
	obs.Info("store_opened", map[string]any{
		"backend":        cfg.Region.Backend,
		"schema_version": schema.Version,
		"migrations":     len(schema.Migrations),
	})

	events := stream.New()
	svc := consult.NewStable(st,
		consult.WithAuthorization(cfg.Service.EnforceAuthorization),
		consult.WithClosePolicy(policy),
		consult.WithCommitEachWrite(cfg.Region.CommitEachWrite),
		consult.WithPublisher(events),
	)
	probe := httpapi.ReadyProbe{DB: backing.DB}

	// HTTP API
	api := httpapi.New(probe, version, svc, events,
		httpapi.WithRateLimit(cfg.Rate.Burst, cfg.Rate.PerSecond),
		httpapi.WithTokenTTL(cfg.Auth.TokenTTL),
	)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// no WriteTimeout: the timeline stream is long lived
	}

	// gRPC
	grpcSrv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		httpapi.UnaryLoggingInterceptor(),
		httpapi.UnaryRecoverInterceptor(),
		httpapi.UnaryAuthInterceptor(),
	))
	httpapi.NewGRPCServer(probe, version, svc).Register(grpcSrv)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}

	obs.Info("starting", map[string]any{
		"version":           version,
		"http":              cfg.HTTPAddr,
		"grpc":              cfg.GRPCAddr,
		"commit_each_write": cfg.Region.CommitEachWrite,
	})

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()
	go func() {
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Fatalf("grpc serve: %v", err)
		}
	}()

	// with per-write commits the ticker only runs in batched mode
	flushDone := make(chan struct{})
	flushStop := make(chan struct{})
	go func() {
		defer close(flushDone)
		if cfg.Region.CommitEachWrite {
			<-flushStop
			return
		}
		ticker := time.NewTicker(cfg.Region.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := svc.Sync(); err != nil {
					obs.Error("region sync failed", map[string]any{"error": err.Error()})
				}
			case <-flushStop:
				return
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	obs.Info("shutting_down", nil)

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	grpcSrv.GracefulStop()
	close(flushStop)
	<-flushDone
	if err := svc.Sync(); err != nil {
		obs.Error("final region sync failed", map[string]any{"error": err.Error()})
	}
	if err := backing.Close(); err != nil {
		obs.Error("close region failed", map[string]any{"error": err.Error()})
	}
	obs.Info("stopped", nil)
}
