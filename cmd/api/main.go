package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"gatehouse.org/internal/auth"
	"gatehouse.org/internal/httpapi"
	"gatehouse.org/internal/obs"
	"gatehouse.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("GATEHOUSE_PG_DSN")
	if dsn == "" {
		log.Fatal("GATEHOUSE_PG_DSN is required")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer func() { _ = store.Close() }()

	ttl := auth.DefaultCacheTTL
	if raw := os.Getenv("GATEHOUSE_CACHE_TTL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("parse GATEHOUSE_CACHE_TTL: %v", err)
		}
		ttl = parsed
	}

	cache := auth.NewCache(ttl)
	authn := auth.NewAuthenticator(store, store, cache)
	sessions, err := auth.NewService(store, store, cache)
	if err != nil {
		log.Fatalf("session service: %v", err)
	}
	rbac, err := auth.NewRBACService(store, store)
	if err != nil {
		log.Fatalf("rbac service: %v", err)
	}

	// Email verification stays disabled without a signing secret.
	var verifier *auth.Verifier
	if secret := os.Getenv("GATEHOUSE_VERIFY_SECRET"); secret != "" {
		verifier, err = auth.NewVerifier(secret, store)
		if err != nil {
			log.Fatalf("verifier: %v", err)
		}
	}

	probe := httpapi.ReadyProbe{DB: store.DB()}
	api := httpapi.New(httpapi.Config{
		Probe:         probe,
		Version:       version,
		Authenticator: authn,
		Sessions:      sessions,
		RBAC:          rbac,
		Verifier:      verifier,
	})

	addr := os.Getenv("GATEHOUSE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var grpcSrv *grpc.Server
	if grpcAddr := os.Getenv("GATEHOUSE_GRPC_ADDR"); grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = grpc.NewServer()
		httpapi.NewGRPCServer(probe).Register(grpcSrv)
		go func() {
			log.Printf("gRPC health on %s", grpcAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				obs.LogError("grpc", "serve stopped", err)
			}
		}()
	}

	log.Printf("Starting gatehouse-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	log.Println("Stopped")
}
