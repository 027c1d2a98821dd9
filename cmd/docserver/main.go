// cmd/docserver is the main entrypoint for a replicated document store
// node.
//
// Configuration is entirely via flags/environment (internal/config) so a
// single binary can serve any peer in an unstructured push-replication
// mesh — there is no leader and no membership protocol to bootstrap.
//
// Example — single node:
//
//	./docserver --addr :8080 --data-dir /var/docstore/node1 --tokens secret1
//
// Example — two peered nodes:
//
//	./docserver --addr :8080 --data-dir /tmp/n1 --tokens secret1 \
//	            --peers http://localhost:8081 --outbound-token secret1
//	./docserver --addr :8081 --data-dir /tmp/n2 --tokens secret1 \
//	            --peers http://localhost:8080 --outbound-token secret1
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/distributed-docstore/docstore/internal/api"
	"github.com/distributed-docstore/docstore/internal/config"
	"github.com/distributed-docstore/docstore/internal/docstore"
	"github.com/distributed-docstore/docstore/internal/kv"
	"github.com/distributed-docstore/docstore/internal/logging"
	"github.com/distributed-docstore/docstore/internal/orchestrate"
	"github.com/distributed-docstore/docstore/internal/replicate"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	zlog, err := logging.New(cfg.Development)
	if err != nil {
		log.Fatalf("FATAL: build logger: %v", err)
	}
	defer zlog.Sync()

	// ── Storage ────────────────────────────────────────────────────────────
	store, err := kv.Open(cfg.DataDir)
	if err != nil {
		zlog.Fatal("open kv store", zap.Error(err))
	}
	defer store.Close()

	// ── Document engine, replication client, orchestrator ──────────────────
	engine := docstore.New(store)
	replClient := replicate.NewClient(cfg.Peers, cfg.OutboundToken, cfg.PeerTimeout, nil)
	orchestrator := orchestrate.New(engine, replClient)

	// ── HTTP server ────────────────────────────────────────────────────────
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(logging.Middleware(zlog), logging.Recovery(zlog))
	router.Use(api.BearerAuth(cfg))

	handler := api.NewHandler(engine, orchestrator, cfg)
	handler.Register(router)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// ── Graceful shutdown ────────────────────────────────────────────────────
	// Listen for SIGINT/SIGTERM and give in-flight requests 15s to complete.
	go func() {
		zlog.Sugar().Infof("listening on %s (peers=%v)", cfg.Addr, cfg.Peers)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error("server shutdown error", zap.Error(err))
	}
}
