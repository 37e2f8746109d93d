// Command kv-server is the single binary serving the versioned key-value
// engine, replacing the teacher's split ingestion-server/query-server/
// http-wrapper/query-http-wrapper/data-processor fleet (each a thin,
// partly-stubbed wrapper around one stage of the old tenant pipeline)
// with one process wiring config -> wal -> catalog -> engine -> snapshot
// -> the HTTP and gRPC front doors. Startup/shutdown logging and the
// graceful-stop-on-signal shape follow cmd/ingestion-server/main.go.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	apigrpc "versionedkv/internal/api/grpc"
	apihttp "versionedkv/internal/api/http"
	"versionedkv/internal/auth"
	"versionedkv/internal/catalog"
	"versionedkv/internal/config"
	"versionedkv/internal/engine"
	"versionedkv/internal/idalloc"
	"versionedkv/internal/snapshot"
	"versionedkv/internal/storage/block"
	"versionedkv/internal/trash"
	"versionedkv/internal/wal"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (falls back to env vars / defaults)")
	flag.Parse()

	log.Println("starting kv-server...")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	alloc := idalloc.New()
	cleaner := trash.NewWorkerCleaner(4, 256)
	eng := engine.New(alloc, cleaner)

	store, err := newBlockStorage(cfg.Storage)
	if err != nil {
		log.Fatalf("failed to open block storage: %v", err)
	}

	syncInterval, err := time.ParseDuration(cfg.WAL.SyncInterval)
	if err != nil {
		log.Fatalf("invalid wal.sync_interval %q: %v", cfg.WAL.SyncInterval, err)
	}
	walManager, err := wal.NewManager(wal.Config{
		DataDir:         cfg.WAL.Dir,
		SegmentSize:     cfg.WAL.SegmentSize,
		MaxSegments:     cfg.WAL.MaxSegments,
		SyncPolicy:      parseSyncPolicy(cfg.WAL.SyncPolicy),
		SyncInterval:    syncInterval,
		CompressionType: cfg.WAL.CompressionType,
	})
	if err != nil {
		log.Fatalf("failed to open WAL: %v", err)
	}
	defer walManager.Close()

	ctx := context.Background()
	if latestID, ok, err := snapshot.Latest(ctx, store); err != nil {
		log.Printf("warning: could not check for snapshots: %v", err)
	} else if ok {
		log.Printf("restoring from snapshot %s", latestID)
		restored, manifest, err := snapshot.Restore(ctx, store, latestID, alloc, cleaner)
		if err != nil {
			log.Fatalf("failed to restore snapshot %s: %v", latestID, err)
		}
		eng = restored
		if result, err := wal.ReplayInto(ctx, walManager, eng, manifest.SeqID+1); err != nil {
			log.Fatalf("failed to replay WAL after snapshot: %v", err)
		} else {
			log.Printf("replayed %d WAL entries since snapshot", result.EntriesReplayed)
		}
	} else if result, err := wal.ReplayInto(ctx, walManager, eng, 0); err != nil {
		log.Fatalf("failed to replay WAL: %v", err)
	} else if result.EntriesReplayed > 0 {
		log.Printf("replayed %d WAL entries from an empty engine", result.EntriesReplayed)
	}

	cat, err := catalog.New(ctx, catalog.NewFilePersistence(store), catalog.Config{CacheSize: cfg.Engine.BranchCacheSize})
	if err != nil {
		log.Fatalf("failed to open catalog: %v", err)
	}
	defer cat.Close()

	var authMW *auth.Middleware
	if cfg.Auth.Enabled {
		authenticator := auth.NewJWTAuthenticator([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer)
		authMW = auth.NewMiddleware(authenticator)
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpServer := startHTTPServer(cfg, eng, walManager, cat, authMW)
	grpcServer, grpcListener := startGRPCServer(cfg, eng, walManager, cat, authMW)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Println("shutting down kv-server...")
		shutdownHTTPCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownHTTPCtx)
		grpcServer.GracefulStop()
		cancel()
	}()

	go func() {
		log.Printf("gRPC server listening on %s", grpcListener.Addr())
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Printf("gRPC server stopped: %v", err)
		}
	}()

	log.Printf("HTTP server listening on %s", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("HTTP server failed: %v", err)
	}

	<-shutdownCtx.Done()
	log.Println("kv-server stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func newBlockStorage(cfg config.StorageConfig) (block.Storage, error) {
	if cfg.Backend == "s3" {
		return block.NewS3FS(block.Config{
			Type: "s3",
			Options: map[string]string{
				"bucket": cfg.S3.Bucket,
				"region": cfg.S3.Region,
			},
		})
	}
	return block.NewLocalFS(block.Config{Type: "local", BaseDir: cfg.Local.BasePath})
}

func parseSyncPolicy(policy string) wal.SyncPolicy {
	switch policy {
	case "batch":
		return wal.SyncBatch
	case "periodic":
		return wal.SyncPeriodic
	default:
		return wal.SyncAlways
	}
}

func startHTTPServer(cfg *config.Config, eng *engine.Engine, w *wal.Manager, cat *catalog.Catalog, authMW *auth.Middleware) *http.Server {
	readTimeout, err := time.ParseDuration(cfg.Server.ReadTimeout)
	if err != nil {
		log.Fatalf("invalid server.read_timeout %q: %v", cfg.Server.ReadTimeout, err)
	}
	writeTimeout, err := time.ParseDuration(cfg.Server.WriteTimeout)
	if err != nil {
		log.Fatalf("invalid server.write_timeout %q: %v", cfg.Server.WriteTimeout, err)
	}

	srv := apihttp.NewServer(eng, w, cat, authMW)
	return &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.HTTPPort),
		Handler:      srv.Router(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
}

func startGRPCServer(cfg *config.Config, eng *engine.Engine, w *wal.Manager, cat *catalog.Catalog, authMW *auth.Middleware) (*grpc.Server, net.Listener) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.Server.GRPCPort))
	if err != nil {
		log.Fatalf("failed to listen on gRPC port %d: %v", cfg.Server.GRPCPort, err)
	}

	gs := grpc.NewServer()
	apigrpc.NewServer(eng, w, cat, authMW).Register(gs)
	reflection.Register(gs)
	return gs, listener
}
