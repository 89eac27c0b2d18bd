// Package app wires the actor runtime: it opens the configured store, hosts
// the actor directory, and exposes liveness over HTTP and gRPC health.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/actorspace/internal/platform/timeouts"
	"github.com/louisbranch/actorspace/internal/services/actors/chat"
	"github.com/louisbranch/actorspace/internal/services/actors/counter"
	"github.com/louisbranch/actorspace/internal/services/actors/directory"
	"github.com/louisbranch/actorspace/internal/services/actors/storage"
	actorbbolt "github.com/louisbranch/actorspace/internal/services/actors/storage/bbolt"
	"github.com/louisbranch/actorspace/internal/services/actors/storage/memory"
	actorsqlite "github.com/louisbranch/actorspace/internal/services/actors/storage/sqlite"
	"github.com/louisbranch/actorspace/internal/services/actors/tictactoe"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// Store backends accepted by Config.Store.
const (
	StoreSQLite = "sqlite"
	StoreBolt   = "bbolt"
	StoreMemory = "memory"
)

// HealthService is the gRPC health service name reported once the
// directory is ready.
const HealthService = "actors.directory"

const (
	defaultHTTPAddr = ":8090"
	defaultGRPCAddr = ":8091"
	defaultDBPath   = "data/actors.db"
)

// Config controls actor runtime startup.
type Config struct {
	HTTPAddr          string
	GRPCAddr          string
	Store             string
	DBPath            string
	MailboxSize       int
	SubscriberBuffer  int
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	Logger            *slog.Logger
}

func (c Config) normalized() Config {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		c.HTTPAddr = defaultHTTPAddr
	}
	if strings.TrimSpace(c.GRPCAddr) == "" {
		c.GRPCAddr = defaultGRPCAddr
	}
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	if c.Store == "" {
		c.Store = StoreSQLite
	}
	if strings.TrimSpace(c.DBPath) == "" {
		c.DBPath = defaultDBPath
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = timeouts.Shutdown
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Store is a storage backend the runtime owns and closes.
type Store interface {
	storage.Store
	Close() error
}

// OpenStore opens the backend named by cfg.Store, creating the database
// directory when needed.
func OpenStore(cfg Config) (Store, error) {
	cfg = cfg.normalized()
	switch cfg.Store {
	case StoreMemory:
		return memory.New(), nil
	case StoreSQLite, StoreBolt:
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create actor storage dir: %w", err)
		}
	}
	if cfg.Store == StoreBolt {
		store, err := actorbbolt.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open actor bbolt store: %w", err)
		}
		return store, nil
	}
	store, err := actorsqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open actor sqlite store: %w", err)
	}
	return store, nil
}

// NewDirectory builds a directory with every actor kind registered.
func NewDirectory(store storage.Store, cfg Config) *directory.Directory {
	cfg = cfg.normalized()
	dir := directory.New(store,
		directory.WithLogger(cfg.Logger),
		directory.WithMailboxSize(cfg.MailboxSize),
		directory.WithSubscriberBuffer(cfg.SubscriberBuffer),
	)
	dir.Register(counter.Kind, counter.Factory)
	dir.Register(chat.Kind, chat.Factory)
	dir.Register(tictactoe.Kind, tictactoe.Factory)
	return dir
}

// NewHandler returns the HTTP routes served next to the directory.
func NewHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Server owns the store, the directory and both listeners.
type Server struct {
	cfg       Config
	store     Store
	directory *directory.Directory

	httpListener net.Listener
	grpcListener net.Listener
	httpServer   *http.Server
	grpcServer   *grpc.Server
	healthServer *health.Server
}

// NewServer opens the store, builds the directory, warms the global counter
// and binds both listeners.
func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	cfg = cfg.normalized()
	store, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg, store: store, directory: NewDirectory(store, cfg)}
	cfg.Logger.Info("actor store opened", "store", cfg.Store)

	if _, err := directory.Get[*counter.Counter](ctx, s.directory, counter.Kind, counter.GlobalKey); err != nil {
		s.Close()
		return nil, fmt.Errorf("warm global counter: %w", err)
	}

	s.httpListener, err = net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("listen on http addr %s: %w", cfg.HTTPAddr, err)
	}
	s.grpcListener, err = net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("listen on grpc addr %s: %w", cfg.GRPCAddr, err)
	}

	s.httpServer = &http.Server{
		Handler:           NewHandler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	s.grpcServer = grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	s.healthServer = health.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.healthServer)
	s.healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)
	return s, nil
}

// Directory returns the actor directory.
func (s *Server) Directory() *directory.Directory {
	return s.directory
}

// HTTPAddr returns the bound HTTP address.
func (s *Server) HTTPAddr() string {
	return s.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC address.
func (s *Server) GRPCAddr() string {
	return s.grpcListener.Addr().String()
}

// Serve runs both servers until ctx ends or one of them fails.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return errors.New("actor server is not initialized")
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		s.cfg.Logger.Info("actors http listening", "addr", s.httpListener.Addr().String())
		if err := s.httpServer.Serve(s.httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		s.cfg.Logger.Info("actors grpc listening", "addr", s.grpcListener.Addr().String())
		if err := s.grpcServer.Serve(s.grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve grpc: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		s.healthServer.Shutdown()
		s.grpcServer.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// Close releases the directory and then the store.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	for _, l := range []net.Listener{s.httpListener, s.grpcListener} {
		if l != nil {
			_ = l.Close()
		}
	}
	if s.directory != nil {
		if err := s.directory.Close(); err != nil {
			s.cfg.Logger.Error("close actor directory", "error", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.cfg.Logger.Error("close actor store", "error", err)
		}
	}
}

// Run creates and serves the actor runtime until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	server, err := NewServer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init actor server: %w", err)
	}
	defer server.Close()

	if err := server.Serve(ctx); err != nil {
		return fmt.Errorf("serve actors: %w", err)
	}
	return nil
}
