package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/signalchain-core/internal/chain"
	"github.com/nerrad567/signalchain-core/internal/control"
	"github.com/nerrad567/signalchain-core/internal/infrastructure/config"
	"github.com/nerrad567/signalchain-core/internal/infrastructure/database"
	"github.com/nerrad567/signalchain-core/internal/infrastructure/logging"
	"github.com/nerrad567/signalchain-core/internal/journal"
	"github.com/nerrad567/signalchain-core/internal/nodes"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Chain is the controller behind the chain endpoints. *control.Service
// satisfies it.
type Chain interface {
	ChainID() string
	Status() (control.Status, error)
	Summary() (string, error)
	SetCurrentTarget(ctx context.Context, amps float64) ([]chain.Advisory, error)
	SetReferenceFrequency(ctx context.Context, hz float64) error
	SetOutput(ctx context.Context, on bool) error
	SetExcitation(ctx context.Context, volts float64) error
	SetTimeConstant(ctx context.Context, seconds float64) error
	SetSensitivity(ctx context.Context, volts float64) error
	SetInputRange(ctx context.Context, volts float64) error
	AdvisoryConfig() chain.AdvisoryConfig
	SetAdvisoryConfig(ctx context.Context, cfg chain.AdvisoryConfig) error
	ConverterSettings() (nodes.ConverterSettings, error)
	SetConverter(ctx context.Context, s nodes.ConverterSettings) error
	PreampSettings() (nodes.PreampSettings, error)
	SetPreamp(ctx context.Context, s nodes.PreampSettings) error
}

// JournalLister lists journal entries. *journal.SQLiteRepository satisfies it.
type JournalLister interface {
	List(ctx context.Context, filter journal.Filter) (*journal.ListResult, error)
}

// HealthChecker is implemented by the database, MQTT and InfluxDB clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// SchemaReporter reports applied and pending journal migrations.
// *database.DB satisfies it.
type SchemaReporter interface {
	GetMigrationStatus(ctx context.Context) ([]database.MigrationRecord, []database.Migration, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Chain   Chain
	Journal JournalLister            // optional
	Checks  map[string]HealthChecker // optional, reported by GET /health
	Schema  SchemaReporter           // optional, reported by GET /health
	Version string
}

// Server is the HTTP API server.
//
// It is created with New and started with Start.
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	chain   Chain
	journal JournalLister
	checks  map[string]HealthChecker
	schema  SchemaReporter
	version string

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Chain == nil {
		return nil, fmt.Errorf("chain controller is required")
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		chain:   deps.Chain,
		journal: deps.Journal,
		checks:  deps.Checks,
		schema:  deps.Schema,
		version: deps.Version,
	}, nil
}

// Handler returns the router without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in a background goroutine. The
// listener is bound before Start returns, so a port conflict is reported
// here rather than logged later.
func (s *Server) Start(_ context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
