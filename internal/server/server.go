package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/goodtune/ghbroker/internal/audit"
	"github.com/goodtune/ghbroker/internal/config"
	"github.com/goodtune/ghbroker/internal/container"
	"github.com/goodtune/ghbroker/internal/control"
	"github.com/goodtune/ghbroker/internal/envstore"
	"github.com/goodtune/ghbroker/internal/executor"
	"github.com/goodtune/ghbroker/internal/metrics"
	"github.com/goodtune/ghbroker/internal/permission"
	"github.com/goodtune/ghbroker/internal/proxy"
	"github.com/goodtune/ghbroker/internal/snippet"
)

// Server runs the permission proxy and the control surface side by side.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates a new Server.
func New(cfg *config.Config, logger *slog.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// Run starts both listeners and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	if err := requireLocalAddress(s.cfg.Proxy.Listen); err != nil {
		return fmt.Errorf("proxy listener: %w", err)
	}

	store, err := audit.Open(s.cfg.Database.Driver, s.cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("opening audit database: %w", err)
	}
	defer store.Close()

	migrator := audit.NewMigrator(store)
	pending, err := migrator.PendingMigrations(ctx)
	if err != nil {
		s.logger.Warn("could not check migrations", "error", err)
	} else if len(pending) > 0 {
		return fmt.Errorf("database has %d pending migration(s): run 'broker migrate' first", len(pending))
	}

	auditLog := audit.NewLog(store, s.logger)

	permStore := permission.New()

	env, err := envstore.New(s.cfg.Env.Prefix, s.cfg.Env.File, s.logger)
	if err != nil {
		return fmt.Errorf("loading environment store: %w", err)
	}
	defer env.Close()

	snippets, err := snippet.NewStore(s.cfg.Snippet.Dir)
	if err != nil {
		return fmt.Errorf("opening snippet store: %w", err)
	}
	inliner := snippet.NewInliner(snippets)

	backend, err := s.newBackend(env)
	if err != nil {
		return fmt.Errorf("building execution backend: %w", err)
	}
	defer backend.Close()

	if err := env.Watch(); err != nil {
		s.logger.Warn("could not watch env file", "error", err)
	}
	env.OnReload(func() {
		switch be := backend.(type) {
		case *executor.ContainerBackend:
			s.logger.Info("env file changed, tearing down container instance")
			be.Close()
		case *executor.PreambleBackend:
			if err := be.Refresh(); err != nil {
				s.logger.Warn("could not refresh preamble after env reload", "error", err)
			}
		}
	})

	proxyHandler := proxy.NewHandler(permStore, auditLog, s.logger)
	dispatcher := control.New(permStore, auditLog, snippets, inliner, backend, s.logger)
	controlHandler := control.NewHTTPHandler(dispatcher, s.logger)

	proxyMux := http.NewServeMux()
	proxyHandler.RegisterRoutes(proxyMux)

	controlMux := http.NewServeMux()
	controlHandler.RegisterRoutes(controlMux)

	proxyLn, err := createListener(s.cfg.Proxy.Listen)
	if err != nil {
		return fmt.Errorf("creating proxy listener: %w", err)
	}
	controlLn, err := createListener(s.cfg.Control.Listen)
	if err != nil {
		return fmt.Errorf("creating control listener: %w", err)
	}

	proxyServer := &http.Server{Handler: proxyMux}
	controlServer := &http.Server{Handler: controlMux}

	if s.cfg.Metrics.Enabled {
		go metrics.Serve(s.cfg.Metrics.Listen, s.logger)
	}

	shutdownCtx, cancel := signal.NotifyContext(ctx, shutdownSignals()...)
	defer cancel()
	setupPlatformSignals(s.logger)

	errCh := make(chan error, 2)
	go func() { errCh <- proxyServer.Serve(proxyLn) }()
	go func() { errCh <- controlServer.Serve(controlLn) }()

	go func() {
		<-shutdownCtx.Done()
		s.logger.Info("server_shutdown", "msg", "shutting down")
		proxyServer.Shutdown(context.Background())
		controlServer.Shutdown(context.Background())
	}()

	s.logger.Info("server_ready", "proxy_listen", s.cfg.Proxy.Listen, "control_listen", s.cfg.Control.Listen)
	notifySystemd("READY=1")

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && err != http.ErrServerClosed {
			notifySystemd("STOPPING=1")
			return fmt.Errorf("server error: %w", err)
		}
	}

	notifySystemd("STOPPING=1")
	return nil
}

func (s *Server) newBackend(env *envstore.Store) (executor.Backend, error) {
	switch s.cfg.Executor.Backend {
	case "container":
		return executor.NewContainerBackend(executor.ContainerConfig{
			Container: container.Config{
				CLI:         s.cfg.Container.CLI,
				Image:       s.cfg.Container.Image,
				CacheVolume: s.cfg.Container.CacheVolume,
				CacheMount:  s.cfg.Container.CacheMount,
				CodeMount:   s.cfg.Container.CodeMount,
				CPULimit:    s.cfg.Container.CPULimit,
				MemoryLimit: s.cfg.Container.MemoryLimit,
				BaseWorkDir: s.cfg.Container.BaseWorkDir,
			},
			RuntimeCommand:     s.cfg.Executor.RuntimeCommand,
			TypeCheckerCommand: s.cfg.Container.TypeCheckerCommand,
		}), nil
	case "preamble", "":
		return executor.NewPreambleBackend(executor.PreambleConfig{
			RuntimeCommand: s.cfg.Executor.RuntimeCommand,
			WorkDir:        s.cfg.Executor.WorkDir,
			ProxyURL:       "http://" + s.cfg.Proxy.Listen,
			EnvStore:       env,
		})
	default:
		return nil, fmt.Errorf("unknown executor backend %q", s.cfg.Executor.Backend)
	}
}

// requireLocalAddress refuses to bind the permission proxy anywhere but
// loopback, per the requirement that it never be reachable off-host.
func requireLocalAddress(addr string) error {
	if strings.HasPrefix(addr, "unix://") {
		return nil
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	if host == "" {
		return fmt.Errorf("listen address %q must bind a local host explicitly", addr)
	}
	ip := net.ParseIP(host)
	if ip != nil {
		if ip.IsLoopback() {
			return nil
		}
		return fmt.Errorf("listen address %q is not a loopback address", addr)
	}
	if host == "localhost" {
		return nil
	}
	return fmt.Errorf("listen address %q is not a loopback address", addr)
}

func createListener(addr string) (net.Listener, error) {
	if strings.HasPrefix(addr, "unix://") {
		sockPath := strings.TrimPrefix(addr, "unix://")
		os.Remove(sockPath)
		return net.Listen("unix", sockPath)
	}
	return net.Listen("tcp", addr)
}

func notifySystemd(state string) {
	socketPath := os.Getenv("NOTIFY_SOCKET")
	if socketPath == "" {
		return
	}
	conn, err := net.Dial("unixgram", socketPath)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.Write([]byte(state))
}
