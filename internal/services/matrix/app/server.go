// Package app wires the matrix runtime and HTTP lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/openraci/raciboard/internal/platform/config"
	"github.com/openraci/raciboard/internal/services/directory"
	dirsqlite "github.com/openraci/raciboard/internal/services/directory/storage/sqlite"
	"github.com/openraci/raciboard/internal/services/matrix/api/httpapi"
	"github.com/openraci/raciboard/internal/services/matrix/participant"
	"github.com/openraci/raciboard/internal/services/matrix/service"
	matrixsqlite "github.com/openraci/raciboard/internal/services/matrix/storage/sqlite"
)

const shutdownTimeout = 10 * time.Second

type serverEnv struct {
	MatrixDBPath    string `env:"RACIBOARD_MATRIX_DB_PATH"`
	DirectoryDBPath string `env:"RACIBOARD_DIRECTORY_DB_PATH"`
	AllowedOrigins  string `env:"RACIBOARD_ALLOWED_ORIGINS" envDefault:"*"`
	Debug           bool   `env:"RACIBOARD_DEBUG"`
}

func loadServerEnv() serverEnv {
	var cfg serverEnv
	_ = config.ParseEnv(&cfg)
	if strings.TrimSpace(cfg.MatrixDBPath) == "" {
		cfg.MatrixDBPath = filepath.Join("data", "matrix.db")
	}
	if strings.TrimSpace(cfg.DirectoryDBPath) == "" {
		cfg.DirectoryDBPath = filepath.Join("data", "directory.db")
	}
	return cfg
}

// Server hosts the matrix HTTP API and storage lifecycle.
type Server struct {
	listener    net.Listener
	echo        *echo.Echo
	matrixStore *matrixsqlite.Store
	dirStore    *dirsqlite.Store
	logger      *log.Logger
}

// New creates a configured matrix server listening on the provided port.
func New(port int) (*Server, error) {
	return NewWithAddr(fmt.Sprintf(":%d", port))
}

// NewWithAddr creates a configured matrix server for the provided address.
func NewWithAddr(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	env := loadServerEnv()
	logger := log.New()
	if env.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	matrixStore, err := openStore(env.MatrixDBPath, matrixsqlite.Open)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}
	dirStore, err := openStore(env.DirectoryDBPath, dirsqlite.Open)
	if err != nil {
		_ = listener.Close()
		_ = matrixStore.Close()
		return nil, err
	}

	dir := directory.New(dirStore)
	svc := service.New(matrixStore, participant.NewResolver(dir), dir)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: strings.Split(env.AllowedOrigins, ","),
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, "X-Acting-User"},
	}))
	httpapi.Register(e, svc, dir, logger)

	return &Server{
		listener:    listener,
		echo:        e,
		matrixStore: matrixStore,
		dirStore:    dirStore,
		logger:      logger,
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a matrix server until context cancellation.
func Run(ctx context.Context, port int) error {
	server, err := New(port)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the HTTP server until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	s.logger.Infof("matrix server listening at %v", s.listener.Addr())
	s.echo.Listener = s.listener
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.echo.Start("")
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases matrix server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.echo != nil {
		_ = s.echo.Close()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.matrixStore != nil {
		if err := s.matrixStore.Close(); err != nil {
			s.logger.Errorf("close matrix store: %v", err)
		}
	}
	if s.dirStore != nil {
		if err := s.dirStore.Close(); err != nil {
			s.logger.Errorf("close directory store: %v", err)
		}
	}
}

func openStore[T interface{ Close() error }](path string, open func(string) (T, error)) (T, error) {
	var zero T
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return zero, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := open(path)
	if err != nil {
		return zero, fmt.Errorf("open sqlite store %s: %w", path, err)
	}
	return store, nil
}
