// Package server owns the listening socket and the http.Server lifecycle.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"dropzone/internal/config"
	"dropzone/internal/logging"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

var errNotListening = errors.New("server is not listening")

type Server struct {
	cfg    *config.Config
	logger logging.Logger
	ln     net.Listener
}

func New(cfg *config.Config, logger logging.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// Listen loads the certificate (when TLS is on) and then binds the port.
// A bad certificate fails before anything is bound.
func (s *Server) Listen() error {
	var tlsCfg *tls.Config
	if s.cfg.TLSEnabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.CertPath, s.cfg.KeyPath)
		if err != nil {
			return fmt.Errorf("%w: load %s and %s: %w", ErrCertificate, s.cfg.CertPath, s.cfg.KeyPath, err)
		}
		tlsCfg = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("%w: port %d: %w", ErrBind, s.cfg.Port, err)
	}
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}

	s.ln = ln
	return nil
}

// Addr is the bound address, nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Port is the bound TCP port, which differs from the configured one when
// port 0 was requested.
func (s *Server) Port() int {
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return s.cfg.Port
}

// Serve accepts connections until ctx is cancelled, then shuts down
// gracefully. Failed TLS handshakes are logged by the http.Server and do
// not stop the accept loop.
func (s *Server) Serve(ctx context.Context, h http.Handler) error {
	if s.ln == nil {
		return errNotListening
	}

	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		ErrorLog:          errorLog(s.logger),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info(context.Background(), "shutting down")

		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Run serves h alongside the given background jobs. The first failure,
// or ctx being cancelled, stops everything.
func (s *Server) Run(ctx context.Context, h http.Handler, jobs ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Serve(gctx, h) })
	for _, job := range jobs {
		job := job
		g.Go(func() error { return job(gctx) })
	}
	return g.Wait()
}

// errorLog bridges http.Server's internal errors into the structured log.
func errorLog(l logging.Logger) *log.Logger {
	if sl, ok := l.(interface{ StdLogger(slog.Level) *log.Logger }); ok {
		return sl.StdLogger(slog.LevelWarn)
	}
	return log.New(io.Discard, "", 0)
}
