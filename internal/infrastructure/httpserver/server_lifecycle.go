package httpserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Start blocks serving HTTP, or HTTPS when both TLS files are configured. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.LogMetricsInitialization()

	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.echo,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	if s.config.TLSCertFile != "" && s.config.TLSKeyFile != "" {
		if s.logger != nil {
			s.logger.Infof("Starting HTTPS server on %s for %s", addr, s.config.PublicOrigin)
		}
		s.echo.TLSServer.ReadTimeout = server.ReadTimeout
		s.echo.TLSServer.WriteTimeout = server.WriteTimeout
		s.echo.TLSServer.IdleTimeout = server.IdleTimeout
		return s.echo.StartTLS(addr, s.config.TLSCertFile, s.config.TLSKeyFile)
	}
	if s.logger != nil {
		s.logger.Infof("Starting HTTP server on %s for %s", addr, s.config.PublicOrigin)
		s.logger.Warn("Running in HTTP mode - TLS certificates not configured")
	}
	return s.echo.StartServer(server)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) Echo() *echo.Echo {
	return s.echo
}
