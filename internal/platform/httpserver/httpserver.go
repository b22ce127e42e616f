// Package httpserver builds the API server from configuration.
package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"kycverify/internal/platform/config"
)

const readHeaderTimeout = 5 * time.Second

// New returns an unstarted server. Body read and write timeouts come from
// config because submissions carry image uploads.
func New(cfg config.Server, handler http.Handler, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
}
