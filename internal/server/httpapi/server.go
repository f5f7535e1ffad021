// Package httpapi exposes the backup server over HTTP: account registration
// and login, multipart upload, streamed download, listing and removal. It is
// the single place where business outcomes map to status codes.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/metrics"
	"github.com/dmitrijs2005/filevault/internal/server/services"
)

// SessionHeader carries the plaintext session token on authenticated requests.
const SessionHeader = "FileVault-Session-Token"

// FileHashHeader carries the content digest on download responses.
const FileHashHeader = "FileVault-File-Hash"

type Server struct {
	address         string
	shutdownTimeout time.Duration
	tlsCert         string
	tlsKey          string
	accounts        *services.AccountService
	auth            *services.Authenticator
	backup          *services.BackupService
	logger          logging.Logger
	metrics         metrics.Client
	mux             *http.ServeMux
}

type Options struct {
	Address         string
	ShutdownTimeout time.Duration
	TLSCert         string
	TLSKey          string
}

func NewServer(opts Options, as *services.AccountService, auth *services.Authenticator, bs *services.BackupService, l logging.Logger, m metrics.Client) *Server {
	s := &Server{
		address:         opts.Address,
		shutdownTimeout: opts.ShutdownTimeout,
		tlsCert:         opts.TLSCert,
		tlsKey:          opts.TLSKey,
		accounts:        as,
		auth:            auth,
		backup:          bs,
		logger:          l.With("component", "httpapi"),
		metrics:         m,
		mux:             http.NewServeMux(),
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = 10 * time.Second
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /status", s.handleStatus)

	s.mux.HandleFunc("GET /account/register", s.withMetrics("register", s.handleRegister))
	s.mux.HandleFunc("GET /account/login", s.withMetrics("login", s.handleLogin))

	s.mux.HandleFunc("GET /list/files", s.withAuthentication("list_files", s.handleListFiles))
	s.mux.HandleFunc("GET /list/devices", s.withAuthentication("list_devices", s.handleListDevices))
	s.mux.HandleFunc("GET /download", s.withAuthentication("download", s.handleDownload))
	s.mux.HandleFunc("POST /upload", s.withAuthentication("upload", s.handleUpload))
	s.mux.HandleFunc("DELETE /remove/fileVersion", s.withAuthentication("remove_file_version", s.handleRemoveFileVersion))
	s.mux.HandleFunc("DELETE /remove/file", s.withAuthentication("remove_file", s.handleRemoveFile))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.address,
		Handler: s.mux,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address, "tls", s.tlsCert != "")

	var err error
	if s.tlsCert != "" {
		err = srv.ListenAndServeTLS(s.tlsCert, s.tlsKey)
	} else {
		err = srv.ListenAndServe()
	}

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "filevault",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
