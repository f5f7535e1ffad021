package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/server/models"
)

// authedHandler is a handler that runs with a resolved device identity.
type authedHandler func(w http.ResponseWriter, r *http.Request, identity *models.DeviceIdentity)

// withMetrics counts and times every invocation of the named operation.
func (s *Server) withMetrics(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Inc("requests.total", 1)
		s.metrics.Inc("requests."+name+".total", 1)

		requestID, _ := common.MakeRandHexString(8)

		start := time.Now()
		next(w, r)
		elapsed := time.Since(start)

		s.metrics.Timing("requests."+name+".time", elapsed)
		s.logger.Debug(r.Context(), "request handled",
			"operation", name, "request_id", requestID, "duration", elapsed)
	}
}

// withAuthentication resolves the session token header to a device identity
// before running next. An unknown token and a broken envelope both answer
// 401; the distinction lives in the authenticator's logs.
func (s *Server) withAuthentication(name string, next authedHandler) http.HandlerFunc {
	return s.withMetrics(name, func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(SessionHeader)
		if token == "" {
			s.metrics.Inc("authentication.not_found", 1)
			writeError(w, http.StatusUnauthorized, "missing session token")
			return
		}

		identity, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			s.metrics.Inc("authentication.failure", 1)
			s.logger.Warn(r.Context(), "error while authenticating", "operation", name, "error", err.Error())
			writeError(w, http.StatusInternalServerError, "authentication error")
			return
		}
		if identity == nil {
			s.metrics.Inc("authentication.not_found", 1)
			s.logger.Debug(r.Context(), "unauthenticated request", "operation", name)
			writeError(w, http.StatusUnauthorized, "cannot find session")
			return
		}

		s.metrics.Inc("authentication.ok", 1)
		next(w, r, identity)
	})
}
