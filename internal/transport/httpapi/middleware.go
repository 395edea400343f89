package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/qrpro/internal/auth"
	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

// accessLog пишет одну строку на запрос и обновляет HTTP-метрики.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(started)
		s.metrics.ObserveRequest(r.Method, route, status, elapsed)

		entry := s.logger.WithFields(log.Fields{
			"request_id":  middleware.GetReqID(r.Context()),
			"method":      r.Method,
			"route":       route,
			"status":      status,
			"bytes":       ww.BytesWritten(),
			"duration_ms": elapsed.Milliseconds(),
		})
		if actor, ok := auth.ActorFrom(r.Context()); ok {
			entry = entry.WithField("actor_id", actor.ID)
		}
		if status >= http.StatusInternalServerError {
			entry.Warn("http request")
			return
		}
		entry.Debug("http request")
	})
}

// authenticate кладёт актора в контекст или отвечает 401.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := s.authn.Authenticate(r.Context(), r)
		if err != nil {
			s.logger.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).Debug("authentication failed")
			writeError(w, r, s.logger, domain.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
	})
}

// requireAdmin закрывает административную группу маршрутов.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor, ok := auth.ActorFrom(r.Context()); !ok || !actor.IsAdmin {
			writeError(w, r, s.logger, domain.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// actorFrom вызывается только за authenticate, поэтому актор всегда есть.
func actorFrom(r *http.Request) domain.Actor {
	actor, _ := auth.ActorFrom(r.Context())
	return actor
}
