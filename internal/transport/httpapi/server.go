// Package httpapi — JSON API поверх chi для витрины и админки.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/qrpro/internal/auth"
	"github.com/vladislavdragonenkov/qrpro/internal/domain"
	"github.com/vladislavdragonenkov/qrpro/internal/health"
	"github.com/vladislavdragonenkov/qrpro/internal/metrics"
	"github.com/vladislavdragonenkov/qrpro/internal/service/cart"
	"github.com/vladislavdragonenkov/qrpro/internal/service/orders"
	"github.com/vladislavdragonenkov/qrpro/internal/version"
)

const (
	defaultIdempotencyTTL = 24 * time.Hour
	defaultRequestTimeout = 30 * time.Second
)

// Server собирает маршруты API.
type Server struct {
	orders  *orders.Service
	carts   *cart.Service
	catalog domain.Catalog
	authn   auth.Authenticator

	idempotency    domain.IdempotencyRepository
	idempotencyTTL time.Duration
	health         *health.Handler
	metrics        *metrics.HTTPMetrics
	logger         *log.Entry
	now            func() time.Time
}

// Option настраивает Server.
type Option func(*Server)

// WithIdempotency включает обработку Idempotency-Key для создания заказов и checkout.
func WithIdempotency(repo domain.IdempotencyRepository, ttl time.Duration) Option {
	return func(s *Server) {
		s.idempotency = repo
		if ttl > 0 {
			s.idempotencyTTL = ttl
		}
	}
}

func WithHealth(h *health.Handler) Option {
	return func(s *Server) {
		s.health = h
	}
}

func WithMetrics(m *metrics.HTTPMetrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

func WithLogger(logger *log.Entry) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

func NewServer(ordersSvc *orders.Service, carts *cart.Service, catalog domain.Catalog, authn auth.Authenticator, opts ...Option) *Server {
	s := &Server{
		orders:         ordersSvc,
		carts:          carts,
		catalog:        catalog,
		authn:          authn,
		idempotencyTTL: defaultIdempotencyTTL,
		logger:         log.WithField("component", "http"),
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes возвращает корневой обработчик.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		s.accessLog,
		middleware.Recoverer,
		middleware.Timeout(defaultRequestTimeout),
	)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeRouteError(w, req, http.StatusNotFound, "route_not_found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeRouteError(w, req, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	r.Get("/livez", health.LivenessHandler)
	r.Get("/version", version.Handler)
	if s.health != nil {
		r.Method(http.MethodGet, "/healthz", s.health)
		r.Get("/readyz", s.health.ReadinessHandler)
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/products", s.listProducts)

		v1.Group(func(pr chi.Router) {
			pr.Use(s.authenticate)

			pr.Route("/cart", func(c chi.Router) {
				c.Get("/", s.getCart)
				c.Delete("/", s.clearCart)
				c.Post("/items", s.addCartItem)
				c.Put("/items/{productID}", s.setCartQuantity)
				c.Delete("/items/{productID}", s.removeCartItem)
				c.With(s.idempotent).Post("/checkout", s.checkout)
			})

			pr.Route("/orders", func(o chi.Router) {
				o.With(s.idempotent).Post("/", s.createOrder)
				o.Get("/", s.listMyOrders)
				o.Get("/{orderID}", s.getOrder)
				o.Put("/{orderID}", s.editOrder)
				o.Post("/{orderID}/cancel", s.cancelOrder)
				o.Get("/{orderID}/timeline", s.orderTimeline)
			})

			pr.Route("/admin", func(a chi.Router) {
				a.Use(s.requireAdmin)
				a.Get("/orders", s.adminListOrders)
				a.Post("/orders/{orderID}/status", s.adminSetStatus)
				a.Post("/orders/{orderID}/force-status", s.adminForceStatus)
				a.Post("/orders/{orderID}/payment-status", s.adminPaymentStatus)
			})
		})
	})

	return r
}
