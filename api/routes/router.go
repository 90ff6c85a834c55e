package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oneman/oneman-backend/api/controllers"
	"github.com/oneman/oneman-backend/api/middleware"
	"github.com/oneman/oneman-backend/internal/groups"
	"github.com/oneman/oneman-backend/internal/materials"
	"github.com/oneman/oneman-backend/internal/messages"
	"github.com/oneman/oneman-backend/internal/users"
	"github.com/oneman/oneman-backend/pkg/cloudinary"
	"github.com/oneman/oneman-backend/pkg/config"
	"github.com/oneman/oneman-backend/pkg/db"
	"github.com/oneman/oneman-backend/pkg/logger"
	"github.com/oneman/oneman-backend/pkg/redis"
)

// Params lists everything the HTTP surface is built from. Redis is optional;
// without it idempotency and rate limiting are skipped.
type Params struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        db.Pinger
	Redis     *redis.Client
	Metrics   prometheus.Gatherer
	Groups    groups.Service
	Materials materials.Service
	Messages  messages.Service
	Users     users.Service
	Catalog   materials.Catalog
	Signer    *cloudinary.Signer
	// StreamHeartbeat overrides the SSE keepalive interval.
	StreamHeartbeat time.Duration
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger

	var (
		idempotencyStore redis.IdempotencyStore
		limiter          redis.RateLimiter
		redisPinger      redis.Pinger
	)
	if p.Redis != nil {
		idempotencyStore = p.Redis
		limiter = p.Redis
		redisPinger = p.Redis
	}

	searchPolicy := middleware.NewRateLimitPolicy("user_search", cfg.RateLimit.SearchWindow, cfg.RateLimit.SearchLimit)
	signPolicy := middleware.NewRateLimitPolicy("upload_sign", cfg.RateLimit.SignWindow, cfg.RateLimit.SignLimit)

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, redisPinger))
	})
	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Get("/catalog", controllers.Catalog(p.Catalog))

		r.Route("/users", func(r chi.Router) {
			r.Get("/me", controllers.UserMe(p.Users, logg))
			r.Put("/me", controllers.UserUpsert(p.Users, logg))
			r.With(middleware.RateLimit(searchPolicy, limiter, logg)).Get("/search", controllers.UserSearch(p.Users, logg))
		})

		r.With(middleware.RateLimit(signPolicy, limiter, logg)).Post("/uploads/sign", controllers.UploadSign(p.Signer, logg))

		r.Route("/{kind}", func(r chi.Router) {
			r.Get("/", controllers.GroupList(p.Groups, logg))
			r.Post("/", controllers.GroupCreate(p.Groups, logg))

			r.Route("/{groupId}", func(r chi.Router) {
				r.Get("/", controllers.GroupGet(p.Groups, logg))
				r.Patch("/", controllers.GroupUpdate(p.Groups, logg))
				r.Get("/catalog", controllers.GroupCatalog(p.Materials, logg))

				r.Route("/members", func(r chi.Router) {
					r.Get("/", controllers.MemberList(p.Groups, logg))
					r.Post("/", controllers.MemberAdd(p.Groups, logg))
					r.Delete("/{userId}", controllers.MemberRemove(p.Groups, logg))
				})

				r.Route("/materials", func(r chi.Router) {
					r.Get("/", controllers.MaterialList(p.Materials, logg))
					r.Post("/", controllers.MaterialAdd(p.Materials, logg))
					r.Post("/remove", controllers.MaterialRemove(p.Materials, logg))
					r.Post("/transfer", controllers.MaterialTransfer(p.Materials, logg))
					r.Get("/transfers", controllers.MaterialTransfers(p.Materials, logg))
				})

				r.Route("/messages", func(r chi.Router) {
					r.Get("/", controllers.MessageList(p.Messages, logg))
					r.Post("/", controllers.MessageAppend(p.Messages, logg))
					if cfg.FeatureFlags.LiveStream {
						r.Get("/stream", controllers.MessageStream(p.Messages, p.StreamHeartbeat, logg))
					}
					r.Delete("/{messageId}", controllers.MessageDelete(p.Messages, logg))
				})
			})
		})
	})

	return r
}
