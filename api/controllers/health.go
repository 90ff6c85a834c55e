package controllers

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oneman/oneman-backend/api/responses"
	"github.com/oneman/oneman-backend/pkg/config"
	"github.com/oneman/oneman-backend/pkg/db"
	pkgerrors "github.com/oneman/oneman-backend/pkg/errors"
	"github.com/oneman/oneman-backend/pkg/logger"
	"github.com/oneman/oneman-backend/pkg/redis"
)

const readinessTimeout = 2 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Oneman-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the database and, when configured, redis. A nil redis
// pinger means the instance runs without it.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbPinger db.Pinger, redisPinger redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Oneman-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{"db": "ok", "redis": "disabled"}
		g, gctx := errgroup.WithContext(ctx)
		if dbPinger != nil {
			g.Go(func() error {
				if err := dbPinger.Ping(gctx); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unavailable")
				}
				return nil
			})
		}
		if redisPinger != nil {
			checks["redis"] = "ok"
			g.Go(func() error {
				if err := redisPinger.Ping(gctx); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unavailable")
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
