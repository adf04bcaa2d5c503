package http

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/taskhive/taskhive/internal/breaker"
	"github.com/taskhive/taskhive/internal/errs"
	"github.com/taskhive/taskhive/internal/metrics"

	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct{ e *echo.Echo }

func (s *Server) Start(addr string) error            { return s.e.Start(addr) }
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

var registerMetricsOnce sync.Once

// newEcho builds the shared surface every service exposes: recovery and
// request logging middleware, /healthz, and /metrics.
func newEcho(service string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	registerMetricsOnce.Do(func() {
		metrics.MustRegister(prometheus.DefaultRegisterer)
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "service": service})
	})

	return e
}

// dependencyError translates store/cache failures into a response. Breaker-open
// maps to 503 degraded, fatal pool errors terminate the process (external
// supervision restarts it), and everything else is a generic internal error.
func dependencyError(c echo.Context, log *zap.Logger, err error) error {
	if errs.KindOf(err) == errs.Fatal {
		log.Fatal("unrecoverable store error", zap.Error(err))
	}
	if errors.Is(err, breaker.ErrOpen) {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "service degraded"})
	}
	log.Error("dependency error", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}
