package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/ebook-pix/internal/health"
	"github.com/noah-isme/ebook-pix/internal/obs"
	"github.com/noah-isme/ebook-pix/internal/payment"
	"github.com/noah-isme/ebook-pix/internal/ratelimit"
	"github.com/noah-isme/ebook-pix/internal/security"
	"github.com/noah-isme/ebook-pix/internal/storefront"
)

type routes struct {
	logger         zerolog.Logger
	pages          *storefront.Pages
	payments       *payment.Handler
	webhook        payment.Webhook
	health         health.Handler
	createLimit    ratelimit.Handler
	bodyLimit      int64
	corsOrigins    []string
	httpMetrics    *obs.HTTPMetrics
	tracingEnabled bool
	secureHeaders  bool
	pprof          http.Handler
}

func (rt routes) handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if rt.tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if rt.httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: rt.httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: rt.logger}.Middleware)
	r.Use(security.Headers{Enable: rt.secureHeaders}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(rt.corsOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id", "X-Signature"},
		MaxAge:         300,
	}))
	r.Use(security.BodyLimit{Max: rt.bodyLimit}.Middleware)

	if rt.httpMetrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	if rt.pprof != nil {
		r.Mount("/debug/pprof", rt.pprof)
	}
	r.Get("/health/live", rt.health.Live)
	r.Get("/health/ready", rt.health.Ready)

	r.Get("/", rt.pages.Index)
	r.Handle("/static/*", storefront.Static())
	r.With(rt.createLimit.Middleware).Post("/criar-pagamento", rt.payments.Create)
	r.Get("/check-payment/{paymentID}", rt.payments.Check)
	r.Post("/webhook", rt.webhook.Handle)
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
