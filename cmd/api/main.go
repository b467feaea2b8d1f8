package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/ebook-pix/internal/config"
	"github.com/noah-isme/ebook-pix/internal/ebook"
	"github.com/noah-isme/ebook-pix/internal/health"
	"github.com/noah-isme/ebook-pix/internal/ledger"
	"github.com/noah-isme/ebook-pix/internal/notify"
	"github.com/noah-isme/ebook-pix/internal/obs"
	"github.com/noah-isme/ebook-pix/internal/payment"
	"github.com/noah-isme/ebook-pix/internal/ratelimit"
	"github.com/noah-isme/ebook-pix/internal/resilience"
	"github.com/noah-isme/ebook-pix/internal/storefront"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "ebook")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", false)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "ebook-pix",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	product := cfg.Product()
	created, err := ebook.EnsurePlaceholder(product.FilePath, product)
	if err != nil {
		logger.Error().Err(err).Str("path", product.FilePath).Msg("provision e-book")
	} else if created {
		logger.Warn().Str("path", product.FilePath).Msg("e-book missing; wrote placeholder PDF")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = newRedis(cfg.RedisURL, metricsEnabled, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect redis")
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
	}

	var store ledger.Store
	var replay payment.ReplayGuard
	switch cfg.LedgerBackend {
	case config.LedgerRedis:
		store = ledger.Redis{Client: redisClient, Prefix: cfg.LedgerRedisPrefix, TTL: cfg.LedgerRedisTTL}
		replay = payment.RedisReplayGuard{Client: redisClient}
	default:
		store = ledger.NewMemory()
		replay = payment.NewMemoryReplayGuard()
	}
	logger.Info().Str("backend", cfg.LedgerBackend).Msg("payment ledger ready")

	breakerLogger := logger.With().Str("component", "breaker").Logger()
	gateway := payment.NewMercadoPago(payment.MercadoPagoConfig{
		AccessToken: cfg.MPAccessToken,
		BaseURL:     cfg.MPBaseURL,
		Timeout:     cfg.MPTimeout,
		Breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Target:       "mercadopago",
			MinRequests:  cfg.CircuitProviderMinRequests,
			FailureRatio: cfg.CircuitProviderFailureRatio,
			OpenFor:      cfg.CircuitProviderOpenFor,
			Logger:       &breakerLogger,
		}),
	})

	var mailer payment.Notifier
	if cfg.MailEnabled() {
		mailer = &notify.Mailer{
			Dialer: notify.NewDialer(notify.SMTPConfig{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				Username: cfg.EmailSender,
				Password: cfg.EmailPassword,
			}),
			From:    cfg.EmailSender,
			Product: product,
			Logger:  logger.With().Str("component", "mailer").Logger(),
		}
	} else {
		logger.Warn().Msg("EMAIL_SENDER/EMAIL_PASSWORD not set; e-book delivery disabled")
	}

	svc := &payment.Service{
		Gateway:  gateway,
		Ledger:   store,
		Notifier: mailer,
		Product:  product,
		Logger:   logger.With().Str("component", "payment").Logger(),
	}
	pages, err := storefront.New(product, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("load storefront templates")
	}
	validate := validator.New()

	createLimiter, err := ratelimit.New(cfg.CreatePaymentRate, redisClient, "ebook:ratelimit")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}

	probes := map[string]health.Probe{"ebook": health.FileProbe(product.FilePath)}
	if redisClient != nil {
		probes["redis"] = health.RedisProbe(redisClient)
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	rt := routes{
		logger:   logger,
		pages:    pages,
		payments: &payment.Handler{Svc: svc, Pages: pages, Validate: validate, Logger: logger},
		webhook: payment.Webhook{
			Svc:       svc,
			Secret:    cfg.MPWebhookSecret,
			Replay:    replay,
			ReplayTTL: cfg.WebhookReplayTTL,
			Validate:  validate,
			Logger:    logger.With().Str("component", "webhook").Logger(),
		},
		health: health.Handler{Probes: probes, Timeout: envDurationMillis("HEALTH_READY_TIMEOUT_MS", 500)},
		createLimit: ratelimit.Handler{
			Limiter: createLimiter,
			OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
		},
		bodyLimit:      cfg.HTTPBodyLimitBytes,
		corsOrigins:    cfg.CORSAllowedOrigins,
		httpMetrics:    httpMetrics,
		tracingEnabled: tracingEnabled,
		secureHeaders:  envBool("SECURE_HEADERS_ENABLED", true),
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		rt.pprof = protectPprof(newPprofMux(), envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", ""), envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", ""))
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           rt.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
		return
	case <-ctx.Done():
	}

	health.SetReady(false)
	logger.Info().Msg("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 15000))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func newRedis(url string, metricsEnabled bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
