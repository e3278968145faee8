package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-dukaan/internal/cart"
	"github.com/noah-isme/backend-dukaan/internal/checkout"
	"github.com/noah-isme/backend-dukaan/internal/common"
	"github.com/noah-isme/backend-dukaan/internal/config"
	"github.com/noah-isme/backend-dukaan/internal/events"
	"github.com/noah-isme/backend-dukaan/internal/fees"
	"github.com/noah-isme/backend-dukaan/internal/health"
	"github.com/noah-isme/backend-dukaan/internal/lock"
	"github.com/noah-isme/backend-dukaan/internal/obs"
	"github.com/noah-isme/backend-dukaan/internal/order"
	"github.com/noah-isme/backend-dukaan/internal/payment"
	"github.com/noah-isme/backend-dukaan/internal/pricing"
	"github.com/noah-isme/backend-dukaan/internal/ratelimit"
	"github.com/noah-isme/backend-dukaan/internal/resilience"
	"github.com/noah-isme/backend-dukaan/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "dukaan")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "dukaan-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "dukaan-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	orderStore := &order.PGStore{Pool: pool}
	if err := orderStore.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ensure order schema")
	}

	validate := validator.New()
	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	var feeLookup fees.Lookup
	if cfg.FeeServiceBaseURL != "" {
		feeLookup = fees.Cached{
			Next: fees.HTTPLookup{
				BaseURL: cfg.FeeServiceBaseURL,
				HTTP: &resilience.HTTPClient{
					Client: &http.Client{Timeout: cfg.FeeLookupTimeout},
					Breaker: resilience.NewBreaker(
						cfg.FeeCircuitMinRequests,
						cfg.FeeCircuitFailureRate,
						cfg.FeeCircuitOpenFor,
					).WithTarget("fee-service").WithLogger(logger),
					BaseBackoff: 100 * time.Millisecond,
					MaxAttempts: 3,
					Jitter:      0.2,
					Timeout:     cfg.FeeLookupTimeout,
				},
			},
			Client: redisClient,
			TTL:    cfg.FeeCacheTTL,
		}
	} else {
		logger.Warn().Msg("FEE_SERVICE_BASE_URL not set; handling fees default to zero")
		feeLookup = fees.Static{}
	}

	engine := &pricing.Engine{Fees: feeLookup, Logger: &logger}
	schedule := pricing.Schedule{
		ShippingFee:           cfg.ShippingFee,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		PlatformFee:           cfg.PlatformFee,
	}

	gatewayCfg := payment.GatewayConfig{
		KeyID:      cfg.GatewayKeyID,
		KeySecret:  cfg.GatewayKeySecret,
		BaseURL:    cfg.GatewayBaseURL,
		WebBaseURL: cfg.GatewayWebBaseURL,
		Sandbox:    cfg.PaymentSandbox,
	}
	orchestrator := &payment.Orchestrator{
		Cfg: payment.Config{
			Currency:       cfg.Currency,
			MinAmount:      cfg.PaymentMinAmount,
			MaxAmount:      cfg.PaymentMaxAmount,
			AttemptTimeout: cfg.PaymentAttemptTimeout,
			MockFallback:   cfg.PaymentMockFallback,
			NativeEnabled:  cfg.PaymentNativeEnabled,
		},
		Native: &payment.NativeGateway{Cfg: gatewayCfg, Logger: logger},
		Web:    &payment.WebGateway{Cfg: gatewayCfg, Logger: logger},
		UPI: &payment.UPIBackend{
			PayeeVPA:  envOrDefault("UPI_PAYEE_VPA", "dukaan@icici"),
			PayeeName: envOrDefault("UPI_PAYEE_NAME", "Dukaan Store"),
			Sandbox:   cfg.PaymentSandbox,
			Logger:    logger,
		},
		Mock:   &payment.MockBackend{Delay: cfg.PaymentMockDelay},
		Logger: logger,
	}

	cartSvc := &cart.Service{Client: redisClient, TTL: cfg.CartTTL}
	cartHandler := &cart.Handler{
		Svc:      cartSvc,
		Engine:   engine,
		Schedule: schedule,
		Validate: validate,
		Currency: cfg.Currency,
	}

	bus := &events.Bus{
		Store:     orderStore,
		Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}},
	}

	checkoutSvc := &checkout.Service{
		Carts:        cartSvc,
		Engine:       engine,
		Schedule:     schedule,
		Orchestrator: orchestrator,
		Orders:       orderStore,
		Events:       bus,
		Locks:        &lock.Locker{R: redisClient},
		Currency:     cfg.Currency,
		Logger:       logger,
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc, Validate: validate}
	orderHandler := &order.Handler{Store: orderStore}

	checkoutLimiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "dukaan:ratelimit:"},
		Config: ratelimit.Config{
			Key: func(r *http.Request) string {
				return "checkout:" + strings.Split(r.RemoteAddr, ":")[0]
			},
			Window: cfg.CheckoutRateWindow,
			Max:    cfg.CheckoutRateMax,
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("rate limiter degraded")
		},
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: true}.Middleware)
	r.Use(security.BodyLimit{Max: envInt64("SECURE_MAX_BODY_BYTES", 1<<20)}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link", "X-Total-Count"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      health.Probes{Pool: pool, Redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/carts", cartHandler.Routes)
		v.With(checkoutLimiter.Middleware, idem.Middleware).Post("/checkout", checkoutHandler.Checkout)
		v.Route("/orders", orderHandler.Routes)
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	health.SetReady(false)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
