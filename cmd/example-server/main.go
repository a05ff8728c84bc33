package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gatekit/admission/pkg/admission"
	"github.com/gatekit/admission/pkg/config"
	"github.com/gatekit/admission/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	table, err := config.LoadPolicyTable(cfg.PolicyFile)
	if err != nil {
		logger.Fatal("policy table", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(registry)

	local := admission.NewMemoryStore(cfg.SweepInterval)
	defer local.Close()

	var remote admission.CounterStore
	var monitor *admission.HealthMonitor
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		rs, err := admission.NewRedisStore(client, admission.WithTimeout(cfg.StoreTimeout))
		if err != nil {
			logger.Warn("redis unreachable at startup, running local-only", zap.Error(err))
		} else {
			remote = rs
			monitor = admission.NewHealthMonitor(rs, cfg.ProbeInterval, logger)
			defer monitor.Close()
		}
	} else {
		logger.Info("no REDIS_ADDR configured, counters are process-local")
	}

	store := admission.NewFailoverStore(remote, local, monitor,
		admission.WithLogger(logger),
		admission.WithRecorder(recorder),
	)

	reporter := admission.NewReporter(logger)
	limit := func(policies ...admission.Policy) func(http.Handler) http.Handler {
		pipeline := admission.NewPipeline(store, policies, logger, recorder)
		return admission.Middleware(pipeline, admission.WithReporter(reporter))
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)

	r.With(limit(
		admission.GlobalPolicy(table),
		admission.ChatPolicy(table),
		admission.SmartPolicy(table),
		admission.TierPolicy(table, nil),
	)).Post("/api/chat", okHandler)

	r.With(limit(
		admission.GlobalPolicy(table),
		admission.UploadPolicy(table),
		admission.SmartPolicy(table),
	)).Post("/api/library/upload", okHandler)

	r.With(limit(
		admission.GlobalPolicy(table),
		admission.SmartPolicy(table),
		admission.TierPolicy(table, nil),
	)).Post("/api/agent/invoke", okHandler)

	r.With(limit(
		admission.AuthPolicy(table),
	)).Post("/auth/login", okHandler)

	r.With(limit(
		admission.WebhookPolicy(table, cfg.Production()),
	)).Post("/webhook", okHandler)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		mode := "local"
		if store.Distributed() {
			mode = "distributed"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":       "ok",
			"counter_mode": mode,
		})
	})

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	logger.Info("listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"success": true})
}
