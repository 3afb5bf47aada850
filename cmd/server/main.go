package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/settleup/internal/config"
	"github.com/mmynk/settleup/internal/events"
	"github.com/mmynk/settleup/internal/ledger"
	"github.com/mmynk/settleup/internal/metrics"
	"github.com/mmynk/settleup/internal/middleware"
	"github.com/mmynk/settleup/internal/service"
	"github.com/mmynk/settleup/internal/storage"
	"github.com/mmynk/settleup/internal/storage/memory"
	"github.com/mmynk/settleup/internal/storage/sqlite"
	"github.com/mmynk/settleup/pkg/api/apiconnect"
	"github.com/mmynk/settleup/pkg/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.Setup(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// Initialize storage
	var store storage.Store
	switch cfg.DataBackend {
	case config.BackendMemory:
		store = memory.New()
		logger.Warn("Using in-memory storage, data is lost on restart")
	default:
		s, err := sqlite.New(cfg.DBPath)
		if err != nil {
			logger.Error("Failed to initialize storage", "error", err)
			os.Exit(1)
		}
		store = s
		logger.Info("Storage initialized", "database", cfg.DBPath)
	}
	defer store.Close()

	var publisher events.Publisher = events.Noop{}
	if cfg.AMQPURL != "" {
		p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Error("Failed to connect to AMQP broker", "error", err)
			os.Exit(1)
		}
		publisher = p
		logger.Info("Publishing ledger events", "exchange", cfg.AMQPExchange)
	}
	defer publisher.Close()

	mux := http.NewServeMux()

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.New(registry)
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	engine := ledger.NewEngine(store,
		ledger.WithLockTimeout(cfg.LockTimeout),
		ledger.WithPublisher(publisher),
		ledger.WithMetrics(m),
		ledger.WithLogger(logger),
	)

	// Replay every group's log before serving.
	openCtx, openCancel := context.WithTimeout(context.Background(), time.Minute)
	err := engine.Open(openCtx)
	openCancel()
	if err != nil {
		logger.Error("Failed to load ledgers", "error", err)
		os.Exit(1)
	}

	// Register Connect services
	interceptors := connect.WithInterceptors(
		middleware.ActorInterceptor(),
		middleware.LoggingInterceptor(logger),
	)

	groupPath, groupHandler := apiconnect.NewGroupServiceHandler(service.NewGroupService(engine), interceptors)
	mux.Handle(groupPath, groupHandler)

	ledgerPath, ledgerHandler := apiconnect.NewLedgerServiceHandler(service.NewLedgerService(engine), interceptors)
	mux.Handle(ledgerPath, ledgerHandler)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	handler := h2c.NewHandler(loggingMiddleware(corsMiddleware(mux)), &http2.Server{})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}

	// Graceful shutdown handling
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}()

	logger.Info("Connect server starting",
		"address", srv.Addr,
		"backend", cfg.DataBackend,
		"lock_timeout", cfg.LockTimeout,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}

// loggingMiddleware logs plain HTTP requests. RPCs are logged by the Connect
// interceptor.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		slog.Debug("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// corsMiddleware adds CORS headers for browser access
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Connect-Protocol-Version, Connect-Timeout-Ms, "+middleware.ActorHeader)
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
