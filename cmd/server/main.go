package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soaringjerry/kalpha/internal/api"
	"github.com/soaringjerry/kalpha/internal/logger"
	"github.com/soaringjerry/kalpha/internal/middleware"
	"github.com/soaringjerry/kalpha/internal/services"
	"github.com/soaringjerry/kalpha/internal/utils"
)

func main() {
	log, err := logger.New(utils.SafeEnv("KALPHA_LOG_MODE", "dev"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	addr := utils.SafeEnv("KALPHA_ADDR", ":8080")
	commit := os.Getenv("KALPHA_COMMIT")
	buildTime := os.Getenv("KALPHA_BUILD_TIME")

	cfg := api.RouterConfig{
		Logger:            log,
		Limiter:           middleware.NewRateLimiter(utils.EnvInt("KALPHA_RATE_PER_MIN", 120)),
		MaxBodyBytes:      int64(utils.EnvInt("KALPHA_MAX_BODY_BYTES", 1<<20)),
		MaxDistinctValues: utils.EnvInt("KALPHA_MAX_VALUES", services.DefaultMaxDistinctValues),
	}
	clients, err := services.ParseClients(os.Getenv("KALPHA_CLIENTS"))
	if err != nil {
		log.Fatal("invalid KALPHA_CLIENTS", "error", err)
	}
	if len(clients) > 0 {
		if os.Getenv("KALPHA_JWT_SECRET") == "" {
			log.Warn("KALPHA_JWT_SECRET not set; using development signing secret")
		}
		cfg.Auth = services.NewAuthService(clients, middleware.SignToken, utils.EnvDuration("KALPHA_TOKEN_TTL", 24*time.Hour))
		log.Info("api authentication enabled", "clients", len(clients))
	} else {
		log.Warn("no KALPHA_CLIENTS configured; alpha endpoints are open")
	}

	mux := http.NewServeMux()
	api.NewRouter(cfg).Register(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		locale := middleware.LocaleFromContext(r.Context())
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "kalpha",
			"locale":     locale,
			"msg":        utils.T(locale, "health.ok"),
			"commit":     commit,
			"build_time": buildTime,
		})
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"commit":     commit,
			"build_time": buildTime,
		})
	})

	// Outermost first: request id must exist before the access log runs.
	handler := middleware.RequestID(
		middleware.AccessLog(log)(
			middleware.CORS(
				middleware.SecureHeaders(
					middleware.NoStore(
						middleware.LocaleMiddleware(mux))))))

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		log.Info("kalpha server listening", "addr", addr, "commit", commit)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown", "error", err)
	}
	log.Info("server stopped")
}
