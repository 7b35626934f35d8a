package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"github.com/salonbook/salonapi/internal/auth"
	"github.com/salonbook/salonapi/internal/db/bunx"
	"github.com/salonbook/salonapi/internal/jobs"
	salonmw "github.com/salonbook/salonapi/internal/middleware"
	"github.com/salonbook/salonapi/internal/notify"
	"github.com/salonbook/salonapi/internal/repository"
	"github.com/salonbook/salonapi/internal/respond"
	"github.com/salonbook/salonapi/internal/server"
	"github.com/salonbook/salonapi/internal/services/iam"
	"github.com/salonbook/salonapi/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the salon API server",
	Long:  `Starts the HTTP server with the auth, role administration and admin event endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logrus.StandardLogger()
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdownTelemetry, err := telemetry.Init(ctx, cfg.Observability)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				log.WithError(err).Warn("telemetry shutdown failed")
			}
		}()

		// Connect to database
		db, err := bunx.NewDB(cfg.DatabaseURL, bunx.Options{MaxOpenConns: cfg.MaxDBConnections})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)
		log.Info("connected to database")

		if dbMetrics, err := telemetry.NewDatabaseMetrics(); err != nil {
			log.WithError(err).Warn("database metrics unavailable")
		} else {
			db.AddQueryHook(telemetry.NewQueryHook(dbMetrics))
		}
		serverMetrics, err := telemetry.NewServerMetrics()
		if err != nil {
			log.WithError(err).Warn("server metrics unavailable")
		}
		authMetrics, err := telemetry.NewAuthMetrics()
		if err != nil {
			log.WithError(err).Warn("auth metrics unavailable")
		}

		tokens, err := auth.NewTokenService(cfg.Auth)
		if err != nil {
			return err
		}

		mailer, err := notify.NewMailer(cfg.SMTP, log)
		if err != nil {
			return fmt.Errorf("failed to configure mailer: %w", err)
		}
		hub := notify.NewHub(log, notify.WithAllowedOrigins(cfg.CORS.AllowedOrigins))
		defer hub.Close()

		iamService, err := iam.NewIAMService(iam.Dependencies{
			Transactor:   repository.NewBunTransactor(db),
			Repositories: repository.NewBunRepositories(db),
			Tokens:       tokens,
			Publisher:    hub,
			Mailer:       mailer,
			Metrics:      authMetrics,
			Logger:       log,
		}, iam.ConfigFrom(cfg))
		if err != nil {
			return fmt.Errorf("create IAM service: %w", err)
		}
		log.Info("IAM service initialized")

		rs := respond.New(cfg.IsProduction(), log)

		var limiter *salonmw.RateLimiter
		if cfg.Redis.URL != "" {
			opts, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				return fmt.Errorf("invalid redis url: %w", err)
			}
			client := redis.NewClient(opts)
			defer client.Close()
			if err := client.Ping(ctx).Err(); err != nil {
				// The limiter fails open, so a missing redis only disables limiting.
				log.WithError(err).Warn("redis unreachable; rate limiting will fail open")
			}
			limiter = salonmw.NewRateLimiter(client, cfg.Redis.RateLimit, cfg.Redis.RateWindow, "salonapi:ratelimit", rs, log)
			log.WithFields(logrus.Fields{
				"limit":  cfg.Redis.RateLimit,
				"window": cfg.Redis.RateWindow.String(),
			}).Info("rate limiting enabled")
		}

		scheduler, err := jobs.NewScheduler(iamService, cfg.Jobs.PurgeSchedule, log)
		if err != nil {
			return err
		}
		scheduler.Start()

		corsOpts := server.DefaultCORSOptions(cfg.CORS.AllowedOrigins)
		router := server.NewRouter(server.RouterOptions{
			IAMService:        iamService,
			Auth:              salonmw.NewAuth(iamService, rs, authMetrics, log),
			Responder:         rs,
			RateLimiter:       limiter,
			Hub:               hub,
			Logger:            log,
			ServerMetrics:     serverMetrics,
			CORSOptions:       &corsOpts,
			HealthHandler:     healthHandler(db),
			TrustProxyHeaders: cfg.TrustProxyHeaders,
		})

		srv := server.NewHTTPServer(cfg.ServerAddr, router)

		// Start server in goroutine
		serverErrors := make(chan error, 1)
		go func() {
			log.WithFields(logrus.Fields{
				"addr":        cfg.ServerAddr,
				"server_url":  cfg.ServerURL,
				"environment": cfg.Environment,
			}).Info("starting server")
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		case <-ctx.Done():
			log.Info("shutting down gracefully")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Live WebSocket connections are hijacked and do not block Shutdown.
		hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		if err := scheduler.Stop(shutdownCtx); err != nil {
			log.WithError(err).Warn("background jobs did not stop in time")
		}

		log.Info("server stopped")
		return nil
	},
}

// healthHandler reports ok when the database answers a ping.
func healthHandler(db *bun.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := db.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"success":false,"status":"unavailable","message":"database unreachable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true,"status":"ok"}`))
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
