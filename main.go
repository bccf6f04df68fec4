package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ecoStreakAPI/handlers"
	"ecoStreakAPI/internal/cache"
	"ecoStreakAPI/internal/config"
	"ecoStreakAPI/internal/logging"
	"ecoStreakAPI/internal/notification"
	"ecoStreakAPI/internal/storage/postgres"
	"ecoStreakAPI/internal/streak"
	"ecoStreakAPI/internal/workers"
	"ecoStreakAPI/middleware"
	"ecoStreakAPI/services"

	_ "net/http/pprof"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger is not up yet
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Path: cfg.LogPath, Service: "ecostreak-api"})
	if err != nil {
		os.Stderr.WriteString("failed to build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.ClerkSecretKey == "" {
		logger.Fatal("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(cfg.ClerkSecretKey)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbPool, err := postgres.Connect(connectCtx, cfg.DatabaseURL, postgres.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	cancel()
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() {
		logger.Info("closing database connection pool")
		dbPool.Close()
	}()
	logger.Info("connected to database")

	progressCache, err := cache.New(ctx, cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.ProgressCacheTTL,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, progress cache disabled", zap.Error(err))
		progressCache = nil
	}
	if progressCache != nil {
		defer progressCache.Close()
	}

	loc, _ := cfg.StreakLocation()
	calc := streak.NewCalculator(loc, cfg.StrictInvariants)

	store := postgres.NewStore(dbPool)

	notificationService := services.NewNotificationService(dbPool, logger)
	defer notificationService.Stop()

	fcmService, err := notification.NewFCMService(ctx, notification.FCMOptions{
		ServiceAccountJSON: cfg.FCMServiceAccountJSON,
		CredentialsFile:    cfg.FCMCredentialsFile,
	}, logger)
	if err != nil {
		logger.Warn("could not initialize FCM, push disabled", zap.Error(err))
	} else {
		notificationService.SetPushProvider(fcmService)
	}

	rewardService := services.NewRewardService(store, progressCache, logger)
	rewardService.SetNotifier(notificationService)
	challengeService := services.NewChallengeService(store, rewardService, calc, logger)
	referralService := services.NewReferralService(store, rewardService, cfg.ReferralLinkBase, logger)
	referralService.SetNotifier(notificationService)
	userService := services.NewUserService(dbPool, logger)
	friendService := services.NewFriendService(dbPool, notificationService, logger)
	teamService := services.NewTeamService(dbPool, notificationService, logger)
	cosmeticService := services.NewCosmeticService(dbPool)

	workers.StartReconcileWorker(ctx, rewardService, cfg.ReconcileInterval, logger)

	services.RegisterMetrics(prometheus.DefaultRegisterer)
	middleware.InitPrometheus(prometheus.DefaultRegisterer)

	rateLimiter := middleware.NewRateLimiter(5, 30)
	go rateLimiter.CleanupVisitors(ctx)

	r := newRouter(cfg, dbPool, rateLimiter, routerHandlers{
		user:         handlers.NewUserHandler(userService, logger),
		challenge:    handlers.NewChallengeHandler(challengeService, logger),
		reward:       handlers.NewRewardHandler(rewardService, cosmeticService, logger),
		referral:     handlers.NewReferralHandler(referralService, logger),
		friend:       handlers.NewFriendHandler(friendService, logger),
		team:         handlers.NewTeamHandler(teamService, logger),
		notification: handlers.NewNotificationHandler(notificationService, logger),
		webhook:      handlers.NewWebhookHandler(userService, referralService, cfg.ClerkWebhookSecret, logger),
	}, logger)

	corsHandler := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins(cfg.AllowedOrigins),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorillaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorillaHandlers.AllowCredentials(),
	)

	server := http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("error starting server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("server shutdown complete")
}

type routerHandlers struct {
	user         *handlers.UserHandler
	challenge    *handlers.ChallengeHandler
	reward       *handlers.RewardHandler
	referral     *handlers.ReferralHandler
	friend       *handlers.FriendHandler
	team         *handlers.TeamHandler
	notification *handlers.NotificationHandler
	webhook      *handlers.WebhookHandler
}

func newRouter(cfg *config.AppConfig, dbPool *pgxpool.Pool, rateLimiter *middleware.RateLimiter, h routerHandlers, logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()

	standardRouter := r.PathPrefix("/").Subrouter()
	standardRouter.Use(rateLimiter.Middleware)
	standardRouter.Use(middleware.MonitorMiddleware)

	standardRouter.Handle("/metrics", middleware.BasicAuthMiddleware(cfg.MetricsUser, cfg.MetricsPass)(promhttp.Handler()))
	standardRouter.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(cfg.PprofSecret)(http.DefaultServeMux))

	standardRouter.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := dbPool.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "ecostreak-api"}`))
	}).Methods("GET")

	standardRouter.HandleFunc("/webhooks/clerk", h.webhook.HandleClerkWebhook).Methods("POST")

	api := standardRouter.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/challenges", h.challenge.ListChallenges).Methods("GET")
	api.HandleFunc("/leaderboard/teams", h.team.Leaderboard).Methods("GET")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.ClerkAuthMiddleware(logger))

	protected.HandleFunc("/user/profile", h.user.GetProfile).Methods("GET")
	protected.HandleFunc("/user/profile", h.user.UpdateProfile).Methods("PUT")
	protected.HandleFunc("/user/account", h.user.DeleteAccount).Methods("DELETE")
	protected.HandleFunc("/users/search", h.user.SearchUsers).Methods("GET")
	protected.HandleFunc("/users/{id}", h.user.GetPublicProfile).Methods("GET")

	protected.HandleFunc("/challenges/history", h.challenge.History).Methods("GET")
	protected.HandleFunc("/challenges/{id}/complete", h.challenge.CompleteChallenge).Methods("POST")

	protected.HandleFunc("/rewards/progress", h.reward.GetOverview).Methods("GET")
	protected.HandleFunc("/rewards/unlocks", h.reward.GetUnlocks).Methods("GET")
	protected.HandleFunc("/cosmetics", h.reward.GetCatalog).Methods("GET")
	protected.HandleFunc("/cosmetics/inventory", h.reward.GetInventory).Methods("GET")
	protected.HandleFunc("/cosmetics/equip", h.reward.Equip).Methods("POST")

	protected.HandleFunc("/referrals/apply", h.referral.ApplyReferral).Methods("POST")
	protected.HandleFunc("/referrals/invite", h.referral.GetInvite).Methods("GET")

	protected.HandleFunc("/friends", h.friend.ListFriends).Methods("GET")
	protected.HandleFunc("/friends/requests", h.friend.ListPending).Methods("GET")
	protected.HandleFunc("/friends/request", h.friend.SendRequest).Methods("POST")
	protected.HandleFunc("/friends/{id}/accept", h.friend.AcceptRequest).Methods("POST")
	protected.HandleFunc("/friends/{id}", h.friend.RemoveFriend).Methods("DELETE")
	protected.HandleFunc("/leaderboard/friends", h.friend.Leaderboard).Methods("GET")

	protected.HandleFunc("/teams", h.team.CreateTeam).Methods("POST")
	protected.HandleFunc("/teams/join", h.team.JoinTeam).Methods("POST")
	protected.HandleFunc("/teams/leave", h.team.LeaveTeam).Methods("POST")
	protected.HandleFunc("/teams/mine", h.team.MyTeam).Methods("GET")
	protected.HandleFunc("/teams/{id}", h.team.GetTeam).Methods("GET")

	protected.HandleFunc("/notifications", h.notification.GetNotifications).Methods("GET")
	protected.HandleFunc("/notifications/unread-count", h.notification.GetUnreadCount).Methods("GET")
	protected.HandleFunc("/notifications/read-all", h.notification.MarkAllAsRead).Methods("PUT")
	protected.HandleFunc("/notifications/{id}/read", h.notification.MarkAsRead).Methods("PUT")
	protected.HandleFunc("/notifications/register-device", h.notification.RegisterDevice).Methods("POST")

	return r
}
