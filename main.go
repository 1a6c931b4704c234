package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"safeMateAPI/handlers"
	"safeMateAPI/internal/notification"
	"safeMateAPI/middleware"
	"safeMateAPI/services"

	_ "net/http/pprof"
)

var (
	dbPool             *pgxpool.Pool
	userService        *services.UserService
	moodService        *services.MoodService
	statsService       *services.StatsService
	achievementService *services.AchievementService
	safetyService      *services.SafetyService
	integrationService *services.IntegrationService
	tavusService       *services.TavusService
	telegramService    *services.TelegramService
	fcmService         *notification.FCMService
	liveShareManager   *services.LiveShareManager
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	clerkSecretKey := os.Getenv("CLERK_SECRET_KEY")
	if clerkSecretKey == "" {
		log.Fatal("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(clerkSecretKey)
	log.Println("Clerk initialized successfully")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatal("Failed to parse database URL:", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal("Failed to create connection pool:", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	log.Println("Successfully connected to database")

	userService = services.NewUserService(dbPool)
	moodService = services.NewMoodService(dbPool)
	statsService = services.NewStatsService(dbPool, moodService)
	achievementService = services.NewAchievementService(dbPool, statsService)
	integrationService = services.NewIntegrationService(dbPool)
	tavusService = services.NewTavusService(integrationService)
	telegramService = services.NewTelegramService(os.Getenv("TELEGRAM_BOT_TOKEN"))
	liveShareManager = services.NewLiveShareManager()
	safetyService = services.NewSafetyService(dbPool, userService, statsService, liveShareManager)
	safetyService.SetTelegramService(telegramService)
	safetyService.SetIntegrationService(integrationService)

	fcmService, err = notification.NewFCMService("./serviceAccountKey.json")
	if err != nil {
		log.Printf("Warning: Could not initialize FCM: %v", err)
	} else {
		safetyService.SetPushProvider(fcmService)
		log.Println("FCM Push Provider initialized successfully")
	}

	middleware.InitPrometheus()
	services.InitSafetyMetrics()
}

func main() {
	defer func() {
		log.Println("Closing database connection pool...")
		dbPool.Close()
	}()

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userService)
	moodHandler := handlers.NewMoodHandler(moodService, achievementService)
	statsHandler := handlers.NewStatsHandler(statsService, achievementService)
	safetyHandler := handlers.NewSafetyHandler(safetyService, liveShareManager)
	integrationHandler := handlers.NewIntegrationHandler(integrationService, tavusService, telegramService, userService, statsService)
	webhookHandler := handlers.NewWebhookHandler(userService)

	r := mux.NewRouter()

	// Websocket route stays outside the middleware chain: the rate limiter
	// and monitor don't play well with long-lived connections.
	r.HandleFunc("/api/v1/safety/ws/{sessionID}", safetyHandler.JoinLiveSession)

	standardRouter := r.PathPrefix("/").Subrouter()

	go middleware.CleanupVisitors()

	standardRouter.Use(middleware.RateLimitMiddleware)
	standardRouter.Use(middleware.MonitorMiddleware)

	standardRouter.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))
	standardRouter.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(http.DefaultServeMux))

	standardRouter.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "safeMate-api"}`))
	}).Methods("GET")

	standardRouter.HandleFunc("/webhooks/clerk", webhookHandler.HandleClerkWebhook).Methods("POST")

	// -------------------------------------------------------------------------
	// API V1 SUBROUTER
	// -------------------------------------------------------------------------
	api := standardRouter.PathPrefix("/api/v1").Subrouter()

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.ClerkAuthMiddleware)

	protected.HandleFunc("/user", userHandler.GetProfile).Methods("GET")
	protected.HandleFunc("/user/update-profile", userHandler.UpdateProfile).Methods("PUT")
	protected.HandleFunc("/user/delete-account", userHandler.DeleteAccount).Methods("DELETE")
	protected.HandleFunc("/user/register-device", userHandler.RegisterDevice).Methods("POST")
	protected.HandleFunc("/user/dashboard", statsHandler.GetDashboard).Methods("GET")
	protected.HandleFunc("/user/achievements", statsHandler.GetAchievements).Methods("GET")

	protected.HandleFunc("/mood", moodHandler.AddEntry).Methods("POST")
	protected.HandleFunc("/mood/today", moodHandler.GetToday).Methods("GET")
	protected.HandleFunc("/mood/recent", moodHandler.GetRecent).Methods("GET")
	protected.HandleFunc("/mood/streak", moodHandler.GetStreak).Methods("GET")
	protected.HandleFunc("/mood/calendar", moodHandler.GetCalendar).Methods("GET")

	protected.HandleFunc("/activities/complete", statsHandler.CompleteActivity).Methods("POST")
	protected.HandleFunc("/chats/log", statsHandler.LogChat).Methods("POST")

	protected.HandleFunc("/safety/start", safetyHandler.StartSession).Methods("POST")
	protected.HandleFunc("/safety/stop", safetyHandler.StopSession).Methods("POST")
	protected.HandleFunc("/safety/check-in", safetyHandler.CheckIn).Methods("POST")
	protected.HandleFunc("/safety/location", safetyHandler.Location).Methods("POST")
	protected.HandleFunc("/safety/battery", safetyHandler.Battery).Methods("POST")
	protected.HandleFunc("/safety/session", safetyHandler.GetSession).Methods("GET")
	protected.HandleFunc("/safety/session/{sessionID}/events", safetyHandler.GetSessionEvents).Methods("GET")

	protected.HandleFunc("/integrations/keys", integrationHandler.GetKeys).Methods("GET")
	protected.HandleFunc("/integrations/keys/{provider}", integrationHandler.SetKey).Methods("PUT")
	protected.HandleFunc("/integrations/keys/{provider}", integrationHandler.DeleteKey).Methods("DELETE")
	protected.HandleFunc("/integrations/tavus/conversations", integrationHandler.CreateConversation).Methods("POST")
	protected.HandleFunc("/integrations/tavus/conversations/{conversationID}/end", integrationHandler.EndConversation).Methods("POST")
	protected.HandleFunc("/integrations/telegram/notify", integrationHandler.NotifyTelegram).Methods("POST")

	// CORS configuration
	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3333"
	}
	port = ":" + port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}
