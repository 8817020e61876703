package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/immersup/immersup-api/internal/auth"
	"github.com/immersup/immersup-api/internal/config"
	"github.com/immersup/immersup-api/internal/database"
	"github.com/immersup/immersup-api/internal/handlers"
	"github.com/immersup/immersup-api/internal/notifier"
	"github.com/immersup/immersup-api/internal/registration"
	"github.com/immersup/immersup-api/internal/scheduler"
	"github.com/immersup/immersup-api/internal/settings"
)

func main() {
	// Load Configuration
	cfg := config.LoadConfig()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Connect to Database
	db := database.Connect(cfg)

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
	}
	store := settings.NewStore(db, rdb, logger)

	ops, err := notifier.NewOpsNotifier(cfg.DiscordBotToken, cfg.DiscordOpsChannelID, logger)
	if err != nil {
		logger.Warn("ops notifier not initialized", zap.Error(err))
	}

	emitter := notifier.NewEmitter(db, logger)
	mailer := &notifier.SMTPMailer{
		Addr: net.JoinHostPort(cfg.SMTPHost, cfg.SMTPPort),
		From: cfg.MailFrom,
	}

	authSvc := auth.NewService(db, cfg.JWTSecret)
	regSvc := registration.NewService(db, emitter, store, logger)

	sched := scheduler.New(db, logger, ops)
	tasks := &scheduler.Tasks{
		DB:       db,
		Settings: store,
		Emitter:  emitter,
		Reg:      regSvc,
		Mailer:   mailer,
		Log:      logger,
	}
	tasks.RegisterAll(sched)
	go sched.Run(context.Background())

	h := &handlers.Handlers{
		Auth:     authSvc,
		Accounts: handlers.NewAccountHandler(db, authSvc, store, emitter, logger),
		Register: handlers.NewRegisterHandler(db, regSvc, logger),
		Records:  handlers.NewRecordHandler(db, store, emitter, cfg.UploadDir, logger),
		Exports:  handlers.NewExportHandler(db, store, logger),
		DB:       db,
	}

	// Initialize Router
	r := chi.NewRouter()
	if cfg.EnableCORS {
		r.Use(corsMiddleware)
	}

	// Register Routes
	handlers.RegisterRoutes(r, h)

	// Start Server
	logger.Info("starting server", zap.String("port", cfg.Port))
	if err := http.ListenAndServe(fmt.Sprintf(":%s", cfg.Port), r); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", r.Header.Get("Origin"))
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-TOKEN")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
