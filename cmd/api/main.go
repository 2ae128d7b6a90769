package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/cassaevelyn/smartlib/internal/handlers"
	"github.com/cassaevelyn/smartlib/internal/mailer"
	"github.com/cassaevelyn/smartlib/internal/notify"
	"github.com/cassaevelyn/smartlib/internal/repository"
	"github.com/cassaevelyn/smartlib/internal/service"
	"github.com/cassaevelyn/smartlib/internal/verification"
	"github.com/cassaevelyn/smartlib/pkg/auth"
	"github.com/cassaevelyn/smartlib/pkg/config"
	"github.com/cassaevelyn/smartlib/pkg/database"
	"github.com/cassaevelyn/smartlib/pkg/events"
	"github.com/cassaevelyn/smartlib/pkg/logger"
	mw "github.com/cassaevelyn/smartlib/pkg/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database.URL, database.Options{
		MaxConns:    int32(cfg.Database.MaxConns),
		MinConns:    int32(cfg.Database.MinConns),
		MaxLifetime: cfg.Database.MaxLifetime,
	})
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Error("Invalid Redis URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	// Repositories
	userRepo := repository.NewUserRepo(pool)
	verifyRepo := repository.NewVerificationRepo(pool)
	sessionRepo := repository.NewSessionRepo(pool)
	accessRepo := repository.NewAccessRepo(pool)
	loyaltyRepo := repository.NewLoyaltyRepo(pool)
	activityRepo := repository.NewActivityRepo(pool)

	// Core pieces
	engine := verification.NewEngine(verifyRepo, verification.Options{
		OTPLength:   cfg.Auth.OTPLength,
		MaxAttempts: cfg.Auth.MaxVerifyAttempts,
	})
	blacklist := auth.NewBlacklist(redisClient, cfg.Auth.JWTSecret)

	// Services
	authService := service.NewAuthService(userRepo, sessionRepo, loyaltyRepo, activityRepo, engine, blacklist, eventBus, cfg)
	accessService := service.NewAccessService(userRepo, accessRepo, activityRepo, eventBus)
	sessionService := service.NewSessionService(sessionRepo)
	loyaltyService := service.NewLoyaltyService(loyaltyRepo, eventBus)

	// Email worker, off the request path
	var mailSvc mailer.Service
	if cfg.Email.DevMode {
		mailSvc = mailer.NewDevMailer()
	} else {
		mailSvc = mailer.NewMailerSend(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.FromEmail)
	}
	if err := notify.NewWorker(eventBus, mailSvc).Start(); err != nil {
		logger.Error("Failed to start notify worker", "error", err)
		os.Exit(1)
	}

	h := handlers.New(authService, accessService, sessionService, loyaltyService, cfg)

	authLimiter := mw.NewRateLimiter(redisClient, mw.RateLimitConfig{
		Requests: 20,
		Window:   time.Minute,
	})

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("identity"))
	r.Use(mw.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.Frontend.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(mw.Health)

	r.Route("/v1/auth", func(r chi.Router) {
		r.Use(authLimiter.Middleware())
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/refresh", h.Refresh)
		r.Post("/otp/send", h.SendOTP)
		r.Post("/otp/verify", h.VerifyOTP)
		r.Get("/verify-email", h.VerifyEmail)
		r.Post("/verify-email", h.VerifyEmail)
		r.Post("/resend-activation", h.ResendActivation)
		r.Post("/password-reset/request", h.RequestPasswordReset)
		r.Post("/password-reset/confirm", h.ConfirmPasswordReset)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireJWT(""))
			r.Get("/me", h.Me)
			r.Patch("/me", h.UpdateMe)
			r.Get("/activity", h.MyActivity)
			r.Post("/logout", h.Logout)
			r.Post("/change-password", h.ChangePassword)
			r.Get("/sessions", h.MySessions)
			r.Delete("/sessions/{id}", h.EndSession)
		})
	})

	r.Route("/v1/access", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.RequireJWT(""))
			r.Post("/apply", h.ApplyForAccess)
			r.Get("/grants", h.MyGrants)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.RequireJWT("ADMIN"))
			r.Post("/grants", h.GrantAccessDirect)
			r.Post("/grants/{id}/activate", h.GrantAccess)
			r.Delete("/grants/{id}", h.RevokeAccess)
			r.Get("/users/{id}/grants", h.ListUserGrants)
			r.Post("/users/{id}/approve", h.ApproveUser)
			r.Post("/users/{id}/reject", h.RejectUser)
		})
	})

	r.Route("/v1/loyalty", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.RequireJWT(""))
			r.Get("/points", h.MyPoints)
			r.Get("/history", h.MyPointsHistory)
			r.Post("/redeem", h.RedeemPoints)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.RequireJWT("ADMIN"))
			r.Post("/users/{id}/award", h.AwardPoints)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down identity service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Identity service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting identity service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Identity service error", "error", err)
		os.Exit(1)
	}
}
