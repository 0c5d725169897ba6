package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"printq/internal/api/handlers"
	"printq/internal/api/middleware"
	"printq/internal/config"
	"printq/internal/core"
	"printq/internal/db"
	"printq/internal/events"
	"printq/internal/maintenance"
	"printq/internal/payment"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[main] failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[main] invalid config: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		log.Fatalf("[main] failed to create data directory: %v", err)
	}

	conn, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("[main] failed to open database: %v", err)
	}
	defer conn.Close()

	jobs := db.NewJobStore(conn)
	printers := db.NewPrinterStore(conn)
	users := db.NewUserStore(conn)
	settings := db.NewSettingStore(conn)
	sessions := db.NewSessionStore(conn)

	if err := seedAdmin(users); err != nil {
		log.Fatalf("[main] failed to seed admin user: %v", err)
	}

	hub := events.NewHub()
	sender := events.NewWebhookSender(cfg.Webhooks)
	hub.AttachSink(sender)
	sender.Start()
	defer sender.Stop()

	scheduler := core.NewTimerScheduler()
	engine := core.NewEngine(jobs, printers, hub, scheduler, cfg.Queue, cfg.Pricing)

	sweeper := maintenance.NewSweeper(engine, cfg.Maintenance)
	sweeper.Sweep()
	if err := sweeper.Start(); err != nil {
		log.Fatalf("[main] failed to start maintenance sweeper: %v", err)
	}
	defer sweeper.Stop()

	auth, err := middleware.NewAuth(users, settings)
	if err != nil {
		log.Fatalf("[main] failed to initialize auth: %v", err)
	}

	gateway := payment.NewClient(cfg.Payment)

	router := gin.Default()

	api := router.Group("/api")
	authed := router.Group("/api", auth.RequireAuth())
	admin := router.Group("/api", auth.RequireAuth(), auth.RequireAdmin())

	api.POST("/auth/login", auth.LoginHandler)
	api.POST("/auth/logout", auth.LogoutHandler)

	handlers.NewJobHandler(engine).RegisterRoutes(api, authed, admin)
	handlers.NewPrinterHandler(printers, hub).RegisterRoutes(api, admin)
	handlers.NewPaymentHandler(gateway, sessions, jobs, engine, cfg.Payment.SuccessURL, cfg.Payment.CancelURL).RegisterRoutes(api, authed)
	handlers.NewEventHandler(hub).RegisterRoutes(api)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("[main] listening on :%d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[main] server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[main] shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[main] forced shutdown: %v", err)
	}
}

// seedAdmin creates the bootstrap admin account on first boot. Credentials
// come from PRINTQ_ADMIN_EMAIL / PRINTQ_ADMIN_PASSWORD; seeding is skipped
// when they are unset or the account already exists.
func seedAdmin(users *db.UserStore) error {
	email := os.Getenv("PRINTQ_ADMIN_EMAIL")
	password := os.Getenv("PRINTQ_ADMIN_PASSWORD")
	if email == "" || password == "" {
		return nil
	}

	ctx := context.Background()
	if _, err := users.GetUserByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, core.ErrNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	if err := users.CreateUser(ctx, &db.User{
		ID:           uuid.NewString(),
		Name:         "Administrator",
		Email:        email,
		PasswordHash: string(hash),
		Role:         db.RoleAdmin,
	}); err != nil {
		return err
	}

	log.Printf("[main] seeded admin user %s", email)
	return nil
}
