package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"

	"github.com/chargebox/backend/internal/database"
	"github.com/chargebox/backend/internal/ledger"
	"github.com/chargebox/backend/internal/logger"
	"github.com/chargebox/backend/internal/metrics"
	mW "github.com/chargebox/backend/internal/middleware"
	"github.com/chargebox/backend/internal/queue"
	"github.com/chargebox/backend/internal/services"
)

func main() {
	// Initialize config
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	viper.ReadInConfig()

	viper.BindEnv("app.env", "APP_ENV")
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("queue.workers", "QUEUE_WORKERS")
	viper.SetDefault("queue.workers", 4)

	slog.SetDefault(logger.New(viper.GetString("app.env")))
	metrics.Init()

	db, err := database.InitDB()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(context.Background(), db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("database ready")

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Core + shell
	ledgerService := ledger.New(db)

	var producer *queue.Producer
	var worker *queue.Worker
	if redisClient != nil {
		producer = queue.NewProducer(redisClient)
		worker = queue.NewWorker(redisClient, ledgerService, viper.GetInt("queue.workers"))
		worker.Start()
		defer worker.Stop()
	}

	sellerService := services.NewSellerService(db)
	transactionService := services.NewTransactionService(db)
	topUpService := services.NewTopUpService(db, ledgerService)
	saleService := services.NewSaleService(ledgerService, producer)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(mW.HTTPMetrics)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Prometheus metrics
	r.Handle("/metrics", metrics.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sellers", sellerService.CreateSeller)
		r.Get("/sellers", sellerService.ListSellers)
		r.Get("/sellers/{sellerId}", sellerService.GetSeller)

		r.Get("/transactions", transactionService.ListTransactions)

		r.Post("/topups", topUpService.CreateTopUp)
		r.Get("/topups", topUpService.ListTopUps)
		r.Get("/topups/{topupId}", topUpService.GetTopUp)

		r.Post("/sales", saleService.SellCharge)
		r.Post("/sales/async", saleService.SellChargeAsync)

		// Applying a top-up moves money; operators only.
		r.Group(func(r chi.Router) {
			r.Use(mW.AdminAuth)
			r.Post("/topups/{topupId}/apply", topUpService.ApplyTopUp)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		slog.Info("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	slog.Info("server stopped")
}
