package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lot-analyze-pipeline/config"
	"lot-analyze-pipeline/database"
	"lot-analyze-pipeline/engine"
	"lot-analyze-pipeline/gemini"
	"lot-analyze-pipeline/handlers"
	"lot-analyze-pipeline/llm"
	"lot-analyze-pipeline/metrics"
	"lot-analyze-pipeline/olx"
	"lot-analyze-pipeline/rabbitmq"
	"lot-analyze-pipeline/service"
	"lot-analyze-pipeline/services"
	"lot-analyze-pipeline/stubllm"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Validate required configuration
	if cfg.LLMProvider == "gemini" && cfg.GeminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := db.CreateTables(); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	// Register Prometheus metrics
	metrics.Register()

	// Initialize classifier and valuation engine
	var classifier llm.Classifier
	if cfg.LLMProvider == "stub" {
		classifier = stubllm.NewClient()
	} else {
		classifier = gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel)
	}
	log.Printf("Classifier provider=%s model=%s", classifier.SourceName(), cfg.GeminiModel)

	market := services.NewSimulatedMarket(float64(cfg.MinPrice) * 10)
	feedback := services.NewFeedbackService(db, cfg.FeedbackMagnitude)
	contexts := services.NewContextBuilder(db)
	eng := engine.New(classifier, market, feedback, contexts, cfg)

	// Initialize listing fetcher
	fetcher := olx.NewFetcher(cfg.MinPrice, cfg.MaxListingsPerTerm, cfg.FetchTimeout)

	// Initialize RabbitMQ publisher
	publisher, err := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.Exchange, cfg.DecisionRoutingKey)
	if err != nil {
		log.Printf("Failed to initialize RabbitMQ publisher: %v", err)
		// Continue without publisher - evaluation still runs
		publisher = nil
	}

	// Initialize scheduler
	svc := service.NewService(cfg, db, eng, classifier, fetcher, publisher)

	// Initialize handlers
	h := handlers.NewHandlers(db, feedback, svc)

	// Setup HTTP server
	router := gin.Default()

	// API routes
	api := router.Group("/api/v3")
	{
		api.GET("/health", h.HealthCheck)
		api.GET("/status", h.GetStatus)
		api.GET("/stats", h.GetStats)
		api.GET("/listings/:id", h.GetListing)
		api.POST("/listings/:id/vote", h.PostVote)
		api.POST("/references", h.PostReference)
		api.POST("/search", h.PostSearch)
		api.POST("/queue", h.PostQueue)
		api.POST("/queue/run", h.PostQueueRun)
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start the polling scheduler
	svc.Start()

	// Start HTTP server in a goroutine
	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Stop the scheduler
	svc.Stop()

	// Create a deadline for server shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
