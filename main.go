// Package main provides the main entry point for the broadcastd scheduling and delivery engine
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sepehrad/broadcastd/app/handlers"
	"github.com/sepehrad/broadcastd/app/router"
	"github.com/sepehrad/broadcastd/app/scheduler"
	"github.com/sepehrad/broadcastd/app/services"
	businessflow "github.com/sepehrad/broadcastd/business_flow"
	"github.com/sepehrad/broadcastd/config"
	"github.com/sepehrad/broadcastd/repository"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting broadcastd...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity.
// Returns nil when caching is disabled; the chain locks and opt-out cache
// fall back to local state in that case.
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.RedisURL, cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeMessageSender selects the delivery transport based on configuration
func initializeMessageSender(cfg *config.ProductionConfig) services.MessageSender {
	switch cfg.Provider.Domain {
	case "mock":
		return services.NewMockMessageSender()
	default:
		return services.NewMessageSender(&cfg.Provider)
	}
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	// Initialize database
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		cancel := startCacheHealthMonitor(context.Background(), rc, 30*time.Second)
		stopFuncs = append(stopFuncs, cancel)
	}

	// Initialize repositories
	customerRepo := repository.NewCustomerRepository(db)
	contactRepo := repository.NewContactRepository(db)
	lineNumberRepo := repository.NewLineNumberRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	broadcastRepo := repository.NewBroadcastRepository(db)
	settingRepo := repository.NewBroadcastSettingRepository(db)
	enrollmentRepo := repository.NewBroadcastContactRepository(db)
	summaryRepo := repository.NewBroadcastSummaryRepository(db)
	queueRepo := repository.NewQueueEntryRepository(db)
	forwardRepo := repository.NewForwardQueueRepository(db)
	messageLogRepo := repository.NewBroadcastMessageLogRepository(db)
	controlRepo := repository.NewControlRequestRepository(db)
	sourceRepo := repository.NewEnrollmentSourceRepository(db)
	optOutRepo := repository.NewOptOutRepository(db)

	// Initialize services
	sender := initializeMessageSender(cfg)
	contactSources := services.NewContactSourceService(contactRepo)

	locks := businessflow.NewContactChainLocks(rc, &cfg.Cache)
	optOuts := businessflow.NewOptOutCache(rc, &cfg.Cache, optOutRepo)

	// Initialize flows
	schedulerFlow := businessflow.NewSchedulerFlow(
		broadcastRepo,
		settingRepo,
		enrollmentRepo,
		queueRepo,
		messageLogRepo,
		locks,
		db,
	)

	dispatchFlow := businessflow.NewDispatchFlow(
		queueRepo,
		settingRepo,
		broadcastRepo,
		enrollmentRepo,
		contactRepo,
		customerRepo,
		lineNumberRepo,
		walletRepo,
		messageLogRepo,
		summaryRepo,
		forwardRepo,
		optOuts,
		sender,
		db,
	)

	controlFlow := businessflow.NewControlFlow(
		controlRepo,
		broadcastRepo,
		enrollmentRepo,
		queueRepo,
		summaryRepo,
		optOutRepo,
		optOuts,
		schedulerFlow,
		db,
	)

	entryFlow := businessflow.NewContactEntryFlow(
		broadcastRepo,
		contactRepo,
		enrollmentRepo,
		sourceRepo,
		summaryRepo,
		optOuts,
		contactSources,
		schedulerFlow,
		db,
	)

	broadcastFlow := businessflow.NewBroadcastFlow(
		broadcastRepo,
		customerRepo,
		lineNumberRepo,
		controlRepo,
		sourceRepo,
		db,
	)

	settingFlow := businessflow.NewSettingFlow(broadcastRepo, settingRepo, db)

	// Initialize handlers and router
	broadcastHandler := handlers.NewBroadcastHandler(broadcastFlow, settingFlow)
	appRouter := router.NewFiberRouter(broadcastHandler, cfg)

	// Start the polling engine
	engine := scheduler.NewEngine(
		controlRepo,
		sourceRepo,
		queueRepo,
		forwardRepo,
		controlFlow,
		entryFlow,
		dispatchFlow,
		schedulerFlow,
		cfg.Scheduler,
		cfg.Logging,
	)
	stopEngine := engine.Start(context.Background())
	stopFuncs = append(stopFuncs, stopEngine)

	fiberRouter := appRouter.(*router.FiberRouter)
	application := &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}

	return application, nil
}
