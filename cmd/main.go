package main

import (
	"context"

	"tenancy-service/internal/graph"
	"tenancy-service/internal/handler"
	"tenancy-service/internal/jobs"
	"tenancy-service/internal/middleware"
	"tenancy-service/internal/model"
	"tenancy-service/internal/scheduler"
	"tenancy-service/internal/store"
	"tenancy-service/internal/tenancy"
	"tenancy-service/pkg/config"
	"tenancy-service/pkg/database"
	"tenancy-service/pkg/jwtutil"
	"tenancy-service/pkg/logger"
	"tenancy-service/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting tenancy service...", cfg.LogConfig()...)

	// Initialize database
	if err := database.InitDB(cfg); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	// Initialize IdP assertion validation
	jwtutil.Initialize(&cfg.IdP)

	// Datastores
	db := database.GetDB()
	tenancyStore := store.NewTenancy(db)
	schedulingStore := store.NewScheduling(db)
	sessions := store.NewSessions(db)

	// Tenant resolution
	defaultTenants := tenancy.NewDefaultTenantCache(tenancyStore, cfg.Tenancy.DefaultTenantSlug)
	ledger := tenancy.NewLedger(tenancyStore)
	resolver := tenancy.NewResolver(tenancyStore, ledger, defaultTenants, log)

	// Background jobs over the Graph collaborator
	graphClient := graph.NewClient(cfg.Graph.BaseURL, cfg.Graph.Token, cfg.Graph.MailSender)
	reminderJob := jobs.NewExpenseReminder(tenancyStore, graphClient)
	syncJob := jobs.NewPlannerSync(schedulingStore, graphClient)

	runner := scheduler.NewRunner(schedulingStore, log)
	runner.Register(reminderJob)
	runner.Register(syncJob)

	cronScheduler := scheduler.NewCronScheduler()
	registry := scheduler.NewRegistry(schedulingStore, runner, cronScheduler, reminderJob, log)

	if cfg.Scheduler.Enabled {
		if err := registry.StartAll(context.Background()); err != nil {
			log.Fatal("Failed to start tenant schedules", zap.Error(err))
		}
		defer registry.StopAll()

		// System-wide planner sync sweep
		_, err := cronScheduler.Schedule(cfg.Scheduler.SyncSchedule, cfg.Scheduler.SyncTimezone, func() {
			if _, err := runner.RunForAllTenants(context.Background(), model.JobPlannerSync, model.TriggerScheduled, nil); err != nil {
				log.Error("Planner sync sweep failed", zap.Error(err))
			}
		})
		if err != nil {
			log.Fatal("Failed to schedule planner sync sweep", zap.Error(err))
		}

		// Hourly expired-session sweep
		_, err = cronScheduler.Schedule("0 * * * *", "UTC", func() {
			removed, err := sessions.DeleteExpired(context.Background())
			if err != nil {
				log.Error("Session sweep failed", zap.Error(err))
				return
			}
			if removed > 0 {
				log.Info("Expired sessions removed", zap.Int64("count", removed))
			}
		})
		if err != nil {
			log.Fatal("Failed to schedule session sweep", zap.Error(err))
		}

		log.Info("Scheduler started", zap.Int("tenant_schedules", registry.HandleCount()))
	}

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Handlers
	authHandler := handler.NewAuthHandler(tenancyStore, sessions, resolver, cfg.Session.TTL)
	tenantHandler := handler.NewTenantHandler(tenancyStore, registry, defaultTenants)
	jobHandler := handler.NewJobHandler(runner, schedulingStore, registry)

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// Authentication routes
	auth := e.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/sso/callback", authHandler.SSOCallback)
	auth.POST("/logout", authHandler.Logout, middleware.Auth(sessions))

	// API routes - all require a session, tenant context attached per request
	api := e.Group("/api")
	api.Use(middleware.Auth(sessions))
	api.Use(middleware.TenantContext(resolver))

	api.GET("/me", tenantHandler.Me)
	api.GET("/tenants/memberships", tenantHandler.ListMemberships)

	// Tenant-scoped operations - require a resolved tenant context
	tenantScoped := api.Group("")
	tenantScoped.Use(middleware.RequireTenantContext)
	tenantScoped.GET("/tenants/current", tenantHandler.GetCurrent)
	tenantScoped.PATCH("/tenants/current/schedule", tenantHandler.UpdateSchedule, middleware.RequireRole("owner", "admin"))
	tenantScoped.POST("/jobs/:type/run", jobHandler.Run)
	tenantScoped.GET("/job-runs", jobHandler.ListRuns)

	// Administrative sweeps - system-wide, so no tenant context required
	api.POST("/jobs/:type/run-all", jobHandler.RunAll, middleware.RequireRole("owner", "admin"))
	api.POST("/scheduler/restart", jobHandler.RestartScheduler, middleware.RequireRole("owner", "admin"))

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
