package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	httptransport "github.com/spec-kit/helpdesk-service/internal/api/http"
	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/broker"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/realtime"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/secure"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	RunE:  runServe,
}

// bootstrap loads configuration and the logger shared by every command.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	sealer, err := secure.NewSealer(cfg.Crypto.CredentialsKey)
	if err != nil {
		return fmt.Errorf("credentials key: %w", err)
	}

	metrics := observability.NewMetrics()
	hub := realtime.NewHub(logger, cfg.Realtime.SendBuffer)
	var broadcaster realtime.Broadcaster = hub
	var relay *realtime.RedisRelay
	if cfg.Realtime.RelayEnabled && redis.Available() {
		relay = realtime.NewRedisRelay(redis.Client, cfg.Realtime.RedisChannel, hub, logger)
		broadcaster = relay
	} else {
		logger.Info("realtime relay disabled; delivering to local connections only")
	}

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	staffRepo := repository.NewStaffRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	counterRepo := repository.NewCounterRepository(pool)
	credentialRepo := repository.NewCredentialRepository(pool, sealer)

	dispatcher := events.NewInMemoryDispatcher(logger)

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:  userRepo,
		StaffRepo: staffRepo,
	})
	staffService := service.NewStaffService(*cfg, service.StaffDependencies{
		StaffRepo: staffRepo,
		UserRepo:  userRepo,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		UserRepo:   userRepo,
		StaffRepo:  staffRepo,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	notificationService := service.NewNotificationService(service.NotificationDependencies{
		Dispatcher:       dispatcher,
		NotificationRepo: notificationRepo,
		UserRepo:         userRepo,
		StaffRepo:        staffRepo,
		Broadcaster:      broadcaster,
		Presenter: service.Presenter{
			Ticket:       func(t *domain.Ticket) any { return dto.NewTicketResponse(t) },
			Notification: func(n *domain.Notification) any { return dto.NewNotificationResponse(n) },
		},
		Logger: logger,
	})
	counterService := service.NewCounterService(counterRepo, logger)
	credentialService := service.NewCredentialService(credentialRepo, sealer, logger)

	bg := worker.StartNotificationWorker(ctx, worker.Dependencies{
		Dispatcher:    dispatcher,
		Notifications: notificationService,
		Producer:      broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger),
		Hub:           hub,
		Relay:         relay,
		Metrics:       metrics,
		Logger:        logger,
	})
	defer bg.Stop()

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo, staffRepo)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	var redisPinger handlers.Pinger
	if redis.Available() {
		redisPinger = redis
	}
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redisPinger, metrics),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		StaffTickets:   handlers.NewStaffTicketsHandler(ticketService),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
		Counters:       handlers.NewCountersHandler(counterService),
		Devices:        handlers.NewCredentialsHandler(credentialService, domain.CredentialKindNetworkDevice),
		RemoteAccess:   handlers.NewCredentialsHandler(credentialService, domain.CredentialKindRemoteAccess),
		Staff:          handlers.NewStaffHandler(staffService),
		Realtime:       realtime.NewHandler(hub, authMiddleware, ticketService, cfg.Realtime, logger),
		AuthMiddleware: authMiddleware,
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		listenErr <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("fiber listen: %w", err)
	case sig := <-shutdownSignal():
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	if err := app.Shutdown(); err != nil {
		logger.Warn("fiber shutdown", zap.Error(err))
	}
	return nil
}

func shutdownSignal() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh
}
