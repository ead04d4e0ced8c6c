package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/sirupsen/logrus"

	"device-hub-server/internal/config"
	"device-hub-server/internal/database"
	"device-hub-server/internal/handler"
	"device-hub-server/internal/logging"
	"device-hub-server/internal/mqtt"
	"device-hub-server/internal/notify"
	"device-hub-server/internal/repository"
	"device-hub-server/internal/scheduler"
	"device-hub-server/internal/service"
	"device-hub-server/internal/websocket"
)

const shutdownTimeout = 30 * time.Second

// storage bundles the repositories for the configured driver.
type storage struct {
	users   repository.UserRepository
	devices repository.DeviceRepository
	logs    repository.DeviceLogRepository
	health  func(ctx context.Context) error
	close   func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logging.New(cfg.Logging)

	store, err := openStorage(context.Background(), cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open storage")
	}

	wsCtx, stopWS := context.WithCancel(context.Background())
	wsManager := websocket.NewManager(websocket.Options{
		MaxConnPerUser: cfg.WebSocket.MaxConnPerUser,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingPeriod,
	}, logging.WithComponent(log, "websocket"))
	go wsManager.Run(wsCtx)

	notifiers := []notify.Notifier{wsManager}

	var (
		mqttClient   *mqtt.Client
		mqttNotifier *notify.MQTTNotifier
	)
	if cfg.MQTT.Enabled {
		mqttLog := logging.WithComponent(log, "mqtt")
		mqttClient, err = mqtt.Connect(cfg.MQTT, mqttLog)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to MQTT broker")
		}
		mqttNotifier = notify.NewMQTT(mqttClient, mqttClient.Topics(), mqttLog)
		notifiers = append(notifiers, mqttNotifier)
	}
	notifier := notify.Multi(notifiers...)

	health := store.health
	if mqttClient != nil {
		mqttLog := logging.WithComponent(log, "mqtt")
		health = func(ctx context.Context) error {
			if err := store.health(ctx); err != nil {
				return err
			}
			// A broker outage is logged but does not fail the health check.
			if err := mqttClient.HealthCheck(ctx); err != nil {
				mqttLog.WithError(err).Warn("MQTT broker unreachable")
			}
			return nil
		}
	}

	authService := service.NewAuthService(store.users, cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.RefreshTokenExpiration)
	userService := service.NewUserService(store.users)
	deviceService := service.NewDeviceService(store.devices, store.logs, notifier, logging.WithComponent(log, "devices"))
	analyticsService := service.NewAnalyticsService(store.devices, store.logs)
	cleanupService := service.NewCleanupService(store.devices, notifier, cfg.Cleanup.StaleAfter)

	var sched *scheduler.Scheduler
	if cfg.Cleanup.Enabled {
		sched, err = scheduler.New(cfg.Cleanup.Schedule, cleanupService, logging.WithComponent(log, "cleanup"), cfg.Cleanup.Timeout)
		if err != nil {
			log.WithError(err).Fatal("Failed to create cleanup scheduler")
		}
		if err := sched.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start cleanup scheduler")
		}
	}

	httpLog := logging.WithComponent(log, "http")
	secureCookie := cfg.Server.Env == "production"

	router := handler.NewRouter(handler.Handlers{
		Auth:      handler.NewAuthHandler(authService, httpLog, secureCookie),
		User:      handler.NewUserHandler(userService, httpLog),
		Device:    handler.NewDeviceHandler(deviceService, httpLog),
		Analytics: handler.NewAnalyticsHandler(analyticsService, httpLog),
		WebSocket: handler.NewWebSocketHandler(wsManager, authService, cfg.WebSocket.ReadBufferSize, cfg.WebSocket.WriteBufferSize, httpLog),
	}, handler.RouterOptions{
		Auth:      authService,
		Log:       httpLog,
		CORS:      cfg.CORS,
		RateLimit: cfg.RateLimit,
		Health:    health,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"addr":   addr,
			"env":    cfg.Server.Env,
			"driver": cfg.Database.Driver,
			"mqtt":   cfg.MQTT.Enabled,
		}).Info("Starting Device Hub Server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	if sched != nil {
		if err := sched.Stop(ctx); err != nil {
			log.WithError(err).Warn("Cleanup scheduler did not stop cleanly")
		}
	}

	if mqttNotifier != nil {
		mqttNotifier.Close()
	}
	if mqttClient != nil {
		if err := mqttClient.Close(); err != nil {
			log.WithError(err).Warn("Failed to close MQTT client")
		}
	}

	stopWS()

	if err := store.close(); err != nil {
		log.WithError(err).Warn("Failed to close storage")
	}

	log.Info("Server stopped gracefully")
}

func openStorage(ctx context.Context, cfg config.DatabaseConfig, log logrus.FieldLogger) (*storage, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return openSQLite(ctx, cfg, log)
	default:
		return openCouchDB(ctx, cfg, log)
	}
}

func openSQLite(ctx context.Context, cfg config.DatabaseConfig, log logrus.FieldLogger) (*storage, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.WithField("path", db.Path()).Info("Opened SQLite database")

	return &storage{
		users:   repository.NewSQLiteUserRepository(db.DB),
		devices: repository.NewSQLiteDeviceRepository(db.DB),
		logs:    repository.NewSQLiteDeviceLogRepository(db.DB),
		health:  db.HealthCheck,
		close:   db.Close,
	}, nil
}

func openCouchDB(ctx context.Context, cfg config.DatabaseConfig, log logrus.FieldLogger) (*storage, error) {
	couchURL := fmt.Sprintf("http://%s:%s@%s:%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
	)

	client, err := kivik.New("couch", couchURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to CouchDB: %w", err)
	}

	exists, err := client.DBExists(ctx, cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("checking database existence: %w", err)
	}

	if !exists {
		if err := client.CreateDB(ctx, cfg.Name); err != nil {
			return nil, fmt.Errorf("creating database: %w", err)
		}
		log.WithField("database", cfg.Name).Info("Created CouchDB database")
	}

	if err := repository.EnsureIndexes(ctx, client.DB(cfg.Name)); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"host":     cfg.Host,
		"port":     cfg.Port,
		"database": cfg.Name,
	}).Info("Connected to CouchDB")

	return &storage{
		users:   repository.NewUserRepository(client, cfg.Name),
		devices: repository.NewDeviceRepository(client, cfg.Name),
		logs:    repository.NewDeviceLogRepository(client, cfg.Name),
		health: func(ctx context.Context) error {
			up, err := client.Ping(ctx)
			if err != nil {
				return err
			}
			if !up {
				return errors.New("couchdb is not responding")
			}
			return nil
		},
		close: client.Close,
	}, nil
}
