package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/realtime-task-client/config"
	"github.com/oksasatya/realtime-task-client/internal/application"
	"github.com/oksasatya/realtime-task-client/internal/container"
	"github.com/oksasatya/realtime-task-client/internal/domain/entity"
	"github.com/oksasatya/realtime-task-client/internal/infrastructure/push"
	"github.com/oksasatya/realtime-task-client/internal/infrastructure/restapi"
	"github.com/oksasatya/realtime-task-client/internal/interface/middleware"
	"github.com/oksasatya/realtime-task-client/internal/router"
	"github.com/oksasatya/realtime-task-client/pkg/helpers"
	"github.com/oksasatya/realtime-task-client/pkg/validation"
)

func main() {
	_ = godotenv.Load() // load .env if present

	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName, cfg.Env, cfg.LogLevel)
	gin.SetMode(cfg.GinMode)
	validation.Init()

	// Backend REST client; its cookie jar carries the session for the push channels too
	api, err := restapi.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout, logger)
	if err != nil {
		log.Fatalf("invalid API_BASE_URL: %v", err)
	}
	dialer, err := push.NewDialer(cfg.WSBaseURL, cfg.WSOrigin, api.Jar(), api.BaseURL())
	if err != nil {
		log.Fatalf("invalid WS_BASE_URL: %v", err)
	}
	collections := restapi.NewCollectionRepository(api)

	store := application.NewStore()
	session := application.NewSession(restapi.NewSessionRepository(api), api, logger)
	manager := application.NewConnectionManager(dialer, store, application.NewRepositoryHydrator(collections, logger), application.ReconnectPolicy{
		Initial:     cfg.ReconnectInitial,
		MaxInterval: cfg.ReconnectMaxInterval,
		MaxTries:    cfg.ReconnectTries(),
	}, logger)
	notifications := application.NewNotificationAggregator(store, collections, session, logger)
	defer notifications.Close()

	notifications.OnUnreadChange(func(n int) {
		logger.WithField("unread", n).Debug("unread count changed")
	})

	container.SetConfig(cfg)
	container.SetLogger(logger)
	container.SetStore(store)
	container.SetSession(session)
	container.SetManager(manager)
	container.SetNotifications(notifications)

	// Redis snapshot mirror (optional)
	if cfg.MirrorEnabled {
		rdb := helpers.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer func() { _ = rdb.Close() }()
		kv := helpers.NewRedisKV(rdb)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := kv.Ping(pingCtx); err != nil {
			helpers.LogError(logger, "redis unreachable, mirror writes will fail until it recovers", err, logrus.Fields{"addr": cfg.RedisAddr})
		}
		cancel()
		container.SetRedis(rdb)

		mirror := application.NewSnapshotMirror(kv, store, session, cfg.MirrorPrefix, cfg.MirrorTTL, logger)
		mirror.Start()
		defer mirror.Stop()
	}

	// RabbitMQ notification relay (optional)
	if cfg.RelayEnabled {
		pub, err := helpers.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQNotificationQueue)
		if err != nil {
			log.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer pub.Close()
		container.SetRabbitPub(pub)

		relay := application.NewNotificationRelay(pub, store, logger)
		relay.Start()
		defer relay.Stop()
	}

	// Channels follow the session from here on
	unbind := manager.Bind(session)
	defer manager.Stop()
	defer unbind()

	session.OnChange(func(prev, next *entity.User) {
		switch {
		case next == nil:
			helpers.LogInfo(logger, "logged out", logrus.Fields{"user_id": userID(prev)})
		default:
			helpers.LogInfo(logger, "logged in", logrus.Fields{"user_id": next.ID, "username": next.Username})
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
	session.Probe(ctx)
	cancel()
	if session.CurrentUser() == nil && cfg.HasCredentials() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
		err := session.Login(ctx, application.Credentials{Email: cfg.SyncEmail, Password: cfg.SyncPassword})
		cancel()
		if err != nil {
			helpers.LogError(logger, "login failed", err, logrus.Fields{"email": cfg.SyncEmail})
		}
	}
	if session.CurrentUser() == nil {
		logger.Warn("no active session; channels stay closed until a login succeeds")
	}

	var srv *http.Server
	if cfg.StatusEnabled {
		srv = statusServer(cfg, logger)
		go func() {
			logger.Infof("status api listening on 127.0.0.1:%s", cfg.Port)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatalf("listen: %s\n", err)
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if srv != nil {
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Errorf("status api forced to shutdown: %v", err)
		}
	}
	logger.Info("sync agent exited properly")
}

func statusServer(cfg *config.Config, logger *logrus.Logger) *http.Server {
	r := gin.New()
	_ = r.SetTrustedProxies(nil)
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	if origins := cfg.CORSOrigins(); len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}
	if cfg.HTTPLogEnabled || cfg.Env == "development" {
		r.Use(gin.Logger())
	}

	reg := router.NewRegistry(r)
	reg.Use(middleware.LocalOnly(middleware.AllowLoopback()))
	router.InitModules(reg)
	reg.RegisterAll()

	return &http.Server{
		Addr:              "127.0.0.1:" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          log.New(logger.WriterLevel(logrus.WarnLevel), "", 0),
	}
}

func userID(u *entity.User) int64 {
	if u == nil {
		return 0
	}
	return u.ID
}
