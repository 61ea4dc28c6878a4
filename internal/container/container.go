package container

import (
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/realtime-task-client/config"
	"github.com/oksasatya/realtime-task-client/internal/application"
	"github.com/oksasatya/realtime-task-client/pkg/helpers"
)

// app-level container to share constructed components across packages
// Router wires its modules from these singletons.

var (
	cfg         *config.Config
	logger      *logrus.Logger
	redisClient *redis.Client
	rabbitPub   *helpers.RabbitPublisher

	session       *application.Session
	store         *application.Store
	manager       *application.ConnectionManager
	notifications *application.NotificationAggregator
)

func SetConfig(c *config.Config) { cfg = c }
func GetConfig() *config.Config  { return cfg }
func SetLogger(l *logrus.Logger) { logger = l }
func GetLogger() *logrus.Logger  { return logger }
func SetRedis(r *redis.Client)   { redisClient = r }
func GetRedis() *redis.Client    { return redisClient }

// GetLimiter returns the Redis client for rate limiting, or a nil
// interface when Redis is not configured.
func GetLimiter() redis.Cmdable {
	if redisClient == nil {
		return nil
	}
	return redisClient
}

func SetRabbitPub(p *helpers.RabbitPublisher) { rabbitPub = p }
func GetRabbitPub() *helpers.RabbitPublisher  { return rabbitPub }

func SetSession(s *application.Session) { session = s }
func GetSession() *application.Session  { return session }
func SetStore(s *application.Store)     { store = s }
func GetStore() *application.Store      { return store }

func SetManager(m *application.ConnectionManager) { manager = m }
func GetManager() *application.ConnectionManager  { return manager }

func SetNotifications(a *application.NotificationAggregator) { notifications = a }
func GetNotifications() *application.NotificationAggregator  { return notifications }
