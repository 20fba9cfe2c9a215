package app

import (
	"context"
	"fmt"

	rd "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
	"github.com/vladislavdragonenkov/rfs/internal/gateway"
	"github.com/vladislavdragonenkov/rfs/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/rfs/internal/service/profile"
	"github.com/vladislavdragonenkov/rfs/internal/storage/memory"
	"github.com/vladislavdragonenkov/rfs/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/rfs/internal/storage/redis"
)

// Dependencies — собранные коллаборации приложения.
type Dependencies struct {
	Orders   domain.OrderRepository
	Payments domain.PaymentRepository
	Coupons  domain.CouponRepository
	Counters domain.CounterRepository
	Likes    domain.LikeRepository
	Outbox   domain.OutboxRepository

	Users   domain.UserDirectory
	Cards   domain.CardVault
	Gateway domain.PaymentGateway

	PGStore       *postgres.Store
	RedisClient   *rd.Client
	KafkaProducer *kafka.Producer
}

// buildDependencies инициализирует хранилища и клиентов по конфигурации.
// PostgreSQL подключается при заданном RFS_DATABASE_URL, иначе всё живёт
// in-memory; Redis при заданном адресе перекрывает хранилище счётчиков.
func buildDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	deps := &Dependencies{}

	if cfg.DatabaseURL != "" {
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}

		deps.PGStore = store
		deps.Orders = postgres.NewOrderRepository(store)
		deps.Payments = postgres.NewPaymentRepository(store)
		deps.Coupons = postgres.NewCouponRepository(store)
		deps.Counters = postgres.NewCounterRepository(store)
		deps.Likes = postgres.NewLikeRepository(store)
		deps.Outbox = postgres.NewOutboxRepository(store)
		logger.Info("postgres storage initialized")
	} else {
		deps.Orders = memory.NewOrderRepository()
		deps.Payments = memory.NewPaymentRepository()
		deps.Coupons = memory.NewCouponRepository()
		deps.Counters = memory.NewCounterRepository()
		deps.Likes = memory.NewLikeRepository()
		deps.Outbox = memory.NewOutboxRepository()
		logger.Info("in-memory storage initialized")
	}

	if cfg.RedisAddr != "" {
		client := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unavailable, keeping primary counter storage")
			_ = client.Close()
		} else {
			deps.RedisClient = client
			deps.Counters = redisstore.NewCounterStore(client)
			logger.WithField("addr", cfg.RedisAddr).Info("redis counter store initialized")
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		} else {
			deps.KafkaProducer = producer
			logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
		}
	}

	// NOTE: справочник профилей — внешний сервис; здесь демо-реестр.
	directory := profile.NewDirectory()
	seedDemoProfiles(directory)
	deps.Users = directory
	deps.Cards = directory

	breaker := gateway.NewBreaker(gateway.DefaultBreakerConfig(), nil)
	httpClient := gateway.NewHTTPClient(gateway.HTTPConfig{BaseURL: cfg.GatewayBaseURL}, nil)
	deps.Gateway = gateway.NewResilientClient(httpClient, gateway.DefaultRetryConfig(), breaker, nil)

	return deps, nil
}

// Close освобождает внешние подключения в обратном порядке инициализации.
func (d *Dependencies) Close(logger *log.Entry) {
	if d.KafkaProducer != nil {
		if err := d.KafkaProducer.Close(); err != nil {
			logger.WithError(err).Warn("failed to close kafka producer")
		}
	}
	if d.RedisClient != nil {
		if err := d.RedisClient.Close(); err != nil {
			logger.WithError(err).Warn("failed to close redis client")
		}
	}
	if d.PGStore != nil {
		if err := d.PGStore.Close(); err != nil {
			logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}

func seedDemoProfiles(directory *profile.Directory) {
	directory.AddUser(domain.User{ID: "demo-user", Name: "Demo User", BalanceMinor: 100000})
	directory.AddCard(domain.Card{UserID: "demo-user", Descriptor: "tok_demo_4242"})
}
