package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/audit"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/bucketing"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/client"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/config"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/encryption"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/hashing"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/models"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/notification"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/ratelimit"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/repository/memory"
	redisrepo "github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/repository/redis"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/repository/scylla"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/service"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/token"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/util"
)

// AccountRepository is implemented by the Scylla and in-memory account stores.
type AccountRepository interface {
	service.AccountStore
	Create(ctx context.Context, account *models.Account) error
	HealthCheck(ctx context.Context) error
}

type volatileStore interface {
	ratelimit.Store
	HealthCheck(ctx context.Context) error
}

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient
	kmsClient        encryption.KMSAPI

	// Managers
	bucketingManager *bucketing.BucketingManager
	sealer           *encryption.Sealer
	secretCell       *hashing.SecretCell
	provider         *hashing.Provider
	tokenService     *token.Service
	limiter          *ratelimit.Limiter
	recorder         *audit.Recorder
	notifier         service.Notifier

	// Repositories
	accountRepository AccountRepository
	settingsStore     hashing.SecretStore
	volatileStore     volatileStore

	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads configuration, initializes logging and builds every dependency
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()
	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
	return NewFactoryWithConfig(cfg)
}

// NewFactoryWithConfig builds the dependency graph for cfg. Backends without
// an endpoint are replaced by in-memory stores outside production.
func NewFactoryWithConfig(cfg *config.Config) (*Factory, error) {
	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := factory.initializeClients(ctx); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := factory.initializeManagers(ctx); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}

	factory.initializeRepositories()
	factory.initializeAuth(ctx)

	if err := factory.seedBootstrapAdmin(ctx); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to seed bootstrap admin: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("redis", factory.redisClient != nil),
		util.Bool("scylla", factory.scyllaClient != nil),
		util.Bool("kafka", factory.kafkaProducer != nil),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
		util.String("password_digest", factory.provider.Mode()),
	)

	return factory, nil
}

// initializeClients connects the configured backends. Redis and Scylla are
// mandatory in production; audit backends never are.
func (f *Factory) initializeClients(ctx context.Context) error {
	var initErrors []error

	// Redis
	if f.config.Redis.URL == "" {
		if f.config.IsProduction() {
			initErrors = append(initErrors, fmt.Errorf("redis: REDIS_URL is required in production"))
		} else {
			util.Warn("Redis not configured - using in-memory rate limit store")
		}
	} else if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = redisClient
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	// ScyllaDB
	if len(f.config.Scylla.Nodes) == 0 {
		if f.config.IsProduction() {
			initErrors = append(initErrors, fmt.Errorf("scylla: SCYLLA_NODES is required in production"))
		} else {
			util.Warn("ScyllaDB not configured - using in-memory account store")
		}
	} else if scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = scyllaClient
		if f.config.Scylla.AutoMigrate {
			if err := f.scyllaClient.Migrate(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("scylla migrate: %w", err))
			}
		}
		if err := f.scyllaClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	// Kafka
	if len(f.config.Kafka.Brokers) > 0 {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
		}
	}

	// Elasticsearch
	if f.config.Elasticsearch.URL != "" {
		if esClient, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
			util.Warn("Elasticsearch initialization failed - audit index disabled", util.ErrorField(err))
		} else {
			f.esClient = esClient
		}
	}

	// ClickHouse
	if f.config.Clickhouse.URL != "" {
		if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
			util.Warn("ClickHouse initialization failed - audit table disabled", util.ErrorField(err))
		} else {
			f.clickhouseClient = chClient
		}
	}

	if len(initErrors) > 0 {
		redisFailed := f.redisClient == nil && f.config.Redis.URL != ""
		scyllaFailed := f.scyllaClient == nil && len(f.config.Scylla.Nodes) > 0
		if f.config.IsProduction() || redisFailed || scyllaFailed {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers builds bucketing and the secret sealer
func (f *Factory) initializeManagers(ctx context.Context) error {
	f.bucketingManager = bucketing.NewBucketingManager(f.config)

	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		f.kmsClient = kms.NewFromConfig(awsCfg)
	}

	sealer, err := encryption.NewSealer(f.config, f.kmsClient)
	if err != nil {
		return err
	}
	f.sealer = sealer

	if f.config.IsProduction() && sealer.Scheme() == "plain" && f.config.Auth.SigningSecret == "" {
		util.Warn("Signing secret will be stored unsealed; set KMS_ENABLED or SECRET_SEALING_KEY")
	}

	util.Info("Managers initialized successfully",
		util.Int("account_buckets", f.bucketingManager.Buckets()),
		util.String("sealing_scheme", sealer.Scheme()),
	)
	return nil
}

// initializeRepositories picks the durable and volatile stores
func (f *Factory) initializeRepositories() {
	if f.scyllaClient != nil {
		f.accountRepository = scylla.NewAccountRepository(f.scyllaClient, f.bucketingManager)
		f.settingsStore = scylla.NewSettingsRepository(f.scyllaClient)
	} else {
		f.accountRepository = memory.NewAccountStore()
		f.settingsStore = memory.NewSettingsStore()
	}

	if f.redisClient != nil {
		f.volatileStore = redisrepo.NewVolatileStore(f.redisClient)
	} else {
		f.volatileStore = memory.NewVolatileStore()
	}
}

// initializeAuth wires the signing secret, tokens, limiter, audit and notifier
func (f *Factory) initializeAuth(ctx context.Context) {
	logger := util.Get()

	secretStore := encryption.NewSealedSecretStore(f.settingsStore, f.sealer)
	f.secretCell = hashing.NewSecretCell(secretStore, f.config.Auth.SigningSecret, logger.Named("secret"))
	f.provider = hashing.NewProvider(f.config, f.secretCell)
	f.tokenService = token.NewService(f.config, f.provider)
	f.limiter = ratelimit.New(f.volatileStore, ratelimit.RulesFromConfig(f.config), logger.Named("ratelimit"))

	sinks := []audit.Sink{audit.NewLogSink(logger.Named("audit"))}
	if f.kafkaProducer != nil {
		sinks = append(sinks, audit.NewKafkaSink(f.kafkaProducer, f.config.Kafka.AuditTopic))
	}
	if f.esClient != nil {
		sinks = append(sinks, audit.NewElasticsearchSink(f.esClient, f.config.Elasticsearch.AuditIndex))
	}
	if f.clickhouseClient != nil {
		chSink := audit.NewClickHouseSink(f.clickhouseClient, f.config.Clickhouse.AuditTable)
		if err := chSink.EnsureTable(ctx); err != nil {
			util.Warn("ClickHouse audit table unavailable", util.ErrorField(err))
		} else {
			sinks = append(sinks, chSink)
		}
	}
	f.recorder = audit.NewRecorder(logger, sinks)

	if f.kafkaProducer != nil {
		f.notifier = notification.NewKafkaNotifier(f.kafkaProducer, f.config.Kafka.NotificationTopic, logger.Named("notification"))
	} else {
		if f.config.IsProduction() {
			util.Warn("Kafka not configured - access codes will only be logged, not delivered")
		}
		f.notifier = notification.NewLogNotifier(logger.Named("notification"), f.config.IsDevelopment())
	}

	// Warm the secret so a broken settings store shows up at startup.
	if _, err := f.secretCell.Get(ctx); err != nil {
		util.Warn("Signing secret not available yet", util.ErrorField(err))
	}
}

// ==============================
// Service Factory
// ==============================
func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		f.serviceFactory = service.NewServiceFactory(
			f.config,
			f.accountRepository,
			f.limiter,
			f.tokenService,
			f.provider,
			f.notifier,
			f.recorder,
			util.Get(),
		)
	}
	return f.serviceFactory
}

// ==============================
// Health Checks
// ==============================

// HealthCheck returns the failing dependencies. Backends that are not
// configured are not reported.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.volatileStore != nil {
		if err := f.volatileStore.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}

	if f.accountRepository != nil {
		if err := f.accountRepository.HealthCheck(ctx); err != nil {
			healthErrors["scylla"] = err
		}
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	if f.esClient != nil {
		if err := f.esClient.HealthCheck(ctx); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	if f.secretCell != nil {
		if _, err := f.secretCell.Get(ctx); err != nil {
			healthErrors["signing_secret"] = err
		}
	}

	return healthErrors
}

// IsHealthy ignores the optional audit backends.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	delete(healthErrors, "elasticsearch")
	delete(healthErrors, "clickhouse")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TokenService() *token.Service {
	return f.tokenService
}

func (f *Factory) Limiter() *ratelimit.Limiter {
	return f.limiter
}

func (f *Factory) AccountRepository() AccountRepository {
	return f.accountRepository
}
