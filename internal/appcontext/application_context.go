package appcontext

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/auth"
	"github.com/RoyceAzure/lab/storefront/internal/config"
	"github.com/RoyceAzure/lab/storefront/internal/constants"
	"github.com/RoyceAzure/lab/storefront/internal/domain/repository"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/db"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/memstore"
	"github.com/RoyceAzure/lab/storefront/internal/logger"
	"github.com/RoyceAzure/lab/storefront/internal/notify"
	"github.com/RoyceAzure/lab/storefront/internal/ratelimit"
	"github.com/RoyceAzure/lab/storefront/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const rateLimitStoreRedis = "redis"

type ApplicationContext struct {
	Cf            *config.Config
	Logger        *zerolog.Logger
	DbConn        *gorm.DB
	Store         repository.UnitOfWork
	RedisClient   *redis.Client
	RateLimiters  *ratelimit.Registry
	TokenMaker    auth.Maker
	Publisher     notify.Publisher
	OutboxPoller  *notify.OutboxPoller
	OrderService  *service.OrderService
	CouponService *service.CouponService

	stopReload func()
}

func NewApplicationContext(cf *config.Config) (*ApplicationContext, error) {
	app := ApplicationContext{
		Cf: cf,
	}

	err := app.Init()
	if err != nil {
		// 已建立的資源要釋放
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Shutdown(ctx)
		return nil, err
	}

	return &app, nil
}

func (app *ApplicationContext) Init() error {
	steps := []func() error{
		app.setUpLogger,
		app.setUpStore,
		app.setUpRedis,
		app.setUpRateLimiters,
		app.setUpTokenMaker,
		app.setUpPublisher,
		app.setUpOutboxPoller,
		app.setUpServices,
		app.setUpConfigReload,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (app *ApplicationContext) setUpLogger() error {
	app.Logger = logger.Setup(app.Cf.Env, app.Cf.LogLevel)
	app.Logger.Info().
		Str("env", app.Cf.Env).
		Str("store_driver", app.Cf.StoreDriver).
		Str("rate_limit_store", app.Cf.RateLimitStore).
		Str("server_port", app.Cf.ServerPort).
		Msg("configuration loaded")
	return nil
}

func (app *ApplicationContext) setUpStore() error {
	app.Logger.Info().Msg("Start setup store")
	defer app.Logger.Info().Msg("Finish setup store")

	if app.Cf.StoreDriver == constants.StoreDriverMemory {
		app.Logger.Warn().Msg("using in-memory store, data is lost on restart")
		app.Store = memstore.New()
		return nil
	}

	conn, err := db.GetDbConn(app.Cf.DbName, app.Cf.DbHost, app.Cf.DbPort, app.Cf.DbUser, app.Cf.DbPas)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	app.DbConn = conn

	if app.Cf.MigrationURL != "" {
		app.Logger.Info().Msg("running database migrations")
		if err := db.RunMigrations(app.Cf.MigrationURL); err != nil {
			return err
		}
	}

	app.Store = db.NewDbDao(conn)
	return nil
}

// setUpRedis 只有限流使用 redis 時才連線
func (app *ApplicationContext) setUpRedis() error {
	if app.Cf.RateLimitStore != rateLimitStoreRedis {
		return nil
	}
	app.Logger.Info().Msg("Start setup redis client")
	client := redis.NewClient(&redis.Options{
		Addr:     app.Cf.RedisAddr(),
		Password: app.Cf.RedisPassword,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("connect redis %s: %w", app.Cf.RedisAddr(), err)
	}
	app.RedisClient = client
	app.Logger.Info().Msg("Finish setup redis client")
	return nil
}

// RateLimitRules 訊息沿用預設, 上限與視窗取自設定
func RateLimitRules(cf *config.Config) map[string]ratelimit.Rule {
	rules := ratelimit.DefaultRules()
	for name, rl := range cf.RateLimits() {
		rule := rules[name]
		rule.Max = rl.Max
		rule.Window = rl.Window
		rules[name] = rule
	}
	return rules
}

func (app *ApplicationContext) setUpRateLimiters() error {
	app.Logger.Info().Msg("Start setup rate limiters")
	rules := RateLimitRules(app.Cf)
	if app.RedisClient != nil {
		app.RateLimiters = ratelimit.NewRedisRegistry(app.RedisClient, rules)
	} else {
		app.RateLimiters = ratelimit.NewMemoryRegistry(rules)
	}
	app.Logger.Info().Msg("Finish setup rate limiters")
	return nil
}

func (app *ApplicationContext) setUpTokenMaker() error {
	app.Logger.Info().Msg("Start setup token maker")
	maker, err := auth.NewJWTMaker(app.Cf.JwtSecret)
	if err != nil {
		return fmt.Errorf("create token maker: %w", err)
	}
	app.TokenMaker = maker
	app.Logger.Info().Msg("Finish setup token maker")
	return nil
}

// setUpPublisher 沒設定 broker 時只寫 log
func (app *ApplicationContext) setUpPublisher() error {
	app.Logger.Info().Msg("Start setup outbox publisher")
	var next notify.Publisher = notify.LogPublisher{}
	if brokers := app.Cf.Brokers(); len(brokers) > 0 {
		if err := app.ensureTopics(brokers); err != nil {
			return err
		}
		p, err := notify.NewKafkaPublisher(notify.KafkaConfig{
			Brokers: brokers,
			Topic:   app.Cf.KafkaTopic,
		})
		if err != nil {
			return fmt.Errorf("create kafka publisher: %w", err)
		}
		next = p
	}
	app.Publisher = notify.NewBreakerPublisher("outbox-publisher", next, notify.DefaultBreakerConfig())
	app.Logger.Info().Msg("Finish setup outbox publisher")
	return nil
}

// ensureTopics 有設定 KAFKA_TOPICS_FILE 才建立 topic
func (app *ApplicationContext) ensureTopics(brokers []string) error {
	if app.Cf.KafkaTopicsFile == "" {
		return nil
	}
	topics, err := notify.LoadTopicsConfig(app.Cf.KafkaTopicsFile)
	if err != nil {
		return err
	}
	if !topics.Has(app.Cf.KafkaTopic) {
		app.Logger.Warn().Str("topic", app.Cf.KafkaTopic).Msg("outbox topic is not listed in topics file")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := notify.EnsureTopics(ctx, brokers, topics); err != nil {
		return fmt.Errorf("ensure kafka topics: %w", err)
	}
	return nil
}

func (app *ApplicationContext) setUpOutboxPoller() error {
	app.OutboxPoller = notify.NewOutboxPoller(app.Store, app.Publisher,
		app.Cf.OutboxPollInterval, app.Cf.OutboxBatchSize, app.Cf.OutboxMaxAttempts)
	return nil
}

func (app *ApplicationContext) setUpServices() error {
	app.Logger.Info().Msg("Start setup services")
	threshold, fee, err := app.Cf.Shipping()
	if err != nil {
		return err
	}
	app.OrderService = service.NewOrderService(
		app.Store,
		notify.NewOutboxNotifier(app.Store),
		service.ShippingPolicy{FreeShippingThreshold: threshold, FlatFee: fee},
		service.WithTxTimeout(app.Cf.DbTxTimeout),
	)
	app.CouponService = service.NewCouponService(app.Store)
	app.Logger.Info().Msg("Finish setup services")
	return nil
}

// setUpConfigReload 熱更新只套用運費, 連線與限流設定變動要重啟才生效
func (app *ApplicationContext) setUpConfigReload() error {
	app.stopReload = config.OnReload(app.applyReload)
	return nil
}

func (app *ApplicationContext) applyReload(cf *config.Config) {
	threshold, fee, err := cf.Shipping()
	if err != nil {
		app.Logger.Error().Err(err).Msg("ignore reloaded shipping settings")
		return
	}
	app.OrderService.SetShippingPolicy(service.ShippingPolicy{FreeShippingThreshold: threshold, FlatFee: fee})
	app.Logger.Info().Str("free_shipping_threshold", threshold.String()).Str("shipping_fee", fee.String()).
		Msg("shipping policy reloaded")

	if changed := restartOnlyChanges(app.Cf, cf); len(changed) > 0 {
		app.Logger.Warn().Strs("keys", changed).Msg("config changed but takes effect only after restart")
	}
}

// restartOnlyChanges 列出啟動時就固定下來的設定中有變動的項目
func restartOnlyChanges(old, cur *config.Config) []string {
	checks := []struct {
		key     string
		changed bool
	}{
		{"STORE_DRIVER", old.StoreDriver != cur.StoreDriver},
		{"POSTGRES_*", old.DbName != cur.DbName || old.DbHost != cur.DbHost || old.DbPort != cur.DbPort ||
			old.DbUser != cur.DbUser || old.DbPas != cur.DbPas},
		{"DB_TX_TIMEOUT", old.DbTxTimeout != cur.DbTxTimeout},
		{"REDIS_*", old.RedisAddr() != cur.RedisAddr() || old.RedisPassword != cur.RedisPassword},
		{"RATE_LIMIT_*", old.RateLimitStore != cur.RateLimitStore || !maps.Equal(old.RateLimits(), cur.RateLimits())},
		{"KAFKA_*", old.KafkaBrokers != cur.KafkaBrokers || old.KafkaTopic != cur.KafkaTopic},
		{"OUTBOX_*", old.OutboxPollInterval != cur.OutboxPollInterval || old.OutboxBatchSize != cur.OutboxBatchSize ||
			old.OutboxMaxAttempts != cur.OutboxMaxAttempts},
		{"JWT_SECRET", old.JwtSecret != cur.JwtSecret},
		{"SERVER_PORT", old.ServerPort != cur.ServerPort},
	}
	var changed []string
	for _, c := range checks {
		if c.changed {
			changed = append(changed, c.key)
		}
	}
	return changed
}

// HealthCheck memory store 永遠健康
func (app *ApplicationContext) HealthCheck(ctx context.Context) error {
	if app.DbConn == nil {
		return nil
	}
	sqlDB, err := app.DbConn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// RunBackground 跑 outbox poller 直到 ctx 結束
func (app *ApplicationContext) RunBackground(ctx context.Context) error {
	return app.OutboxPoller.Run(ctx)
}

func (app *ApplicationContext) Shutdown(ctx context.Context) error {
	log := app.Logger
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	log.Info().Msg("Start application shutdown")

	if app.stopReload != nil {
		app.stopReload()
	}

	var errs []error
	if app.OrderService != nil {
		if err := app.OrderService.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if app.Publisher != nil {
		if err := app.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if app.RateLimiters != nil {
		if err := app.RateLimiters.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close rate limiters: %w", err))
		}
	}
	if app.RedisClient != nil {
		if err := app.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if app.DbConn != nil {
		if sqlDB, err := app.DbConn.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close database: %w", err))
			}
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		log.Error().Err(err).Msg("application shutdown finished with errors")
		return err
	}
	log.Info().Msg("Finish application shutdown")
	return nil
}
