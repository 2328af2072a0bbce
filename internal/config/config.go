package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/constants"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const defaultConfigFile = "./.env"

type Config struct {
	Env        string `mapstructure:"ENV"`
	ServerPort string `mapstructure:"SERVER_PORT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	StoreDriver  string        `mapstructure:"STORE_DRIVER"`
	DbName       string        `mapstructure:"POSTGRES_DB"`
	DbHost       string        `mapstructure:"POSTGRES_HOST"`
	DbPort       string        `mapstructure:"POSTGRES_PORT"`
	DbUser       string        `mapstructure:"POSTGRES_USER"`
	DbPas        string        `mapstructure:"POSTGRES_PASSWORD"`
	MigrationURL string        `mapstructure:"MIGRATION_URL"`
	DbTxTimeout  time.Duration `mapstructure:"DB_TX_TIMEOUT"`

	RedisHost     string `mapstructure:"REDIS_HOST"`
	RedisPort     string `mapstructure:"REDIS_PORT"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	RateLimitStore      string        `mapstructure:"RATE_LIMIT_STORE"`
	RateLimitGeneralMax int           `mapstructure:"RATE_LIMIT_GENERAL_MAX"`
	RateLimitGeneralWin time.Duration `mapstructure:"RATE_LIMIT_GENERAL_WINDOW"`
	RateLimitAuthMax    int           `mapstructure:"RATE_LIMIT_AUTH_MAX"`
	RateLimitAuthWin    time.Duration `mapstructure:"RATE_LIMIT_AUTH_WINDOW"`
	RateLimitAPIMax     int           `mapstructure:"RATE_LIMIT_API_MAX"`
	RateLimitAPIWin     time.Duration `mapstructure:"RATE_LIMIT_API_WINDOW"`
	RateLimitUploadMax  int           `mapstructure:"RATE_LIMIT_UPLOAD_MAX"`
	RateLimitUploadWin  time.Duration `mapstructure:"RATE_LIMIT_UPLOAD_WINDOW"`

	KafkaBrokers       string        `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic         string        `mapstructure:"KAFKA_TOPIC"`
	KafkaTopicsFile    string        `mapstructure:"KAFKA_TOPICS_FILE"`
	OutboxPollInterval time.Duration `mapstructure:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `mapstructure:"OUTBOX_BATCH_SIZE"`
	OutboxMaxAttempts  int           `mapstructure:"OUTBOX_MAX_ATTEMPTS"`

	JwtSecret             string `mapstructure:"JWT_SECRET"`
	FreeShippingThreshold string `mapstructure:"FREE_SHIPPING_THRESHOLD"`
	ShippingFee           string `mapstructure:"SHIPPING_FEE"`
}

// RateLimitWindow 單一限流器設定
type RateLimitWindow struct {
	Max    int
	Window time.Duration
}

func (c *Config) RateLimits() map[string]RateLimitWindow {
	return map[string]RateLimitWindow{
		constants.LimiterGeneral: {Max: c.RateLimitGeneralMax, Window: c.RateLimitGeneralWin},
		constants.LimiterAuth:    {Max: c.RateLimitAuthMax, Window: c.RateLimitAuthWin},
		constants.LimiterAPI:     {Max: c.RateLimitAPIMax, Window: c.RateLimitAPIWin},
		constants.LimiterUpload:  {Max: c.RateLimitUploadMax, Window: c.RateLimitUploadWin},
	}
}

// Shipping 回傳免運門檻與運費
func (c *Config) Shipping() (threshold decimal.Decimal, fee decimal.Decimal, err error) {
	threshold, err = decimal.NewFromString(c.FreeShippingThreshold)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid FREE_SHIPPING_THRESHOLD %q: %w", c.FreeShippingThreshold, err)
	}
	fee, err = decimal.NewFromString(c.ShippingFee)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid SHIPPING_FEE %q: %w", c.ShippingFee, err)
	}
	return threshold, fee, nil
}

// Brokers 逗號分隔, 空字串代表不啟用 kafka
func (c *Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case constants.StoreDriverPostgres, constants.StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %s or %s, got %q", constants.StoreDriverPostgres, constants.StoreDriverMemory, c.StoreDriver)
	}
	switch c.RateLimitStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("RATE_LIMIT_STORE must be memory or redis, got %q", c.RateLimitStore)
	}
	for name, rl := range c.RateLimits() {
		if rl.Max <= 0 || rl.Window <= 0 {
			return fmt.Errorf("rate limit %s needs positive max and window", name)
		}
	}
	if c.JwtSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.OutboxMaxAttempts <= 0 {
		return fmt.Errorf("OUTBOX_MAX_ATTEMPTS must be positive, got %d", c.OutboxMaxAttempts)
	}
	if _, _, err := c.Shipping(); err != nil {
		return err
	}
	return nil
}

// ReloadHook 設定檔重新載入並通過驗證後呼叫
type ReloadHook func(cf *Config)

type reloadHookEntry struct {
	id int
	fn ReloadHook
}

var (
	hooksMu    sync.Mutex
	hooks      []reloadHookEntry
	nextHookID int
)

/*
OnReload 註冊重新載入的回呼, 回傳取消註冊的函式
只有回呼裡套用的設定會即時生效, 其他元件 (store, redis, 限流, kafka) 在啟動時建立, 需重啟
*/
func OnReload(fn ReloadHook) (unregister func()) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	nextHookID++
	id := nextHookID
	hooks = append(hooks, reloadHookEntry{id: id, fn: fn})
	return func() {
		hooksMu.Lock()
		defer hooksMu.Unlock()
		for i, h := range hooks {
			if h.id == id {
				hooks = append(hooks[:i], hooks[i+1:]...)
				return
			}
		}
	}
}

func runReloadHooks(cf *Config) {
	hooksMu.Lock()
	current := append([]reloadHookEntry(nil), hooks...)
	hooksMu.Unlock()
	for _, h := range current {
		h.fn(cf)
	}
}

type ConfigSingleTon struct {
	Config *Config
	mu     sync.RWMutex
}

var (
	once     sync.Once
	instance *ConfigSingleTon
)

// GetConfig 第一次呼叫時載入, 之後檔案變動會自動重新載入
func GetConfig() *Config {
	once.Do(func() {
		instance = &ConfigSingleTon{}
		instance.initConfig()
	})

	instance.mu.RLock()
	defer instance.mu.RUnlock()
	return instance.Config
}

func configFile() string {
	if p := os.Getenv("CONFIG_FILE"); p != "" {
		return p
	}
	return defaultConfigFile
}

func (cs *ConfigSingleTon) initConfig() {
	path := configFile()
	v, cf, err := load(path)
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("failed to load config")
	}
	cs.Config = cf

	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Str("file", e.Name).Msg("config file changed")
		newConfig := &Config{}
		if err := v.Unmarshal(newConfig); err != nil {
			log.Error().Err(err).Msg("failed to reload config")
			return
		}
		if err := cs.swap(newConfig); err != nil {
			log.Error().Err(err).Msg("reloaded config is invalid, keep the old one")
		}
	})
	v.WatchConfig()
}

// swap 驗證通過才替換, 之後通知已註冊的回呼
func (cs *ConfigSingleTon) swap(newConfig *Config) error {
	if err := newConfig.Validate(); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.Config = newConfig
	cs.mu.Unlock()
	runReloadHooks(newConfig)
	return nil
}

// LoadConfig 不經過 singleton, 給測試與工具使用
func LoadConfig(path string) (*Config, error) {
	_, cf, err := load(path)
	return cf, err
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", string(constants.Dev))
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("STORE_DRIVER", constants.StoreDriverPostgres)
	v.SetDefault("POSTGRES_DB", "storefront")
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("POSTGRES_USER", "postgres")
	v.SetDefault("POSTGRES_PASSWORD", "")
	v.SetDefault("MIGRATION_URL", "")
	v.SetDefault("DB_TX_TIMEOUT", "10s")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")

	v.SetDefault("RATE_LIMIT_STORE", "memory")
	v.SetDefault("RATE_LIMIT_GENERAL_MAX", 100)
	v.SetDefault("RATE_LIMIT_GENERAL_WINDOW", "15m")
	v.SetDefault("RATE_LIMIT_AUTH_MAX", 100)
	v.SetDefault("RATE_LIMIT_AUTH_WINDOW", "15m")
	v.SetDefault("RATE_LIMIT_API_MAX", 60)
	v.SetDefault("RATE_LIMIT_API_WINDOW", "1m")
	v.SetDefault("RATE_LIMIT_UPLOAD_MAX", 20)
	v.SetDefault("RATE_LIMIT_UPLOAD_WINDOW", "1h")

	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "storefront.orders")
	v.SetDefault("KAFKA_TOPICS_FILE", "")
	v.SetDefault("OUTBOX_POLL_INTERVAL", "2s")
	v.SetDefault("OUTBOX_BATCH_SIZE", 50)
	v.SetDefault("OUTBOX_MAX_ATTEMPTS", 10)

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("FREE_SHIPPING_THRESHOLD", "5000")
	v.SetDefault("SHIPPING_FEE", "500")
}

// load 檔案不存在時只吃環境變數與預設值
func load(path string) (*viper.Viper, *Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("stat config %s: %w", path, err)
	}

	cf := &Config{}
	if err := v.Unmarshal(cf); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cf.Validate(); err != nil {
		return nil, nil, err
	}
	return v, cf, nil
}
