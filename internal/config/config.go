package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/truecost/internal/model"
	"github.com/sells-group/truecost/internal/scanner"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig         `yaml:"log" mapstructure:"log"`
	Server    ServerConfig      `yaml:"server" mapstructure:"server"`
	Store     StoreConfig       `yaml:"store" mapstructure:"store"`
	Auth      AuthConfig        `yaml:"auth" mapstructure:"auth"`
	API       APIConfig         `yaml:"api" mapstructure:"api"`
	Engine    model.Settings    `yaml:"engine" mapstructure:"engine"`
	Scanner   scanner.Selectors `yaml:"scanner" mapstructure:"scanner"`
	Intercept InterceptConfig   `yaml:"intercept" mapstructure:"intercept"`
	Decision  DecisionConfig    `yaml:"decision" mapstructure:"decision"`
	Local     LocalConfig       `yaml:"local" mapstructure:"local"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the data service HTTP server.
type ServerConfig struct {
	Port               int    `yaml:"port" mapstructure:"port"`
	AllowedOrigin      string `yaml:"allowed_origin" mapstructure:"allowed_origin"`
	ReadTimeoutSecs    int    `yaml:"read_timeout_secs" mapstructure:"read_timeout_secs"`
	WriteTimeoutSecs   int    `yaml:"write_timeout_secs" mapstructure:"write_timeout_secs"`
	RequestTimeoutSecs int    `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// StoreConfig configures the savings database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int    `yaml:"max_conns" mapstructure:"max_conns"`
	// RetryAttempts bounds how often a colliding effectiveness upsert is
	// replayed.
	RetryAttempts int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// AuthConfig holds server token verification and client session settings.
type AuthConfig struct {
	JWTSecret       string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	Issuer          string `yaml:"issuer" mapstructure:"issuer"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	RefreshSchedule string `yaml:"refresh_schedule" mapstructure:"refresh_schedule"`
}

// APIConfig configures the data service client.
type APIConfig struct {
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst            int     `yaml:"burst" mapstructure:"burst"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// InterceptConfig configures purchase interception.
type InterceptConfig struct {
	CheckoutSelectors []string `yaml:"checkout_selectors" mapstructure:"checkout_selectors"`
	VariantTimeoutMs  int      `yaml:"variant_timeout_ms" mapstructure:"variant_timeout_ms"`
}

// VariantTimeout returns the bounded wait for variant selection.
func (c InterceptConfig) VariantTimeout() time.Duration {
	return time.Duration(c.VariantTimeoutMs) * time.Millisecond
}

// DecisionConfig configures decision recording.
type DecisionConfig struct {
	TimeoutMs int `yaml:"timeout_ms" mapstructure:"timeout_ms"`
}

// Timeout returns the bound on one background submission.
func (c DecisionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// LocalConfig selects the local settings store.
type LocalConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	Path          string `yaml:"path" mapstructure:"path"`
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix" mapstructure:"redis_prefix"`
}

// Load reads configuration from .env, config.yaml and TRUECOST_* variables,
// in increasing precedence.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file in place of ./config.yaml.
// Unlike the default file, an explicit one must exist.
func LoadFile(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TRUECOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := model.DefaultSettings()
	sel := scanner.DefaultSelectors()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.allowed_origin", "http://localhost:3000")
	v.SetDefault("server.read_timeout_secs", 10)
	v.SetDefault("server.write_timeout_secs", 15)
	v.SetDefault("server.request_timeout_secs", 10)
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.retry_attempts", 3)
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.refresh_schedule", "@every 30m")
	v.SetDefault("api.base_url", "http://localhost:3001")
	v.SetDefault("api.timeout_secs", 10)
	v.SetDefault("api.rate_per_sec", 5.0)
	v.SetDefault("api.burst", 10)
	v.SetDefault("api.max_attempts", 3)
	v.SetDefault("api.initial_backoff_ms", 200)
	v.SetDefault("api.failure_threshold", 5)
	v.SetDefault("api.reset_timeout_secs", 30)
	v.SetDefault("engine.enabled", def.Enabled)
	v.SetDefault("engine.confirm_before_purchase", def.ConfirmBeforePurchase)
	v.SetDefault("engine.return_rate", def.ReturnRate)
	v.SetDefault("engine.years", def.Years)
	v.SetDefault("engine.min_price", def.MinPrice)
	v.SetDefault("scanner.product_selectors", sel.Product)
	v.SetDefault("scanner.cart_selectors", sel.Cart)
	v.SetDefault("intercept.checkout_selectors", DefaultCheckoutSelectors())
	v.SetDefault("intercept.variant_timeout_ms", 2000)
	v.SetDefault("decision.timeout_ms", 5000)
	v.SetDefault("local.driver", "sqlite")
	v.SetDefault("local.path", "truecost-local.db")
	v.SetDefault("local.redis_addr", "localhost:6379")
	v.SetDefault("local.redis_prefix", "truecost:")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Engine.Validate(); err != nil {
		return nil, eris.Wrap(err, "config: engine")
	}

	return &cfg, nil
}

// DefaultCheckoutSelectors matches Amazon add-to-cart, buy-now and
// place-order controls.
func DefaultCheckoutSelectors() []string {
	return []string{
		"#add-to-cart-button",
		"#buy-now-button",
		`input[name="submit.add-to-cart"]`,
		"#submit.add-to-cart",
		`.a-button-input[name="submit.addToCart"]`,
		"#sc-buy-box-ptc-button input",
		"#submitOrderButtonId input",
		`input[name="placeYourOrder1"]`,
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
