package config

import (
	"bytes"
	_ "embed"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Log      LogConfig     `mapstructure:"log"`
	Identity ServiceConfig `mapstructure:"identity"`
	Task     ServiceConfig `mapstructure:"task"`
	File     ServiceConfig `mapstructure:"file"`
	Redis    RedisConfig   `mapstructure:"redis"`
	Rabbit   RabbitConfig  `mapstructure:"rabbit"`
	JWT      JWTConfig     `mapstructure:"jwt"`
	Breaker  BreakerConfig `mapstructure:"breaker"`
	Cache    CacheConfig   `mapstructure:"cache"`
	Uploads  UploadsConfig `mapstructure:"uploads"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ServiceConfig holds one service's HTTP address and its own database.
// Each service owns a separate store; they never share a DSN.
type ServiceConfig struct {
	Addr  string         `mapstructure:"addr"`
	MySQL DatabaseConfig `mapstructure:"mysql"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type RabbitConfig struct {
	URL        string        `mapstructure:"url"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type BreakerConfig struct {
	TimeoutMs    int     `mapstructure:"timeout_ms"`
	FailureRatio float64 `mapstructure:"failure_ratio"`
	Window       int     `mapstructure:"window"`
	MinCalls     int     `mapstructure:"min_calls"`
	CoolDownMs   int     `mapstructure:"cooldown_ms"`
}

type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type UploadsConfig struct {
	Dir string `mapstructure:"dir"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (THIVE_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (THIVE_*)
	v.SetEnvPrefix("THIVE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
