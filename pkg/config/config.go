package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matst80/slask-archive/pkg/common"
	"github.com/matst80/slask-archive/pkg/types"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, ARCHIVE_REDIS_ADDR.
const EnvPrefix = "ARCHIVE"

type Config struct {
	Listen      string               `mapstructure:"listen"`
	Database    string               `mapstructure:"database"`
	Dataset     string               `mapstructure:"dataset"`
	ContentType string               `mapstructure:"contentType"`
	Debug       bool                 `mapstructure:"debug"`
	Redis       RedisConfig          `mapstructure:"redis"`
	Rabbit      RabbitConfig         `mapstructure:"rabbit"`
	Facets      FacetsConfig         `mapstructure:"facets"`
	Cache       CacheConfig          `mapstructure:"cache"`
	Seo         SeoConfig            `mapstructure:"seo"`
	Admin       AdminConfig          `mapstructure:"admin"`
	Timeouts    common.TimeoutConfig `mapstructure:"timeouts"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RabbitConfig struct {
	Url    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

type FacetsConfig struct {
	File      string            `mapstructure:"file"`
	Threshold int               `mapstructure:"threshold"`
	Order     types.OptionOrder `mapstructure:"order"`
}

type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type SeoConfig struct {
	TitleTerms       int      `mapstructure:"titleTerms"`
	DescriptionTerms int      `mapstructure:"descriptionTerms"`
	Integrations     []string `mapstructure:"integrations"`
}

type AdminConfig struct {
	Secret string `mapstructure:"secret"`
}

func setDefaults(v *viper.Viper) {
	timeouts := common.DefaultTimeoutConfig()
	v.SetDefault("listen", ":8080")
	v.SetDefault("database", "archive.db")
	v.SetDefault("dataset", "")
	v.SetDefault("contentType", "sermon")
	v.SetDefault("debug", false)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("rabbit.url", "")
	v.SetDefault("rabbit.prefix", "archive")
	v.SetDefault("facets.file", "")
	v.SetDefault("facets.threshold", 3)
	v.SetDefault("facets.order", string(types.OrderByCount))
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("seo.titleTerms", 2)
	v.SetDefault("seo.descriptionTerms", 3)
	v.SetDefault("seo.integrations", []string{})
	v.SetDefault("admin.secret", "")
	v.SetDefault("timeouts.readHeader", timeouts.ReadHeader)
	v.SetDefault("timeouts.read", timeouts.Read)
	v.SetDefault("timeouts.write", timeouts.Write)
	v.SetDefault("timeouts.idle", timeouts.Idle)
	v.SetDefault("timeouts.shutdown", timeouts.Shutdown)
	v.SetDefault("timeouts.hook", timeouts.Hook)
}

// New returns a viper instance with defaults and environment overrides bound.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file (explicit path, or archive.yaml in . and
// /etc/slask-archive) on top of defaults and environment overrides. A missing
// default file is not an error.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("archive")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/slask-archive")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Facets.Order {
	case types.OrderByCount, types.OrderByName:
	default:
		return fmt.Errorf("facets.order must be %q or %q, got %q", types.OrderByCount, types.OrderByName, c.Facets.Order)
	}
	if c.Facets.Threshold < 0 {
		return fmt.Errorf("facets.threshold must not be negative")
	}
	if c.ContentType == "" {
		return fmt.Errorf("contentType is required")
	}
	return nil
}
