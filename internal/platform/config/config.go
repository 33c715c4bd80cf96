package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 结构体定义了应用程序的所有配置项
// 它与 config.yaml 文件的结构完全对应
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Shop     ShopConfig     `mapstructure:"shop"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Limits   LimitsConfig   `mapstructure:"limits"`
}

// ServerConfig 定义了服务器相关的配置
type ServerConfig struct {
	Mode          string     `mapstructure:"mode"`
	Address       string     `mapstructure:"address"`
	Cors          CorsConfig `mapstructure:"cors"`
	UploadDir     string     `mapstructure:"uploadDir"`
	PublicBaseURL string     `mapstructure:"publicBaseURL"`
	MaxUploadKB   int64      `mapstructure:"maxUploadKB"`
}

// CorsConfig 定义了CORS相关的配置
type CorsConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// DatabaseConfig 定义了数据库和缓存相关的配置
type DatabaseConfig struct {
	Driver string      `mapstructure:"driver"` // sqlite 或 postgres
	DSN    string      `mapstructure:"dsn"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig 定义了Redis的配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 定义了登录令牌的配置
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwtSecret"`
	TokenTTL  time.Duration `mapstructure:"tokenTTL"`
}

// ShopConfig 定义了门店业务规则相关的配置
type ShopConfig struct {
	Timezone        string `mapstructure:"timezone"`
	OrderWindowDays int    `mapstructure:"orderWindowDays"`
	// CatalogFile 为空时使用内置目录
	CatalogFile string `mapstructure:"catalogFile"`
}

// SnapshotConfig 定义了会话快照的刷新频率
type SnapshotConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// LimitsConfig 定义了按IP限流的配置，次数为0表示不限
type LimitsConfig struct {
	Window        time.Duration `mapstructure:"window"`
	LoginAttempts int           `mapstructure:"loginAttempts"`
	Scans         int           `mapstructure:"scans"`
}

// Location 解析门店所在时区，失败时退回UTC
func (s ShopConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.cors.allowedOrigins", []string{"http://localhost:5173"})
	v.SetDefault("server.uploadDir", "./uploads")
	v.SetDefault("server.publicBaseURL", "http://localhost:8080")
	v.SetDefault("server.maxUploadKB", 5120)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "angelo.db")
	v.SetDefault("database.redis.enabled", true)
	v.SetDefault("database.redis.address", "localhost:6379")
	v.SetDefault("database.redis.db", 0)

	v.SetDefault("auth.tokenTTL", 30*24*time.Hour)

	v.SetDefault("shop.timezone", "Europe/Paris")
	v.SetDefault("shop.orderWindowDays", 14)

	v.SetDefault("snapshot.interval", time.Minute)

	v.SetDefault("limits.window", time.Minute)
	v.SetDefault("limits.loginAttempts", 10)
	v.SetDefault("limits.scans", 20)
}

// LoadConfig 函数负责查找、加载和解析配置文件
// 配置文件不存在时只使用默认值和环境变量
func LoadConfig() (*Config, error) {
	// .env 只是本地开发的便利，缺失不算错误
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	// 允许通过环境变量覆盖配置，例如 SERVER_ADDRESS=:9090
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("无法读取配置文件: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法解析配置: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver)
	}
	if c.Shop.OrderWindowDays < 1 {
		return fmt.Errorf("shop.orderWindowDays 必须大于0")
	}
	if c.Limits.Window <= 0 {
		return fmt.Errorf("limits.window 必须大于0")
	}
	if c.Snapshot.Interval <= 0 {
		return fmt.Errorf("snapshot.interval 必须大于0")
	}
	return nil
}
