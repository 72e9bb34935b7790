package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 描述了 DroidRelay 在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Events    EventsConfig    `yaml:"events"`
	Crypto    CryptoConfig    `yaml:"crypto"`
	Logging   LoggingConfig   `yaml:"logging"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Alerting  AlertingConfig  `yaml:"alerting"`
}

// ServerConfig 控制 API 服务的监听地址。
type ServerConfig struct {
	Address string `yaml:"address"`
}

// StorageConfig 选择账号存储后端。
type StorageConfig struct {
	Driver string      `yaml:"driver"`
	MySQL  MySQLConfig `yaml:"mysql"`
	Redis  RedisConfig `yaml:"redis"`
}

// MySQLConfig 描述 MySQL 连接池参数。
type MySQLConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `yaml:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `yaml:"conn_max_idle_time_seconds"`
}

// RedisConfig 描述 Redis 连接参数。
type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// EventsConfig 控制账号变更事件的发布方式。
type EventsConfig struct {
	Driver   string         `yaml:"driver"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// RabbitMQConfig 描述事件交换机。
type RabbitMQConfig struct {
	URL            string `yaml:"url"`
	Exchange       string `yaml:"exchange"`
	Durable        bool   `yaml:"durable"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// CryptoConfig 配置凭据加密。EncryptionKey 为空时凭据以明文保存。
type CryptoConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
	Salt          string `yaml:"salt"`
}

// LoggingConfig 对应 pkg/logger.Config。
type LoggingConfig struct {
	Level       string      `yaml:"level"`
	Format      string      `yaml:"format"`
	OutputPaths []string    `yaml:"output_paths"`
	Audit       AuditConfig `yaml:"audit"`
}

// AuditConfig 控制审计日志文件。
type AuditConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// BootstrapConfig 控制启动阶段的环境变量引导。
type BootstrapConfig struct {
	EnvFile        string `yaml:"env_file"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// AlertingConfig 配置引导失败时的告警推送。WebhookURL 为空时只写审计日志。
type AlertingConfig struct {
	WebhookURL     string `yaml:"webhook_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout 返回 webhook 请求超时时间。
func (a AlertingConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// Timeout 返回单次引导的超时时间。
func (b BootstrapConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// Timeout 返回事件发布超时时间。
func (r RabbitMQConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// 可覆盖配置文件的环境变量。
const (
	EnvConfigPath    = "DROIDRELAY_CONFIG"
	EnvStorageDriver = "DROIDRELAY_STORAGE_DRIVER"
	EnvMySQLDSN      = "DROIDRELAY_MYSQL_DSN"
	EnvRedisAddr     = "DROIDRELAY_REDIS_ADDR"
	EnvEncryptionKey = "DROIDRELAY_ENCRYPTION_KEY"
	EnvLogLevel      = "DROIDRELAY_LOG_LEVEL"
)

// DefaultPath 是未设置 DROIDRELAY_CONFIG 时使用的配置文件。
var DefaultPath = filepath.Join("configs", "droidrelay.yaml")

// Load 解析指定路径的 YAML 配置文件并应用环境变量覆盖。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv 根据 DROIDRELAY_CONFIG 定位配置文件。使用默认路径且文件
// 不存在时返回纯默认配置。
func LoadFromEnv() (*Config, error) {
	path, explicit := os.LookupEnv(EnvConfigPath)
	if !explicit || strings.TrimSpace(path) == "" {
		path = DefaultPath
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			cfg := &Config{}
			cfg.applyEnv(os.LookupEnv)
			cfg.applyDefaults(".")
			if err := cfg.Validate(); err != nil {
				return nil, err
			}
			return cfg, nil
		}
	}
	return Load(path)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, target *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}
	set(EnvStorageDriver, &c.Storage.Driver)
	set(EnvMySQLDSN, &c.Storage.MySQL.DSN)
	set(EnvRedisAddr, &c.Storage.Redis.Address)
	set(EnvEncryptionKey, &c.Crypto.EncryptionKey)
	set(EnvLogLevel, &c.Logging.Level)
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.MySQL.MaxOpenConns <= 0 {
		c.Storage.MySQL.MaxOpenConns = 10
	}
	if c.Storage.MySQL.MaxIdleConns <= 0 {
		c.Storage.MySQL.MaxIdleConns = 5
	}
	if c.Storage.Redis.KeyPrefix == "" {
		c.Storage.Redis.KeyPrefix = "droid:"
	}

	c.Events.Driver = strings.ToLower(strings.TrimSpace(c.Events.Driver))
	if c.Events.Driver == "" {
		c.Events.Driver = "none"
	}
	if c.Events.RabbitMQ.Exchange == "" {
		c.Events.RabbitMQ.Exchange = "droidrelay.events"
	}
	if c.Events.RabbitMQ.TimeoutSeconds <= 0 {
		c.Events.RabbitMQ.TimeoutSeconds = 5
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path == "" {
		c.Logging.Audit.Path = filepath.Join(baseDir, "logs", "audit.log")
	} else if c.Logging.Audit.Path != "" && !filepath.IsAbs(c.Logging.Audit.Path) {
		c.Logging.Audit.Path = filepath.Join(baseDir, c.Logging.Audit.Path)
	}

	if c.Bootstrap.EnvFile == "" {
		c.Bootstrap.EnvFile = ".env"
	}
	if c.Bootstrap.TimeoutSeconds <= 0 {
		c.Bootstrap.TimeoutSeconds = 10
	}
	if c.Alerting.TimeoutSeconds <= 0 {
		c.Alerting.TimeoutSeconds = 5
	}
}

// Validate 检查互相依赖的配置项。
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "mysql":
		if strings.TrimSpace(c.Storage.MySQL.DSN) == "" {
			return errors.New("storage.mysql.dsn 不能为空")
		}
	case "redis":
		if strings.TrimSpace(c.Storage.Redis.Address) == "" {
			return errors.New("storage.redis.address 不能为空")
		}
	default:
		return fmt.Errorf("未知的存储驱动: %s", c.Storage.Driver)
	}

	switch c.Events.Driver {
	case "none":
	case "rabbitmq":
		if strings.TrimSpace(c.Events.RabbitMQ.URL) == "" {
			return errors.New("events.rabbitmq.url 不能为空")
		}
	default:
		return fmt.Errorf("未知的事件驱动: %s", c.Events.Driver)
	}
	return nil
}

// String 返回隐藏敏感字段后的摘要，便于启动日志输出。
func (c *Config) String() string {
	return "storage=" + c.Storage.Driver +
		" events=" + c.Events.Driver +
		" encryption=" + strconv.FormatBool(c.Crypto.EncryptionKey != "") +
		" address=" + c.Server.Address
}
