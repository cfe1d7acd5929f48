package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 描述了 LedgerAgent 在启动阶段需要加载的全部配置。
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Network   NetworkConfig   `yaml:"network"`
	Retry     RetryConfig     `yaml:"retry"`
	Agent     AgentConfig     `yaml:"agent"`
	Storage   StorageConfig   `yaml:"storage"`
	TaskQueue TaskQueueConfig `yaml:"task_queue"`
	Logging   LoggingConfig   `yaml:"logging"`
	Alerting  AlertingConfig  `yaml:"alerting"`
	Auth      AuthConfig      `yaml:"auth"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address        string        `yaml:"address"`
	MetricsAddress string        `yaml:"metrics_address"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// NetworkConfig 描述账本网络、镜像节点与交易提交方式。
type NetworkConfig struct {
	// Name 取值 mainnet、testnet、previewnet。
	Name              string        `yaml:"name"`
	MirrorURL         string        `yaml:"mirror_url"`
	APIKey            string        `yaml:"api_key"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`
	NodeAccountIDs    []string      `yaml:"node_account_ids"`
	// Submitter 取值 simulated（进程内模拟网络）或 relay。
	Submitter string      `yaml:"submitter"`
	Relay     RelayConfig `yaml:"relay"`
}

// RelayConfig 是 HTTP 交易中继的地址。
type RelayConfig struct {
	URL       string        `yaml:"url"`
	APIKey    string        `yaml:"api_key"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RetryConfig 控制镜像节点查询的指数退避。
type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

// AgentConfig 描述代理账户与执行模式。
type AgentConfig struct {
	Mode                    string        `yaml:"mode"`
	AccountID               string        `yaml:"account_id"`
	PrivateKey              string        `yaml:"private_key"`
	PrivateKeyEnv           string        `yaml:"private_key_env"`
	UserAccountID           string        `yaml:"user_account_id"`
	AutoScheduleInBytesMode bool          `yaml:"auto_schedule_in_bytes_mode"`
	OperationTimeout        time.Duration `yaml:"operation_timeout"`
}

// StorageConfig 统一描述任务存储后端。
type StorageConfig struct {
	TaskStore TaskStoreConfig `yaml:"task_store"`
}

// TaskStoreConfig 支持 memory 与 mysql。
type TaskStoreConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	DSNEnv          string        `yaml:"dsn_env"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// TaskQueueConfig 描述异步操作任务队列。
type TaskQueueConfig struct {
	Driver     string         `yaml:"driver"`
	Workers    int            `yaml:"workers"`
	MaxRetries int            `yaml:"max_retries"`
	Buffer     int            `yaml:"buffer"`
	Redis      RedisConfig    `yaml:"redis"`
	RabbitMQ   RabbitMQConfig `yaml:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列连接。
type RedisConfig struct {
	Address     string        `yaml:"address"`
	Password    string        `yaml:"password"`
	PasswordEnv string        `yaml:"password_env"`
	DB          int           `yaml:"db"`
	Queue       string        `yaml:"queue"`
	BlockWait   time.Duration `yaml:"block_wait"`
}

// RabbitMQConfig 描述 RabbitMQ 队列连接。
type RabbitMQConfig struct {
	URL                string `yaml:"url"`
	URLEnv             string `yaml:"url_env"`
	Queue              string `yaml:"queue"`
	Prefetch           int    `yaml:"prefetch"`
	Durable            bool   `yaml:"durable"`
	DeadLetterExchange string `yaml:"dead_letter_exchange"`
}

// LoggingConfig 控制应用日志与审计日志。
type LoggingConfig struct {
	Level   string      `yaml:"level"`
	Format  string      `yaml:"format"`
	Outputs []string    `yaml:"outputs"`
	Audit   AuditConfig `yaml:"audit"`
}

// AuditConfig 控制审计日志文件与滚动策略。
type AuditConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// AlertingConfig 描述任务失败告警的渠道。
type AlertingConfig struct {
	MinSeverity string        `yaml:"min_severity"`
	Log         bool          `yaml:"log"`
	Timeout     time.Duration `yaml:"timeout"`
	Webhook     WebhookConfig `yaml:"webhook"`
	Slack       SlackConfig   `yaml:"slack"`
}

// WebhookConfig 是通用 JSON webhook。
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// SlackConfig 是 Slack incoming webhook。
type SlackConfig struct {
	WebhookURL    string `yaml:"webhook_url"`
	WebhookURLEnv string `yaml:"webhook_url_env"`
}

// AuthConfig 列出允许访问 API 的静态密钥，为空时不做认证。
type AuthConfig struct {
	APIKeys []APIKeyConfig `yaml:"api_keys"`
}

// APIKeyConfig 是一个 API 密钥。
type APIKeyConfig struct {
	Name        string   `yaml:"name"`
	Key         string   `yaml:"key"`
	KeyEnv      string   `yaml:"key_env"`
	Permissions []string `yaml:"permissions"`
}

// Load 负责解析指定路径的 YAML 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return Parse(content, filepath.Dir(path))
}

// Parse 解析配置内容，相对路径以 baseDir 为基准。
func Parse(content []byte, baseDir string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults(baseDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv 从 *_env 指定的环境变量读取密钥，配置文件中的明文优先级更低。
func (c *Config) applyEnv(getenv func(string) string) {
	fromEnv := func(target *string, name string) {
		if name == "" {
			return
		}
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*target = v
		}
	}
	fromEnv(&c.Network.APIKey, c.Network.APIKeyEnv)
	fromEnv(&c.Network.Relay.APIKey, c.Network.Relay.APIKeyEnv)
	fromEnv(&c.Agent.PrivateKey, c.Agent.PrivateKeyEnv)
	fromEnv(&c.Storage.TaskStore.DSN, c.Storage.TaskStore.DSNEnv)
	fromEnv(&c.TaskQueue.Redis.Password, c.TaskQueue.Redis.PasswordEnv)
	fromEnv(&c.TaskQueue.RabbitMQ.URL, c.TaskQueue.RabbitMQ.URLEnv)
	fromEnv(&c.Alerting.Slack.WebhookURL, c.Alerting.Slack.WebhookURLEnv)
	for i := range c.Auth.APIKeys {
		fromEnv(&c.Auth.APIKeys[i].Key, c.Auth.APIKeys[i].KeyEnv)
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = 60 * time.Second
	}

	if c.Network.Name == "" && c.Network.MirrorURL == "" {
		c.Network.Name = "testnet"
	}
	if c.Network.Timeout <= 0 {
		c.Network.Timeout = 15 * time.Second
	}
	if c.Network.Submitter == "" {
		c.Network.Submitter = "simulated"
	}

	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = 3
	}
	if c.Retry.InitialDelay <= 0 {
		c.Retry.InitialDelay = time.Second
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = 10 * time.Second
	}
	if c.Retry.BackoffFactor < 1 {
		c.Retry.BackoffFactor = 2
	}

	if c.Agent.Mode == "" {
		c.Agent.Mode = "autonomous"
	}

	if c.Storage.TaskStore.Driver == "" {
		c.Storage.TaskStore.Driver = "memory"
	}

	if c.TaskQueue.Driver == "" {
		c.TaskQueue.Driver = "memory"
	}
	if c.TaskQueue.Workers <= 0 {
		c.TaskQueue.Workers = 4
	}
	if c.TaskQueue.MaxRetries <= 0 {
		c.TaskQueue.MaxRetries = 3
	}
	if c.TaskQueue.Buffer <= 0 {
		c.TaskQueue.Buffer = 256
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if len(c.Logging.Outputs) == 0 {
		c.Logging.Outputs = []string{"stdout"}
	}
	if c.Logging.Audit.Enabled {
		if c.Logging.Audit.Path == "" {
			c.Logging.Audit.Path = filepath.Join(baseDir, "logs", "audit.log")
		} else if !filepath.IsAbs(c.Logging.Audit.Path) {
			c.Logging.Audit.Path = filepath.Join(baseDir, c.Logging.Audit.Path)
		}
	}

	if c.Alerting.MinSeverity == "" {
		c.Alerting.MinSeverity = "warning"
	}
	if c.Alerting.Timeout <= 0 {
		c.Alerting.Timeout = 5 * time.Second
	}
}

// Validate 检查配置项之间的约束。
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Agent.Mode) {
	case "autonomous", "returnbytes":
	default:
		errs = append(errs, fmt.Errorf("agent.mode 不支持 %q", c.Agent.Mode))
	}
	if strings.TrimSpace(c.Agent.AccountID) == "" {
		errs = append(errs, errors.New("agent.account_id 不能为空"))
	}
	switch c.Network.Submitter {
	case "simulated":
	case "relay":
		if c.Network.Relay.URL == "" {
			errs = append(errs, errors.New("network.relay.url 不能为空"))
		}
		if c.Agent.PrivateKey == "" {
			errs = append(errs, errors.New("relay 提交需要 agent.private_key"))
		}
	default:
		errs = append(errs, fmt.Errorf("network.submitter 不支持 %q", c.Network.Submitter))
	}
	switch c.Storage.TaskStore.Driver {
	case "memory":
	case "mysql":
		if c.Storage.TaskStore.DSN == "" {
			errs = append(errs, errors.New("storage.task_store.dsn 不能为空"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.task_store.driver 不支持 %q", c.Storage.TaskStore.Driver))
	}
	switch c.TaskQueue.Driver {
	case "memory":
	case "redis":
		if c.TaskQueue.Redis.Address == "" {
			errs = append(errs, errors.New("task_queue.redis.address 不能为空"))
		}
	case "rabbitmq":
		if c.TaskQueue.RabbitMQ.URL == "" {
			errs = append(errs, errors.New("task_queue.rabbitmq.url 不能为空"))
		}
	default:
		errs = append(errs, fmt.Errorf("task_queue.driver 不支持 %q", c.TaskQueue.Driver))
	}
	for i, key := range c.Auth.APIKeys {
		if key.Name == "" || key.Key == "" {
			errs = append(errs, fmt.Errorf("auth.api_keys[%d] 需要 name 与 key", i))
		}
	}
	return errors.Join(errs...)
}
