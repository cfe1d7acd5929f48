package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"LedgerAgent-Kit/internal/agent"
	"LedgerAgent-Kit/internal/api"
	"LedgerAgent-Kit/internal/auth"
	"LedgerAgent-Kit/internal/config"
	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/keys"
	"LedgerAgent-Kit/internal/ledger"
	"LedgerAgent-Kit/internal/ledger/relay"
	"LedgerAgent-Kit/internal/ledger/simulated"
	"LedgerAgent-Kit/internal/mirror"
	"LedgerAgent-Kit/internal/observability/alerting"
	"LedgerAgent-Kit/internal/observability/metrics"
	"LedgerAgent-Kit/internal/session"
	"LedgerAgent-Kit/internal/task"
	"LedgerAgent-Kit/internal/txbuilder"
	"LedgerAgent-Kit/pkg/logger"
)

// main 是 LedgerAgent 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("ledgeragentd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("LEDGERAGENT_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "ledgeragent.yaml")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.Outputs,
		Service:     "ledgeragentd",
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
			Compress:   cfg.Logging.Audit.Compress,
		},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	lg := logger.Named("ledgeragentd")

	nodes, err := parseAccounts(cfg.Network.NodeAccountIDs)
	if err != nil {
		return err
	}

	mirrorClient, err := mirror.New(mirror.Config{
		Network: cfg.Network.Name,
		BaseURL: cfg.Network.MirrorURL,
		APIKey:  cfg.Network.APIKey,
		Timeout: cfg.Network.Timeout,
	},
		mirror.WithRetryPolicy(mirror.RetryPolicy{
			MaxRetries:    cfg.Retry.MaxRetries,
			InitialDelay:  cfg.Retry.InitialDelay,
			MaxDelay:      cfg.Retry.MaxDelay,
			BackoffFactor: cfg.Retry.BackoffFactor,
		}),
		mirror.WithRateLimit(cfg.Network.RequestsPerSecond, cfg.Network.Burst),
	)
	if err != nil {
		return err
	}

	account, err := ledger.ParseEntityID(cfg.Agent.AccountID)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "agent.account_id 无效")
	}

	signer, simulatedNet, err := buildSigner(cfg, account, nodes)
	if err != nil {
		return err
	}

	mode, err := session.ParseMode(cfg.Agent.Mode)
	if err != nil {
		return err
	}
	sessOpts := []session.Option{
		session.WithMode(mode),
		session.WithAutoScheduleInBytesMode(cfg.Agent.AutoScheduleInBytesMode),
	}
	if cfg.Agent.UserAccountID != "" {
		user, err := ledger.ParseEntityID(cfg.Agent.UserAccountID)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "agent.user_account_id 无效")
		}
		sessOpts = append(sessOpts, session.WithUserAccount(user))
	}
	sess, err := session.New(signer, sessOpts...)
	if err != nil {
		return err
	}

	// 模拟网络上的实体在镜像节点不存在，不能用镜像节点查询或核对。
	var lookup txbuilder.Lookup
	var recovery task.RecoveryHandler
	if simulatedNet == nil {
		lookup = mirrorClient
		recovery = task.NewMirrorReconciler(mirrorClient)
	}

	kitOpts := []agent.Option{agent.WithTimeout(cfg.Agent.OperationTimeout)}
	if len(nodes) > 0 {
		kitOpts = append(kitOpts, agent.WithNodeAccountIDs(nodes...))
	}
	kit, err := agent.New(sess, lookup, kitOpts...)
	if err != nil {
		return err
	}

	taskStore, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = taskStore.Close() }()

	taskQueue, err := buildQueue(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := taskQueue.Close(); err != nil {
			lg.Warn("关闭任务队列失败", slog.Any("error", err))
		}
	}()

	taskService := task.NewService(taskStore, taskQueue, cfg.TaskQueue.MaxRetries)
	procOpts := []task.ProcessorOption{
		task.WithWorkerCount(cfg.TaskQueue.Workers),
		task.WithAlertDispatcher(buildAlerts(cfg)),
	}
	if recovery != nil {
		procOpts = append(procOpts, task.WithRecoveryHandler(recovery))
	}
	processor := task.NewProcessor(kit, taskStore, taskQueue, taskQueue, procOpts...)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()
	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			lg.Error("任务处理器异常退出", slog.Any("error", err))
		}
	}()

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	lg.Info("LedgerAgent 已就绪",
		slog.String("account", account.String()),
		slog.String("mode", string(mode)),
		slog.String("network", cfg.Network.Name),
		slog.String("submitter", cfg.Network.Submitter),
		slog.String("task_store", cfg.Storage.TaskStore.Driver),
		slog.String("task_queue", cfg.TaskQueue.Driver),
	)

	apiKeys := make([]auth.Key, 0, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		apiKeys = append(apiKeys, auth.Key{Name: k.Name, Secret: k.Key, Permissions: k.Permissions})
	}
	authService, err := auth.NewService(apiKeys)
	if err != nil {
		return err
	}
	if !authService.Enabled() {
		lg.Warn("未配置 auth.api_keys，API 不做认证")
	}

	server := api.NewServer(cfg.Server.Address, kit, taskService,
		api.WithRequestTimeout(cfg.Server.RequestTimeout),
		api.WithAuth(authService),
	)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func parseAccounts(values []string) ([]ledger.AccountID, error) {
	out := make([]ledger.AccountID, 0, len(values))
	for _, v := range values {
		id, err := ledger.ParseEntityID(v)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "network.node_account_ids 无效")
		}
		out = append(out, id)
	}
	return out, nil
}

// buildSigner 返回代理账户的签名者。simulated 模式下未配置私钥时生成临时密钥。
func buildSigner(cfg *config.Config, account ledger.AccountID, nodes []ledger.AccountID) (ledger.Signer, *simulated.Network, error) {
	var priv ledger.PrivateKey
	var err error
	if cfg.Agent.PrivateKey != "" {
		priv, err = keys.ParsePrivateKey(cfg.Agent.PrivateKey)
		if err != nil {
			return nil, nil, err
		}
	}

	switch cfg.Network.Submitter {
	case "relay":
		submitter, err := relay.New(relay.Config{
			URL:     cfg.Network.Relay.URL,
			APIKey:  cfg.Network.Relay.APIKey,
			Timeout: cfg.Network.Relay.Timeout,
			Nodes:   nodes,
		})
		if err != nil {
			return nil, nil, err
		}
		return ledger.NewLocalSigner(account, priv, submitter), nil, nil
	default:
		if cfg.Agent.PrivateKey == "" {
			priv, err = ledger.GeneratePrivateKey(ledger.KeyTypeED25519)
			if err != nil {
				return nil, nil, err
			}
			logger.L().Warn("未配置 agent.private_key，模拟网络使用临时密钥")
		}
		var simOpts []simulated.Option
		if len(nodes) > 0 {
			simOpts = append(simOpts, simulated.WithNodes(nodes...))
		}
		net := simulated.New(simOpts...)
		net.RegisterAccount(account, priv.PublicKey())
		return ledger.NewLocalSigner(account, priv, net), net, nil
	}
}

func buildStore(ctx context.Context, cfg *config.Config) (task.Store, error) {
	switch cfg.Storage.TaskStore.Driver {
	case "mysql":
		return task.NewMySQLStore(ctx, task.MySQLConfig{
			DSN:             cfg.Storage.TaskStore.DSN,
			MaxOpenConns:    cfg.Storage.TaskStore.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.TaskStore.MaxIdleConns,
			ConnMaxLifetime: cfg.Storage.TaskStore.ConnMaxLifetime,
		})
	case "memory":
		return task.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("未知的任务存储驱动: %s", cfg.Storage.TaskStore.Driver)
	}
}

func buildQueue(ctx context.Context, cfg *config.Config) (task.Queue, error) {
	switch cfg.TaskQueue.Driver {
	case "redis":
		return task.NewRedisQueue(ctx, task.RedisQueueConfig{
			Address:   cfg.TaskQueue.Redis.Address,
			Password:  cfg.TaskQueue.Redis.Password,
			DB:        cfg.TaskQueue.Redis.DB,
			Queue:     cfg.TaskQueue.Redis.Queue,
			BlockWait: cfg.TaskQueue.Redis.BlockWait,
		})
	case "rabbitmq":
		return task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:                cfg.TaskQueue.RabbitMQ.URL,
			Queue:              cfg.TaskQueue.RabbitMQ.Queue,
			Prefetch:           cfg.TaskQueue.RabbitMQ.Prefetch,
			Durable:            cfg.TaskQueue.RabbitMQ.Durable,
			DeadLetterExchange: cfg.TaskQueue.RabbitMQ.DeadLetterExchange,
		})
	case "memory":
		return task.NewMemoryQueue(cfg.TaskQueue.Buffer), nil
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.TaskQueue.Driver)
	}
}

func buildAlerts(cfg *config.Config) alerting.Dispatcher {
	var notifiers []alerting.Notifier
	if cfg.Alerting.Log {
		notifiers = append(notifiers, alerting.LogNotifier{})
	}
	if cfg.Alerting.Webhook.URL != "" {
		notifiers = append(notifiers, alerting.NewWebhookNotifier(cfg.Alerting.Webhook.URL, cfg.Alerting.Timeout, cfg.Alerting.Webhook.Headers))
	}
	if cfg.Alerting.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alerting.NewSlackNotifier(cfg.Alerting.Slack.WebhookURL, cfg.Alerting.Timeout))
	}
	return alerting.NewFanout(xerrors.Severity(cfg.Alerting.MinSeverity), notifiers...)
}
