package agent

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"LedgerAgent-Kit/internal/dispatch"
	"LedgerAgent-Kit/internal/engine"
	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/ledger"
	"LedgerAgent-Kit/internal/session"
	"LedgerAgent-Kit/internal/txbuilder"
	"LedgerAgent-Kit/pkg/logger"
)

// Request 描述一次操作调用。调度相关字段与 Params 平级。ID 为空时 Run 生成一个
// 仅用于日志关联的 ID。
type Request struct {
	ID        string          `json:"id,omitempty"`
	Operation string          `json:"operation"`
	Params    json.RawMessage `json:"params,omitempty"`
	dispatch.Call
}

// Kit 把操作注册表、交易构建器与模式分发器串起来，是系统的业务核心。
type Kit struct {
	session    *session.Context
	builder    *txbuilder.Builder
	engine     *engine.Engine
	dispatcher *dispatch.Dispatcher
	operations registry
	timeout    time.Duration
	logger     *slog.Logger
}

type kitConfig struct {
	clock       func() time.Time
	nodes       []ledger.AccountID
	extra       []Operation
	timeout     time.Duration
	skipBuiltin bool
}

// Option 定义可选的 Kit 配置。
type Option func(*kitConfig)

// WithClock 替换构建器与执行引擎的时间源。
func WithClock(now func() time.Time) Option {
	return func(c *kitConfig) {
		c.clock = now
	}
}

// WithNodeAccountIDs 在签名者未提供节点时使用的节点账户。
func WithNodeAccountIDs(nodes ...ledger.AccountID) Option {
	return func(c *kitConfig) {
		c.nodes = append([]ledger.AccountID(nil), nodes...)
	}
}

// WithOperations 注册额外的操作，同名时覆盖内置操作。
func WithOperations(ops ...Operation) Option {
	return func(c *kitConfig) {
		c.extra = append(c.extra, ops...)
	}
}

// WithoutBuiltinOperations 只保留通过 WithOperations 注册的操作。
func WithoutBuiltinOperations() Option {
	return func(c *kitConfig) {
		c.skipBuiltin = true
	}
}

// WithTimeout 限制单次调用的总耗时。
func WithTimeout(timeout time.Duration) Option {
	return func(c *kitConfig) {
		if timeout < 0 {
			timeout = 0
		}
		c.timeout = timeout
	}
}

// New 创建 Kit。lookup 通常是镜像节点客户端，可为空。
func New(sess *session.Context, lookup txbuilder.Lookup, opts ...Option) (*Kit, error) {
	if sess == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置会话上下文")
	}
	cfg := kitConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	var builderOpts []txbuilder.Option
	var engineOpts []engine.Option
	if cfg.clock != nil {
		builderOpts = append(builderOpts, txbuilder.WithClock(cfg.clock))
		engineOpts = append(engineOpts, engine.WithClock(cfg.clock))
	}
	if len(cfg.nodes) > 0 {
		engineOpts = append(engineOpts, engine.WithNodeAccountIDs(cfg.nodes...))
	}
	builder := txbuilder.New(sess, lookup, builderOpts...)
	engineOpts = append(engineOpts, engine.WithResolver(builder.Resolver()))

	eng := engine.New(sess, lookup, engineOpts...)

	k := &Kit{
		session:    sess,
		builder:    builder,
		engine:     eng,
		dispatcher: dispatch.New(sess, eng),
		operations: registry{},
		timeout:    cfg.timeout,
		logger:     logger.Named("agent"),
	}
	if !cfg.skipBuiltin {
		for _, op := range BuiltinOperations() {
			if err := k.operations.register(op); err != nil {
				return nil, err
			}
		}
	}
	for _, op := range cfg.extra {
		if err := k.operations.register(op); err != nil {
			return nil, err
		}
	}
	return k, nil
}

// Session 返回 Kit 使用的会话上下文。
func (k *Kit) Session() *session.Context { return k.session }

// Engine 返回执行引擎，供需要自定义签名者的调用方使用。
func (k *Kit) Engine() *engine.Engine { return k.engine }

// Operations 按名称排序返回已注册的操作。
func (k *Kit) Operations() []Operation { return k.operations.sorted() }

// Lookup 返回名称对应的操作。
func (k *Kit) Lookup(name string) (Operation, bool) {
	op, ok := k.operations[strings.TrimSpace(name)]
	return op, ok
}

// Run 构建并分发一次操作调用。模式与操作能力不兼容时在构建之前就返回错误；
// 构建阶段的错误直接返回；提交失败体现在 Response 的结果里。
func (k *Kit) Run(ctx context.Context, req Request) (dispatch.Response, error) {
	name := strings.TrimSpace(req.Operation)
	if name == "" {
		return dispatch.Response{}, xerrors.New(xerrors.CodeInvalidArgument, "操作名称不能为空")
	}
	op, ok := k.operations[name]
	if !ok {
		return dispatch.Response{}, xerrors.Newf(xerrors.CodeNotFound, "不支持的操作 %s", name)
	}

	if _, err := k.dispatcher.Outcome(op.Flags, req.Call); err != nil {
		return dispatch.Response{}, err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if k.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.timeout)
		defer cancel()
	}

	pendings, err := op.Build(ctx, k.builder, req.Params)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return dispatch.Response{}, xerrors.Wrap(xerrors.CodeTimeout, err, "构建交易超时")
		}
		k.logger.WarnContext(ctx, "构建交易失败",
			slog.String("operation", name),
			slog.String("request_id", req.ID),
			slog.String("error_code", string(xerrors.CodeOf(err))),
			slog.Any("error", err),
		)
		return dispatch.Response{}, err
	}

	resp, err := k.dispatcher.Dispatch(ctx, name, op.Flags, pendings, req.Call)
	if err != nil {
		return dispatch.Response{}, err
	}
	k.logger.InfoContext(ctx, "操作完成",
		slog.String("operation", name),
		slog.String("request_id", req.ID),
		slog.String("outcome", resp.Outcome.String()),
		slog.Bool("success", resp.Success()),
	)
	return resp, nil
}
