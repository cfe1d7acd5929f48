package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"LedgerAgent-Kit/internal/agent"
	"LedgerAgent-Kit/internal/auth"
	"LedgerAgent-Kit/internal/dispatch"
	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/observability/metrics"
	"LedgerAgent-Kit/internal/task"
	"LedgerAgent-Kit/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Server 负责暴露 REST 接口，供外部同步或异步调用链上操作。
type Server struct {
	addr    string
	kit     *agent.Kit
	tasks   *task.Service
	timeout time.Duration
	auth    *auth.Service
	logger  *slog.Logger
}

// Option 定义可选的服务配置。
type Option func(*Server)

// WithRequestTimeout 限制同步执行的最长时间。
func WithRequestTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.timeout = timeout
	}
}

// WithAuth 要求 /api/v1 下的请求携带 API 密钥。
func WithAuth(svc *auth.Service) Option {
	return func(s *Server) {
		s.auth = svc
	}
}

// NewServer 构造 API 服务实例。tasks 为空时不支持异步提交。
func NewServer(addr string, kit *agent.Kit, tasks *task.Service, opts ...Option) *Server {
	s := &Server{addr: addr, kit: kit, tasks: tasks, logger: logger.Named("api")}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回完整的路由。
func (s *Server) Handler() http.Handler {
	protect := func(h http.Handler) http.Handler {
		if s.auth == nil {
			return h
		}
		return s.auth.Middleware(auth.PermissionsByMethod())(h)
	}
	mux := http.NewServeMux()
	mux.Handle("/api/v1/operations", protect(instrument("operations", s.handleOperations)))
	mux.Handle("/api/v1/operations/stats", protect(instrument("operation_stats", s.handleStats)))
	mux.Handle("/api/v1/operations/", protect(instrument("operation_detail", s.handleOperationDetail)))
	mux.Handle("/api/v1/catalog", protect(instrument("catalog", s.handleCatalog)))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("API 服务已启动", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmit(w, r)
	case http.MethodGet:
		if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
			s.writeTask(w, r, id)
			return
		}
		s.handleList(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, string(xerrors.CodeInvalidArgument), "仅支持 GET/POST")
	}
}

// handleSubmit 默认同步执行；?async=true 时进入任务队列并返回 202。
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req agent.Request
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), "请求体解析失败")
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if s.tasks == nil {
			writeError(w, http.StatusServiceUnavailable, string(xerrors.CodeInitializationFailure), "任务队列未启用")
			return
		}
		if s.kit != nil {
			if _, ok := s.kit.Lookup(req.Operation); !ok {
				writeError(w, http.StatusNotFound, string(xerrors.CodeNotFound), "不支持的操作 "+req.Operation)
				return
			}
		}
		created, err := s.tasks.Submit(r.Context(), req, map[string]any{
			"source":      "api",
			"remote_addr": r.RemoteAddr,
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, created)
		return
	}

	if s.kit == nil {
		writeError(w, http.StatusServiceUnavailable, string(xerrors.CodeInitializationFailure), "Kit 未初始化")
		return
	}
	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	resp, err := s.kit.Run(ctx, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, string(xerrors.CodeInitializationFailure), "任务队列未启用")
		return
	}
	opts, err := listOptionsFromQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tasks, err := s.tasks.List(r.Context(), opts...)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleOperationDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, string(xerrors.CodeInvalidArgument), "仅支持 GET")
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/operations/"), "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), "缺少任务 ID")
		return
	}
	s.writeTask(w, r, id)
}

func (s *Server) writeTask(w http.ResponseWriter, r *http.Request, id string) {
	if s.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, string(xerrors.CodeInitializationFailure), "任务队列未启用")
		return
	}
	found, err := s.tasks.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, string(xerrors.CodeInvalidArgument), "仅支持 GET")
		return
	}
	if s.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, string(xerrors.CodeInitializationFailure), "任务队列未启用")
		return
	}
	opts, err := listOptionsFromQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	stats, err := s.tasks.Stats(r.Context(), opts...)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, string(xerrors.CodeInvalidArgument), "仅支持 GET")
		return
	}
	if s.kit == nil {
		writeError(w, http.StatusServiceUnavailable, string(xerrors.CodeInitializationFailure), "Kit 未初始化")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":       s.kit.Session().Mode(),
		"account":    s.kit.Session().AgentAccountID().String(),
		"operations": s.kit.Operations(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	code := xerrors.CodeOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "请求处理失败",
			slog.String("path", r.URL.Path),
			slog.String("error_code", string(code)),
			slog.Any("error", err),
		)
	}
	writeError(w, status, string(code), err.Error())
}

// statusFor 把统一错误码映射为 HTTP 状态码。
func statusFor(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch xerrors.CodeOf(err) {
	case xerrors.CodeInvalidArgument, xerrors.CodeInvalidKeyFormat, xerrors.CodeMissingRequiredField,
		xerrors.CodeUnsupportedNetwork, task.CodeTaskValidation, dispatch.CodeMultiTransactionUnsupported:
		return http.StatusBadRequest
	case xerrors.CodeNotFound, task.CodeTaskNotFound:
		return http.StatusNotFound
	case xerrors.CodeConflict, xerrors.CodeIllegalState, task.CodeTaskConflict:
		return http.StatusConflict
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case xerrors.CodeQueryFailure, xerrors.CodeSubmissionFailure:
		return http.StatusBadGateway
	case xerrors.CodeInitializationFailure, task.CodeTaskPublish:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func listOptionsFromQuery(r *http.Request) ([]task.ListOption, error) {
	query := r.URL.Query()
	var opts []task.ListOption
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "limit 必须为正整数")
		}
		opts = append(opts, task.WithLimit(limit))
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "offset 必须为非负整数")
		}
		opts = append(opts, task.WithOffset(offset))
	}
	if raw := query["status"]; len(raw) > 0 {
		statuses := make([]task.Status, 0, len(raw))
		for _, value := range splitValues(raw) {
			status := task.Status(value)
			if !task.IsValidStatus(status) {
				return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "未知的任务状态 %s", value)
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	if raw := query["operation"]; len(raw) > 0 {
		opts = append(opts, task.WithOperations(splitValues(raw)...))
	}
	if raw := query.Get("terminal"); raw != "" {
		terminal, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "terminal 必须为布尔值")
		}
		opts = append(opts, task.WithTerminal(terminal))
	}
	if q := query.Get("q"); q != "" {
		opts = append(opts, task.WithQuery(q))
	}
	if query.Get("order") == "asc" {
		opts = append(opts, task.WithSortOrder(task.SortByUpdatedAsc))
	}
	return opts, nil
}

// splitValues 同时支持 ?status=a&status=b 与 ?status=a,b。
func splitValues(raw []string) []string {
	var out []string
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument 记录每个路由的请求指标。
func instrument(name string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		metrics.ObserveHTTPRequest(name, r.Method, rec.status, time.Since(start))
	})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeError(w, http.StatusServiceUnavailable, string(xerrors.CodeInitializationFailure), "服务已关闭")
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
