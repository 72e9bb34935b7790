package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"DroidRelay/internal/droid"
	xerrors "DroidRelay/internal/errors"
	"DroidRelay/internal/observability/metrics"
	"DroidRelay/pkg/logger"
)

// AccountReader 是 API 层需要的只读账号能力。
type AccountReader interface {
	GetAllAccounts(ctx context.Context) ([]*droid.Account, error)
	GetAccount(ctx context.Context, id string) (*droid.Account, error)
}

// Server 负责暴露账号查询与健康检查接口。
type Server struct {
	addr     string
	accounts AccountReader
	metrics  *metrics.Collector
	log      *slog.Logger
}

// Option 自定义 Server。
type Option func(*Server)

// WithMetrics 指定请求指标的收集器，默认使用进程级收集器。
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) {
		if c != nil {
			s.metrics = c
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, accounts AccountReader, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		accounts: accounts,
		metrics:  metrics.Default(),
		log:      logger.Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler 返回注册好全部路由的处理器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", s.metrics.Instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("/api/v1/droid/accounts", s.metrics.Instrument("accounts", http.HandlerFunc(s.handleListAccounts)))
	mux.Handle("/api/v1/droid/accounts/", s.metrics.Instrument("account_detail", http.HandlerFunc(s.handleAccountDetail)))
	mux.Handle("/metrics", s.metrics.Handler())
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
	s.log.Info("api server listening", "address", s.addr)

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

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.accounts == nil {
		http.Error(w, "账号服务未初始化", http.StatusServiceUnavailable)
		return
	}

	accounts, err := s.accounts.GetAllAccounts(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	masked := make([]*droid.Account, 0, len(accounts))
	for _, account := range accounts {
		masked = append(masked, account.Masked())
	}
	writeJSON(w, http.StatusOK, masked)
}

func (s *Server) handleAccountDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.accounts == nil {
		http.Error(w, "账号服务未初始化", http.StatusServiceUnavailable)
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/droid/accounts/"), "/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "缺少账号 ID", http.StatusBadRequest)
		return
	}

	account, err := s.accounts.GetAccount(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account.Masked())
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch xerrors.CodeOf(err) {
	case xerrors.CodeNotFound, droid.CodeAccountNotFound:
		status = http.StatusNotFound
	case xerrors.CodeInvalidArgument, droid.CodeAccountValidation:
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.log.Error("account request failed", xerrors.LogAttrs(err)...)
	}

	message := err.Error()
	if e, ok := xerrors.From(err); ok {
		message = e.Message()
	}
	writeJSON(w, status, errorResponse{Code: string(xerrors.CodeOf(err)), Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
