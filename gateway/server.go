package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"getmechai/gateway/middleware"
	"getmechai/ledger"
	"getmechai/observability"
	"getmechai/pinning"
	"getmechai/storage"
)

const maxRequestBody = 1 << 20 // 1 MiB

// LedgerClient is the accessor-cache surface the gateway needs.
type LedgerClient interface {
	WriteAccessor(ctx context.Context) (ledger.Writer, error)
	NotDeployed() bool
	Reset()
}

// Pinner stores blobs and hands back content identifiers.
type Pinner interface {
	Store(ctx context.Context, blob io.Reader, meta pinning.Metadata) (*pinning.PinResult, error)
	Configured() bool
}

// Limits carries the per-call-site rate budgets.
type Limits struct {
	Read     middleware.Limit
	Mutation middleware.Limit
	Upload   middleware.Limit
}

// Config wires the server's collaborators.
type Config struct {
	Logger    *slog.Logger
	Client    LedgerClient
	Discovery *ledger.Discovery
	Views     *ledger.Assembler
	Gate      *ledger.Gate
	Store     *storage.Store
	Pinner    Pinner
	Limiter   *middleware.RateLimiter
	Limits    Limits
}

// Server is the HTTP front-end over the ledger aggregation layer and the
// relational mirror.
type Server struct {
	logger    *slog.Logger
	client    LedgerClient
	discovery *ledger.Discovery
	views     *ledger.Assembler
	gate      *ledger.Gate
	store     *storage.Store
	pinner    Pinner
	limiter   *middleware.RateLimiter
	limits    Limits
	nowFn     func() time.Time
}

// NewServer validates collaborators and builds the server.
func NewServer(cfg Config) *Server {
	if cfg.Client == nil {
		panic("ledger client required")
	}
	if cfg.Discovery == nil || cfg.Views == nil || cfg.Gate == nil {
		panic("ledger view components required")
	}
	if cfg.Store == nil {
		panic("mirror store required")
	}
	if cfg.Limiter == nil {
		cfg.Limiter = middleware.NewRateLimiter()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:    logger,
		client:    cfg.Client,
		discovery: cfg.Discovery,
		views:     cfg.Views,
		gate:      cfg.Gate,
		store:     cfg.Store,
		pinner:    cfg.Pinner,
		limiter:   cfg.Limiter,
		limits:    cfg.Limits,
		nowFn:     time.Now,
	}
}

// Router assembles the route tree. Read, mutation, and upload groups sit
// behind separate rate budgets for the same client identity.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(middleware.CORSConfig{}))
	r.Use(requestMetrics)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v chi.Router) {
		v.Group(func(g chi.Router) {
			g.Use(s.limiter.Middleware("read", s.limits.Read))
			g.Get("/posts", s.handleListPosts)
			g.Get("/creators", s.handleListCreators)
			g.Get("/creators/{address}", s.handleCreatorProfile)
			g.Get("/creators/{address}/posts", s.handleCreatorPosts)
			g.Get("/creators/{address}/stats", s.handleCreatorStats)
			g.Get("/subscriptions/{subscriber}/{creator}", s.handleSubscriptionStatus)
			g.Get("/access", s.handleAccess)
		})
		v.Group(func(g chi.Router) {
			g.Use(s.limiter.Middleware("mutation", s.limits.Mutation))
			g.Post("/creators", s.handleRegisterCreator)
			g.Put("/creators/{address}", s.handleUpdateCreator)
			g.Post("/posts", s.handleCreatePost)
			g.Post("/contributions", s.handleContribute)
			g.Post("/subscriptions", s.handleSubscribe)
			g.Post("/subscriptions/autopay", s.handleDepositAutoPay)
			g.Post("/subscriptions/renew", s.handleRenewSubscription)
			g.Post("/earnings/withdraw", s.handleWithdrawEarnings)
			g.Post("/ledger/reset", s.handleLedgerReset)
		})
		v.Group(func(g chi.Router) {
			g.Use(s.limiter.Middleware("upload", s.limits.Upload))
			g.Post("/uploads", s.handleUpload)
		})
	})
	return r
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		observability.HTTP().ObserveRequest(route, r.Method, ww.status)
	})
}

// ledgerStatus is the operator-facing diagnostic attached to read responses.
func (s *Server) ledgerStatus() string {
	if s.client.NotDeployed() {
		return "not_deployed"
	}
	return "ok"
}

func (s *Server) readBody(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(data) > maxRequestBody {
		return fmt.Errorf("request body exceeds %d bytes", maxRequestBody)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	msg := strings.ReplaceAll(err.Error(), `"`, "'")
	_, _ = w.Write([]byte(fmt.Sprintf(`{"error":%q}`, msg)))
}

// errorStatus maps the error taxonomy onto HTTP statuses. Write-path ledger
// rejections keep the node's message, revert reason included.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNoWallet):
		return http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrNotDeployed), errors.Is(err, ledger.ErrUnreachable):
		return http.StatusBadGateway
	case errors.Is(err, storage.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pinning.ErrUnsupportedType), errors.Is(err, pinning.ErrTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, pinning.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.writeError(w, errorStatus(err), err)
}
