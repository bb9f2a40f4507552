package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/LICODX/rnr-network/pkg/metrics"
	"github.com/LICODX/rnr-network/pkg/network"
	"github.com/LICODX/rnr-network/pkg/utils"
)

// CallerHeader names the address a node or admin request acts for.
const CallerHeader = "X-RNR-Caller"

type Options struct {
	AdminTokenHash string
	RateLimit      float64
	RateBurst      int
	Health         *utils.HealthMonitor
	Metrics        *metrics.NetworkMetrics
	Gatherer       prometheus.Gatherer
	Logger         *zap.Logger
}

// Server exposes the network over JSON/HTTP.
type Server struct {
	net            *network.Network
	health         *utils.HealthMonitor
	metrics        *metrics.NetworkMetrics
	gatherer       prometheus.Gatherer
	adminToken     *tokenVerifier
	limiter        *ipRateLimiter
	logger         *zap.Logger

	server   *http.Server
	listener manet.Listener
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Class     string `json:"class,omitempty"`
	Code      int    `json:"code"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable"`
}

func NewServer(n *network.Network, o Options) *Server {
	s := &Server{
		net:            n,
		health:         o.Health,
		metrics:        o.Metrics,
		gatherer:       o.Gatherer,
		adminToken:     newTokenVerifier(o.AdminTokenHash),
		logger:         o.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("api")
	if o.RateLimit > 0 && o.RateBurst > 0 {
		s.limiter = newIPRateLimiter(o.RateLimit, o.RateBurst)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", metrics.Handler(s.gatherer))
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(s.rateLimit)

		api.Get("/info", s.handleInfo)
		api.Get("/params", s.handleParams)
		api.Get("/balance/{address}", s.handleBalance)
		api.Get("/owners/{address}", s.handleOwner)
		api.Get("/escrow", s.handleEscrow)
		api.Get("/actions", s.handleActions)
		api.Get("/audit", s.handleAudit)
		api.Get("/audit/head", s.handleAuditHead)

		api.Get("/cycles/current", s.handleCurrentCycle)
		api.Get("/cycles/{cycle}", s.handleCycle)
		api.Get("/cycles/{cycle}/snapshots/{id}", s.handleSnapshot)

		api.Post("/nodes", s.handleRegister)
		api.Get("/nodes/{id}", s.handleNode)
		api.Get("/nodes/{id}/influence", s.handleInfluence)
		api.Post("/nodes/{id}/stake", s.handleStake)
		api.Post("/nodes/{id}/unstake", s.handleUnstake)
		api.Post("/nodes/{id}/claim", s.handleClaim)
		api.Post("/nodes/{id}/actions/{action}", s.handlePerformAction)

		api.Route("/admin", func(adm chi.Router) {
			adm.Use(s.requireAdminToken)

			adm.Post("/params/{name}", s.handleSetParameter)
			adm.Post("/cycle/advance", s.handleAdvanceCycle)
			adm.Post("/nodes/{id}/boost", s.handleBoost)
			adm.Post("/nodes/{id}/penalty", s.handlePenalty)
			adm.Post("/pause", s.handlePause)
			adm.Post("/unpause", s.handleUnpause)
			adm.Post("/escrow/withdraw", s.handleWithdrawEscrow)
			adm.Post("/transfer", s.handleTransferAdmin)
			adm.Post("/actions", s.handleRegisterAction)
		})
	})
	return r
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr multiaddr.Multiaddr) error {
	l, err := manet.Listen(addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = l
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server listening", zap.Stringer("addr", l.Multiaddr()))
	go func() {
		if err := s.server.Serve(manet.NetListener(l)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() multiaddr.Multiaddr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Multiaddr()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: code, Code: status, Message: message})
}

// writeFailure maps a network error onto an HTTP status by its class.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	class := utils.ClassOf(err)
	code := utils.CodeOf(err)
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError && !errors.Is(err, utils.ErrArithmeticOverflow) {
		s.logger.Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	s.writeJSON(w, status, ErrorResponse{
		Error:     code,
		Class:     class.String(),
		Code:      status,
		Message:   msg,
		Retryable: utils.IsRetryable(err),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, utils.ErrUnknownNode),
		errors.Is(err, utils.ErrUnknownAction),
		errors.Is(err, utils.ErrUnknownCycle),
		errors.Is(err, utils.ErrUnknownParameter):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, utils.ErrContractPaused),
		errors.Is(err, utils.ErrNotInitialized):
		return http.StatusServiceUnavailable
	}
	switch utils.ClassOf(err) {
	case utils.ClassValidation:
		return http.StatusBadRequest
	case utils.ClassResource:
		return http.StatusUnprocessableEntity
	case utils.ClassTiming, utils.ClassIdempotency:
		return http.StatusConflict
	case utils.ClassAdministrative:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
