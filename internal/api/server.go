// internal/api/server.go
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/newthinker/cmc/internal/api/middleware"
	"github.com/newthinker/cmc/internal/api/response"
	"github.com/newthinker/cmc/internal/collector/coinmarketcap"
	"github.com/newthinker/cmc/internal/core"
	"github.com/newthinker/cmc/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MarketData is the subset of the CoinMarketCap client the server proxies.
type MarketData interface {
	Ticker(ctx context.Context, start, limit int, convert string) (coinmarketcap.Result, error)
	TickerFor(ctx context.Context, id string, start, limit int, convert string) (coinmarketcap.Result, error)
	GlobalData(ctx context.Context, convert string) (coinmarketcap.Result, error)
}

// Server represents the HTTP proxy server
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	client     MarketData
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	APIKey      string // empty disables authentication on /api/v1
	MetricsPath string // empty disables the metrics endpoint
}

// Dependencies holds what the handlers need. Metrics may be nil.
type Dependencies struct {
	Client  MarketData
	Metrics *metrics.Registry
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if deps.Client == nil {
		return nil, core.WrapError(core.ErrConfigMissing, errors.New("market data client is required"))
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()

	s := &Server{
		logger: logger,
		mux:    mux,
		client: deps.Client,
	}

	s.setupRoutes(cfg, deps.Metrics)

	var handler http.Handler = mux
	if deps.Metrics != nil {
		handler = metrics.HTTPMiddleware(deps.Metrics)(handler)
	}
	handler = metrics.LoggingMiddleware(logger)(handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config, reg *metrics.Registry) {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	auth := middleware.APIKeyAuth(cfg.APIKey)
	s.mux.Handle("GET /api/v1/ticker", auth(http.HandlerFunc(s.handleTicker)))
	s.mux.Handle("GET /api/v1/ticker/{id}", auth(http.HandlerFunc(s.handleTickerFor)))
	s.mux.Handle("GET /api/v1/global", auth(http.HandlerFunc(s.handleGlobal)))

	if reg != nil && cfg.MetricsPath != "" {
		s.mux.Handle("GET "+cfg.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTicker(w http.ResponseWriter, r *http.Request) {
	params, err := tickerParams(r.URL.Query())
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.client.Ticker(r.Context(), params.Start, params.Limit, params.Convert)
	if err != nil {
		s.upstreamError(w, coinmarketcap.EndpointTicker, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

func (s *Server) handleTickerFor(w http.ResponseWriter, r *http.Request) {
	params, err := tickerParams(r.URL.Query())
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}

	id := url.PathEscape(r.PathValue("id"))
	result, err := s.client.TickerFor(r.Context(), id, params.Start, params.Limit, params.Convert)
	if err != nil {
		s.upstreamError(w, coinmarketcap.EndpointTickerID, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

func (s *Server) handleGlobal(w http.ResponseWriter, r *http.Request) {
	result, err := s.client.GlobalData(r.Context(), convertParam(r.URL.Query()))
	if err != nil {
		s.upstreamError(w, coinmarketcap.EndpointGlobal, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// upstreamError maps client errors to gateway responses. Transport errors
// arrive uncoded and are reported as UPSTREAM_FAILED.
func (s *Server) upstreamError(w http.ResponseWriter, endpoint string, err error) {
	s.logger.Warn("upstream call failed", zap.String("endpoint", endpoint), zap.Error(err))

	var coreErr *core.Error
	if !errors.As(err, &coreErr) {
		response.Error(w, http.StatusBadGateway, core.WrapError(core.ErrUpstream, err))
		return
	}
	if errors.Is(err, core.ErrRequestFailed) {
		response.Error(w, http.StatusBadRequest, err)
		return
	}
	response.Error(w, http.StatusBadGateway, err)
}

// tickerParams parses start, limit and convert, applying 0, 0 and USD when absent.
func tickerParams(q url.Values) (core.TickerParams, error) {
	params := core.DefaultTickerParams()
	params.Convert = convertParam(q)

	var err error
	if params.Start, err = nonNegative(q, "start"); err != nil {
		return params, err
	}
	if params.Limit, err = nonNegative(q, "limit"); err != nil {
		return params, err
	}
	return params, nil
}

func convertParam(q url.Values) string {
	if c := q.Get("convert"); c != "" {
		return c
	}
	return core.DefaultConvert
}

func nonNegative(q url.Values, key string) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, core.WrapError(core.ErrInvalidParam, fmt.Errorf("%s must be an integer, got %q", key, raw))
	}
	if n < 0 {
		return 0, core.WrapError(core.ErrInvalidParam, fmt.Errorf("%s cannot be negative, got %d", key, n))
	}
	return n, nil
}
