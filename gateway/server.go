// Package gateway exposes the settlement ledger over HTTP: health and status
// probes, Prometheus metrics, batch submission for the authority relayer and
// read endpoints for tokens, transfers and stake positions.
package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coreerr "taobridge/core/errors"
	"taobridge/core/types"
	"taobridge/native/bridge"
	"taobridge/native/registry"
	"taobridge/services/ingest"
	"taobridge/services/ingest/projection"
)

// maxBatchBody bounds the accepted request body; a full batch of 100 items
// stays well under this.
const maxBatchBody = 1 << 20

// Config captures the dependencies required to construct the server.
type Config struct {
	Engine     *bridge.Engine
	Pipeline   *ingest.Pipeline
	Projection *projection.Store
	Logger     *slog.Logger
}

// Server encapsulates dependencies for the HTTP API.
type Server struct {
	engine     *bridge.Engine
	pipeline   *ingest.Pipeline
	projection *projection.Store
	logger     *slog.Logger

	router http.Handler
}

// New constructs a configured HTTP router.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		engine:     cfg.Engine,
		pipeline:   cfg.Pipeline,
		projection: cfg.Projection,
		logger:     logger,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Get("/status", s.Status)
		api.Post("/batches", s.SubmitBatch)
		api.Get("/tokens", s.Tokens)
		api.Get("/tokens/{key}", s.TokenInfo)
		api.Get("/transfers", s.Transfers)
		api.Get("/stakes/{address}", s.StakePosition)
	})

	return r
}

// Status reports the ledger's public counters.
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"chainId":     s.engine.LocalChainID(),
		"paused":      s.engine.Paused(),
		"bridgeNonce": s.engine.BridgeNonce(),
		"vault":       s.engine.Vault().Hex(),
		"processed":   s.engine.ProcessedCount(),
		"tokens":      len(s.engine.TokenKeys()),
	}
	if status, ok := s.engine.StakeStatus(); ok {
		resp["staking"] = map[string]any{
			"pooledBalance":      status.PooledBalance.String(),
			"nextStakingEpochId": status.NextStakingEpochID,
			"lastStakingBlock":   status.LastStakingBlock,
			"stakeInterval":      status.StakeInterval,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// SubmitBatch accepts an attested inbound batch and settles it synchronously.
func (s *Server) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBatchBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	env, err := ingest.DecodeEnvelope(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.pipeline.Process(env); err != nil {
		status := batchErrorStatus(err)
		s.logger.Warn("batch rejected",
			slog.String("batch", env.BatchID),
			slog.Int("status", status),
			slog.String("error", err.Error()))
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"batchId": env.BatchID,
		"items":   len(env.Items),
	})
}

func batchErrorStatus(err error) int {
	switch {
	case errors.Is(err, ingest.ErrMalformedEnvelope):
		return http.StatusBadRequest
	case errors.Is(err, coreerr.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, coreerr.ErrTransferAlreadyProcessed):
		return http.StatusConflict
	case errors.Is(err, coreerr.ErrInvalidInput),
		errors.Is(err, coreerr.ErrInvalidAmount),
		errors.Is(err, coreerr.ErrInvalidRecipient):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Tokens lists every known asset key and its classification.
func (s *Server) Tokens(w http.ResponseWriter, r *http.Request) {
	out := make([]map[string]any, 0)
	for _, key := range s.engine.TokenKeys() {
		info, meta, ok := s.engine.TokenDetail(key)
		if !ok {
			continue
		}
		out = append(out, tokenResponse(key, info, meta))
	}
	writeJSON(w, http.StatusOK, out)
}

// TokenInfo returns the classification and metadata for one asset key.
func (s *Server) TokenInfo(w http.ResponseWriter, r *http.Request) {
	var key types.TokenKey
	if err := key.UnmarshalText([]byte(chi.URLParam(r, "key"))); err != nil {
		http.Error(w, "invalid token key", http.StatusBadRequest)
		return
	}
	info, meta, ok := s.engine.TokenDetail(key)
	if !ok {
		http.Error(w, "unknown token", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse(key, info, meta))
}

func tokenResponse(key types.TokenKey, info registry.TokenInfo, meta types.TokenMetadata) map[string]any {
	return map[string]any{
		"tokenKey":  key.Hex(),
		"address":   info.Address.Hex(),
		"managed":   info.Managed,
		"enabled":   info.Enabled,
		"supported": info.Supported,
		"name":      meta.Name,
		"symbol":    meta.Symbol,
		"decimals":  meta.Decimals,
	}
}

// Transfers returns recent transfer history from the projection.
func (s *Server) Transfers(w http.ResponseWriter, r *http.Request) {
	if s.projection == nil {
		http.Error(w, "projection disabled", http.StatusServiceUnavailable)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	transfers, err := s.projection.Transfers(limit)
	if err != nil {
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, transfers)
}

// StakePosition returns a user's stake position and the pool parameters.
func (s *Server) StakePosition(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.engine.StakeStatus(); !ok {
		http.Error(w, "staking disabled", http.StatusServiceUnavailable)
		return
	}
	addr, err := types.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}
	pos, ok := s.engine.StakePosition(addr)
	writeJSON(w, http.StatusOK, map[string]any{
		"address":        addr.Hex(),
		"amount":         pos.Amount.String(),
		"stakingEpochId": pos.StakingEpochID,
		"flushed":        pos.Flushed,
		"known":          ok,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
