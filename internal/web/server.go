package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"

	"github.com/yieldworks/mvault/internal/logger"
	"github.com/yieldworks/mvault/internal/strategy"
	"github.com/yieldworks/mvault/internal/types"
	"github.com/yieldworks/mvault/internal/vault"
)

var webLogger = logger.GetForComponent("web_server")

// AdapterFactory builds a strategy adapter for the add/replace admin
// endpoints. The web layer never constructs adapters itself; main wires in
// the kinds the deployment supports.
type AdapterFactory func(kind string, id types.AdapterID) (strategy.Adapter, error)

// Server exposes the vault's read views and admin entry points over HTTP.
// Admin routes are gated by a bearer token, standing in for the external
// authorization layer that fronts the engine.
type Server struct {
	router *mux.Router
	port   string

	vault      *vault.Vault
	adminToken string
	newAdapter AdapterFactory

	recentEvents    func(limit int) ([]types.Event, error)
	recentSnapshots func(limit int) ([]types.VaultSnapshot, error)
}

type Config struct {
	Port            string
	Vault           *vault.Vault
	AdminToken      string
	AdapterFactory  AdapterFactory
	RecentEvents    func(limit int) ([]types.Event, error)
	RecentSnapshots func(limit int) ([]types.VaultSnapshot, error)
}

// NewServer creates a new web server instance
func NewServer(cfg Config) *Server {
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	server := &Server{
		router:          mux.NewRouter(),
		port:            port,
		vault:           cfg.Vault,
		adminToken:      cfg.AdminToken,
		newAdapter:      cfg.AdapterFactory,
		recentEvents:    cfg.RecentEvents,
		recentSnapshots: cfg.RecentSnapshots,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *Server) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/strategies", ws.handleGetStrategies).Methods("GET")
	api.HandleFunc("/queues", ws.handleGetQueues).Methods("GET")
	api.HandleFunc("/total-assets", ws.handleGetTotalAssets).Methods("GET")
	api.HandleFunc("/outflow", ws.handleGetOutflow).Methods("GET")
	api.HandleFunc("/events", ws.handleGetEvents).Methods("GET")
	api.HandleFunc("/snapshots", ws.handleGetSnapshots).Methods("GET")
	api.HandleFunc("/regions/{id}", ws.handleReadRegion).Methods("GET")

	admin := ws.router.PathPrefix("/api").Subrouter()
	admin.Use(ws.authMiddleware)
	admin.HandleFunc("/strategies", ws.handleAddStrategy).Methods("POST")
	admin.HandleFunc("/strategies/{slot}", ws.handleRemoveStrategy).Methods("DELETE")
	admin.HandleFunc("/strategies/{slot}/replace", ws.handleReplaceStrategy).Methods("POST")
	admin.HandleFunc("/strategies/{slot}/forward", ws.handleForward).Methods("POST")
	admin.HandleFunc("/queues/deposit", ws.handleChangeDepositQueue).Methods("POST")
	admin.HandleFunc("/queues/withdraw", ws.handleChangeWithdrawQueue).Methods("POST")
	admin.HandleFunc("/rebalance", ws.handleRebalance).Methods("POST")
	admin.HandleFunc("/outflow/config", ws.handleSetupOutflowLimit).Methods("POST")
	admin.HandleFunc("/outflow/delta", ws.handleChangeDelta).Methods("POST")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *Server) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// --- read handlers --------------------------------------------------------

func (ws *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	total, err := ws.vault.TotalAssets()
	status := "OK"
	statusCode := http.StatusOK
	totalStr := ""
	if err != nil {
		status = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
		webLogger.Error().Err(err).Msg("Health check: total assets query failed")
	} else {
		totalStr = total.String()
	}

	ws.writeJSONResponse(w, statusCode, map[string]interface{}{
		"status":       status,
		"timestamp":    time.Now().UTC().Format(time.RFC3339Nano),
		"total_assets": totalStr,
		"component": map[string]interface{}{
			"name":    "mvault-engine",
			"version": "1.0.0",
		},
	})
}

func (ws *Server) handleGetStrategies(w http.ResponseWriter, r *http.Request) {
	strategies, err := ws.vault.Strategies()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to snapshot strategies")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve strategies")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"strategies": strategies,
		"count":      len(strategies),
	})
}

func (ws *Server) handleGetQueues(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"deposit_queue":  ws.vault.DepositQueue(),
		"withdraw_queue": ws.vault.WithdrawQueue(),
	})
}

func (ws *Server) handleGetTotalAssets(w http.ResponseWriter, r *http.Request) {
	total, err := ws.vault.TotalAssets()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to aggregate total assets")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to aggregate total assets")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"total_assets": total,
		"idle_assets":  ws.vault.IdleAssets(),
	})
}

func (ws *Server) handleGetOutflow(w http.ResponseWriter, r *http.Request) {
	cfg := ws.vault.GetOutflowLimit()
	resp := map[string]interface{}{"config": cfg}

	if idxStr := r.URL.Query().Get("slot_index"); idxStr != "" {
		idx, err := strconv.ParseInt(idxStr, 10, 64)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid slot_index")
			return
		}
		resp["slot_index"] = idx
		resp["delta"] = ws.vault.GetAssetsDelta(idx)
	}
	ws.writeJSONResponse(w, http.StatusOK, resp)
}

func (ws *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	if ws.recentEvents == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Event history not configured")
		return
	}
	events, err := ws.recentEvents(parseLimit(r, 50))
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent events")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve events")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

func (ws *Server) handleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	if ws.recentSnapshots == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Snapshot history not configured")
		return
	}
	snaps, err := ws.recentSnapshots(parseLimit(r, 20))
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent snapshots")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve snapshots")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"snapshots": snaps,
		"count":     len(snaps),
	})
}

func (ws *Server) handleReadRegion(w http.ResponseWriter, r *http.Request) {
	regionID := mux.Vars(r)["id"]
	data, err := ws.vault.ReadRegion(regionID)
	if err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"region_id": regionID,
		"data":      string(data),
	})
}

// --- admin handlers -------------------------------------------------------

type strategyRequest struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	InitData string `json:"init_data"`
	Force    bool   `json:"force"`
}

func (ws *Server) handleAddStrategy(w http.ResponseWriter, r *http.Request) {
	if ws.newAdapter == nil {
		ws.writeErrorResponse(w, http.StatusNotImplemented, "No adapter factory configured")
		return
	}
	var req strategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	adapter, err := ws.newAdapter(req.Kind, types.AdapterID(req.ID))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := ws.vault.AddStrategy(adapter, []byte(req.InitData)); err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusCreated, map[string]interface{}{"added": req.ID})
}

func (ws *Server) handleRemoveStrategy(w http.ResponseWriter, r *http.Request) {
	slot, ok := parseSlot(w, r)
	if !ok {
		return
	}
	force := r.URL.Query().Get("force") == "true"
	if err := ws.vault.RemoveStrategy(slot, force); err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"removed": slot})
}

func (ws *Server) handleReplaceStrategy(w http.ResponseWriter, r *http.Request) {
	if ws.newAdapter == nil {
		ws.writeErrorResponse(w, http.StatusNotImplemented, "No adapter factory configured")
		return
	}
	slot, ok := parseSlot(w, r)
	if !ok {
		return
	}
	var req strategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	adapter, err := ws.newAdapter(req.Kind, types.AdapterID(req.ID))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := ws.vault.ReplaceStrategy(slot, adapter, []byte(req.InitData), req.Force); err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"slot": slot, "replaced_with": req.ID})
}

func (ws *Server) handleForward(w http.ResponseWriter, r *http.Request) {
	slot, ok := parseSlot(w, r)
	if !ok {
		return
	}
	var req struct {
		MethodID uint16 `json:"method_id"`
		Params   string `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	result, err := ws.vault.ForwardToStrategy(slot, req.MethodID, []byte(req.Params))
	if err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"result": string(result)})
}

func (ws *Server) handleChangeDepositQueue(w http.ResponseWriter, r *http.Request) {
	ws.handleChangeQueue(w, r, ws.vault.ChangeDepositQueue)
}

func (ws *Server) handleChangeWithdrawQueue(w http.ResponseWriter, r *http.Request) {
	ws.handleChangeQueue(w, r, ws.vault.ChangeWithdrawQueue)
}

func (ws *Server) handleChangeQueue(w http.ResponseWriter, r *http.Request, apply func([]int) error) {
	var req struct {
		Order []int `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := apply(req.Order); err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"order": req.Order})
}

func (ws *Server) handleRebalance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromSlot int    `json:"from_slot"`
		ToSlot   int    `json:"to_slot"`
		Amount   string `json:"amount"` // decimal string, or "max"
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	amount := vault.AmountMax
	if req.Amount != "max" {
		var ok bool
		amount, ok = sdkmath.NewIntFromString(req.Amount)
		if !ok || amount.IsNegative() {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid amount")
			return
		}
	}
	if err := ws.vault.Rebalance(req.FromSlot, req.ToSlot, amount); err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"from_slot": req.FromSlot,
		"to_slot":   req.ToSlot,
	})
}

func (ws *Server) handleSetupOutflowLimit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SlotSizeSeconds int64  `json:"slot_size_seconds"`
		Limit           string `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	limit, ok := sdkmath.NewIntFromString(req.Limit)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	if err := ws.vault.SetupOutflowLimit(time.Duration(req.SlotSizeSeconds)*time.Second, limit); err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, ws.vault.GetOutflowLimit())
}

func (ws *Server) handleChangeDelta(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SlotIndex int64  `json:"slot_index"`
		NewDelta  string `json:"new_delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	newDelta, ok := sdkmath.NewIntFromString(req.NewDelta)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid new_delta")
		return
	}
	if err := ws.vault.ChangeDelta(req.SlotIndex, newDelta); err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"slot_index": req.SlotIndex,
		"delta":      ws.vault.GetAssetsDelta(req.SlotIndex),
	})
}

// --- helpers --------------------------------------------------------------

func parseSlot(w http.ResponseWriter, r *http.Request) (int, bool) {
	slot, err := strconv.Atoi(mux.Vars(r)["slot"])
	if err != nil {
		http.Error(w, "Invalid slot", http.StatusBadRequest)
		return 0, false
	}
	return slot, true
}

func parseLimit(r *http.Request, fallback int) int {
	limit := fallback
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	return limit
}

// writeVaultError maps the engine's failure taxonomy onto HTTP statuses so
// calling software can branch on failure kind.
func (ws *Server) writeVaultError(w http.ResponseWriter, err error) {
	var maxWithdrawErr *vault.RebalanceExceedsMaxWithdrawError
	var maxDepositErr *vault.RebalanceExceedsMaxDepositError

	switch {
	case errors.Is(err, vault.ErrLimitReached):
		ws.writeErrorResponse(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, vault.ErrDepositRoutingExhausted),
		errors.Is(err, vault.ErrWithdrawRoutingExhausted):
		ws.writeErrorResponse(w, http.StatusConflict, err.Error())
	case errors.Is(err, vault.ErrUnauthorizedRegionAccess):
		ws.writeErrorResponse(w, http.StatusForbidden, err.Error())
	case errors.Is(err, vault.ErrInvalidStrategy),
		errors.Is(err, vault.ErrDuplicatedStrategy),
		errors.Is(err, vault.ErrTooManyStrategies),
		errors.Is(err, vault.ErrMinimumStrategiesRequired),
		errors.Is(err, vault.ErrCannotRemoveStrategyWithAssets),
		errors.Is(err, vault.ErrInvalidQueueLength),
		errors.Is(err, vault.ErrInvalidQueueIndexDuplicated),
		errors.Is(err, vault.ErrInvalidQueue),
		errors.Is(err, vault.ErrOutflowLimitNotConfigured),
		errors.As(err, &maxWithdrawErr),
		errors.As(err, &maxDepositErr):
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
	default:
		webLogger.Error().Err(err).Msg("Vault operation failed")
		ws.writeErrorResponse(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSONResponse writes a JSON response
func (ws *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	ws.writeJSONResponse(w, statusCode, map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}

// authMiddleware gates admin routes behind a static bearer token. Role-based
// permissioning proper lives outside this service.
func (ws *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ws.adminToken == "" {
			ws.writeErrorResponse(w, http.StatusForbidden, "Admin API disabled: no token configured")
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+ws.adminToken {
			ws.writeErrorResponse(w, http.StatusUnauthorized, "Invalid or missing token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers
func (ws *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
