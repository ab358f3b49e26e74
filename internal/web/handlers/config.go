package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/identity"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
	engine *attendance.Engine
	store  *identity.Store
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config, engine *attendance.Engine, store *identity.Store) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
		engine: engine,
		store:  store,
	}
}

// ConfigResponse represents the active matching and ledger settings
type ConfigResponse struct {
	Strategy      string  `json:"strategy"`
	Metric        string  `json:"metric"`
	Threshold     float64 `json:"threshold"`
	HashThreshold int     `json:"hash_threshold"`
	Index         string  `json:"index"`
	StoreMode     string  `json:"store_mode"`
	Identities    int     `json:"identities"`
	Dedupe        string  `json:"dedupe"`
	SameDay       bool    `json:"same_day"`
	LedgerBackend string  `json:"ledger_backend"`
}

// Get returns the active configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	response := ConfigResponse{
		Strategy:      h.engine.StrategyName(),
		Metric:        h.config.Match.Metric,
		Threshold:     h.config.Match.Threshold,
		HashThreshold: h.config.Match.HashThreshold,
		Index:         h.config.Match.Index,
		StoreMode:     h.store.Mode(),
		Identities:    h.store.Len(),
		Dedupe:        h.engine.DedupePolicy(),
		SameDay:       h.engine.SameDay(),
		LedgerBackend: h.config.Ledger.Backend,
	}

	respondJSON(w, http.StatusOK, response)
}
