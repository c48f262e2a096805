package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/spxlab/internal/contracts"
	"github.com/wonny/spxlab/internal/s1_universe"
	"github.com/wonny/spxlab/pkg/logger"
)

// UniverseHandler serves membership queries
// ⭐ SSOT: 유니버스 API 핸들러는 이 구조체에서만
type UniverseHandler struct {
	engine        *s1_universe.Engine
	allowFallback bool
	logger        *logger.Logger
}

// NewUniverseHandler creates a new universe handler.
// allowFallback lets historical queries answer from current constituents when the store is missing.
func NewUniverseHandler(engine *s1_universe.Engine, allowFallback bool, log *logger.Logger) *UniverseHandler {
	return &UniverseHandler{
		engine:        engine,
		allowFallback: allowFallback,
		logger:        log.WithField("handler", "universe"),
	}
}

// GetMembers returns the point-in-time universe
// GET /api/universe/members?date=2020-06-30
func (h *UniverseHandler) GetMembers(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r, "date")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	universe, err := h.engine.MembersAsOf(r.Context(), date)
	if err != nil {
		h.logger.WithError(err).Error("Failed to query members")
		respondError(w, http.StatusInternalServerError, "Failed to query members")
		return
	}

	respondData(w, universe)
}

// GetHistorical returns every ticker that was a member during the window
// GET /api/universe/historical?start=2014-01-01&end=2024-12-31
func (h *UniverseHandler) GetHistorical(w http.ResponseWriter, r *http.Request) {
	start, end, err := windowParams(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	universe, err := h.engine.HistoricalMembers(r.Context(), start, end, s1_universe.HistoricalOptions{
		AllowCurrentFallback: h.allowFallback,
	})
	if err != nil {
		if errors.Is(err, s1_universe.ErrMembershipUnavailable) {
			respondError(w, http.StatusServiceUnavailable, "membership store not built")
			return
		}
		h.logger.WithError(err).Error("Failed to query historical members")
		respondError(w, http.StatusInternalServerError, "Failed to query historical members")
		return
	}

	respondData(w, universe)
}

// GetIntervals returns the membership intervals of one ticker
// GET /api/universe/intervals/{ticker}
func (h *UniverseHandler) GetIntervals(w http.ResponseWriter, r *http.Request) {
	ticker := contracts.NormalizeTicker(mux.Vars(r)["ticker"])

	intervals, err := h.engine.IntervalsFor(r.Context(), ticker)
	if err != nil {
		h.logger.WithError(err).WithField("ticker", ticker).Error("Failed to query intervals")
		respondError(w, http.StatusInternalServerError, "Failed to query intervals")
		return
	}
	if intervals == nil {
		respondError(w, http.StatusNotFound, "no membership intervals for "+ticker)
		return
	}

	respondData(w, map[string]interface{}{
		"ticker":    ticker,
		"intervals": intervals,
	})
}

// GetManifest returns the current build manifest
// GET /api/universe/manifest
func (h *UniverseHandler) GetManifest(w http.ResponseWriter, r *http.Request) {
	manifest, err := h.engine.Manifest(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to read manifest")
		respondError(w, http.StatusInternalServerError, "Failed to read manifest")
		return
	}
	if manifest == nil {
		respondError(w, http.StatusNotFound, "membership store not built")
		return
	}

	respondData(w, manifest)
}
