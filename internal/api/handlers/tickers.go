package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/spxlab/internal/tickers"
	"github.com/wonny/spxlab/pkg/logger"
)

// TickerHandler serves ticker identity resolution
type TickerHandler struct {
	resolver *tickers.Resolver
	logger   *logger.Logger
}

// NewTickerHandler creates a new ticker handler
func NewTickerHandler(resolver *tickers.Resolver, log *logger.Logger) *TickerHandler {
	return &TickerHandler{
		resolver: resolver,
		logger:   log.WithField("handler", "tickers"),
	}
}

// Resolve follows the transition chain of one symbol
// GET /api/tickers/{symbol}/resolve
func (h *TickerHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	res, err := h.resolver.Trace(symbol)
	if err != nil {
		// 순환/홉 초과는 설정 오류
		h.logger.WithError(err).WithField("symbol", symbol).Warn("Ticker resolution failed")
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	respondData(w, res)
}

// ListTransitions returns the effective transition table
// GET /api/tickers/transitions
func (h *TickerHandler) ListTransitions(w http.ResponseWriter, r *http.Request) {
	respondData(w, h.resolver.Transitions())
}
