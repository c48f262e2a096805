package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wonny/spxlab/internal/completeness"
	"github.com/wonny/spxlab/internal/contracts"
	"github.com/wonny/spxlab/internal/tickers"
	"github.com/wonny/spxlab/pkg/logger"
)

// CompletenessHandler serves gap-aware completeness checks
type CompletenessHandler struct {
	checker  *completeness.Checker
	resolver *tickers.Resolver
	logger   *logger.Logger
}

// NewCompletenessHandler creates a new completeness handler; resolver may be nil
func NewCompletenessHandler(checker *completeness.Checker, resolver *tickers.Resolver, log *logger.Logger) *CompletenessHandler {
	return &CompletenessHandler{
		checker:  checker,
		resolver: resolver,
		logger:   log.WithField("handler", "completeness"),
	}
}

// completenessResponse tags the result variant for clients
type completenessResponse struct {
	Kind         string                       `json:"kind"` // single | multi
	Ticker       string                       `json:"ticker"`
	DataSymbol   string                       `json:"data_symbol"`
	Frequency    contracts.Frequency          `json:"frequency"`
	Status       contracts.Status             `json:"status"`
	MissingDays  int                          `json:"missing_days"`
	FetchWindows []contracts.DateRange        `json:"fetch_windows"`
	Result       contracts.CompletenessResult `json:"result"`
}

// GetCompleteness checks one ticker against a research window
// GET /api/completeness/{ticker}?start=2014-01-01&end=2024-12-31&frequency=daily&span=false&resolve=true
func (h *CompletenessHandler) GetCompleteness(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticker := contracts.NormalizeTicker(mux.Vars(r)["ticker"])
	q := r.URL.Query()

	start, end, err := windowParams(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	freq := contracts.FrequencyDaily
	if raw := q.Get("frequency"); raw != "" {
		if freq, err = contracts.ParseFrequency(raw); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	opts := completeness.Options{Frequency: freq}
	if raw := q.Get("span"); raw != "" {
		if opts.SpanMode, err = strconv.ParseBool(raw); err != nil {
			respondError(w, http.StatusBadRequest, "span must be true or false")
			return
		}
	}

	// 티커 변경 시 후속 심볼의 데이터로 검사
	dataSymbol := ticker
	if q.Get("resolve") == "true" && h.resolver != nil {
		current, ok, err := h.resolver.Resolve(ticker)
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if ok {
			dataSymbol = current
		}
	}

	window := contracts.NewDateRange(start, end)
	res, err := h.checker.CheckAs(ctx, ticker, dataSymbol, window, opts)
	if err != nil {
		if errors.Is(err, completeness.ErrInvalidRange) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.WithError(err).WithField("ticker", ticker).Error("Completeness check failed")
		respondError(w, http.StatusInternalServerError, "Completeness check failed")
		return
	}

	kind := "single"
	if _, ok := res.(*contracts.MultiPeriodResult); ok {
		kind = "multi"
	}

	windows := res.FetchWindows()
	if windows == nil {
		windows = []contracts.DateRange{}
	}

	respondData(w, completenessResponse{
		Kind:         kind,
		Ticker:       ticker,
		DataSymbol:   dataSymbol,
		Frequency:    freq,
		Status:       res.OverallStatus(),
		MissingDays:  res.TotalMissingDays(),
		FetchWindows: windows,
		Result:       res,
	})
}
