package handlers

import (
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/aegis-defense/internal/contracts"
	"github.com/wonny/aegis-defense/internal/store"
	"github.com/wonny/aegis-defense/pkg/logger"
)

// DefenseHandler serves stored drawdown defense classifications
// ⭐ SSOT: 분류 조회 API 핸들러는 이 구조체에서만
type DefenseHandler struct {
	results contracts.ClassificationRepository
	logger  *logger.Logger
}

// NewDefenseHandler creates a new defense handler
func NewDefenseHandler(results contracts.ClassificationRepository, log *logger.Logger) *DefenseHandler {
	return &DefenseHandler{results: results, logger: log}
}

// LatestResponse latest run, optionally filtered by class
type LatestResponse struct {
	*contracts.BacktestResult
	ClassCounts map[contracts.DefenseClass]int `json:"class_counts"`
}

// GetLatest returns the most recent run
// GET /api/defense/latest?class=HEDGE
func (h *DefenseHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	result, err := h.results.GetLatestResult(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "No backtest run stored yet")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to get latest result")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve latest result")
		return
	}

	resp := LatestResponse{BacktestResult: result, ClassCounts: result.ClassCounts()}

	if raw := r.URL.Query().Get("class"); raw != "" {
		class, err := contracts.ParseDefenseClass(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		filtered := *result
		filtered.Classifications = make(map[string]contracts.ClassificationRecord)
		for symbol, rec := range result.Classifications {
			if rec.Classification == class {
				filtered.Classifications[symbol] = rec
			}
		}
		resp.BacktestResult = &filtered
	}

	respondJSON(w, http.StatusOK, resp)
}

// ClassificationResponse one symbol from the latest run
type ClassificationResponse struct {
	Symbol           string    `json:"symbol"`
	RunDate          time.Time `json:"run_date"`
	RegimeAdjustment int       `json:"regime_adjustment"`
	contracts.ClassificationRecord
}

// GetClassification returns one symbol's classification
// GET /api/defense/classifications/{symbol}
func (h *DefenseHandler) GetClassification(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(mux.Vars(r)["symbol"]))
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	rec, runDate, err := h.results.GetClassification(r.Context(), symbol)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "No classification for "+symbol+" in the latest run")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("symbol", symbol).Error("Failed to get classification")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve classification")
		return
	}

	respondJSON(w, http.StatusOK, ClassificationResponse{
		Symbol:               symbol,
		RunDate:              runDate,
		RegimeAdjustment:     rec.Classification.RegimeAdjustment(),
		ClassificationRecord: *rec,
	})
}

// ClassInfo one defense class and its regime adjustment
type ClassInfo struct {
	Class            contracts.DefenseClass `json:"class"`
	RegimeAdjustment int                    `json:"regime_adjustment"`
}

// GetClasses lists the defense classes in ordinal order
// GET /api/defense/classes
func (h *DefenseHandler) GetClasses(w http.ResponseWriter, r *http.Request) {
	classes := contracts.DefenseClasses()
	out := make([]ClassInfo, len(classes))
	for i, c := range classes {
		out[i] = ClassInfo{Class: c, RegimeAdjustment: c.RegimeAdjustment()}
	}
	respondJSON(w, http.StatusOK, out)
}

// SymbolsByClass groups symbols of a result by class, sorted within each class
func SymbolsByClass(result *contracts.BacktestResult) map[contracts.DefenseClass][]string {
	groups := make(map[contracts.DefenseClass][]string)
	for symbol, rec := range result.Classifications {
		groups[rec.Classification] = append(groups[rec.Classification], symbol)
	}
	for _, symbols := range groups {
		sort.Strings(symbols)
	}
	return groups
}
