package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"wisefido-power/internal/models"
	"wisefido-power/internal/service"

	"go.uber.org/zap"
)

type HistoryQuerier interface {
	Query(ctx context.Context, fromRaw, toRaw string) ([][2]int64, error)
	QuerySeries(ctx context.Context, fromRaw, toRaw string) (models.HistorySeries, error)
}

// LatestSource last event the sampler published
type LatestSource interface {
	Latest() (models.LiveEvent, bool)
}

type PowerHandler struct {
	history HistoryQuerier
	latest  LatestSource
	logger  *zap.Logger
}

func NewPowerHandler(history HistoryQuerier, latest LatestSource, logger *zap.Logger) *PowerHandler {
	return &PowerHandler{history: history, latest: latest, logger: logger}
}

// GetHistory GET ?from=&to= -> [[epoch_ms, watts], ...]
// The body is the bare array the chart consumes; errors use the Result envelope.
func (h *PowerHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pairs, err := h.history.Query(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		h.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pairs)
}

// ExportHistory same range as GetHistory as an .xlsx download
func (h *PowerHandler) ExportHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	series, err := h.history.QuerySeries(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		h.writeQueryError(w, err)
		return
	}

	data, err := GenerateHistoryExport(series)
	if err != nil {
		h.logger.Error("GenerateHistoryExport failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(fmt.Sprintf("failed to generate export: %v", err)))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=power-history.xlsx")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *PowerHandler) GetInstant(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.latest.Latest()
	if !ok {
		writeJSON(w, http.StatusNotFound, Fail("no reading sampled yet"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(ev))
}

func (h *PowerHandler) writeQueryError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrMalformedRange) {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	h.logger.Error("History query failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, Fail("failed to query history"))
}
