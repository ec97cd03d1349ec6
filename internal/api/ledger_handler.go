package api

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jspohr/tollbook/internal/catalog"
	"github.com/jspohr/tollbook/internal/hub"
	"github.com/jspohr/tollbook/internal/ledger"
	"github.com/jspohr/tollbook/internal/metrics"
)

// ledgerHandler groups the ingest and read endpoints that operate on a
// single task's ledger.
type ledgerHandler struct {
	hub     *hub.Hub
	pricing *catalog.Service
	metrics *metrics.Metrics
}

func newLedgerHandler(h *hub.Hub, pricing *catalog.Service, m *metrics.Metrics) *ledgerHandler {
	return &ledgerHandler{hub: h, pricing: pricing, metrics: m}
}

// switchRequest is the payload for recording a model switch.
type switchRequest struct {
	Model ledger.ModelRef `json:"model"`
	TS    time.Time       `json:"ts,omitzero"`
}

// immediateRequest is the payload for a synchronous per-request usage report.
// Cost is optional; when absent the active model's catalog price estimates it.
type immediateRequest struct {
	RequestID   string    `json:"request_id,omitempty"`
	TS          time.Time `json:"ts,omitzero"`
	TokensIn    uint64    `json:"tokens_in"`
	TokensOut   uint64    `json:"tokens_out"`
	CacheWrites uint64    `json:"cache_writes"`
	CacheReads  uint64    `json:"cache_reads"`
	Cost        *float64  `json:"cost,omitempty"`
}

// delayedRequest is the payload for an out-of-band billing confirmation.
type delayedRequest struct {
	RequestID      string    `json:"request_id"`
	ModelLabel     string    `json:"model_label"`
	ReportTime     time.Time `json:"report_time,omitzero"`
	FinalTokensIn  uint64    `json:"final_tokens_in"`
	FinalTokensOut uint64    `json:"final_tokens_out"`
	FinalCost      float64   `json:"final_cost"`
	CacheWrites    uint64    `json:"cache_writes"`
	CacheReads     uint64    `json:"cache_reads"`
}

// applyResponse reports what the ledger did with an ingest payload.
type applyResponse struct {
	Outcome   ledger.Outcome `json:"outcome"`
	PeriodSeq int            `json:"period_seq"`
}

// RecordSwitch handles POST /api/v1/tasks/{taskID}/switches.
func (h *ledgerHandler) RecordSwitch(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	var req switchRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if strings.TrimSpace(req.Model.Provider) == "" || strings.TrimSpace(req.Model.ID) == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "model provider and id are required")
		return
	}
	ts := req.TS
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	if err := h.hub.RecordSwitch(r.Context(), taskID, req.Model, ts); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to record switch")
		return
	}

	cur, _, err := h.hub.Current(r.Context(), taskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read active period")
		return
	}
	writeJSON(w, http.StatusCreated, cur)
}

// ApplyImmediate handles POST /api/v1/tasks/{taskID}/reports/immediate.
func (h *ledgerHandler) ApplyImmediate(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	var req immediateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	ts := req.TS
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	report := ledger.ImmediateReport{
		RequestID:   req.RequestID,
		TokensIn:    req.TokensIn,
		TokensOut:   req.TokensOut,
		CacheWrites: req.CacheWrites,
		CacheReads:  req.CacheReads,
	}
	if req.Cost != nil {
		report.Cost = *req.Cost
	} else {
		report.Cost = h.estimateCost(r, taskID, report)
	}

	res, err := h.hub.ApplyImmediate(r.Context(), taskID, ts, report)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to apply report")
		return
	}
	logDrop(r, taskID, "immediate", req.RequestID, res.Outcome)
	writeJSON(w, http.StatusAccepted, applyResponse{Outcome: res.Outcome, PeriodSeq: res.PeriodSeq})
}

// logDrop records a diagnostic for every report the ledger refused. Drops are
// deliberate under-counting, so they are worth a trace but never an error.
func logDrop(r *http.Request, taskID, kind, requestID string, outcome ledger.Outcome) {
	if outcome == ledger.OutcomeApplied {
		return
	}
	slog.Warn("report dropped",
		"task_id", taskID,
		"kind", kind,
		"request_id", requestID,
		"outcome", string(outcome),
		"request_ctx", RequestIDFromContext(r.Context()),
	)
}

// estimateCost prices an uncosted immediate report from the catalog entry of
// the task's active model. Unknown models price at zero rather than guessing.
func (h *ledgerHandler) estimateCost(r *http.Request, taskID string, report ledger.ImmediateReport) float64 {
	if h.pricing == nil {
		return 0
	}
	cur, ok, err := h.hub.Current(r.Context(), taskID)
	if err != nil || !ok {
		return 0
	}
	cost, _, err := h.pricing.EstimateCost(r.Context(), cur.Model, ledger.Usage{
		TokensIn:    report.TokensIn,
		TokensOut:   report.TokensOut,
		CacheWrites: report.CacheWrites,
		CacheReads:  report.CacheReads,
	})
	if err != nil {
		return 0
	}
	return cost
}

// ApplyDelayed handles POST /api/v1/tasks/{taskID}/reports/delayed.
func (h *ledgerHandler) ApplyDelayed(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	var req delayedRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if strings.TrimSpace(req.RequestID) == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "request_id is required")
		return
	}
	if strings.TrimSpace(req.ModelLabel) == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "model_label is required")
		return
	}

	res, err := h.hub.ApplyDelayed(r.Context(), taskID, time.Now().UTC(), ledger.DelayedReport{
		RequestID:      req.RequestID,
		ModelLabel:     req.ModelLabel,
		ReportTime:     req.ReportTime,
		FinalTokensIn:  req.FinalTokensIn,
		FinalTokensOut: req.FinalTokensOut,
		FinalCost:      req.FinalCost,
		CacheWrites:    req.CacheWrites,
		CacheReads:     req.CacheReads,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to apply report")
		return
	}
	logDrop(r, taskID, "delayed", req.RequestID, res.Outcome)
	writeJSON(w, http.StatusAccepted, applyResponse{Outcome: res.Outcome, PeriodSeq: res.PeriodSeq})
}

// GetUsage handles GET /api/v1/tasks/{taskID}/usage.
func (h *ledgerHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	totals, err := h.hub.Totals(r.Context(), taskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read totals")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"totals": totals})
}

// modelUsage is one row of the per-model breakdown.
type modelUsage struct {
	Model ledger.ModelRef `json:"model"`
	Usage ledger.Usage    `json:"usage"`
}

// GetUsageByModel handles GET /api/v1/tasks/{taskID}/usage/models.
func (h *ledgerHandler) GetUsageByModel(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	perModel, err := h.hub.PerModel(r.Context(), taskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read per-model usage")
		return
	}

	rows := make([]modelUsage, 0, len(perModel))
	for m, u := range perModel {
		rows = append(rows, modelUsage{Model: m, Usage: u})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Model.String() < rows[j].Model.String()
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": rows})
}

// ListPeriods handles GET /api/v1/tasks/{taskID}/periods.
func (h *ledgerHandler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	periods, err := h.hub.Periods(r.Context(), taskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read periods")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"periods": periods})
}

// tagRequest is the payload for tagging a batch of conversation messages.
type tagRequest struct {
	Messages []ledger.Message `json:"messages"`
}

// TagMessages handles POST /api/v1/tasks/{taskID}/messages/tags.
func (h *ledgerHandler) TagMessages(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	var req tagRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	bound, err := h.hub.BindMessages(r.Context(), taskID, req.Messages)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to tag messages")
		return
	}
	if h.metrics != nil {
		h.metrics.IncMessagesBound(len(bound))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": bound})
}
