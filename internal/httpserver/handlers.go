// Package httpserver exposes the billing ledger over JSON/HTTP.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/septivank/electricity-billing/internal/ledger"
	"github.com/septivank/electricity-billing/internal/lock"
	"go.uber.org/zap"
)

const (
	requestIDHeader = "X-Request-Id"
	requestTimeout  = 15 * time.Second
	maxBodyBytes    = 1 << 16
)

// Ledger is the service surface the handlers need
type Ledger interface {
	RegisterMeter(ctx context.Context, meterID string, dayReading, nightReading float64) (*ledger.Meter, error)
	RecordReading(ctx context.Context, meterID string, dayReading, nightReading float64) (*ledger.BillingRecord, error)
	GetHistory(ctx context.Context, meterID string) ([]ledger.BillingRecord, error)
	ListMeters(ctx context.Context) ([]ledger.Meter, error)
	Ping(ctx context.Context) error
}

// Handler routes API requests to the ledger
type Handler struct {
	ledger Ledger
	mux    *http.ServeMux
	logger *zap.Logger
}

// NewHandler builds the API handler
func NewHandler(l Ledger, logger *zap.Logger) *Handler {
	h := &Handler{
		ledger: l,
		mux:    http.NewServeMux(),
		logger: logger,
	}
	h.routes()
	return h
}

func (h *Handler) routes() {
	h.mux.HandleFunc("POST /meters", h.handleRegisterMeter)
	h.mux.HandleFunc("GET /meters", h.handleListMeters)
	h.mux.HandleFunc("POST /meters/{id}/readings", h.handleRecordReading)
	h.mux.HandleFunc("GET /meters/{id}/history", h.handleHistory)
	h.mux.HandleFunc("GET /healthz", h.handleHealthz)
	h.mux.Handle("GET /metrics", promhttp.Handler())
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := r.Header.Get(requestIDHeader)
	if reqID == "" {
		reqID = uuid.NewString()
	}

	w.Header().Set(requestIDHeader, reqID)
	rr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		if rec := recover(); rec != nil {
			rr.status = http.StatusInternalServerError
			if !rr.wroteHeader {
				writeAPIError(rr, http.StatusInternalServerError, "internal_error", "internal error")
			}
			h.logger.Error("panic handling request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", reqID),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
		}

		dur := time.Since(start)
		observeHTTPRequest(r, rr.status, dur)

		if r.URL.Path != "/healthz" && r.URL.Path != "/metrics" {
			h.logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rr.status),
				zap.Duration("duration", dur),
				zap.String("request_id", reqID),
			)
		}
	}()

	h.mux.ServeHTTP(rr, r)
}

func (h *Handler) handleRegisterMeter(w http.ResponseWriter, r *http.Request) {
	var req registerMeterRequestJSON
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DayReading == nil || req.NightReading == nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_argument", "day_reading and night_reading are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	meter, err := h.ledger.RegisterMeter(ctx, req.MeterID, *req.DayReading, *req.NightReading)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	_ = writeJSON(w, http.StatusCreated, toMeterJSON(meter))
}

func (h *Handler) handleRecordReading(w http.ResponseWriter, r *http.Request) {
	var req recordReadingRequestJSON
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DayReading == nil || req.NightReading == nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_argument", "day_reading and night_reading are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	record, err := h.ledger.RecordReading(ctx, r.PathValue("id"), *req.DayReading, *req.NightReading)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	_ = writeJSON(w, http.StatusCreated, toRecordJSON(record))
}

func (h *Handler) handleListMeters(w http.ResponseWriter, r *http.Request) {
	meters, err := h.ledger.ListMeters(r.Context())
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	out := make([]meterJSON, 0, len(meters))
	for i := range meters {
		out = append(out, toMeterJSON(&meters[i]))
	}
	_ = writeJSON(w, http.StatusOK, listMetersResponseJSON{Meters: out})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	meterID := r.PathValue("id")
	records, err := h.ledger.GetHistory(r.Context(), meterID)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	out := make([]billingRecordJSON, 0, len(records))
	for i := range records {
		out = append(out, toRecordJSON(&records[i]))
	}
	_ = writeJSON(w, http.StatusOK, historyResponseJSON{MeterID: meterID, Records: out})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.ledger.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeAPIError(w, http.StatusServiceUnavailable, "unavailable", "store unreachable")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidInput):
		writeAPIError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		writeAPIError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ledger.ErrAlreadyExists):
		writeAPIError(w, http.StatusConflict, "already_exists", err.Error())
	case errors.Is(err, lock.ErrLockTimeout), errors.Is(err, context.DeadlineExceeded):
		writeAPIError(w, http.StatusServiceUnavailable, "unavailable", "meter busy, retry later")
	default:
		h.logger.Error("ledger operation failed", zap.Error(err))
		writeAPIError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_argument", "invalid json body")
		return false
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(p)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	_ = writeJSON(w, status, apiErrorJSON{
		Code:      code,
		Message:   message,
		RequestID: w.Header().Get(requestIDHeader),
	})
}
