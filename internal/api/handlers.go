package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pricewatch/price-tracker/internal/analytics"
	"github.com/pricewatch/price-tracker/internal/config"
	"github.com/pricewatch/price-tracker/internal/database"
	"github.com/pricewatch/price-tracker/internal/models"
)

// BatchRunner is the orchestrator surface the handlers drive.
type BatchRunner interface {
	RunBatch(ctx context.Context, targets []*models.VendorTarget) (*models.ScrapeReport, error)
	ScrapeVendor(ctx context.Context, target *models.VendorTarget) (*models.ScrapeOutcome, error)
}

// Targets is the vendor-target persistence surface the handlers read and write.
type Targets interface {
	GetTarget(ctx context.Context, id uuid.UUID) (*models.VendorTarget, error)
	GetActiveTargets(ctx context.Context, productID *uuid.UUID, limit int) ([]*models.VendorTarget, error)
	InsertTarget(ctx context.Context, t *models.VendorTarget) error
}

// Alerts is the analytics surface exposed over HTTP.
type Alerts interface {
	CheckAll(ctx context.Context) ([]analytics.PriceDropAlert, error)
	TrendForTarget(ctx context.Context, targetID uuid.UUID) (*analytics.PriceTrend, error)
	CheapestVendors(ctx context.Context, productID uuid.UUID) ([]database.VendorPrice, error)
}

type Handlers struct {
	runner  BatchRunner
	targets Targets
	alerts  Alerts
	cfg     *config.Config
	logger  *slog.Logger
}

func NewHandlers(runner BatchRunner, targets Targets, alerts Alerts, cfg *config.Config, logger *slog.Logger) *Handlers {
	return &Handlers{
		runner:  runner,
		targets: targets,
		alerts:  alerts,
		cfg:     cfg,
		logger:  logger,
	}
}

// RunBatchRequest starts a scrape batch, optionally filtered to one product.
type RunBatchRequest struct {
	ProductID string `json:"product_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// RunBatch loads eligible targets and scrapes them sequentially. The call is
// synchronous: the response is the full batch report.
func (h *Handlers) RunBatch(w http.ResponseWriter, r *http.Request) {
	var req RunBatchRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	var productID *uuid.UUID
	if req.ProductID != "" {
		id, err := uuid.Parse(req.ProductID)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid product_id")
			return
		}
		productID = &id
	}

	limit := req.Limit
	if limit <= 0 || limit > h.cfg.Scraper.BatchLimit {
		limit = h.cfg.Scraper.BatchLimit
	}

	targets, err := h.targets.GetActiveTargets(r.Context(), productID, limit)
	if err != nil {
		h.logger.Error("failed to load targets for batch", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load targets")
		return
	}

	report, err := h.runner.RunBatch(r.Context(), targets)
	if err != nil {
		h.logger.Error("batch run failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "batch run failed")
		return
	}

	h.respondJSON(w, http.StatusOK, report)
}

// TestVendorRequest scrapes one vendor immediately, either by target id or as
// an ad-hoc definition that is not persisted as a target.
type TestVendorRequest struct {
	TargetID       string `json:"target_id,omitempty"`
	URL            string `json:"url,omitempty"`
	ProductName    string `json:"product_name,omitempty"`
	VendorName     string `json:"vendor_name,omitempty"`
	ExtractionHint string `json:"extraction_hint,omitempty"`
}

// TestVendor runs the full pipeline for a single vendor and returns the
// outcome synchronously. Used to verify a target definition before enabling it.
func (h *Handlers) TestVendor(w http.ResponseWriter, r *http.Request) {
	var req TestVendorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var target *models.VendorTarget
	switch {
	case req.TargetID != "":
		id, err := uuid.Parse(req.TargetID)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid target_id")
			return
		}
		target, err = h.targets.GetTarget(r.Context(), id)
		if err != nil {
			h.logger.Error("failed to load target", "target_id", id, "error", err)
			h.respondError(w, http.StatusInternalServerError, "failed to load target")
			return
		}
		if target == nil {
			h.respondError(w, http.StatusNotFound, "target not found")
			return
		}
	case req.URL != "":
		target = &models.VendorTarget{
			ID:             uuid.New(),
			ProductName:    req.ProductName,
			VendorName:     req.VendorName,
			URL:            req.URL,
			ExtractionHint: req.ExtractionHint,
		}
	default:
		h.respondError(w, http.StatusBadRequest, "either target_id or url is required")
		return
	}

	outcome, err := h.runner.ScrapeVendor(r.Context(), target)
	if err != nil {
		h.logger.Error("test scrape failed", "url", target.URL, "error", err)
		h.respondError(w, http.StatusInternalServerError, "test scrape failed")
		return
	}

	h.respondJSON(w, http.StatusOK, outcome)
}

// CreateTargetRequest registers a vendor page for tracking.
type CreateTargetRequest struct {
	ProductID      string   `json:"product_id"`
	ProductName    string   `json:"product_name"`
	VendorName     string   `json:"vendor_name"`
	URL            string   `json:"url"`
	ExtractionHint string   `json:"extraction_hint,omitempty"`
	PriceThreshold *float64 `json:"price_threshold,omitempty"`
	Active         *bool    `json:"active,omitempty"`
}

func (h *Handlers) CreateTarget(w http.ResponseWriter, r *http.Request) {
	var req CreateTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" || req.VendorName == "" || req.ProductName == "" {
		h.respondError(w, http.StatusBadRequest, "url, vendor_name and product_name are required")
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid product_id")
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	target := &models.VendorTarget{
		ProductID:      productID,
		ProductName:    req.ProductName,
		VendorName:     req.VendorName,
		URL:            req.URL,
		ExtractionHint: req.ExtractionHint,
		PriceThreshold: req.PriceThreshold,
		Active:         active,
	}

	if err := h.targets.InsertTarget(r.Context(), target); err != nil {
		h.logger.Error("failed to create target", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create target")
		return
	}

	h.respondJSON(w, http.StatusCreated, target)
}

// ListTargets returns active targets, optionally filtered by product.
func (h *Handlers) ListTargets(w http.ResponseWriter, r *http.Request) {
	var productID *uuid.UUID
	if raw := r.URL.Query().Get("product_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid product_id")
			return
		}
		productID = &id
	}

	limit := h.cfg.Scraper.BatchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	targets, err := h.targets.GetActiveTargets(r.Context(), productID, limit)
	if err != nil {
		h.logger.Error("failed to list targets", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list targets")
		return
	}

	h.respondJSON(w, http.StatusOK, targets)
}

// CheckAlerts sweeps all active targets for price drops and returns what it
// found. Detected drops are also queued for the notification stream.
func (h *Handlers) CheckAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alerts.CheckAll(r.Context())
	if err != nil {
		h.logger.Error("alert sweep failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "alert sweep failed")
		return
	}

	if alerts == nil {
		alerts = []analytics.PriceDropAlert{}
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// GetTrend reports a target's unit-price direction over the trend window.
func (h *Handlers) GetTrend(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "targetID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid target id")
		return
	}

	trend, err := h.alerts.TrendForTarget(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to compute trend", "target_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to compute trend")
		return
	}

	h.respondJSON(w, http.StatusOK, trend)
}

// RankVendors lists a product's vendors cheapest unit price first.
func (h *Handlers) RankVendors(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	prices, err := h.alerts.CheapestVendors(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to rank vendors", "product_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to rank vendors")
		return
	}

	if prices == nil {
		prices = []database.VendorPrice{}
	}
	h.respondJSON(w, http.StatusOK, prices)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
