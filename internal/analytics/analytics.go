package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pricewatch/price-tracker/internal/config"
	"github.com/pricewatch/price-tracker/internal/database"
	"github.com/pricewatch/price-tracker/internal/models"
)

// ObservationSource is the read side of the observation history.
type ObservationSource interface {
	Latest(ctx context.Context, targetID uuid.UUID, notBefore time.Time) (*models.PriceObservation, error)
	LatestInRange(ctx context.Context, targetID uuid.UUID, from, to time.Time) (*models.PriceObservation, error)
	History(ctx context.Context, targetID uuid.UUID, since time.Time) ([]*models.PriceObservation, error)
	RankVendors(ctx context.Context, productID uuid.UUID) ([]database.VendorPrice, error)
}

// TargetSource lists the vendor targets eligible for alert checks.
type TargetSource interface {
	GetActiveTargets(ctx context.Context, productID *uuid.UUID, limit int) ([]*models.VendorTarget, error)
}

// DropEmitter queues a detected price drop for the notification stream.
type DropEmitter interface {
	EmitPriceDrop(ctx context.Context, targetID uuid.UUID, payload json.RawMessage) error
}

// Trend directions over the trend window.
const (
	TrendUp     = "up"
	TrendDown   = "down"
	TrendStable = "stable"
)

// PriceTrend describes how a target's unit price moved over the trend window.
type PriceTrend struct {
	TargetID    uuid.UUID `json:"target_id"`
	Direction   string    `json:"direction"`
	ChangePct   float64   `json:"change_pct"`
	FirstPrice  float64   `json:"first_price"`
	LatestPrice float64   `json:"latest_price"`
	SampleCount int       `json:"sample_count"`
	WindowStart time.Time `json:"window_start"`
}

// Alert trigger reasons.
const (
	ReasonDrop      = "relative_drop"
	ReasonThreshold = "threshold_breach"
)

// PriceDropAlert is emitted when a vendor's latest unit price fell past the
// configured relative threshold against the prior period, or at or below the
// target's own absolute threshold.
type PriceDropAlert struct {
	TargetID      uuid.UUID `json:"target_id"`
	ProductName   string    `json:"product_name"`
	VendorName    string    `json:"vendor_name"`
	URL           string    `json:"url"`
	Reason        string    `json:"reason"`
	PriorPrice    float64   `json:"prior_price,omitempty"`
	LatestPrice   float64   `json:"latest_price"`
	DropPct       float64   `json:"drop_pct,omitempty"`
	Threshold     float64   `json:"threshold,omitempty"`
	ObservedAt    time.Time `json:"observed_at"`
	PriorObserved time.Time `json:"prior_observed_at,omitempty"`
}

// Analyzer computes trends, ranks vendors and raises price-drop alerts over
// the observation history. It never writes observations itself.
type Analyzer struct {
	observations ObservationSource
	targets      TargetSource
	emitter      DropEmitter
	cfg          config.AlertConfig
	logger       *slog.Logger
	now          func() time.Time
}

func New(observations ObservationSource, targets TargetSource, emitter DropEmitter, cfg config.AlertConfig) *Analyzer {
	return &Analyzer{
		observations: observations,
		targets:      targets,
		emitter:      emitter,
		cfg:          cfg,
		logger:       slog.Default().With("component", "analytics"),
		now:          time.Now,
	}
}

// TrendForTarget compares the oldest and newest unit price inside the trend
// window. Fewer than two samples always reads as stable.
func (a *Analyzer) TrendForTarget(ctx context.Context, targetID uuid.UUID) (*PriceTrend, error) {
	since := a.now().Add(-a.cfg.TrendWindow)

	history, err := a.observations.History(ctx, targetID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load observation history: %w", err)
	}

	trend := computeTrend(history, a.cfg.TrendThresholdPct)
	trend.TargetID = targetID
	trend.WindowStart = since
	return trend, nil
}

// computeTrend classifies the first-to-last unit price move against the
// threshold percentage. history must be ordered oldest first.
func computeTrend(history []*models.PriceObservation, thresholdPct float64) *PriceTrend {
	trend := &PriceTrend{
		Direction:   TrendStable,
		SampleCount: len(history),
	}
	if len(history) < 2 {
		return trend
	}

	first := history[0].UnitPrice
	latest := history[len(history)-1].UnitPrice
	trend.FirstPrice = first
	trend.LatestPrice = latest

	if first <= 0 {
		return trend
	}

	trend.ChangePct = (latest - first) / first * 100

	switch {
	case trend.ChangePct > thresholdPct:
		trend.Direction = TrendUp
	case trend.ChangePct < -thresholdPct:
		trend.Direction = TrendDown
	}
	return trend
}

// CheckTarget evaluates one target for a price drop: the freshest observation
// inside the latest window against the most recent one from the prior compare
// window, plus the target's own absolute threshold when it carries one. Nil
// when nothing triggered.
func (a *Analyzer) CheckTarget(ctx context.Context, target *models.VendorTarget) (*PriceDropAlert, error) {
	now := a.now()
	latestCutoff := now.Add(-a.cfg.LatestWindow)

	latest, err := a.observations.Latest(ctx, target.ID, latestCutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest observation: %w", err)
	}
	if latest == nil {
		return nil, nil
	}

	// An absolute threshold needs no prior period.
	if target.PriceThreshold != nil && latest.UnitPrice <= *target.PriceThreshold {
		return &PriceDropAlert{
			TargetID:    target.ID,
			ProductName: target.ProductName,
			VendorName:  target.VendorName,
			URL:         target.URL,
			Reason:      ReasonThreshold,
			LatestPrice: latest.UnitPrice,
			Threshold:   *target.PriceThreshold,
			ObservedAt:  latest.ObservedAt,
		}, nil
	}

	prior, err := a.observations.LatestInRange(ctx, target.ID, now.Add(-a.cfg.CompareWindow), latestCutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to load prior observation: %w", err)
	}
	if prior == nil || prior.UnitPrice <= 0 {
		return nil, nil
	}

	dropPct := (prior.UnitPrice - latest.UnitPrice) / prior.UnitPrice * 100
	if dropPct <= a.cfg.DropThresholdPct {
		return nil, nil
	}

	return &PriceDropAlert{
		TargetID:      target.ID,
		ProductName:   target.ProductName,
		VendorName:    target.VendorName,
		URL:           target.URL,
		Reason:        ReasonDrop,
		PriorPrice:    prior.UnitPrice,
		LatestPrice:   latest.UnitPrice,
		DropPct:       dropPct,
		ObservedAt:    latest.ObservedAt,
		PriorObserved: prior.ObservedAt,
	}, nil
}

// CheckAll sweeps every active target, queues an outbox event per detected
// drop and returns the alerts. Per-target errors are logged and skipped so a
// single bad target cannot silence the rest of the sweep.
func (a *Analyzer) CheckAll(ctx context.Context) ([]PriceDropAlert, error) {
	targets, err := a.targets.GetActiveTargets(ctx, nil, 10000)
	if err != nil {
		return nil, fmt.Errorf("failed to list active targets: %w", err)
	}

	var alerts []PriceDropAlert
	for _, target := range targets {
		alert, err := a.CheckTarget(ctx, target)
		if err != nil {
			a.logger.Error("failed to check target for price drop",
				"target_id", target.ID,
				"vendor", target.VendorName,
				"error", err)
			continue
		}
		if alert == nil {
			continue
		}

		payload, err := json.Marshal(alert)
		if err != nil {
			a.logger.Error("failed to marshal alert payload",
				"target_id", target.ID,
				"error", err)
			continue
		}
		if err := a.emitter.EmitPriceDrop(ctx, target.ID, payload); err != nil {
			a.logger.Error("failed to queue price drop event",
				"target_id", target.ID,
				"error", err)
			continue
		}

		a.logger.Info("price drop detected",
			"vendor", target.VendorName,
			"product", target.ProductName,
			"drop_pct", alert.DropPct)
		alerts = append(alerts, *alert)
	}

	return alerts, nil
}

// CheapestVendors ranks a product's vendors by latest unit price.
func (a *Analyzer) CheapestVendors(ctx context.Context, productID uuid.UUID) ([]database.VendorPrice, error) {
	return a.observations.RankVendors(ctx, productID)
}
