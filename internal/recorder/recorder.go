package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pricewatch/price-tracker/internal/models"
)

// Store is the persistence contract the recorder drives. The success path
// must apply health counters and the observation atomically.
type Store interface {
	RecordScrapeSuccess(ctx context.Context, targetID uuid.UUID, obs *models.PriceObservation) error
	RecordScrapeFailure(ctx context.Context, targetID uuid.UUID, reason string) error
}

// Recorder maps scrape outcomes onto vendor-health counters and price
// observations. It is the only writer of either.
type Recorder struct {
	store         Store
	snippetLength int
	logger        *slog.Logger
	now           func() time.Time
}

func New(store Store, snippetLength int) *Recorder {
	if snippetLength <= 0 {
		snippetLength = 1000
	}
	return &Recorder{
		store:         store,
		snippetLength: snippetLength,
		logger:        slog.Default().With("component", "recorder"),
		now:           time.Now,
	}
}

// Record persists one outcome. A successful outcome that fails validation is
// downgraded to a failed one (and the outcome struct updated to match) so
// corrupt data is never stored as an observation.
func (r *Recorder) Record(ctx context.Context, outcome *models.ScrapeOutcome) error {
	if outcome.Success && outcome.Data != nil {
		obs := r.buildObservation(outcome)

		if err := obs.Validate(); err != nil {
			r.logger.Warn("rejecting invalid observation",
				"target_id", outcome.TargetID,
				"error", err)
			outcome.Success = false
			outcome.Data = nil
			outcome.Error = err.Error()
			return r.store.RecordScrapeFailure(ctx, outcome.TargetID, outcome.Error)
		}

		if err := r.store.RecordScrapeSuccess(ctx, outcome.TargetID, obs); err != nil {
			return fmt.Errorf("failed to record successful scrape: %w", err)
		}

		r.logger.Info("recorded price observation",
			"target_id", outcome.TargetID,
			"unit_price", obs.UnitPrice,
			"confidence", obs.Confidence,
			"source", outcome.Source)
		return nil
	}

	reason := outcome.Error
	if reason == "" {
		reason = "extraction failed"
	}

	if err := r.store.RecordScrapeFailure(ctx, outcome.TargetID, reason); err != nil {
		return fmt.Errorf("failed to record failed scrape: %w", err)
	}

	r.logger.Info("recorded scrape failure",
		"target_id", outcome.TargetID,
		"reason", reason)
	return nil
}

func (r *Recorder) buildObservation(outcome *models.ScrapeOutcome) *models.PriceObservation {
	data := outcome.Data

	raw := data.RawText
	if len(raw) > r.snippetLength {
		raw = raw[:r.snippetLength]
	}

	return &models.PriceObservation{
		TargetID:   outcome.TargetID,
		Price:      data.Price,
		Quantity:   data.Quantity,
		Unit:       data.Unit,
		UnitPrice:  outcome.UnitPrice,
		Currency:   "USD",
		Available:  true,
		Confidence: data.Confidence,
		RawData:    raw,
		ObservedAt: r.now(),
		SourceURL:  outcome.SourceURL,
	}
}
