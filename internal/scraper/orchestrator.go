package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/pricewatch/price-tracker/internal/models"
	"github.com/pricewatch/price-tracker/internal/ratelimit"
)

// PageFetcher loads one vendor page and returns its rendered text.
type PageFetcher interface {
	Fetch(ctx context.Context, url, hint string) (string, error)
}

// PrimaryExtractor is the LLM-backed structured extraction path. An
// unavailable primary (no credential) sends the pipeline straight to the
// fallback extractor without attempting a doomed model call.
type PrimaryExtractor interface {
	Available() bool
	Extract(ctx context.Context, content, productName, vendorName string) (*models.ExtractionResult, error)
}

// FallbackExtractor is the deterministic pattern-matching path. A nil result
// means no signal, which is expected rather than an error.
type FallbackExtractor interface {
	Extract(content, targetURL string) *models.ExtractionResult
}

// OutcomeRecorder persists one outcome onto vendor health and observations.
type OutcomeRecorder interface {
	Record(ctx context.Context, outcome *models.ScrapeOutcome) error
}

// SessionFactory opens the browser session shared by one batch and returns
// the fetcher bound to it plus its release function. The orchestrator
// releases exactly once per batch regardless of how the batch ends.
type SessionFactory func() (PageFetcher, func() error, error)

// pipelineState enumerates the per-vendor pipeline. The flow is linear with
// a single branch: an unusable primary result diverts through the fallback
// extractor before the pipeline settles on success or failure.
type pipelineState int

const (
	stateFetch pipelineState = iota
	statePrimaryExtract
	stateFallbackExtract
	stateSuccess
	stateFailure
)

// Orchestrator drives the scrape pipeline for single vendors and batches.
// Vendors in a batch are processed strictly one at a time; the inter-vendor
// delay is the throttling mechanism.
type Orchestrator struct {
	sessions SessionFactory
	primary  PrimaryExtractor
	fallback FallbackExtractor
	recorder OutcomeRecorder
	limiter  ratelimit.RateLimiter
	logger   *slog.Logger
}

func New(sessions SessionFactory, primary PrimaryExtractor, fallback FallbackExtractor, recorder OutcomeRecorder, requestDelay time.Duration) *Orchestrator {
	return &Orchestrator{
		sessions: sessions,
		primary:  primary,
		fallback: fallback,
		recorder: recorder,
		limiter:  ratelimit.NewFixedRateLimiter(requestDelay),
		logger:   slog.Default().With("component", "orchestrator"),
	}
}

// RunBatch scrapes targets in order, isolating per-vendor failures and
// pausing between vendors. The batch aborts only when the browser session
// itself cannot be created; even then the (empty) report is returned.
// Cancellation takes effect between vendors, never mid-vendor.
func (o *Orchestrator) RunBatch(ctx context.Context, targets []*models.VendorTarget) (*models.ScrapeReport, error) {
	report := &models.ScrapeReport{
		TotalVendors: len(targets),
		Results:      make([]models.ScrapeOutcome, 0, len(targets)),
		StartTime:    time.Now(),
	}
	defer func() { report.EndTime = time.Now() }()

	if len(targets) == 0 {
		return report, nil
	}

	fetcher, release, err := o.sessions()
	if err != nil {
		return report, fmt.Errorf("failed to create browser session: %w", err)
	}
	defer func() {
		if err := release(); err != nil {
			o.logger.Error("failed to release browser session", "error", err)
		}
	}()

	for _, target := range targets {
		// The wait doubles as the cancellation point between vendors. A
		// vendor whose turn never started leaves no outcome behind.
		if err := o.limiter.Wait(ctx); err != nil {
			o.logger.Info("batch cancelled", "completed", len(report.Results), "total", len(targets))
			break
		}

		outcome := o.scrapeOne(ctx, fetcher, target)

		if err := o.recorder.Record(ctx, outcome); err != nil {
			o.logger.Error("failed to record outcome",
				"target_id", target.ID,
				"vendor", target.VendorName,
				"error", err)
		}

		// Record may downgrade a success that failed validation, so tally
		// afterwards.
		if outcome.Success {
			report.SuccessfulScrapes++
		} else {
			report.FailedScrapes++
		}
		report.Results = append(report.Results, *outcome)
	}

	o.logger.Info("batch finished",
		"total", report.TotalVendors,
		"successful", report.SuccessfulScrapes,
		"failed", report.FailedScrapes)

	return report, nil
}

// ScrapeVendor runs the pipeline for a single target with its own browser
// session and records the outcome. Used by the admin test surface.
func (o *Orchestrator) ScrapeVendor(ctx context.Context, target *models.VendorTarget) (*models.ScrapeOutcome, error) {
	fetcher, release, err := o.sessions()
	if err != nil {
		return nil, fmt.Errorf("failed to create browser session: %w", err)
	}
	defer func() {
		if err := release(); err != nil {
			o.logger.Error("failed to release browser session", "error", err)
		}
	}()

	outcome := o.scrapeOne(ctx, fetcher, target)

	if err := o.recorder.Record(ctx, outcome); err != nil {
		o.logger.Error("failed to record outcome",
			"target_id", target.ID,
			"error", err)
	}

	return outcome, nil
}

// scrapeOne walks the pipeline state machine for one vendor. It always
// returns an outcome; failures are data, never panics or batch aborts.
func (o *Orchestrator) scrapeOne(ctx context.Context, fetcher PageFetcher, target *models.VendorTarget) *models.ScrapeOutcome {
	outcome := &models.ScrapeOutcome{
		TargetID:  target.ID,
		SourceURL: target.URL,
	}

	o.logger.Info("scraping vendor", "vendor", target.VendorName, "url", target.URL)

	var (
		state   = stateFetch
		content string
		result  *models.ExtractionResult
		source  string
		reason  string
	)

	for {
		switch state {
		case stateFetch:
			text, err := fetcher.Fetch(ctx, target.URL, target.ExtractionHint)
			if err != nil {
				reason = err.Error()
				state = stateFailure
				break
			}
			content = text
			state = statePrimaryExtract

		case statePrimaryExtract:
			if !o.primary.Available() {
				o.logger.Debug("primary extractor not configured, using pattern fallback",
					"vendor", target.VendorName)
				state = stateFallbackExtract
				break
			}
			res, err := o.primary.Extract(ctx, content, target.ProductName, target.VendorName)
			if err != nil {
				o.logger.Warn("primary extraction failed, falling back",
					"vendor", target.VendorName,
					"kind", models.ErrorCode(err),
					"error", err)
				state = stateFallbackExtract
				break
			}
			if !res.Valid() {
				// The model answered, but with zeros or an unusable unit.
				o.logger.Warn("primary extraction returned invalid data, falling back",
					"vendor", target.VendorName)
				state = stateFallbackExtract
				break
			}
			result = res
			source = "primary"
			state = stateSuccess

		case stateFallbackExtract:
			res := o.fallback.Extract(content, target.URL)
			if res == nil || !res.Valid() {
				reason = "no patterns matched"
				state = stateFailure
				break
			}
			result = res
			source = "fallback"
			state = stateSuccess

		case stateSuccess:
			unitPrice := result.UnitPrice()
			if math.IsNaN(unitPrice) || math.IsInf(unitPrice, 0) || unitPrice <= 0 {
				reason = fmt.Sprintf("computed unit price is not usable: %v", unitPrice)
				state = stateFailure
				break
			}
			outcome.Success = true
			outcome.Data = result
			outcome.UnitPrice = unitPrice
			outcome.Source = source
			o.logger.Info("scrape succeeded",
				"vendor", target.VendorName,
				"source", source,
				"unit_price", unitPrice)
			return outcome

		case stateFailure:
			outcome.Error = reason
			o.logger.Info("scrape failed",
				"vendor", target.VendorName,
				"reason", reason)
			return outcome
		}
	}
}
