package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Units accepted for a price observation. Quantities scraped in any other
// unit are treated as unreliable.
const (
	UnitMilligram  = "mg"
	UnitMilliliter = "ml"
	UnitGram       = "g"
	UnitCapsule    = "capsules"
	UnitTablet     = "tablets"
	UnitIU         = "iu"
	UnitMicrogram  = "mcg"
)

var validUnits = map[string]bool{
	UnitMilligram:  true,
	UnitMilliliter: true,
	UnitGram:       true,
	UnitCapsule:    true,
	UnitTablet:     true,
	UnitIU:         true,
	UnitMicrogram:  true,
}

// ValidUnit reports whether unit belongs to the accepted unit set.
func ValidUnit(unit string) bool {
	return validUnits[unit]
}

// Units returns the accepted unit set.
func Units() []string {
	return []string{
		UnitMilligram, UnitMilliliter, UnitGram,
		UnitCapsule, UnitTablet, UnitIU, UnitMicrogram,
	}
}

// VendorTarget is one vendor's tracked page for one product. Health counters
// are mutated exclusively by the outcome recorder.
type VendorTarget struct {
	ID             uuid.UUID  `json:"id"`
	ProductID      uuid.UUID  `json:"product_id"`
	ProductName    string     `json:"product_name"`
	VendorName     string     `json:"vendor_name"`
	URL            string     `json:"url"`
	ExtractionHint string     `json:"extraction_hint,omitempty"`
	// PriceThreshold, when set, raises an alert as soon as the unit price
	// falls to or below this value, independent of the relative drop check.
	PriceThreshold *float64   `json:"price_threshold,omitempty"`
	Active         bool       `json:"active"`
	LastScrapedAt  *time.Time `json:"last_scraped_at,omitempty"`
	LastSuccessAt  *time.Time `json:"last_success_at,omitempty"`
	FailureCount   int        `json:"failure_count"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// PriceObservation is one point-in-time price reading for a vendor target.
// Immutable once persisted.
type PriceObservation struct {
	ID         uuid.UUID `json:"id"`
	TargetID   uuid.UUID `json:"target_id"`
	Price      float64   `json:"price"`
	Quantity   float64   `json:"quantity"`
	Unit       string    `json:"unit"`
	UnitPrice  float64   `json:"unit_price"`
	Currency   string    `json:"currency"`
	Available  bool      `json:"available"`
	Confidence float64   `json:"confidence"`
	RawData    string    `json:"raw_data,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
	SourceURL  string    `json:"source_url"`
}

// Validate checks the persistence invariants: positive price and quantity,
// a known unit, and a finite positive unit price.
func (o *PriceObservation) Validate() error {
	if o.Price <= 0 {
		return NewScrapeError(ErrCodeInvalidData, "price must be positive", nil)
	}
	if o.Quantity <= 0 {
		return NewScrapeError(ErrCodeInvalidData, "quantity must be positive", nil)
	}
	if !ValidUnit(o.Unit) {
		return NewScrapeError(ErrCodeInvalidData, "unit is not in the accepted unit set", nil)
	}
	if math.IsNaN(o.UnitPrice) || math.IsInf(o.UnitPrice, 0) || o.UnitPrice <= 0 {
		return NewScrapeError(ErrCodeInvalidData, "unit price must be finite and positive", nil)
	}
	return nil
}

// ExtractionResult is the shape shared between the primary and fallback
// extractors.
type ExtractionResult struct {
	Price      float64 `json:"price"`
	Quantity   float64 `json:"quantity"`
	Unit       string  `json:"unit"`
	Confidence float64 `json:"confidence"`
	RawText    string  `json:"raw_text,omitempty"`
}

// Valid reports whether the result carries usable pricing data. An all-zero
// response from the model is explicitly invalid and triggers the fallback path.
func (r *ExtractionResult) Valid() bool {
	return r.Price > 0 && r.Quantity > 0 && ValidUnit(r.Unit) && r.Confidence > 0
}

// UnitPrice derives price per unit from the extracted fields.
func (r *ExtractionResult) UnitPrice() float64 {
	return r.Price / r.Quantity
}

// ScrapeOutcome is the result of one orchestrator run for one vendor target.
// It lives only long enough to be mapped onto vendor-health and observation
// writes by the recorder.
type ScrapeOutcome struct {
	TargetID uuid.UUID         `json:"target_id"`
	Success  bool              `json:"success"`
	Data     *ExtractionResult `json:"data,omitempty"`
	// UnitPrice is computed exactly once by the orchestrator when the
	// pipeline succeeds.
	UnitPrice float64 `json:"unit_price,omitempty"`
	Error     string  `json:"error,omitempty"`
	// Source names the extraction path that produced Data: "primary" or
	// "fallback". Empty on failure.
	Source    string `json:"source,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
}

// ScrapeReport summarizes one batch run. Outcomes appear in submission order.
type ScrapeReport struct {
	TotalVendors      int             `json:"total_vendors"`
	SuccessfulScrapes int             `json:"successful_scrapes"`
	FailedScrapes     int             `json:"failed_scrapes"`
	Results           []ScrapeOutcome `json:"results"`
	StartTime         time.Time       `json:"start_time"`
	EndTime           time.Time       `json:"end_time"`
}
