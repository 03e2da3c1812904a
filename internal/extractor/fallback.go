package extractor

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/pricewatch/price-tracker/internal/models"
)

// Fixed confidences for the deterministic path. A vendor-declared size in
// the URL is more trustworthy than a quantity scraped out of page text, so
// it earns the higher constant.
const (
	patternConfidence = 0.6
	urlSizeConfidence = 0.7
)

// Prices outside this range are treated as noise (struck-through bundle
// prices, order IDs, phone fragments).
const maxSanePrice = 10000

var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$(\d+(?:\.\d{2})?)`),
	regexp.MustCompile(`(?i)(\d+(?:\.\d{2})?)\s*USD`),
	regexp.MustCompile(`(?i)Price[:\s]*\$?(\d+(?:\.\d{2})?)`),
	regexp.MustCompile(`(?i)(\d+(?:\.\d{2})?)\s*dollars?`),
}

var quantityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(mg|ml|g|capsules?|tablets?|iu|mcg)\b`),
	regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*x\s*\d+\s*(mg|ml|g|capsules?|tablets?|iu|mcg)\b`),
	regexp.MustCompile(`(?i)Quantity[:\s]*(\d+(?:\.\d+)?)\s*(mg|ml|g|capsules?|tablets?|iu|mcg)\b`),
	regexp.MustCompile(`(?i)size[=:]\s*(\d+(?:\.\d+)?)\s*(mg|ml|g|capsules?|tablets?|iu|mcg)\b`),
}

// urlSizePattern recovers a vendor-declared size parameter from the target
// URL itself, e.g. "?size=10mg".
var urlSizePattern = regexp.MustCompile(`(?i)size[=:](\d+(?:\.\d+)?)(mg|ml|g|mcg|iu)`)

// Fallback recovers price, quantity and unit from page text with plain
// pattern matching. It makes no network calls and holds no state, so
// identical input always yields an identical result.
type Fallback struct {
	logger *slog.Logger
}

func NewFallback() *Fallback {
	return &Fallback{logger: slog.Default().With("component", "fallback_extractor")}
}

type quantityMatch struct {
	quantity float64
	unit     string
}

// Extract scans content (and the target URL) for pricing patterns. A nil
// result means no signal was found; that is expected, not an error.
func (f *Fallback) Extract(content, targetURL string) *models.ExtractionResult {
	prices := extractPrices(content)
	quantities := extractQuantities(content)

	urlSize := extractURLSize(targetURL)

	if len(prices) == 0 {
		return nil
	}

	// A URL-declared size fills in for missing quantity text, at higher
	// confidence than a pure pattern match would get.
	if len(quantities) == 0 && urlSize != nil {
		result := &models.ExtractionResult{
			Price:      prices[0],
			Quantity:   urlSize.quantity,
			Unit:       urlSize.unit,
			Confidence: urlSizeConfidence,
			RawText:    truncate(content, rawTextLength),
		}
		f.logger.Debug("fallback extraction used URL size",
			"price", result.Price, "quantity", result.Quantity, "unit", result.Unit)
		return result
	}

	if len(quantities) == 0 {
		return nil
	}

	result := &models.ExtractionResult{
		Price:      prices[0],
		Quantity:   quantities[0].quantity,
		Unit:       quantities[0].unit,
		Confidence: patternConfidence,
		RawText:    truncate(content, rawTextLength),
	}
	f.logger.Debug("fallback extraction matched patterns",
		"price", result.Price, "quantity", result.Quantity, "unit", result.Unit)
	return result
}

func extractPrices(content string) []float64 {
	var prices []float64
	for _, pattern := range pricePatterns {
		for _, match := range pattern.FindAllStringSubmatch(content, -1) {
			price, err := strconv.ParseFloat(match[1], 64)
			if err != nil {
				continue
			}
			if price > 0 && price < maxSanePrice {
				prices = append(prices, price)
			}
		}
	}
	return prices
}

func extractQuantities(content string) []quantityMatch {
	var quantities []quantityMatch
	for _, pattern := range quantityPatterns {
		for _, match := range pattern.FindAllStringSubmatch(content, -1) {
			quantity, err := strconv.ParseFloat(match[1], 64)
			if err != nil || quantity <= 0 {
				continue
			}
			unit := normalizeUnit(match[2])
			if !models.ValidUnit(unit) {
				continue
			}
			quantities = append(quantities, quantityMatch{quantity: quantity, unit: unit})
		}
	}
	return quantities
}

func extractURLSize(targetURL string) *quantityMatch {
	match := urlSizePattern.FindStringSubmatch(targetURL)
	if match == nil {
		return nil
	}
	quantity, err := strconv.ParseFloat(match[1], 64)
	if err != nil || quantity <= 0 {
		return nil
	}
	return &quantityMatch{quantity: quantity, unit: normalizeUnit(match[2])}
}

// normalizeUnit folds singular/plural forms onto the canonical unit set.
func normalizeUnit(unit string) string {
	switch strings.ToLower(unit) {
	case "capsule", "capsules":
		return models.UnitCapsule
	case "tablet", "tablets":
		return models.UnitTablet
	default:
		return strings.ToLower(unit)
	}
}
