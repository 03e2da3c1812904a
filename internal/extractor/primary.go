package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pricewatch/price-tracker/internal/models"
)

// Completer is the chat endpoint the primary extractor talks to.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Configured() bool
}

const systemPrompt = "You are a precise data extraction assistant. Extract pricing information from webpage content and return only valid JSON."

// Primary extracts structured pricing via the LLM endpoint. Every failure it
// returns is a signal to fall back, never a reason to abort the scrape.
type Primary struct {
	client          Completer
	maxPromptLength int
	logger          *slog.Logger
}

func NewPrimary(client Completer, maxPromptLength int) *Primary {
	if maxPromptLength <= 0 {
		maxPromptLength = 3000
	}
	return &Primary{
		client:          client,
		maxPromptLength: maxPromptLength,
		logger:          slog.Default().With("component", "primary_extractor"),
	}
}

// Available reports whether the extraction endpoint has a credential.
func (p *Primary) Available() bool {
	return p.client.Configured()
}

// Extract asks the model for one JSON object with price, quantity, unit and
// confidence, then parses the reply defensively.
func (p *Primary) Extract(ctx context.Context, content, productName, vendorName string) (*models.ExtractionResult, error) {
	prompt := p.buildPrompt(content, productName, vendorName)

	reply, err := p.client.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	result, err := parseModelReply(reply)
	if err != nil {
		return nil, err
	}

	result.RawText = truncate(content, rawTextLength)

	p.logger.Debug("primary extraction parsed",
		"price", result.Price,
		"quantity", result.Quantity,
		"unit", result.Unit,
		"confidence", result.Confidence)

	return result, nil
}

func (p *Primary) buildPrompt(content, productName, vendorName string) string {
	if len(content) > p.maxPromptLength {
		content = content[:p.maxPromptLength] + "..."
	}

	from := ""
	if vendorName != "" {
		from = " from " + vendorName
	}

	return fmt.Sprintf(`Extract pricing information for %q%s from this webpage content.

Find:
1. Price (numeric value in USD, remove $ symbols)
2. Quantity (numeric value only)
3. Unit (%s)

Content:
%s

Return ONLY a JSON object in this exact format:
{
  "price": number,
  "quantity": number,
  "unit": "string",
  "confidence": number_between_0_and_1
}

Rules:
- If multiple prices exist, choose the main/current price
- Confidence should be 0.9+ for clear data, 0.7+ for probable data, 0.5+ for uncertain data
- If no clear pricing found, return: {"price": 0, "quantity": 0, "unit": "", "confidence": 0}
- Units must be one of: %s
- Do not include any text outside the JSON object`,
		productName, from, strings.Join(models.Units(), ", "), content, strings.Join(models.Units(), ", "))
}

// wireResult is the strict JSON contract expected back from the model.
// Pointers distinguish a missing field from a zero value.
type wireResult struct {
	Price      *float64 `json:"price"`
	Quantity   *float64 `json:"quantity"`
	Unit       *string  `json:"unit"`
	Confidence *float64 `json:"confidence"`
}

// parseModelReply recovers the JSON object from a model reply that may be
// wrapped in code fences or surrounded by prose, validates the field types,
// and clamps confidence into [0,1]. An out-of-set unit halves confidence
// rather than rejecting the result outright.
func parseModelReply(reply string) (*models.ExtractionResult, error) {
	cleaned := stripCodeFences(strings.TrimSpace(reply))

	obj, ok := firstJSONObject(cleaned)
	if !ok {
		return nil, models.NewScrapeError(models.ErrCodeLLMUnparsable,
			"no JSON object found in model reply", nil)
	}

	var wire wireResult
	if err := json.Unmarshal([]byte(obj), &wire); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeLLMUnparsable,
			"model reply is not the expected JSON shape", err)
	}

	if wire.Price == nil || wire.Quantity == nil || wire.Unit == nil || wire.Confidence == nil {
		return nil, models.NewScrapeError(models.ErrCodeLLMUnparsable,
			"model reply is missing required fields", nil)
	}

	confidence := clamp01(*wire.Confidence)
	unit := strings.ToLower(strings.TrimSpace(*wire.Unit))

	if unit != "" && !models.ValidUnit(unit) {
		// Keep the data point but distrust it.
		confidence *= 0.5
	}

	return &models.ExtractionResult{
		Price:      *wire.Price,
		Quantity:   *wire.Quantity,
		Unit:       unit,
		Confidence: confidence,
	}, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// firstJSONObject returns the first brace-balanced object in s.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}

	return "", false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

const rawTextLength = 500

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
