package models

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidUnit(t *testing.T) {
	for _, unit := range Units() {
		assert.True(t, ValidUnit(unit), unit)
	}

	assert.False(t, ValidUnit("bottles"))
	assert.False(t, ValidUnit("capsule"), "singular forms are not canonical")
	assert.False(t, ValidUnit("MG"), "unit set is lowercase")
	assert.False(t, ValidUnit(""))
}

func TestExtractionResultValid(t *testing.T) {
	tests := []struct {
		name   string
		result ExtractionResult
		want   bool
	}{
		{name: "complete result", result: ExtractionResult{Price: 45.99, Quantity: 5, Unit: "mg", Confidence: 0.9}, want: true},
		{name: "all zero", result: ExtractionResult{}, want: false},
		{name: "zero price", result: ExtractionResult{Quantity: 5, Unit: "mg", Confidence: 0.9}, want: false},
		{name: "zero quantity", result: ExtractionResult{Price: 10, Unit: "mg", Confidence: 0.9}, want: false},
		{name: "bad unit", result: ExtractionResult{Price: 10, Quantity: 5, Unit: "bottles", Confidence: 0.9}, want: false},
		{name: "zero confidence", result: ExtractionResult{Price: 10, Quantity: 5, Unit: "mg"}, want: false},
		{name: "negative price", result: ExtractionResult{Price: -1, Quantity: 5, Unit: "mg", Confidence: 0.9}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.Valid())
		})
	}
}

func TestPriceObservationValidate(t *testing.T) {
	valid := func() *PriceObservation {
		return &PriceObservation{
			Price:     45.99,
			Quantity:  5,
			Unit:      UnitMilligram,
			UnitPrice: 9.198,
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*PriceObservation)
	}{
		{name: "zero price", mutate: func(o *PriceObservation) { o.Price = 0 }},
		{name: "negative quantity", mutate: func(o *PriceObservation) { o.Quantity = -1 }},
		{name: "unknown unit", mutate: func(o *PriceObservation) { o.Unit = "jars" }},
		{name: "zero unit price", mutate: func(o *PriceObservation) { o.UnitPrice = 0 }},
		{name: "NaN unit price", mutate: func(o *PriceObservation) { o.UnitPrice = math.NaN() }},
		{name: "infinite unit price", mutate: func(o *PriceObservation) { o.UnitPrice = math.Inf(1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := valid()
			tt.mutate(obs)

			err := obs.Validate()
			require.Error(t, err)
			assert.Equal(t, ErrCodeInvalidData, ErrorCode(err))
		})
	}
}

func TestScrapeErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewScrapeError(ErrCodeNavFailed, "could not reach vendor", cause)

	assert.Equal(t, ErrCodeNavFailed, ErrorCode(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "could not reach vendor")

	// Codes survive another layer of wrapping.
	wrapped := fmt.Errorf("scrape failed: %w", err)
	assert.Equal(t, ErrCodeNavFailed, ErrorCode(wrapped))

	assert.Empty(t, ErrorCode(errors.New("plain error")))
	assert.Empty(t, ErrorCode(nil))
}
