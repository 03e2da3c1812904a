package analytics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricewatch/price-tracker/internal/config"
	"github.com/pricewatch/price-tracker/internal/database"
	"github.com/pricewatch/price-tracker/internal/models"
)

var testAlertConfig = config.AlertConfig{
	DropThresholdPct:  5,
	TrendThresholdPct: 5,
	TrendWindow:       30 * 24 * time.Hour,
	CompareWindow:     7 * 24 * time.Hour,
	LatestWindow:      24 * time.Hour,
}

type fakeObservations struct {
	latest  map[uuid.UUID]*models.PriceObservation
	prior   map[uuid.UUID]*models.PriceObservation
	history map[uuid.UUID][]*models.PriceObservation
	ranked  []database.VendorPrice
}

func (f *fakeObservations) Latest(ctx context.Context, targetID uuid.UUID, notBefore time.Time) (*models.PriceObservation, error) {
	return f.latest[targetID], nil
}

func (f *fakeObservations) LatestInRange(ctx context.Context, targetID uuid.UUID, from, to time.Time) (*models.PriceObservation, error) {
	return f.prior[targetID], nil
}

func (f *fakeObservations) History(ctx context.Context, targetID uuid.UUID, since time.Time) ([]*models.PriceObservation, error) {
	return f.history[targetID], nil
}

func (f *fakeObservations) RankVendors(ctx context.Context, productID uuid.UUID) ([]database.VendorPrice, error) {
	return f.ranked, nil
}

type fakeTargets struct {
	targets []*models.VendorTarget
}

func (f *fakeTargets) GetActiveTargets(ctx context.Context, productID *uuid.UUID, limit int) ([]*models.VendorTarget, error) {
	return f.targets, nil
}

type fakeEmitter struct {
	emitted map[uuid.UUID]json.RawMessage
}

func (f *fakeEmitter) EmitPriceDrop(ctx context.Context, targetID uuid.UUID, payload json.RawMessage) error {
	if f.emitted == nil {
		f.emitted = make(map[uuid.UUID]json.RawMessage)
	}
	f.emitted[targetID] = payload
	return nil
}

func obsAt(unitPrice float64, observedAt time.Time) *models.PriceObservation {
	return &models.PriceObservation{
		Price:      unitPrice * 5,
		Quantity:   5,
		Unit:       models.UnitMilligram,
		UnitPrice:  unitPrice,
		ObservedAt: observedAt,
	}
}

func TestComputeTrend(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		unitPrices []float64
		wantDir    string
		wantChange float64
	}{
		{name: "clear rise", unitPrices: []float64{10, 10.5, 12}, wantDir: TrendUp, wantChange: 20},
		{name: "clear fall", unitPrices: []float64{10, 9.5, 8}, wantDir: TrendDown, wantChange: -20},
		{name: "small move stays stable", unitPrices: []float64{10, 10.3}, wantDir: TrendStable, wantChange: 3},
		{name: "exactly at threshold stays stable", unitPrices: []float64{10, 10.5}, wantDir: TrendStable, wantChange: 5},
		{name: "single sample", unitPrices: []float64{10}, wantDir: TrendStable},
		{name: "no samples", unitPrices: nil, wantDir: TrendStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var history []*models.PriceObservation
			for i, p := range tt.unitPrices {
				history = append(history, obsAt(p, now.Add(time.Duration(i)*time.Hour)))
			}

			trend := computeTrend(history, 5)
			assert.Equal(t, tt.wantDir, trend.Direction)
			assert.Equal(t, len(tt.unitPrices), trend.SampleCount)
			if len(tt.unitPrices) >= 2 {
				assert.InDelta(t, tt.wantChange, trend.ChangePct, 0.0001)
			}
		})
	}
}

func TestCheckTarget(t *testing.T) {
	now := time.Now()
	target := &models.VendorTarget{
		ID:          uuid.New(),
		ProductName: "Magnesium",
		VendorName:  "Vendor A",
		URL:         "https://v.example/p",
	}

	tests := []struct {
		name      string
		latest    *models.PriceObservation
		prior     *models.PriceObservation
		wantAlert bool
		wantDrop  float64
	}{
		{
			name:      "drop past threshold raises alert",
			latest:    obsAt(9, now),
			prior:     obsAt(10, now.Add(-48*time.Hour)),
			wantAlert: true,
			wantDrop:  10,
		},
		{
			name:   "drop exactly at threshold stays quiet",
			latest: obsAt(9.5, now),
			prior:  obsAt(10, now.Add(-48*time.Hour)),
		},
		{
			name:   "price rise stays quiet",
			latest: obsAt(11, now),
			prior:  obsAt(10, now.Add(-48*time.Hour)),
		},
		{
			name:  "no fresh observation",
			prior: obsAt(10, now.Add(-48*time.Hour)),
		},
		{
			name:   "no prior observation",
			latest: obsAt(9, now),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &fakeObservations{
				latest: map[uuid.UUID]*models.PriceObservation{},
				prior:  map[uuid.UUID]*models.PriceObservation{},
			}
			if tt.latest != nil {
				obs.latest[target.ID] = tt.latest
			}
			if tt.prior != nil {
				obs.prior[target.ID] = tt.prior
			}

			a := New(obs, &fakeTargets{}, &fakeEmitter{}, testAlertConfig)

			alert, err := a.CheckTarget(context.Background(), target)
			require.NoError(t, err)

			if !tt.wantAlert {
				assert.Nil(t, alert)
				return
			}

			require.NotNil(t, alert)
			assert.Equal(t, target.ID, alert.TargetID)
			assert.Equal(t, "Vendor A", alert.VendorName)
			assert.Equal(t, ReasonDrop, alert.Reason)
			assert.InDelta(t, tt.wantDrop, alert.DropPct, 0.0001)
			assert.Equal(t, tt.prior.UnitPrice, alert.PriorPrice)
			assert.Equal(t, tt.latest.UnitPrice, alert.LatestPrice)
		})
	}
}

func TestCheckTargetAbsoluteThreshold(t *testing.T) {
	now := time.Now()
	threshold := 9.0
	target := &models.VendorTarget{
		ID:             uuid.New(),
		ProductName:    "Magnesium",
		VendorName:     "Vendor A",
		PriceThreshold: &threshold,
	}

	obs := &fakeObservations{
		latest: map[uuid.UUID]*models.PriceObservation{
			target.ID: obsAt(8.5, now),
		},
		// No prior observation: the absolute threshold triggers on its own.
		prior: map[uuid.UUID]*models.PriceObservation{},
	}

	a := New(obs, &fakeTargets{}, &fakeEmitter{}, testAlertConfig)

	alert, err := a.CheckTarget(context.Background(), target)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, ReasonThreshold, alert.Reason)
	assert.Equal(t, 8.5, alert.LatestPrice)
	assert.Equal(t, 9.0, alert.Threshold)

	// Above the threshold nothing triggers without a prior-period drop.
	obs.latest[target.ID] = obsAt(9.5, now)
	alert, err = a.CheckTarget(context.Background(), target)
	require.NoError(t, err)
	assert.Nil(t, alert)
}

func TestCheckAllEmitsEvents(t *testing.T) {
	now := time.Now()

	dropping := &models.VendorTarget{ID: uuid.New(), VendorName: "Dropping", ProductName: "Magnesium"}
	steady := &models.VendorTarget{ID: uuid.New(), VendorName: "Steady", ProductName: "Magnesium"}

	obs := &fakeObservations{
		latest: map[uuid.UUID]*models.PriceObservation{
			dropping.ID: obsAt(8, now),
			steady.ID:   obsAt(10, now),
		},
		prior: map[uuid.UUID]*models.PriceObservation{
			dropping.ID: obsAt(10, now.Add(-48*time.Hour)),
			steady.ID:   obsAt(10, now.Add(-48*time.Hour)),
		},
	}
	emitter := &fakeEmitter{}

	a := New(obs, &fakeTargets{targets: []*models.VendorTarget{dropping, steady}}, emitter, testAlertConfig)

	alerts, err := a.CheckAll(context.Background())
	require.NoError(t, err)

	require.Len(t, alerts, 1)
	assert.Equal(t, dropping.ID, alerts[0].TargetID)
	assert.InDelta(t, 20, alerts[0].DropPct, 0.0001)

	require.Contains(t, emitter.emitted, dropping.ID)
	assert.NotContains(t, emitter.emitted, steady.ID)

	var payload PriceDropAlert
	require.NoError(t, json.Unmarshal(emitter.emitted[dropping.ID], &payload))
	assert.Equal(t, "Dropping", payload.VendorName)
}

func TestTrendForTarget(t *testing.T) {
	now := time.Now()
	targetID := uuid.New()

	obs := &fakeObservations{
		history: map[uuid.UUID][]*models.PriceObservation{
			targetID: {
				obsAt(10, now.Add(-20*24*time.Hour)),
				obsAt(10.2, now.Add(-10*24*time.Hour)),
				obsAt(8.5, now),
			},
		},
	}

	a := New(obs, &fakeTargets{}, &fakeEmitter{}, testAlertConfig)

	trend, err := a.TrendForTarget(context.Background(), targetID)
	require.NoError(t, err)
	assert.Equal(t, TrendDown, trend.Direction)
	assert.Equal(t, targetID, trend.TargetID)
	assert.Equal(t, 3, trend.SampleCount)
	assert.InDelta(t, -15, trend.ChangePct, 0.0001)
}
