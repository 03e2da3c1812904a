package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pricewatch/price-tracker/internal/models"
)

// ObservationStore reads the price-observation history. Observations are
// written only through TargetStore.RecordScrapeSuccess; this store is the
// read side used by ranking, trend and alert computation.
type ObservationStore struct {
	db *DB
}

func NewObservationStore(db *DB) *ObservationStore {
	return &ObservationStore{db: db}
}

const observationColumns = `
	id, target_id, price, quantity, unit, unit_price,
	currency, available, confidence, raw_data, observed_at, source_url`

func scanObservation(row pgx.Row) (*models.PriceObservation, error) {
	o := &models.PriceObservation{}
	err := row.Scan(
		&o.ID, &o.TargetID, &o.Price, &o.Quantity, &o.Unit, &o.UnitPrice,
		&o.Currency, &o.Available, &o.Confidence, &o.RawData, &o.ObservedAt, &o.SourceURL,
	)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Latest returns the most recent observation for a target not older than
// the supplied time. Nil when none exists.
func (s *ObservationStore) Latest(ctx context.Context, targetID uuid.UUID, notBefore time.Time) (*models.PriceObservation, error) {
	query := `SELECT ` + observationColumns + `
		FROM price_observations
		WHERE target_id = $1 AND observed_at >= $2
		ORDER BY observed_at DESC
		LIMIT 1`

	o, err := scanObservation(s.db.QueryRow(ctx, query, targetID, notBefore))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest observation: %w", err)
	}
	return o, nil
}

// LatestInRange returns the most recent observation inside [from, to). Used
// to find the prior-period price an alert comparison needs.
func (s *ObservationStore) LatestInRange(ctx context.Context, targetID uuid.UUID, from, to time.Time) (*models.PriceObservation, error) {
	query := `SELECT ` + observationColumns + `
		FROM price_observations
		WHERE target_id = $1 AND observed_at >= $2 AND observed_at < $3
		ORDER BY observed_at DESC
		LIMIT 1`

	o, err := scanObservation(s.db.QueryRow(ctx, query, targetID, from, to))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get observation in range: %w", err)
	}
	return o, nil
}

// History returns observations for a target since the given time, oldest
// first, for trend computation and charting.
func (s *ObservationStore) History(ctx context.Context, targetID uuid.UUID, since time.Time) ([]*models.PriceObservation, error) {
	query := `SELECT ` + observationColumns + `
		FROM price_observations
		WHERE target_id = $1 AND observed_at >= $2
		ORDER BY observed_at ASC`

	rows, err := s.db.Query(ctx, query, targetID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query observation history: %w", err)
	}
	defer rows.Close()

	var observations []*models.PriceObservation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		observations = append(observations, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating observations: %w", err)
	}

	return observations, nil
}

// VendorPrice pairs a vendor target with its latest unit price for ranking.
type VendorPrice struct {
	TargetID   uuid.UUID `json:"target_id"`
	VendorName string    `json:"vendor_name"`
	URL        string    `json:"url"`
	UnitPrice  float64   `json:"unit_price"`
	Unit       string    `json:"unit"`
	ObservedAt time.Time `json:"observed_at"`
}

// RankVendors returns each active vendor's latest observation for a product,
// cheapest unit price first.
func (s *ObservationStore) RankVendors(ctx context.Context, productID uuid.UUID) ([]VendorPrice, error) {
	query := `
		SELECT DISTINCT ON (t.id)
			t.id, t.vendor_name, t.url, o.unit_price, o.unit, o.observed_at
		FROM vendor_targets t
		JOIN price_observations o ON o.target_id = t.id
		WHERE t.product_id = $1 AND t.active = TRUE
		ORDER BY t.id, o.observed_at DESC`

	rows, err := s.db.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to rank vendors: %w", err)
	}
	defer rows.Close()

	var prices []VendorPrice
	for rows.Next() {
		var p VendorPrice
		if err := rows.Scan(&p.TargetID, &p.VendorName, &p.URL, &p.UnitPrice, &p.Unit, &p.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vendor price: %w", err)
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vendor prices: %w", err)
	}

	// DISTINCT ON orders by target id; the caller wants cheapest first.
	sortByUnitPrice(prices)

	return prices, nil
}

func sortByUnitPrice(prices []VendorPrice) {
	sort.Slice(prices, func(i, j int) bool {
		return prices[i].UnitPrice < prices[j].UnitPrice
	})
}
