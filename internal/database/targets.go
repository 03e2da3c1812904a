package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pricewatch/price-tracker/internal/models"
)

// TargetStore persists vendor targets and their scrape health. Health
// counters are only ever mutated through RecordScrapeSuccess and
// RecordScrapeFailure so downstream readers never see a partial update.
type TargetStore struct {
	db     *DB
	outbox *OutboxRepository
	stream string
}

func NewTargetStore(db *DB, stream string) *TargetStore {
	return &TargetStore{
		db:     db,
		outbox: NewOutboxRepository(db),
		stream: stream,
	}
}

const targetColumns = `
	id, product_id, product_name, vendor_name, url, extraction_hint, price_threshold,
	active, last_scraped_at, last_success_at, failure_count, created_at, updated_at`

func scanTarget(row pgx.Row) (*models.VendorTarget, error) {
	t := &models.VendorTarget{}
	err := row.Scan(
		&t.ID, &t.ProductID, &t.ProductName, &t.VendorName, &t.URL, &t.ExtractionHint, &t.PriceThreshold,
		&t.Active, &t.LastScrapedAt, &t.LastSuccessAt, &t.FailureCount, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetTarget retrieves a single vendor target. Returns nil when not found.
func (s *TargetStore) GetTarget(ctx context.Context, id uuid.UUID) (*models.VendorTarget, error) {
	query := `SELECT ` + targetColumns + ` FROM vendor_targets WHERE id = $1`

	t, err := scanTarget(s.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vendor target: %w", err)
	}
	return t, nil
}

// GetActiveTargets returns active targets eligible for scraping, oldest
// scrape first so stale vendors are refreshed before recently visited ones.
// A nil productID means all products.
func (s *TargetStore) GetActiveTargets(ctx context.Context, productID *uuid.UUID, limit int) ([]*models.VendorTarget, error) {
	query := `SELECT ` + targetColumns + `
		FROM vendor_targets
		WHERE active = TRUE AND ($1::uuid IS NULL OR product_id = $1)
		ORDER BY last_scraped_at ASC NULLS FIRST
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query active targets: %w", err)
	}
	defer rows.Close()

	var targets []*models.VendorTarget
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vendor target: %w", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating targets: %w", err)
	}

	return targets, nil
}

// InsertTarget creates a new vendor target (used by the admin surface).
func (s *TargetStore) InsertTarget(ctx context.Context, t *models.VendorTarget) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	query := `
		INSERT INTO vendor_targets (id, product_id, product_name, vendor_name, url, extraction_hint, price_threshold, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := s.db.QueryRow(ctx, query,
		t.ID, t.ProductID, t.ProductName, t.VendorName, t.URL, t.ExtractionHint, t.PriceThreshold, t.Active,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert vendor target: %w", err)
	}

	return nil
}

// observationRecordedPayload is the outbox payload for a new observation.
type observationRecordedPayload struct {
	TargetID   uuid.UUID `json:"target_id"`
	Price      float64   `json:"price"`
	Quantity   float64   `json:"quantity"`
	Unit       string    `json:"unit"`
	UnitPrice  float64   `json:"unit_price"`
	Confidence float64   `json:"confidence"`
	ObservedAt time.Time `json:"observed_at"`
}

// RecordScrapeSuccess applies a successful outcome as one transaction:
// health counters reset, the observation is inserted, and an outbox event is
// queued for the notification stream. Either all of it lands or none of it.
func (s *TargetStore) RecordScrapeSuccess(ctx context.Context, targetID uuid.UUID, obs *models.PriceObservation) error {
	if err := obs.Validate(); err != nil {
		return err
	}
	if obs.ID == uuid.Nil {
		obs.ID = uuid.New()
	}
	obs.TargetID = targetID

	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE vendor_targets SET
				last_scraped_at = $2,
				last_success_at = $2,
				failure_count = 0,
				updated_at = $2
			WHERE id = $1`,
			targetID, obs.ObservedAt)
		if err != nil {
			return fmt.Errorf("failed to update vendor health: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("vendor target not found: %s", targetID)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO price_observations (
				id, target_id, price, quantity, unit, unit_price,
				currency, available, confidence, raw_data, observed_at, source_url
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			obs.ID, obs.TargetID, obs.Price, obs.Quantity, obs.Unit, obs.UnitPrice,
			obs.Currency, obs.Available, obs.Confidence, obs.RawData, obs.ObservedAt, obs.SourceURL)
		if err != nil {
			return fmt.Errorf("failed to insert price observation: %w", err)
		}

		payload, err := json.Marshal(observationRecordedPayload{
			TargetID:   targetID,
			Price:      obs.Price,
			Quantity:   obs.Quantity,
			Unit:       obs.Unit,
			UnitPrice:  obs.UnitPrice,
			Confidence: obs.Confidence,
			ObservedAt: obs.ObservedAt,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal observation payload: %w", err)
		}

		return s.outbox.InsertWithTx(ctx, tx, &OutboxEvent{
			AggregateType: "vendor_target",
			AggregateID:   targetID.String(),
			EventType:     EventObservationRecorded,
			Payload:       payload,
			TargetStream:  s.stream,
		})
	})
}

// RecordScrapeFailure bumps the failure streak and stamps the attempt. No
// observation is written for a failed scrape.
func (s *TargetStore) RecordScrapeFailure(ctx context.Context, targetID uuid.UUID, reason string) error {
	now := time.Now()

	tag, err := s.db.Exec(ctx, `
		UPDATE vendor_targets SET
			last_scraped_at = $2,
			failure_count = failure_count + 1,
			updated_at = $2
		WHERE id = $1`,
		targetID, now)
	if err != nil {
		return fmt.Errorf("failed to record scrape failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vendor target not found: %s", targetID)
	}

	return nil
}

// EmitPriceDrop queues a price-drop event for the notification collaborator.
func (s *TargetStore) EmitPriceDrop(ctx context.Context, targetID uuid.UUID, payload json.RawMessage) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		return s.outbox.InsertWithTx(ctx, tx, &OutboxEvent{
			AggregateType: "vendor_target",
			AggregateID:   targetID.String(),
			EventType:     EventPriceDropDetected,
			Payload:       payload,
			TargetStream:  s.stream,
		})
	})
}
