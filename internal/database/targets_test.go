package database

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricewatch/price-tracker/internal/models"
)

// setupTestDB connects to the test database named by TEST_DB_* and ensures
// the schema. Tests that need it are skipped when TEST_DB_HOST is not set.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping database integration tests")
	}

	port := 5432
	if raw := os.Getenv("TEST_DB_PORT"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			port = n
		}
	}

	user := os.Getenv("TEST_DB_USER")
	if user == "" {
		user = "postgres"
	}
	name := os.Getenv("TEST_DB_NAME")
	if name == "" {
		name = "price_tracker_test"
	}

	ctx := context.Background()
	db, err := New(ctx, Config{
		Host:     host,
		Port:     port,
		User:     user,
		Password: os.Getenv("TEST_DB_PASSWORD"),
		Database: name,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.EnsureSchema(ctx))
	return db
}

// insertTestTarget creates a target row and registers cleanup of everything
// the test writes under it.
func insertTestTarget(t *testing.T, db *DB, store *TargetStore) *models.VendorTarget {
	t.Helper()

	target := &models.VendorTarget{
		ID:          uuid.New(),
		ProductID:   uuid.New(),
		ProductName: "Magnesium Glycinate",
		VendorName:  "Vendor A",
		URL:         "https://v.example/p",
		Active:      true,
	}
	require.NoError(t, store.InsertTarget(context.Background(), target))

	t.Cleanup(func() {
		ctx := context.Background()
		db.Exec(ctx, `DELETE FROM price_observations WHERE target_id = $1`, target.ID)
		db.Exec(ctx, `DELETE FROM outbox_event WHERE aggregate_id = $1`, target.ID.String())
		db.Exec(ctx, `DELETE FROM vendor_targets WHERE id = $1`, target.ID)
	})

	return target
}

func validObservation(targetID uuid.UUID) *models.PriceObservation {
	return &models.PriceObservation{
		TargetID:   targetID,
		Price:      45.99,
		Quantity:   5,
		Unit:       models.UnitMilligram,
		UnitPrice:  45.99 / 5,
		Currency:   "USD",
		Available:  true,
		Confidence: 0.9,
		ObservedAt: time.Now().UTC().Truncate(time.Millisecond),
		SourceURL:  "https://v.example/p",
	}
}

func countObservations(t *testing.T, db *DB, targetID uuid.UUID) int {
	t.Helper()
	var n int
	err := db.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM price_observations WHERE target_id = $1`, targetID).Scan(&n)
	require.NoError(t, err)
	return n
}

func countOutboxEvents(t *testing.T, db *DB, targetID uuid.UUID) int {
	t.Helper()
	var n int
	err := db.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM outbox_event WHERE aggregate_id = $1`, targetID.String()).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestTargetStoreFailureCounter(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewTargetStore(db, "stream:price_events_test")
	target := insertTestTarget(t, db, store)

	t.Run("consecutive failures accumulate", func(t *testing.T) {
		for i := 1; i <= 3; i++ {
			require.NoError(t, store.RecordScrapeFailure(ctx, target.ID, "no patterns matched"))

			got, err := store.GetTarget(ctx, target.ID)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, i, got.FailureCount)
			assert.NotNil(t, got.LastScrapedAt, "every attempt stamps last_scraped_at")
			assert.Nil(t, got.LastSuccessAt, "a failure never stamps last_success_at")
		}
	})

	t.Run("success resets the streak", func(t *testing.T) {
		obs := validObservation(target.ID)
		require.NoError(t, store.RecordScrapeSuccess(ctx, target.ID, obs))

		got, err := store.GetTarget(ctx, target.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 0, got.FailureCount)
		require.NotNil(t, got.LastSuccessAt)
		assert.WithinDuration(t, obs.ObservedAt, *got.LastSuccessAt, time.Second)

		assert.Equal(t, 1, countObservations(t, db, target.ID))
		assert.Equal(t, 1, countOutboxEvents(t, db, target.ID))
	})
}

func TestTargetStoreRejectsUnknownTarget(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewTargetStore(db, "stream:price_events_test")

	unknown := uuid.New()

	err := store.RecordScrapeFailure(ctx, unknown, "no patterns matched")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vendor target not found")

	err = store.RecordScrapeSuccess(ctx, unknown, validObservation(unknown))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vendor target not found")
	assert.Equal(t, 0, countObservations(t, db, unknown))
}

func TestRecordScrapeSuccessRejectsInvalidObservation(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewTargetStore(db, "stream:price_events_test")
	target := insertTestTarget(t, db, store)

	obs := validObservation(target.ID)
	obs.Unit = "bottles"

	err := store.RecordScrapeSuccess(ctx, target.ID, obs)
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeInvalidData, models.ErrorCode(err))
	assert.Equal(t, 0, countObservations(t, db, target.ID))

	got, err := store.GetTarget(ctx, target.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastSuccessAt, "a rejected observation must not touch vendor health")
}

func TestRecordScrapeSuccessIsOneTransaction(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewTargetStore(db, "stream:price_events_test")
	target := insertTestTarget(t, db, store)

	first := validObservation(target.ID)
	first.ID = uuid.New()
	require.NoError(t, store.RecordScrapeSuccess(ctx, target.ID, first))

	require.NoError(t, store.RecordScrapeFailure(ctx, target.ID, "no patterns matched"))

	// Reusing the first observation's id makes the observation insert fail
	// after the health counters were already updated inside the transaction.
	dup := validObservation(target.ID)
	dup.ID = first.ID
	err := store.RecordScrapeSuccess(ctx, target.ID, dup)
	require.Error(t, err)

	got, err := store.GetTarget(ctx, target.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.FailureCount, "counter reset must roll back with the failed insert")
	assert.Equal(t, 1, countObservations(t, db, target.ID))
	assert.Equal(t, 1, countOutboxEvents(t, db, target.ID), "no event may outlive its transaction")
}
