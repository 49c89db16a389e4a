//go:build integration

package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/usama216/shipping-market-sub004/internal/domain"
	"github.com/usama216/shipping-market-sub004/pkg/logging"
	"github.com/usama216/shipping-market-sub004/pkg/mongodb"
	sharedtesting "github.com/usama216/shipping-market-sub004/pkg/testing"
)

func setupTestDatabase(t *testing.T) *mongo.Database {
	ctx := context.Background()

	container, err := sharedtesting.NewMongoDBContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close(context.Background()) })

	cfg := mongodb.DefaultConfig()
	cfg.URI = container.URI
	cfg.Database = "shipping_test"
	client, err := mongodb.NewClient(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	return client.Database()
}

func createTestRecord(trackingNumber string) domain.ShipmentRecord {
	req := domain.NewShipmentRequest(
		domain.Address{Name: "Warehouse A", Street1: "8600 NW 17th St", City: "Doral", State: "FL", PostalCode: "33126", Country: "US"},
		domain.Address{Name: "Jane Doe", Street1: "10 Downing St", City: "London", PostalCode: "SW1A 2AA", Country: "GB"},
		[]domain.Package{{Weight: 2, WeightUnit: domain.WeightUnitLB, Length: 10, Width: 8, Height: 4, DimensionUnit: domain.DimensionUnitIN, DeclaredValue: decimal.NewFromInt(80)}},
		"P",
	)
	req.Reference = "ORD-3003"
	return domain.ShipmentRecord{
		SubmissionID:   "sub-" + trackingNumber,
		Carrier:        domain.CarrierDHL,
		ServiceCode:    "P",
		TrackingNumber: trackingNumber,
		CarrierID:      trackingNumber,
		Label:          &domain.Label{Data: "JVBERi0=", Format: domain.LabelFormatPDF},
		Request:        req,
		RawResponse:    []byte(`{"shipmentTrackingNumber":"` + trackingNumber + `"}`),
		SubmittedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestShipmentRecorder_RecordAndFind(t *testing.T) {
	ctx := context.Background()
	db := setupTestDatabase(t)
	recorder := NewShipmentRecorder(ctx, db, logging.NewNop(), nil)

	record := createTestRecord("1234567890")
	require.NoError(t, recorder.RecordShipment(ctx, record))
	// idempotent on carrier + tracking number
	require.NoError(t, recorder.RecordShipment(ctx, record))

	found, err := recorder.FindByTrackingNumber(ctx, domain.CarrierDHL, "1234567890")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, record.SubmissionID, found.SubmissionID)
	assert.Equal(t, record.RawResponse, found.RawResponse)
	require.NotNil(t, found.Label)
	assert.Equal(t, "JVBERi0=", found.Label.Data)

	count, err := db.Collection(ShipmentsCollection).CountDocuments(ctx, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestShipmentRecorder_RecordLabel(t *testing.T) {
	ctx := context.Background()
	db := setupTestDatabase(t)
	recorder := NewShipmentRecorder(ctx, db, logging.NewNop(), nil)

	record := createTestRecord("5566778899")
	record.Label = nil
	require.NoError(t, recorder.RecordShipment(ctx, record))
	require.NoError(t, recorder.RecordLabel(ctx, domain.CarrierDHL, "5566778899", domain.Label{URL: "https://labels.example.com/5566778899.pdf", Format: domain.LabelFormatPDF}))

	found, err := recorder.FindByTrackingNumber(ctx, domain.CarrierDHL, "5566778899")
	require.NoError(t, err)
	require.NotNil(t, found.Label)
	assert.Equal(t, "https://labels.example.com/5566778899.pdf", found.Label.URL)
}

func TestShipmentRecorder_FindMissing(t *testing.T) {
	ctx := context.Background()
	recorder := NewShipmentRecorder(ctx, setupTestDatabase(t), logging.NewNop(), nil)

	found, err := recorder.FindByTrackingNumber(ctx, domain.CarrierUPS, "1Z0000")

	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestFallbackPriceStore_Lookup(t *testing.T) {
	ctx := context.Background()
	store := NewFallbackPriceStore(ctx, setupTestDatabase(t), logging.NewNop(), nil)

	for _, p := range DefaultFallbackPrices() {
		require.NoError(t, store.Upsert(ctx, p))
	}

	p, ok, err := store.FallbackPrice(ctx, domain.CarrierUPS, "65")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "42", p.Base.String())

	p, ok, err = store.FallbackPrice(ctx, domain.CarrierMyUS, "ECONOMY")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ECONOMY", p.ServiceCode)

	_, ok, err = store.FallbackPrice(ctx, domain.CarrierFedEx, "FEDEX_GROUND")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFallbackPriceStore_InsertIfAbsentKeepsStoredPrice(t *testing.T) {
	ctx := context.Background()
	store := NewFallbackPriceStore(ctx, setupTestDatabase(t), logging.NewNop(), nil)

	edited := DefaultFallbackPrices()[0]
	edited.Base = decimal.NewFromInt(99)
	require.NoError(t, store.Upsert(ctx, edited))

	for _, p := range DefaultFallbackPrices() {
		require.NoError(t, store.InsertIfAbsent(ctx, p))
	}

	p, ok, err := store.FallbackPrice(ctx, edited.Carrier, edited.ServiceCode)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "99", p.Base.String())

	p, ok, err = store.FallbackPrice(ctx, domain.CarrierDHL, "P")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "44", p.Base.String())
}
