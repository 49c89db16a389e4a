package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/usama216/shipping-market-sub004/internal/domain"
	"github.com/usama216/shipping-market-sub004/pkg/logging"
	"github.com/usama216/shipping-market-sub004/pkg/metrics"
)

// ShipmentsCollection holds submitted shipments
const ShipmentsCollection = "shipments"

type labelDocument struct {
	URL    string `bson:"url,omitempty"`
	Data   string `bson:"data,omitempty"`
	Format string `bson:"format,omitempty"`
}

type documentDocument struct {
	Type   string `bson:"type"`
	Format string `bson:"format,omitempty"`
	Data   string `bson:"data,omitempty"`
	URL    string `bson:"url,omitempty"`
}

type addressSummary struct {
	Name       string `bson:"name"`
	City       string `bson:"city,omitempty"`
	PostalCode string `bson:"postalCode,omitempty"`
	Country    string `bson:"country"`
}

type shipmentDocument struct {
	SubmissionID      string             `bson:"submissionId"`
	Carrier           string             `bson:"carrier"`
	ServiceCode       string             `bson:"serviceCode"`
	TrackingNumber    string             `bson:"trackingNumber"`
	CarrierShipmentID string             `bson:"carrierShipmentId,omitempty"`
	Reference         string             `bson:"reference,omitempty"`
	Shipper           addressSummary     `bson:"shipper"`
	Recipient         addressSummary     `bson:"recipient"`
	PackageCount      int                `bson:"packageCount"`
	WeightLB          float64            `bson:"weightLb"`
	DeclaredValue     string             `bson:"declaredValue"`
	Currency          string             `bson:"currency"`
	Label             *labelDocument     `bson:"label,omitempty"`
	Documents         []documentDocument `bson:"documents,omitempty"`
	RawResponse       string             `bson:"rawResponse,omitempty"`
	SubmittedAt       time.Time          `bson:"submittedAt"`
	UpdatedAt         time.Time          `bson:"updatedAt"`
}

func summarize(a domain.Address) addressSummary {
	return addressSummary{Name: a.Name, City: a.City, PostalCode: a.PostalCode, Country: a.Country}
}

func toLabelDocument(l *domain.Label) *labelDocument {
	if l == nil || l.IsEmpty() {
		return nil
	}
	return &labelDocument{URL: l.URL, Data: l.Data, Format: string(l.Format)}
}

func toShipmentDocument(r domain.ShipmentRecord) shipmentDocument {
	docs := make([]documentDocument, 0, len(r.Documents))
	for _, d := range r.Documents {
		docs = append(docs, documentDocument{Type: d.Type, Format: d.Format, Data: d.Data, URL: d.URL})
	}
	submittedAt := r.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}
	return shipmentDocument{
		SubmissionID:      r.SubmissionID,
		Carrier:           r.Carrier,
		ServiceCode:       r.ServiceCode,
		TrackingNumber:    r.TrackingNumber,
		CarrierShipmentID: r.CarrierID,
		Reference:         r.Request.Reference,
		Shipper:           summarize(r.Request.Shipper),
		Recipient:         summarize(r.Request.Recipient),
		PackageCount:      len(r.Request.Packages),
		WeightLB:          r.Request.TotalWeightLB(),
		DeclaredValue:     r.Request.TotalDeclaredValue().String(),
		Currency:          r.Request.CurrencyOrDefault(),
		Label:             toLabelDocument(r.Label),
		Documents:         docs,
		RawResponse:       string(r.RawResponse),
		SubmittedAt:       submittedAt,
		UpdatedAt:         time.Now().UTC(),
	}
}

// ShipmentRecorder persists submitted shipments to MongoDB
type ShipmentRecorder struct {
	collection *mongo.Collection
	logger     *logging.Logger
	metrics    *metrics.Metrics
}

// NewShipmentRecorder creates the recorder and its indexes
func NewShipmentRecorder(ctx context.Context, db *mongo.Database, logger *logging.Logger, m *metrics.Metrics) *ShipmentRecorder {
	r := &ShipmentRecorder{
		collection: db.Collection(ShipmentsCollection),
		logger:     logger.WithComponent("shipment-recorder"),
		metrics:    m,
	}
	r.ensureIndexes(ctx)
	return r
}

func (r *ShipmentRecorder) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "submissionId", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		{Keys: bson.D{{Key: "carrier", Value: 1}, {Key: "trackingNumber", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "reference", Value: 1}}},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		r.logger.WithError(err).Warn("Failed to create shipment indexes")
	}
}

// RecordShipment upserts the shipment by carrier and tracking number
func (r *ShipmentRecorder) RecordShipment(ctx context.Context, record domain.ShipmentRecord) error {
	doc := toShipmentDocument(record)
	start := time.Now()
	filter := bson.M{"carrier": doc.Carrier, "trackingNumber": doc.TrackingNumber}
	_, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	r.observe(ctx, "upsert", start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to record shipment: %w", err)
	}
	return nil
}

// RecordLabel stores a re-fetched label on the shipment
func (r *ShipmentRecorder) RecordLabel(ctx context.Context, carrier, trackingNumber string, label domain.Label) error {
	start := time.Now()
	filter := bson.M{"carrier": carrier, "trackingNumber": trackingNumber}
	update := bson.M{
		"$set": bson.M{"label": toLabelDocument(&label), "updatedAt": time.Now().UTC()},
		"$setOnInsert": bson.M{"submittedAt": time.Now().UTC()},
	}
	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	r.observe(ctx, "update_label", start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to record label: %w", err)
	}
	return nil
}

// FindByTrackingNumber returns the stored shipment, nil when absent
func (r *ShipmentRecorder) FindByTrackingNumber(ctx context.Context, carrier, trackingNumber string) (*domain.ShipmentRecord, error) {
	start := time.Now()
	var doc shipmentDocument
	err := r.collection.FindOne(ctx, bson.M{"carrier": carrier, "trackingNumber": trackingNumber}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		r.observe(ctx, "find", start, true)
		return nil, nil
	}
	r.observe(ctx, "find", start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to find shipment: %w", err)
	}

	record := &domain.ShipmentRecord{
		SubmissionID:   doc.SubmissionID,
		Carrier:        doc.Carrier,
		ServiceCode:    doc.ServiceCode,
		TrackingNumber: doc.TrackingNumber,
		CarrierID:      doc.CarrierShipmentID,
		RawResponse:    []byte(doc.RawResponse),
		SubmittedAt:    doc.SubmittedAt,
	}
	if doc.Label != nil {
		record.Label = &domain.Label{URL: doc.Label.URL, Data: doc.Label.Data, Format: domain.LabelFormat(doc.Label.Format)}
	}
	for _, d := range doc.Documents {
		record.Documents = append(record.Documents, domain.Document{Type: d.Type, Format: d.Format, Data: d.Data, URL: d.URL})
	}
	return record, nil
}

func (r *ShipmentRecorder) observe(ctx context.Context, operation string, start time.Time, success bool) {
	r.logger.DatabaseQuery(ctx, ShipmentsCollection, operation, time.Since(start), success)
	r.metrics.RecordMongoDBOperation(ShipmentsCollection, operation, success)
}

// LogShipmentRecorder only logs; it is used when MongoDB is disabled
type LogShipmentRecorder struct {
	logger *logging.Logger
}

// NewLogShipmentRecorder creates a logging recorder
func NewLogShipmentRecorder(logger *logging.Logger) *LogShipmentRecorder {
	return &LogShipmentRecorder{logger: logger.WithComponent("shipment-recorder")}
}

// RecordShipment logs the submitted shipment
func (r *LogShipmentRecorder) RecordShipment(ctx context.Context, record domain.ShipmentRecord) error {
	r.logger.Event(ctx, "shipment.recorded", map[string]any{
		"submissionId":   record.SubmissionID,
		"carrier":        record.Carrier,
		"service":        record.ServiceCode,
		"trackingNumber": record.TrackingNumber,
		"hasLabel":       record.Label != nil && !record.Label.IsEmpty(),
	})
	return nil
}

// RecordLabel logs the fetched label
func (r *LogShipmentRecorder) RecordLabel(ctx context.Context, carrier, trackingNumber string, label domain.Label) error {
	r.logger.Event(ctx, "shipment.label_recorded", map[string]any{
		"carrier":        carrier,
		"trackingNumber": trackingNumber,
		"format":         string(label.Format),
	})
	return nil
}

var (
	_ domain.ShipmentRecorder = (*ShipmentRecorder)(nil)
	_ domain.ShipmentRecorder = (*LogShipmentRecorder)(nil)
)
