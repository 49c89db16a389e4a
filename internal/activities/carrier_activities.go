package activities

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/usama216/shipping-market-sub004/internal/application"
	"github.com/usama216/shipping-market-sub004/internal/domain"
	"github.com/usama216/shipping-market-sub004/pkg/logging"
)

// Registered activity names
const (
	ShopRatesName      = "ShopRates"
	SubmitShipmentName = "SubmitShipment"
	FetchLabelName     = "FetchLabel"
	TrackShipmentName  = "TrackShipment"
)

// Application error types, matched by workflow retry policies
const (
	ErrTypeValidation    = "ValidationError"
	ErrTypeLabelNotReady = "LabelNotReady"
)

// ShopRatesInput is the input of the ShopRates activity
type ShopRatesInput struct {
	Request domain.ShipmentRequest `json:"request"`
	Options []string               `json:"options,omitempty"`
}

// ShopRatesResult carries ranked results. NoRatesAvailable is set when no
// carrier produced a price; the results still list every failure.
type ShopRatesResult struct {
	Results          []domain.RateResult `json:"results"`
	NoRatesAvailable bool                `json:"noRatesAvailable"`
}

// SubmitShipmentInput is the input of the SubmitShipment activity
type SubmitShipmentInput struct {
	SubmissionID string                   `json:"submissionId"`
	Request      domain.ShipmentRequest   `json:"request"`
	Carrier      string                   `json:"carrier"`
	Service      string                   `json:"service"`
	Contents     []domain.PackageContents `json:"contents,omitempty"`
}

// LabelInput identifies a label to fetch
type LabelInput struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"trackingNumber"`
}

// CarrierActivities exposes the carrier gateway as Temporal activities
type CarrierActivities struct {
	rates       *application.RateShopper
	submissions *application.SubmissionCoordinator
	tracking    *application.TrackingAggregator
	logger      *logging.Logger
}

// NewCarrierActivities creates a new CarrierActivities instance
func NewCarrierActivities(
	rates *application.RateShopper,
	submissions *application.SubmissionCoordinator,
	tracking *application.TrackingAggregator,
	logger *logging.Logger,
) *CarrierActivities {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &CarrierActivities{
		rates:       rates,
		submissions: submissions,
		tracking:    tracking,
		logger:      logger.WithComponent("activities"),
	}
}

// ShopRates runs rate shopping. Invalid requests fail without retry.
func (a *CarrierActivities) ShopRates(ctx context.Context, input ShopRatesInput) (*ShopRatesResult, error) {
	logger := activity.GetLogger(ctx)
	start := time.Now()

	logger.Info("Shopping rates", "options", input.Options)

	results, err := a.rates.ShopRates(ctx, input.Request, input.Options)
	a.logger.ActivityComplete(ctx, ShopRatesName, time.Since(start), err == nil)

	if err != nil {
		if stderrors.Is(err, domain.ErrNoRatesAvailable) {
			logger.Warn("No carrier produced a usable rate", "results", len(results))
			return &ShopRatesResult{Results: results, NoRatesAvailable: true}, nil
		}
		var reqErr *domain.RequestValidationError
		if stderrors.As(err, &reqErr) {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeValidation, err, reqErr.Errors)
		}
		return nil, fmt.Errorf("rate shopping failed: %w", err)
	}

	return &ShopRatesResult{Results: results}, nil
}

// SubmitShipment books a shipment. The outcome, success or failure, is in the
// returned submission; the activity itself only errors when cancelled.
func (a *CarrierActivities) SubmitShipment(ctx context.Context, input SubmitShipmentInput) (*application.Submission, error) {
	logger := activity.GetLogger(ctx)
	start := time.Now()

	submissionID := input.SubmissionID
	if submissionID == "" {
		submissionID = activity.GetInfo(ctx).WorkflowExecution.ID
	}

	logger.Info("Submitting shipment", "submissionId", submissionID, "carrier", input.Carrier, "service", input.Service)

	sub := a.submissions.Submit(ctx, application.SubmitCommand{
		SubmissionID: submissionID,
		Request:      input.Request,
		Carrier:      input.Carrier,
		Service:      input.Service,
		Contents:     input.Contents,
	})
	a.logger.ActivityComplete(ctx, SubmitShipmentName, time.Since(start), sub.Succeeded())

	if err := ctx.Err(); err != nil && !sub.Succeeded() {
		return nil, err
	}

	logger.Info("Shipment submission finished", "submissionId", sub.ID, "state", string(sub.State), "trackingNumber", sub.TrackingNumber())
	return sub, nil
}

// FetchLabel re-fetches a label. A missing label is a retryable failure so
// the workflow can wait for carriers that render labels asynchronously.
func (a *CarrierActivities) FetchLabel(ctx context.Context, input LabelInput) (*domain.LabelResponse, error) {
	logger := activity.GetLogger(ctx)
	start := time.Now()

	label := a.submissions.FetchLabel(ctx, input.Carrier, input.TrackingNumber)
	a.logger.ActivityComplete(ctx, FetchLabelName, time.Since(start), label.Success)

	if !label.Success {
		logger.Warn("Label not available", "carrier", input.Carrier, "trackingNumber", input.TrackingNumber, "message", label.Message)
		return nil, temporal.NewApplicationError(
			fmt.Sprintf("label for %s not available: %s", input.TrackingNumber, label.Message),
			ErrTypeLabelNotReady,
		)
	}
	return label, nil
}

// TrackShipment returns normalized tracking; it never fails.
func (a *CarrierActivities) TrackShipment(ctx context.Context, query application.TrackingQuery) (*domain.TrackingResponse, error) {
	start := time.Now()
	resp := a.tracking.Track(ctx, query.Carrier, query.TrackingNumber)
	a.logger.ActivityComplete(ctx, TrackShipmentName, time.Since(start), resp.Status != domain.TrackingStatusUnknown)
	return resp, nil
}
