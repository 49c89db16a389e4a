package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/usama216/shipping-market-sub004/internal/activities"
	"github.com/usama216/shipping-market-sub004/internal/application"
	"github.com/usama216/shipping-market-sub004/internal/domain"
)

// ShipmentSubmissionInput is the input of ShipmentSubmissionWorkflow. When
// Carrier is empty the workflow shops the Options first and books the best rate.
type ShipmentSubmissionInput struct {
	SubmissionID string                   `json:"submissionId"`
	Request      domain.ShipmentRequest   `json:"request"`
	Carrier      string                   `json:"carrier,omitempty"`
	Service      string                   `json:"service,omitempty"`
	Options      []string                 `json:"options,omitempty"`
	Contents     []domain.PackageContents `json:"contents,omitempty"`
}

// ShipmentSubmissionResult is the outcome of ShipmentSubmissionWorkflow
type ShipmentSubmissionResult struct {
	Submission *application.Submission `json:"submission"`
	Rate       *domain.RateResult      `json:"rate,omitempty"`
	Label      *domain.Label           `json:"label,omitempty"`
	LabelReady bool                    `json:"labelReady"`
}

// ShipmentSubmissionWorkflow books one shipment and makes sure a label is
// available. Shipment creation is never retried; label fetches are.
func ShipmentSubmissionWorkflow(ctx workflow.Context, input ShipmentSubmissionInput) (*ShipmentSubmissionResult, error) {
	logger := workflow.GetLogger(ctx)
	result := &ShipmentSubmissionResult{}

	logger.Info("Starting shipment submission workflow",
		"submissionId", input.SubmissionID,
		"carrier", input.Carrier,
		"service", input.Service,
	)

	if input.Carrier == "" {
		best, err := selectBestRate(ctx, input)
		if err != nil {
			return nil, err
		}
		input.Carrier = best.Carrier
		input.Service = best.ServiceCode
		result.Rate = best
	}

	submitCtx := workflow.WithActivityOptions(ctx, ActivityOptions(SubmitActivityConfig))
	var sub application.Submission
	err := workflow.ExecuteActivity(submitCtx, activities.SubmitShipmentName, activities.SubmitShipmentInput{
		SubmissionID: input.SubmissionID,
		Request:      input.Request,
		Carrier:      input.Carrier,
		Service:      input.Service,
		Contents:     input.Contents,
	}).Get(ctx, &sub)
	if err != nil {
		return nil, fmt.Errorf("failed to submit shipment: %w", err)
	}
	result.Submission = &sub

	if !sub.Succeeded() {
		logger.Warn("Carrier did not book the shipment", "submissionId", sub.ID, "error", sub.Error)
		return result, nil
	}

	if sub.Response != nil && !sub.Response.Label.IsEmpty() {
		result.Label = sub.Response.Label
		result.LabelReady = true
		logger.Info("Shipment submitted with label", "submissionId", sub.ID, "trackingNumber", sub.TrackingNumber())
		return result, nil
	}

	labelCtx := workflow.WithActivityOptions(ctx, ActivityOptions(LabelActivityConfig))
	var label domain.LabelResponse
	err = workflow.ExecuteActivity(labelCtx, activities.FetchLabelName, activities.LabelInput{
		Carrier:        sub.Carrier,
		TrackingNumber: sub.TrackingNumber(),
	}).Get(ctx, &label)
	if err != nil {
		// the shipment is booked; a missing label is reported, not fatal
		logger.Warn("Label not available after retries", "submissionId", sub.ID, "error", err)
		return result, nil
	}

	result.Label = label.Label
	result.LabelReady = true
	logger.Info("Shipment submission workflow completed",
		"submissionId", sub.ID,
		"trackingNumber", sub.TrackingNumber(),
	)
	return result, nil
}

func selectBestRate(ctx workflow.Context, input ShipmentSubmissionInput) (*domain.RateResult, error) {
	ratesCtx := workflow.WithActivityOptions(ctx, ActivityOptions(RatesActivityConfig))

	var rates activities.ShopRatesResult
	err := workflow.ExecuteActivity(ratesCtx, activities.ShopRatesName, activities.ShopRatesInput{
		Request: input.Request,
		Options: input.Options,
	}).Get(ctx, &rates)
	if err != nil {
		return nil, fmt.Errorf("failed to shop rates: %w", err)
	}

	for i := range rates.Results {
		if rates.Results[i].Price != nil {
			return &rates.Results[i], nil
		}
	}
	return nil, temporal.NewNonRetryableApplicationError("no carrier produced a usable rate", "NoRatesAvailable", nil)
}

// ActivityConfig describes the timeout and retry policy of one activity kind
type ActivityConfig struct {
	StartToCloseTimeout time.Duration
	RetryPolicy         *temporal.RetryPolicy
}

var (
	// RatesActivityConfig retries rate shopping a few times; each run is bounded by its own timeout.
	RatesActivityConfig = ActivityConfig{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        30 * time.Second,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{activities.ErrTypeValidation},
		},
	}

	// SubmitActivityConfig never retries shipment creation.
	SubmitActivityConfig = ActivityConfig{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}

	// LabelActivityConfig waits for labels rendered asynchronously by the carrier.
	LabelActivityConfig = ActivityConfig{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    5,
		},
	}
)

// ActivityOptions converts an ActivityConfig to workflow activity options
func ActivityOptions(cfg ActivityConfig) workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: cfg.StartToCloseTimeout,
		RetryPolicy:         cfg.RetryPolicy,
	}
}
