package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/usama216/shipping-market-sub004/internal/domain"
	"github.com/usama216/shipping-market-sub004/pkg/cloudevents"
	"github.com/usama216/shipping-market-sub004/pkg/logging"
	"github.com/usama216/shipping-market-sub004/pkg/metrics"
	"github.com/usama216/shipping-market-sub004/pkg/tracing"
)

// SubmissionState is the state of one submission attempt
type SubmissionState string

const (
	SubmissionPending         SubmissionState = "pending"
	SubmissionAuthenticating  SubmissionState = "authenticating"
	SubmissionRatingConfirmed SubmissionState = "rating_confirmed"
	SubmissionSubmitting      SubmissionState = "submitting"
	SubmissionSubmitted       SubmissionState = "submitted"
	SubmissionFailed          SubmissionState = "failed"
	SubmissionLabelReady      SubmissionState = "label_ready"
)

// ErrInvalidTransition is returned for a state change the machine forbids
var ErrInvalidTransition = errors.New("invalid submission state transition")

var submissionTransitions = map[SubmissionState][]SubmissionState{
	SubmissionPending:         {SubmissionAuthenticating, SubmissionFailed},
	SubmissionAuthenticating:  {SubmissionRatingConfirmed, SubmissionFailed},
	SubmissionRatingConfirmed: {SubmissionSubmitting, SubmissionFailed},
	SubmissionSubmitting:      {SubmissionSubmitted, SubmissionFailed},
	SubmissionSubmitted:       {SubmissionLabelReady},
}

// CanTransitionTo reports whether the machine allows moving to next
func (s SubmissionState) CanTransitionTo(next SubmissionState) bool {
	for _, allowed := range submissionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s SubmissionState) IsTerminal() bool {
	return len(submissionTransitions[s]) == 0
}

// StateChange is one recorded transition
type StateChange struct {
	From SubmissionState `json:"from"`
	To   SubmissionState `json:"to"`
	At   time.Time       `json:"at"`
}

// Submission is the bookkeeping of one submission attempt. It lives only for
// the duration of the call; persistence receives the outcome.
type Submission struct {
	ID          string                   `json:"id"`
	Carrier     string                   `json:"carrier"`
	Service     string                   `json:"service,omitempty"`
	State       SubmissionState          `json:"state"`
	History     []StateChange            `json:"history"`
	Response    *domain.ShipmentResponse `json:"response"`
	Label       *domain.Label            `json:"label,omitempty"`
	Error       string                   `json:"error,omitempty"`
	StartedAt   time.Time                `json:"startedAt"`
	CompletedAt *time.Time               `json:"completedAt,omitempty"`
}

func newSubmission(id, carrier, service string) *Submission {
	if id == "" {
		id = uuid.New().String()
	}
	return &Submission{
		ID:        id,
		Carrier:   carrier,
		Service:   service,
		State:     SubmissionPending,
		History:   []StateChange{},
		StartedAt: time.Now().UTC(),
	}
}

// TransitionTo moves the submission to next, rejecting forbidden moves
func (s *Submission) TransitionTo(next SubmissionState) error {
	if !s.State.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, next)
	}
	now := time.Now().UTC()
	s.History = append(s.History, StateChange{From: s.State, To: next, At: now})
	s.State = next
	if next == SubmissionSubmitted || next == SubmissionFailed {
		s.CompletedAt = &now
	}
	return nil
}

// AttachLabel stores a fetched label and moves a submitted shipment to label_ready
func (s *Submission) AttachLabel(label *domain.LabelResponse) error {
	if label == nil || !label.Success {
		return fmt.Errorf("label not available for submission %s", s.ID)
	}
	if err := s.TransitionTo(SubmissionLabelReady); err != nil {
		return err
	}
	s.Label = label.Label
	return nil
}

// Succeeded reports whether the carrier booked the shipment
func (s *Submission) Succeeded() bool {
	return s.State == SubmissionSubmitted || s.State == SubmissionLabelReady
}

// TrackingNumber returns the carrier tracking number, empty on failure
func (s *Submission) TrackingNumber() string {
	if s.Response == nil || !s.Response.Success {
		return ""
	}
	return s.Response.TrackingNumber
}

// SubmissionCoordinator drives one shipment through authentication, service
// confirmation and creation against the chosen carrier. It never retries
// shipment creation.
type SubmissionCoordinator struct {
	carriers  CarrierLookup
	services  map[string]map[string]string
	recorder  domain.ShipmentRecorder
	publisher EventPublisher
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

// NewSubmissionCoordinator creates a SubmissionCoordinator. services lists the
// offered service codes per carrier; a carrier without entries accepts any
// service. recorder and publisher may be nil.
func NewSubmissionCoordinator(
	carriers CarrierLookup,
	services map[string]map[string]string,
	recorder domain.ShipmentRecorder,
	publisher EventPublisher,
	logger *logging.Logger,
	m *metrics.Metrics,
) *SubmissionCoordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SubmissionCoordinator{
		carriers:  carriers,
		services:  services,
		recorder:  recorder,
		publisher: publisher,
		logger:    logger.WithComponent("submission-coordinator"),
		metrics:   m,
	}
}

// Submit books a shipment. It never returns an error: every failure ends in
// the failed state with a failure ShipmentResponse.
func (c *SubmissionCoordinator) Submit(ctx context.Context, cmd SubmitCommand) *Submission {
	carrierName := strings.ToLower(cmd.Carrier)
	sub := newSubmission(cmd.SubmissionID, carrierName, cmd.Service)
	logger := c.logger.WithCarrier(carrierName).WithFields(map[string]any{"submissionId": sub.ID})

	ctx, span := tracing.Tracer().Start(ctx, "submission.submit")
	span.SetAttributes(
		attribute.String("carrier.name", carrierName),
		attribute.String("submission.id", sub.ID),
	)
	defer span.End()

	carrier, err := c.carriers.Get(carrierName)
	if err != nil {
		c.fail(ctx, sub, domain.ShipmentFailed(carrierName, err.Error(), nil, nil))
		tracing.RecordError(span, err)
		return sub
	}

	_ = sub.TransitionTo(SubmissionAuthenticating)
	ok, err := carrier.Authenticate(ctx)
	if err != nil || !ok {
		if err == nil {
			err = domain.NewCarrierError(carrierName, domain.ErrorKindAuth, "authentication failed", nil)
		}
		logger.WithError(err).Warn("Carrier authentication failed, shipment not submitted")
		c.fail(ctx, sub, domain.ShipmentFailedFromError(carrierName, err))
		tracing.RecordError(span, err)
		return sub
	}

	req := cmd.Request
	if cmd.Service != "" {
		req = req.WithService(cmd.Service)
	}
	if err := c.confirmService(carrierName, req.ServiceCode); err != nil {
		logger.Warn("Service not offered by carrier", "service", req.ServiceCode)
		c.fail(ctx, sub, domain.ShipmentFailed(carrierName, err.Error(), []domain.ErrorDetail{{
			Field:   "service",
			Message: domain.ErrServiceNotOffered.Error(),
			Value:   req.ServiceCode,
		}}, nil))
		tracing.RecordError(span, err)
		return sub
	}
	if err := req.ValidateForShipment(); err != nil {
		logger.WithError(err).Warn("Shipment request rejected before submission")
		c.fail(ctx, sub, requestFailure(carrierName, err))
		tracing.RecordError(span, err)
		return sub
	}
	_ = sub.TransitionTo(SubmissionRatingConfirmed)

	_ = sub.TransitionTo(SubmissionSubmitting)
	resp, err := carrier.CreateShipment(ctx, req, cmd.Contents...)
	switch {
	case err != nil:
		logger.WithError(err).Error("Shipment creation failed")
		resp = domain.ShipmentFailedFromError(carrierName, err)
	case resp == nil:
		resp = domain.ShipmentFailed(carrierName, "carrier returned no shipment response", nil, nil)
	case resp.Success && strings.TrimSpace(resp.TrackingNumber) == "":
		resp = domain.ShipmentFailed(carrierName, "carrier did not return a tracking number", nil, resp.RawResponse)
	}
	if !resp.Success {
		logger.Warn("Carrier rejected shipment", "message", resp.Message, "errors", len(resp.Errors))
		c.fail(ctx, sub, resp)
		tracing.RecordError(span, errors.New(resp.Message))
		return sub
	}

	sub.Response = resp
	_ = sub.TransitionTo(SubmissionSubmitted)
	c.metrics.RecordShipmentSubmitted(carrierName, string(SubmissionSubmitted))
	span.SetAttributes(attribute.String("shipment.tracking_number", resp.TrackingNumber))

	c.record(ctx, sub, req, resp)
	c.publishSubmitted(ctx, sub, req, resp)

	logger.Info("Shipment submitted", "trackingNumber", resp.TrackingNumber, "service", req.ServiceCode)
	return sub
}

// FetchLabel re-fetches a label and hands it to persistence when found
func (c *SubmissionCoordinator) FetchLabel(ctx context.Context, carrierName, trackingNumber string) *domain.LabelResponse {
	carrierName = strings.ToLower(carrierName)
	carrier, err := c.carriers.Get(carrierName)
	if err != nil {
		return domain.LabelNotFound(carrierName, trackingNumber, err.Error())
	}

	label := carrier.GetLabel(ctx, trackingNumber)
	if label == nil {
		return domain.LabelNotFound(carrierName, trackingNumber, "")
	}
	if label.Success && c.recorder != nil {
		if err := c.recorder.RecordLabel(ctx, carrierName, trackingNumber, *label.Label); err != nil {
			c.logger.WithCarrier(carrierName).WithError(err).Error("Failed to record label", "trackingNumber", trackingNumber)
		}
	}
	return label
}

// Cancel voids a shipment with its carrier, false on any failure
func (c *SubmissionCoordinator) Cancel(ctx context.Context, carrierName, trackingNumber string) bool {
	carrierName = strings.ToLower(carrierName)
	carrier, err := c.carriers.Get(carrierName)
	if err != nil {
		c.logger.WithError(err).Warn("Cannot cancel shipment for unknown carrier", "carrier", carrierName)
		return false
	}
	if !carrier.CancelShipment(ctx, trackingNumber) {
		return false
	}

	if c.publisher != nil {
		data := cloudevents.ShipmentCancelledData{Carrier: carrierName, TrackingNumber: trackingNumber}
		if err := c.publisher.PublishShipmentCancelled(ctx, data); err != nil {
			c.logger.WithError(err).Error("Failed to publish shipment cancelled event", "trackingNumber", trackingNumber)
		}
	}
	c.logger.WithCarrier(carrierName).Info("Shipment cancelled", "trackingNumber", trackingNumber)
	return true
}

func (c *SubmissionCoordinator) confirmService(carrier, service string) error {
	offered := c.services[carrier]
	if len(offered) == 0 || service == "" {
		return nil
	}
	if _, ok := offered[service]; ok {
		return nil
	}
	for code := range offered {
		if strings.EqualFold(code, service) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s %s", domain.ErrServiceNotOffered, carrier, service)
}

func (c *SubmissionCoordinator) fail(ctx context.Context, sub *Submission, resp *domain.ShipmentResponse) {
	sub.Response = resp
	sub.Error = resp.Message
	_ = sub.TransitionTo(SubmissionFailed)
	c.metrics.RecordShipmentSubmitted(sub.Carrier, string(SubmissionFailed))

	if c.publisher == nil {
		return
	}
	messages := make([]string, 0, len(resp.Errors))
	for _, e := range resp.Errors {
		messages = append(messages, e.Field+": "+e.Message)
	}
	data := cloudevents.ShipmentFailedData{
		SubmissionID: sub.ID,
		Carrier:      sub.Carrier,
		Service:      sub.Service,
		Reason:       resp.Message,
		Errors:       messages,
	}
	if err := c.publisher.PublishShipmentFailed(ctx, data); err != nil {
		c.logger.WithError(err).Error("Failed to publish shipment failed event", "submissionId", sub.ID)
	}
}

// record hands the carrier result to persistence. The carrier-side shipment
// exists at this point, so a persistence failure does not fail the submission.
func (c *SubmissionCoordinator) record(ctx context.Context, sub *Submission, req domain.ShipmentRequest, resp *domain.ShipmentResponse) {
	if c.recorder == nil {
		return
	}
	record := domain.ShipmentRecord{
		SubmissionID:   sub.ID,
		Carrier:        sub.Carrier,
		ServiceCode:    req.ServiceCode,
		TrackingNumber: resp.TrackingNumber,
		CarrierID:      resp.ShipmentID,
		Label:          resp.Label,
		Documents:      resp.Documents,
		Request:        req,
		RawResponse:    resp.RawResponse,
		SubmittedAt:    time.Now().UTC(),
	}
	if err := c.recorder.RecordShipment(ctx, record); err != nil {
		c.logger.WithError(err).Error("Failed to record submitted shipment",
			"submissionId", sub.ID,
			"trackingNumber", resp.TrackingNumber,
		)
	}
}

func (c *SubmissionCoordinator) publishSubmitted(ctx context.Context, sub *Submission, req domain.ShipmentRequest, resp *domain.ShipmentResponse) {
	if c.publisher == nil {
		return
	}
	data := cloudevents.ShipmentSubmittedData{
		SubmissionID:   sub.ID,
		Carrier:        sub.Carrier,
		Service:        req.ServiceCode,
		TrackingNumber: resp.TrackingNumber,
		Reference:      req.Reference,
	}
	if resp.Label != nil {
		data.LabelURL = resp.Label.URL
	}
	if err := c.publisher.PublishShipmentSubmitted(ctx, data); err != nil {
		c.logger.WithError(err).Error("Failed to publish shipment submitted event", "submissionId", sub.ID)
	}
}

// requestFailure converts a local request validation error into a failure response
func requestFailure(carrier string, err error) *domain.ShipmentResponse {
	var rve *domain.RequestValidationError
	if errors.As(err, &rve) {
		return domain.ShipmentFailed(carrier, err.Error(), rve.Errors, nil)
	}
	return domain.ShipmentFailedFromError(carrier, err)
}
