package api

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/usama216/shipping-market-sub004/internal/application"
	"github.com/usama216/shipping-market-sub004/internal/domain"
	"github.com/usama216/shipping-market-sub004/pkg/errors"
	"github.com/usama216/shipping-market-sub004/pkg/logging"
	"github.com/usama216/shipping-market-sub004/pkg/middleware"
)

// MaxBatchTracking caps the number of shipments per batch tracking call
const MaxBatchTracking = 100

// ShopRatesRequest is the body of POST /api/v1/rates
type ShopRatesRequest struct {
	Request domain.ShipmentRequest `json:"request" binding:"required"`
	Options []string               `json:"options"`
}

// RatesResponse lists ranked rate results, best first
type RatesResponse struct {
	Results []domain.RateResult `json:"results"`
	Best    *domain.RateResult  `json:"best,omitempty"`
}

// NoRatesResponse is returned with 503 when no carrier produced a price
type NoRatesResponse struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Results []domain.RateResult `json:"results"`
}

// CreateShipmentRequest is the body of POST /api/v1/shipments
type CreateShipmentRequest struct {
	SubmissionID string                   `json:"submissionId"`
	Request      domain.ShipmentRequest   `json:"request" binding:"required"`
	Carrier      string                   `json:"carrier" binding:"required,carrier_code"`
	Service      string                   `json:"service"`
	Contents     []domain.PackageContents `json:"contents"`
}

// BatchTrackingRequest is the body of POST /api/v1/tracking/batch
type BatchTrackingRequest struct {
	Shipments []BatchTrackingItem `json:"shipments" binding:"required,min=1,max=100,dive"`
}

// BatchTrackingItem is one shipment to track
type BatchTrackingItem struct {
	Carrier        string `json:"carrier" binding:"required,carrier_code"`
	TrackingNumber string `json:"trackingNumber" binding:"required,tracking_number"`
}

// CarrierStatus describes one registered carrier
type CarrierStatus struct {
	Name          string `json:"name"`
	Authenticated bool   `json:"authenticated"`
	Breaker       string `json:"breaker,omitempty"`
}

type carrierURI struct {
	Carrier string `uri:"carrier" binding:"required,carrier_code"`
}

type shipmentURI struct {
	Carrier        string `uri:"carrier" binding:"required,carrier_code"`
	TrackingNumber string `uri:"trackingNumber" binding:"required,tracking_number"`
}

func bindURI(c *gin.Context, obj any) *errors.AppError {
	if err := c.ShouldBindUri(obj); err != nil {
		if fields := middleware.ValidationFieldErrors(err); len(fields) > 0 {
			return errors.ErrValidation("invalid path parameters").WithFieldErrors(fields)
		}
		return errors.ErrBadRequest(err.Error())
	}
	return nil
}

func newResponder(c *gin.Context, logger *logging.Logger) *middleware.ErrorResponder {
	return middleware.NewErrorResponder(c, logger).WithErrorMapper(toAppError)
}

func shopRatesHandler(rates *application.RateShopper, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := newResponder(c, logger)

		var req ShopRatesRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		results, err := rates.ShopRates(c.Request.Context(), req.Request, req.Options)
		if err != nil {
			if stderrors.Is(err, domain.ErrNoRatesAvailable) {
				appErr := errors.ErrNoRatesAvailable().Wrap(err)
				responder.RespondWithAppErrorAndBody(appErr, NoRatesResponse{
					Code:    appErr.Code,
					Message: appErr.Message,
					Results: results,
				})
				return
			}
			responder.RespondWithError(err)
			return
		}

		resp := RatesResponse{Results: results}
		if len(results) > 0 && results[0].Best {
			resp.Best = &results[0]
		}
		c.JSON(http.StatusOK, resp)
	}
}

func createShipmentHandler(submissions *application.SubmissionCoordinator, carriers application.CarrierLookup, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := newResponder(c, logger)

		var req CreateShipmentRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		if _, err := carriers.Get(req.Carrier); err != nil {
			responder.RespondNotFound("carrier " + req.Carrier)
			return
		}

		middleware.AddSpanAttributes(c, map[string]string{
			"carrier.name":    req.Carrier,
			"carrier.service": req.Service,
		})

		sub := submissions.Submit(c.Request.Context(), application.SubmitCommand{
			SubmissionID: req.SubmissionID,
			Request:      req.Request,
			Carrier:      req.Carrier,
			Service:      req.Service,
			Contents:     req.Contents,
		})

		status := http.StatusCreated
		if !sub.Succeeded() {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, sub)
	}
}

func getLabelHandler(submissions *application.SubmissionCoordinator, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := newResponder(c, logger)

		var uri shipmentURI
		if appErr := bindURI(c, &uri); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		label := submissions.FetchLabel(c.Request.Context(), uri.Carrier, uri.TrackingNumber)
		if !label.Success {
			responder.RespondWithAppErrorAndBody(
				errors.ErrNotFound("label").WithDetail("carrier", uri.Carrier).WithDetail("trackingNumber", uri.TrackingNumber),
				label)
			return
		}
		c.JSON(http.StatusOK, label)
	}
}

func trackShipmentHandler(tracking *application.TrackingAggregator, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := newResponder(c, logger)

		var uri shipmentURI
		if appErr := bindURI(c, &uri); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		c.JSON(http.StatusOK, tracking.Track(c.Request.Context(), uri.Carrier, uri.TrackingNumber))
	}
}

func trackBatchHandler(tracking *application.TrackingAggregator, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := newResponder(c, logger)

		var req BatchTrackingRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		queries := make([]application.TrackingQuery, 0, len(req.Shipments))
		for _, s := range req.Shipments {
			queries = append(queries, application.TrackingQuery{Carrier: s.Carrier, TrackingNumber: s.TrackingNumber})
		}

		c.JSON(http.StatusOK, gin.H{"results": tracking.TrackMany(c.Request.Context(), queries)})
	}
}

func cancelShipmentHandler(submissions *application.SubmissionCoordinator, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := newResponder(c, logger)

		var uri shipmentURI
		if appErr := bindURI(c, &uri); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		cancelled := submissions.Cancel(c.Request.Context(), uri.Carrier, uri.TrackingNumber)
		body := gin.H{
			"carrier":        uri.Carrier,
			"trackingNumber": uri.TrackingNumber,
			"cancelled":      cancelled,
		}
		if !cancelled {
			responder.RespondWithAppErrorAndBody(errCancelRejected(uri.Carrier, uri.TrackingNumber), body)
			return
		}
		c.JSON(http.StatusOK, body)
	}
}

func validateAddressHandler(carriers application.CarrierLookup, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := newResponder(c, logger)

		var uri carrierURI
		if appErr := bindURI(c, &uri); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		var address domain.Address
		if appErr := middleware.BindAndValidate(c, &address); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		if address.Country == "" {
			responder.RespondWithAppError(errors.ErrValidation("validation failed").
				WithFieldErrors([]errors.FieldError{{Field: "country", Message: "is required"}}))
			return
		}

		carrier, err := carriers.Get(uri.Carrier)
		if err != nil {
			responder.RespondNotFound("carrier " + uri.Carrier)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"carrier": carrier.Name(),
			"address": carrier.ValidateAddress(c.Request.Context(), address),
		})
	}
}

func listCarriersHandler(svc Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		breakers := make(map[string]string)
		if svc.Breakers != nil {
			for _, s := range svc.Breakers.Status() {
				breakers[s.Name] = s.State
			}
		}

		names := svc.Carriers.Names()
		out := make([]CarrierStatus, 0, len(names))
		for _, name := range names {
			carrier, err := svc.Carriers.Get(name)
			if err != nil {
				continue
			}
			out = append(out, CarrierStatus{
				Name:          name,
				Authenticated: carrier.IsAuthenticated(),
				Breaker:       breakers[name],
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"carriers":  out,
			"timestamp": time.Now().UTC(),
		})
	}
}
