package carriers

import (
	"cmp"
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/usama216/shipping-market-sub004/internal/domain"
)

const (
	myusSandboxURL    = "https://sandbox-api.myus.com"
	myusProductionURL = "https://api.myus.com"
)

// MyUS endpoint keys, overridable through Config.Endpoints
const (
	myusEndpointRates     = "rates"
	myusEndpointShipments = "shipments"
	myusEndpointLabel     = "label"
	myusEndpointTracking  = "tracking"
	myusEndpointCancel    = "cancel"
)

var myusDefaultEndpoints = map[string]string{
	myusEndpointRates:     "/v1/rates",
	myusEndpointShipments: "/v1/shipments",
	myusEndpointLabel:     "/v1/shipments/{tracking_number}/label",
	myusEndpointTracking:  "/v1/tracking/{tracking_number}",
	myusEndpointCancel:    "/v1/shipments/{tracking_number}",
}

// MyUSClient is the experimental MyUS client. Its API is not publicly
// documented, so every path comes from a configurable endpoint table.
type MyUSClient struct {
	*client
	endpoints map[string]string
}

// NewMyUSClient creates a MyUS client authenticating with a bearer API key
func NewMyUSClient(cfg Config, deps Deps) *MyUSClient {
	endpoints := make(map[string]string, len(myusDefaultEndpoints))
	for k, v := range myusDefaultEndpoints {
		endpoints[k] = v
	}
	for k, v := range cfg.Endpoints {
		if v != "" {
			endpoints[k] = v
		}
	}

	c := &MyUSClient{
		client:    newClient(domain.CarrierMyUS, cfg.baseURL(myusSandboxURL, myusProductionURL), cfg, deps),
		endpoints: endpoints,
	}
	c.auth = newAPIKeyAuth(c.name, cmp.Or(cfg.APIKey, cfg.ClientSecret))
	return c
}

func (c *MyUSClient) endpoint(key, trackingNumber string) string {
	return strings.ReplaceAll(c.endpoints[key], "{tracking_number}", url.PathEscape(trackingNumber))
}

// GetRates returns the MyUS quotes for the request
func (c *MyUSClient) GetRates(ctx context.Context, req domain.ShipmentRequest) ([]domain.RateResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, requestError(c.name, err)
	}

	var out struct {
		Rates []struct {
			ServiceCode       string          `json:"service_code"`
			ServiceName       string          `json:"service_name"`
			Amount            decimal.Decimal `json:"amount"`
			Currency          string          `json:"currency"`
			TransitDays       flexString      `json:"transit_days"`
			EstimatedDelivery string          `json:"estimated_delivery"`
		} `json:"rates"`
	}
	if _, err := c.call(ctx, Request{
		Operation:  "rates",
		Method:     http.MethodPost,
		Path:       c.endpoint(myusEndpointRates, ""),
		Body:       toMyUSRequest(req, ""),
		Idempotent: true,
	}, &out); err != nil {
		return nil, err
	}

	rates := make([]domain.RateResponse, 0, len(out.Rates))
	for _, r := range out.Rates {
		rates = append(rates, domain.RateResponse{
			Carrier:           c.name,
			ServiceCode:       r.ServiceCode,
			ServiceName:       cmp.Or(r.ServiceName, c.cfg.serviceName(r.ServiceCode, nil)),
			Price:             r.Amount,
			Currency:          cmp.Or(r.Currency, domain.DefaultCurrency),
			TransitDays:       r.TransitDays.Int(),
			EstimatedDelivery: parseTimePtr(r.EstimatedDelivery),
		})
	}
	return rates, nil
}

// CreateShipment books a MyUS shipment
func (c *MyUSClient) CreateShipment(ctx context.Context, req domain.ShipmentRequest, _ ...domain.PackageContents) (*domain.ShipmentResponse, error) {
	if err := req.ValidateForShipment(); err != nil {
		return c.shipmentFailure(ctx, requestError(c.name, err))
	}

	var out struct {
		TrackingNumber string `json:"tracking_number"`
		ShipmentID     string `json:"shipment_id"`
		myusLabel
	}
	resp, err := c.call(ctx, Request{
		Operation: "ship",
		Method:    http.MethodPost,
		Path:      c.endpoint(myusEndpointShipments, ""),
		Body:      toMyUSRequest(req, c.service(req)),
	}, &out)
	if err != nil {
		return c.shipmentFailure(ctx, err)
	}

	return domain.ShipmentSucceeded(c.name, out.TrackingNumber, out.ShipmentID, out.label(), resp.Body), nil
}

// GetLabel re-fetches a shipment label
func (c *MyUSClient) GetLabel(ctx context.Context, trackingNumber string) *domain.LabelResponse {
	var out myusLabel
	_, err := c.call(ctx, Request{
		Operation:  "label",
		Method:     http.MethodGet,
		Path:       c.endpoint(myusEndpointLabel, trackingNumber),
		Idempotent: true,
	}, &out)
	if err != nil {
		return c.labelFailure(ctx, trackingNumber, err)
	}
	return domain.LabelFound(c.name, trackingNumber, out.label())
}

// Track returns the MyUS tracking state
func (c *MyUSClient) Track(ctx context.Context, trackingNumber string) *domain.TrackingResponse {
	var out struct {
		TrackingNumber    string `json:"tracking_number"`
		Status            string `json:"status"`
		StatusDescription string `json:"status_description"`
		EstimatedDelivery string `json:"estimated_delivery"`
		DeliveredAt       string `json:"delivered_at"`
		Events            []struct {
			Timestamp   string `json:"timestamp"`
			Status      string `json:"status"`
			Description string `json:"description"`
			Location    string `json:"location"`
		} `json:"events"`
	}
	resp, err := c.call(ctx, Request{
		Operation:  "track",
		Method:     http.MethodGet,
		Path:       c.endpoint(myusEndpointTracking, trackingNumber),
		Idempotent: true,
	}, &out)
	if err != nil {
		return c.trackingFailure(ctx, trackingNumber, err)
	}

	events := make([]domain.TrackingEvent, 0, len(out.Events))
	for _, e := range out.Events {
		ts, _ := parseTime(e.Timestamp)
		events = append(events, domain.NewTrackingEvent(ts, e.Status, e.Description, e.Location))
	}

	return domain.NewTrackingResponse(c.name, cmp.Or(out.TrackingNumber, trackingNumber), domain.TrackingDetails{
		RawStatus:         out.Status,
		Description:       out.StatusDescription,
		EstimatedDelivery: parseTimePtr(out.EstimatedDelivery),
		DeliveredAt:       parseTimePtr(out.DeliveredAt),
		Events:            events,
		RawResponse:       resp.Body,
	})
}

// CancelShipment deletes the shipment; any 2xx counts as cancelled
func (c *MyUSClient) CancelShipment(ctx context.Context, trackingNumber string) bool {
	if _, err := c.call(ctx, Request{
		Operation: "cancel",
		Method:    http.MethodDelete,
		Path:      c.endpoint(myusEndpointCancel, trackingNumber),
	}, nil); err != nil {
		return c.cancelFailure(ctx, trackingNumber, err)
	}
	return true
}

// ValidateAddress is unsupported; the address is returned unchanged
func (c *MyUSClient) ValidateAddress(_ context.Context, address domain.Address) domain.Address {
	return address
}

type myusLabel struct {
	LabelURL    string `json:"label_url"`
	LabelData   string `json:"label_data"`
	LabelFormat string `json:"label_format"`
}

func (l myusLabel) label() *domain.Label {
	if l.LabelURL == "" && l.LabelData == "" {
		return nil
	}
	return &domain.Label{
		URL:    l.LabelURL,
		Data:   l.LabelData,
		Format: domain.LabelFormat(strings.ToUpper(cmp.Or(l.LabelFormat, string(domain.LabelFormatPDF)))),
	}
}

type myusAddress struct {
	Name       string   `json:"name,omitempty"`
	Company    string   `json:"company,omitempty"`
	Street     []string `json:"street,omitempty"`
	City       string   `json:"city,omitempty"`
	State      string   `json:"state,omitempty"`
	PostalCode string   `json:"postal_code,omitempty"`
	Country    string   `json:"country"`
	Phone      string   `json:"phone,omitempty"`
	Email      string   `json:"email,omitempty"`
}

type myusPackage struct {
	Weight        float64         `json:"weight"`
	WeightUnit    string          `json:"weight_unit"`
	Length        float64         `json:"length"`
	Width         float64         `json:"width"`
	Height        float64         `json:"height"`
	DimensionUnit string          `json:"dimension_unit"`
	DeclaredValue decimal.Decimal `json:"declared_value"`
}

type myusRequest struct {
	From        myusAddress   `json:"from"`
	To          myusAddress   `json:"to"`
	Packages    []myusPackage `json:"packages"`
	Service     string        `json:"service,omitempty"`
	Currency    string        `json:"currency"`
	LabelFormat string        `json:"label_format,omitempty"`
	Reference   string        `json:"reference,omitempty"`
}

func toMyUSRequest(req domain.ShipmentRequest, service string) myusRequest {
	packages := make([]myusPackage, 0, len(req.Packages))
	for _, p := range req.Packages {
		packages = append(packages, myusPackage{
			Weight:        p.Weight,
			WeightUnit:    string(p.WeightUnit),
			Length:        p.Length,
			Width:         p.Width,
			Height:        p.Height,
			DimensionUnit: string(p.DimensionUnit),
			DeclaredValue: p.DeclaredValue,
		})
	}
	out := myusRequest{
		From:      toMyUSAddress(req.Shipper),
		To:        toMyUSAddress(req.Recipient),
		Packages:  packages,
		Service:   cmp.Or(service, req.ServiceCode),
		Currency:  req.CurrencyOrDefault(),
		Reference: req.Reference,
	}
	if service != "" {
		out.LabelFormat = string(req.LabelFormatOrDefault())
	}
	return out
}

func toMyUSAddress(a domain.Address) myusAddress {
	return myusAddress{
		Name:       a.Name,
		Company:    a.Company,
		Street:     a.StreetLines(),
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    strings.ToUpper(a.Country),
		Phone:      a.Phone,
		Email:      a.Email,
	}
}
