package carriers

import (
	"cmp"
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/usama216/shipping-market-sub004/internal/domain"
)

const (
	dhlSandboxURL    = "https://express.api.dhl.com/mydhlapi/test"
	dhlProductionURL = "https://express.api.dhl.com/mydhlapi"

	dhlDateLayout = "2006-01-02T15:04:05 GMT-07:00"
)

var dhlServiceNames = map[string]string{
	"P": "DHL Express Worldwide",
	"D": "DHL Express Worldwide (Documents)",
	"U": "DHL Express Worldwide (EU)",
	"K": "DHL Express 9:00",
	"T": "DHL Express 12:00",
	"N": "DHL Express Domestic",
	"H": "DHL Economy Select",
}

// DHLClient talks to the MyDHL Express API with basic auth
type DHLClient struct {
	*client
}

// NewDHLClient creates a DHL Express client. APIKey (or ClientID) and
// ClientSecret are the basic auth pair.
func NewDHLClient(cfg Config, deps Deps) *DHLClient {
	c := &DHLClient{client: newClient(domain.CarrierDHL, cfg.baseURL(dhlSandboxURL, dhlProductionURL), cfg, deps)}
	c.auth = newBasicAuth(c.name, cmp.Or(cfg.APIKey, cfg.ClientID), cfg.ClientSecret)
	return c
}

// GetRates returns one quote per DHL product
func (c *DHLClient) GetRates(ctx context.Context, req domain.ShipmentRequest) ([]domain.RateResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, requestError(c.name, err)
	}

	var out dhlRateResponse
	if _, err := c.call(ctx, Request{
		Operation:  "rates",
		Method:     http.MethodPost,
		Path:       "/rates",
		Body:       c.toDHLRateRequest(req),
		Idempotent: true,
	}, &out); err != nil {
		return nil, err
	}

	return c.fromDHLRates(out, req), nil
}

// CreateShipment books a shipment. contents become commercial invoice
// lines for customs declarable shipments.
func (c *DHLClient) CreateShipment(ctx context.Context, req domain.ShipmentRequest, contents ...domain.PackageContents) (*domain.ShipmentResponse, error) {
	if err := req.ValidateForShipment(); err != nil {
		return c.shipmentFailure(ctx, requestError(c.name, err))
	}

	var out dhlShipResponse
	resp, err := c.call(ctx, Request{
		Operation: "ship",
		Method:    http.MethodPost,
		Path:      "/shipments",
		Body:      c.toDHLShipRequest(req, contents),
	}, &out)
	if err != nil {
		return c.shipmentFailure(ctx, err)
	}

	var label *domain.Label
	var docs []domain.Document
	for _, d := range out.Documents {
		if strings.EqualFold(d.TypeCode, "label") && label == nil {
			label = &domain.Label{Data: d.Content, Format: domain.LabelFormat(strings.ToUpper(d.ImageFormat))}
			continue
		}
		docs = append(docs, domain.Document{Type: strings.ToLower(d.TypeCode), Format: d.ImageFormat, Data: d.Content})
	}

	trackingNumber := out.ShipmentTrackingNumber.String()
	result := domain.ShipmentSucceeded(c.name, trackingNumber, trackingNumber, label, resp.Body)
	result.Documents = docs
	return result, nil
}

// GetLabel re-fetches the label image of a shipment
func (c *DHLClient) GetLabel(ctx context.Context, trackingNumber string) *domain.LabelResponse {
	var out struct {
		Documents []dhlDocument `json:"documents"`
	}
	_, err := c.call(ctx, Request{
		Operation: "label",
		Method:    http.MethodGet,
		Path:      "/shipments/" + url.PathEscape(trackingNumber) + "/get-image",
		Query: url.Values{
			"shipperAccountNumber": {c.cfg.AccountNumber},
			"typeCode":             {"label"},
			"pickupYearAndMonth":   {time.Now().UTC().Format("2006-01")},
		},
		Idempotent: true,
	}, &out)
	if err != nil {
		return c.labelFailure(ctx, trackingNumber, err)
	}

	for _, d := range out.Documents {
		if d.Content != "" {
			return domain.LabelFound(c.name, trackingNumber, &domain.Label{
				Data:   d.Content,
				Format: domain.LabelFormat(strings.ToUpper(d.ImageFormat)),
			})
		}
	}
	return domain.LabelNotFound(c.name, trackingNumber, "")
}

// Track returns the shipment status and checkpoint history
func (c *DHLClient) Track(ctx context.Context, trackingNumber string) *domain.TrackingResponse {
	var out dhlTrackResponse
	resp, err := c.call(ctx, Request{
		Operation:  "track",
		Method:     http.MethodGet,
		Path:       "/shipments/" + url.PathEscape(trackingNumber) + "/tracking",
		Query:      url.Values{"trackingView": {"all-checkpoints"}, "levelOfDetail": {"all"}},
		Idempotent: true,
	}, &out)
	if err != nil {
		return c.trackingFailure(ctx, trackingNumber, err)
	}
	if len(out.Shipments) == 0 {
		return c.trackingFailure(ctx, trackingNumber, domain.NewCarrierError(c.name, domain.ErrorKindBusiness, "no tracking results", nil))
	}

	shipment := out.Shipments[0]
	events := make([]domain.TrackingEvent, 0, len(shipment.Events))
	for _, e := range shipment.Events {
		ts, _ := parseTime(strings.TrimSpace(e.Date + "T" + e.Time))
		events = append(events, domain.NewTrackingEvent(ts, e.TypeCode, e.Description, e.location()))
	}

	details := domain.TrackingDetails{
		RawStatus:         shipment.Status.StatusCode,
		Description:       shipment.Status.Description,
		EstimatedDelivery: parseTimePtr(shipment.EstimatedDeliveryDate),
		Events:            events,
		RawResponse:       resp.Body,
	}
	result := domain.NewTrackingResponse(c.name, cmp.Or(shipment.ShipmentTrackingNumber.String(), trackingNumber), details)
	if result.Status == domain.TrackingStatusDelivered && len(result.Events) > 0 {
		delivered := result.Events[0].Timestamp
		result.DeliveredAt = &delivered
	}
	return result
}

// CancelShipment is not offered by MyDHL once a shipment is booked
func (c *DHLClient) CancelShipment(ctx context.Context, trackingNumber string) bool {
	c.logger.WithContext(ctx).Info("DHL does not support shipment cancellation", "trackingNumber", trackingNumber)
	return false
}

// ValidateAddress is unsupported; the address is returned unchanged
func (c *DHLClient) ValidateAddress(_ context.Context, address domain.Address) domain.Address {
	return address
}

// --- Translation methods ---

func (c *DHLClient) plannedShipDate(req domain.ShipmentRequest) string {
	ship := time.Now().UTC()
	if req.ShipDate != nil {
		ship = req.ShipDate.UTC()
	}
	return ship.Format(dhlDateLayout)
}

func (c *DHLClient) toDHLRateRequest(req domain.ShipmentRequest) dhlRateRequest {
	return dhlRateRequest{
		CustomerDetails: dhlRateCustomers{
			ShipperDetails:  toDHLRateAddress(req.Shipper),
			ReceiverDetails: toDHLRateAddress(req.Recipient),
		},
		Accounts:                   c.accounts(),
		ProductCode:                req.ServiceCode,
		PlannedShippingDateAndTime: c.plannedShipDate(req),
		UnitOfMeasurement:          "metric",
		IsCustomsDeclarable:        req.IsInternational(),
		Packages:                   toDHLPackages(req.Packages),
	}
}

func (c *DHLClient) toDHLShipRequest(req domain.ShipmentRequest, contents []domain.PackageContents) dhlShipRequest {
	format := strings.ToLower(string(req.LabelFormatOrDefault()))
	if format == "png" {
		format = "pdf"
	}

	content := dhlContent{
		Packages:              toDHLPackages(req.Packages),
		IsCustomsDeclarable:   req.IsInternational(),
		DeclaredValue:         req.TotalDeclaredValue(),
		DeclaredValueCurrency: req.CurrencyOrDefault(),
		Description:           c.description(req, contents),
		UnitOfMeasurement:     "metric",
		Incoterm:              "DAP",
	}
	if req.IsInternational() && len(contents) > 0 {
		content.ExportDeclaration = c.exportDeclaration(req, contents)
	}

	return dhlShipRequest{
		PlannedShippingDateAndTime: c.plannedShipDate(req),
		Pickup:                     dhlPickup{IsRequested: false},
		ProductCode:                c.service(req),
		Accounts:                   c.accounts(),
		OutputImageProperties: dhlOutputImage{
			EncodingFormat: format,
			ImageOptions:   []dhlImageOption{{TypeCode: "label", TemplateName: "ECOM26_84_001"}},
		},
		CustomerDetails: dhlShipCustomers{
			ShipperDetails:  toDHLParty(req.Shipper),
			ReceiverDetails: toDHLParty(req.Recipient),
		},
		Content:            content,
		CustomerReferences: dhlReferences(req.Reference),
	}
}

func (c *DHLClient) description(req domain.ShipmentRequest, contents []domain.PackageContents) string {
	for _, item := range contents {
		if item.Description != "" {
			return item.Description
		}
	}
	for _, p := range req.Packages {
		if p.Description != "" {
			return p.Description
		}
	}
	return "Merchandise"
}

func (c *DHLClient) exportDeclaration(req domain.ShipmentRequest, contents []domain.PackageContents) *dhlExportDeclaration {
	lines := make([]dhlLineItem, 0, len(contents))
	for i, item := range contents {
		weight := roundUp(item.WeightKG() * float64(item.Quantity))
		line := dhlLineItem{
			Number:              i + 1,
			Description:         item.Description,
			Price:               item.UnitValue,
			Quantity:            dhlQuantity{Value: item.Quantity, UnitOfMeasurement: "PCS"},
			ExportReasonType:    "permanent",
			ManufacturerCountry: strings.ToUpper(cmp.Or(item.CountryOfOrigin, req.Shipper.Country)),
			Weight:              dhlLineWeight{NetValue: weight, GrossValue: weight},
		}
		if item.HSCode != "" {
			line.CommodityCodes = []dhlCommodityCode{{TypeCode: "outbound", Value: item.HSCode}}
		}
		lines = append(lines, line)
	}

	invoiceNumber := cmp.Or(req.Reference, "INV-"+time.Now().UTC().Format("20060102150405"))
	return &dhlExportDeclaration{
		LineItems: lines,
		Invoice:   dhlInvoice{Number: invoiceNumber, Date: time.Now().UTC().Format("2006-01-02")},
	}
}

func (c *DHLClient) accounts() []dhlAccount {
	if c.cfg.AccountNumber == "" {
		return nil
	}
	return []dhlAccount{{TypeCode: "shipper", Number: c.cfg.AccountNumber}}
}

func (c *DHLClient) fromDHLRates(out dhlRateResponse, req domain.ShipmentRequest) []domain.RateResponse {
	rates := make([]domain.RateResponse, 0, len(out.Products))
	for _, p := range out.Products {
		price, currency, ok := p.billedPrice()
		if !ok {
			continue
		}
		rates = append(rates, domain.RateResponse{
			Carrier:           c.name,
			ServiceCode:       p.ProductCode,
			ServiceName:       cmp.Or(p.ProductName, c.cfg.serviceName(p.ProductCode, dhlServiceNames)),
			Price:             price,
			Currency:          cmp.Or(currency, req.CurrencyOrDefault()),
			TransitDays:       p.DeliveryCapabilities.TotalTransitDays.Int(),
			EstimatedDelivery: parseTimePtr(p.DeliveryCapabilities.EstimatedDeliveryDateAndTime),
		})
	}
	return rates
}

func toDHLRateAddress(a domain.Address) dhlRateAddress {
	return dhlRateAddress{
		PostalCode:  a.PostalCode,
		CityName:    a.City,
		CountryCode: strings.ToUpper(a.Country),
	}
}

func toDHLParty(a domain.Address) dhlParty {
	lines := a.StreetLines()
	postal := dhlPostalAddress{
		PostalCode:   a.PostalCode,
		CityName:     a.City,
		CountryCode:  strings.ToUpper(a.Country),
		ProvinceCode: a.State,
	}
	if len(lines) > 0 {
		postal.AddressLine1 = lines[0]
	}
	if len(lines) > 1 {
		postal.AddressLine2 = lines[1]
	}
	return dhlParty{
		PostalAddress: postal,
		ContactInformation: dhlContact{
			FullName:    a.Name,
			CompanyName: cmp.Or(a.Company, a.Name),
			Phone:       a.Phone,
			Email:       a.Email,
		},
	}
}

func toDHLPackages(packages []domain.Package) []dhlPackage {
	out := make([]dhlPackage, 0, len(packages))
	for _, p := range packages {
		l, w, h := p.DimensionsCM()
		out = append(out, dhlPackage{
			Weight: roundUp(p.WeightKG()),
			Dimensions: dhlDimensions{
				Length: roundUp(l),
				Width:  roundUp(w),
				Height: roundUp(h),
			},
		})
	}
	return out
}

func dhlReferences(reference string) []dhlReference {
	if reference == "" {
		return nil
	}
	return []dhlReference{{Value: reference, TypeCode: "CU"}}
}

// --- DHL API models ---

type dhlAccount struct {
	TypeCode string `json:"typeCode"`
	Number   string `json:"number"`
}

type dhlRateAddress struct {
	PostalCode  string `json:"postalCode"`
	CityName    string `json:"cityName,omitempty"`
	CountryCode string `json:"countryCode"`
}

type dhlRateCustomers struct {
	ShipperDetails  dhlRateAddress `json:"shipperDetails"`
	ReceiverDetails dhlRateAddress `json:"receiverDetails"`
}

type dhlDimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type dhlPackage struct {
	Weight     float64       `json:"weight"`
	Dimensions dhlDimensions `json:"dimensions"`
}

type dhlRateRequest struct {
	CustomerDetails            dhlRateCustomers `json:"customerDetails"`
	Accounts                   []dhlAccount     `json:"accounts,omitempty"`
	ProductCode                string           `json:"productCode,omitempty"`
	PlannedShippingDateAndTime string           `json:"plannedShippingDateAndTime"`
	UnitOfMeasurement          string           `json:"unitOfMeasurement"`
	IsCustomsDeclarable        bool             `json:"isCustomsDeclarable"`
	Packages                   []dhlPackage     `json:"packages"`
}

type dhlPrice struct {
	CurrencyType  string          `json:"currencyType"`
	PriceCurrency string          `json:"priceCurrency"`
	Price         decimal.Decimal `json:"price"`
}

type dhlProduct struct {
	ProductName          string     `json:"productName"`
	ProductCode          string     `json:"productCode"`
	TotalPrice           []dhlPrice `json:"totalPrice"`
	DeliveryCapabilities struct {
		EstimatedDeliveryDateAndTime string     `json:"estimatedDeliveryDateAndTime"`
		TotalTransitDays             flexString `json:"totalTransitDays"`
	} `json:"deliveryCapabilities"`
}

// billedPrice picks the billing currency price, falling back to the
// first positive one.
func (p dhlProduct) billedPrice() (decimal.Decimal, string, bool) {
	for _, tp := range p.TotalPrice {
		if tp.CurrencyType == "BILLC" && tp.Price.IsPositive() {
			return tp.Price, tp.PriceCurrency, true
		}
	}
	for _, tp := range p.TotalPrice {
		if tp.Price.IsPositive() {
			return tp.Price, tp.PriceCurrency, true
		}
	}
	return decimal.Zero, "", false
}

type dhlRateResponse struct {
	Products []dhlProduct `json:"products"`
}

type dhlPostalAddress struct {
	PostalCode   string `json:"postalCode"`
	CityName     string `json:"cityName"`
	CountryCode  string `json:"countryCode"`
	ProvinceCode string `json:"provinceCode,omitempty"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
}

type dhlContact struct {
	FullName    string `json:"fullName"`
	CompanyName string `json:"companyName"`
	Phone       string `json:"phone"`
	Email       string `json:"email,omitempty"`
}

type dhlParty struct {
	PostalAddress      dhlPostalAddress `json:"postalAddress"`
	ContactInformation dhlContact       `json:"contactInformation"`
}

type dhlShipCustomers struct {
	ShipperDetails  dhlParty `json:"shipperDetails"`
	ReceiverDetails dhlParty `json:"receiverDetails"`
}

type dhlPickup struct {
	IsRequested bool `json:"isRequested"`
}

type dhlImageOption struct {
	TypeCode     string `json:"typeCode"`
	TemplateName string `json:"templateName,omitempty"`
}

type dhlOutputImage struct {
	EncodingFormat string           `json:"encodingFormat"`
	ImageOptions   []dhlImageOption `json:"imageOptions"`
}

type dhlQuantity struct {
	Value             int    `json:"value"`
	UnitOfMeasurement string `json:"unitOfMeasurement"`
}

type dhlCommodityCode struct {
	TypeCode string `json:"typeCode"`
	Value    string `json:"value"`
}

type dhlLineWeight struct {
	NetValue   float64 `json:"netValue"`
	GrossValue float64 `json:"grossValue"`
}

type dhlLineItem struct {
	Number              int                `json:"number"`
	Description         string             `json:"description"`
	Price               decimal.Decimal    `json:"price"`
	Quantity            dhlQuantity        `json:"quantity"`
	CommodityCodes      []dhlCommodityCode `json:"commodityCodes,omitempty"`
	ExportReasonType    string             `json:"exportReasonType"`
	ManufacturerCountry string             `json:"manufacturerCountry"`
	Weight              dhlLineWeight      `json:"weight"`
}

type dhlInvoice struct {
	Number string `json:"number"`
	Date   string `json:"date"`
}

type dhlExportDeclaration struct {
	LineItems []dhlLineItem `json:"lineItems"`
	Invoice   dhlInvoice    `json:"invoice"`
}

type dhlContent struct {
	Packages              []dhlPackage          `json:"packages"`
	IsCustomsDeclarable   bool                  `json:"isCustomsDeclarable"`
	DeclaredValue         decimal.Decimal       `json:"declaredValue"`
	DeclaredValueCurrency string                `json:"declaredValueCurrency"`
	Description           string                `json:"description"`
	UnitOfMeasurement     string                `json:"unitOfMeasurement"`
	Incoterm              string                `json:"incoterm"`
	ExportDeclaration     *dhlExportDeclaration `json:"exportDeclaration,omitempty"`
}

type dhlReference struct {
	Value    string `json:"value"`
	TypeCode string `json:"typeCode"`
}

type dhlShipRequest struct {
	PlannedShippingDateAndTime string           `json:"plannedShippingDateAndTime"`
	Pickup                     dhlPickup        `json:"pickup"`
	ProductCode                string           `json:"productCode"`
	Accounts                   []dhlAccount     `json:"accounts,omitempty"`
	OutputImageProperties      dhlOutputImage   `json:"outputImageProperties"`
	CustomerDetails            dhlShipCustomers `json:"customerDetails"`
	Content                    dhlContent       `json:"content"`
	CustomerReferences         []dhlReference   `json:"customerReferences,omitempty"`
}

type dhlDocument struct {
	TypeCode    string `json:"typeCode"`
	ImageFormat string `json:"imageFormat"`
	Content     string `json:"content"`
}

type dhlShipResponse struct {
	ShipmentTrackingNumber flexString    `json:"shipmentTrackingNumber"`
	TrackingURL            string        `json:"trackingUrl"`
	Documents              []dhlDocument `json:"documents"`
}

type dhlTrackEvent struct {
	Date        string `json:"date"`
	Time        string `json:"time"`
	TypeCode    string `json:"typeCode"`
	Description string `json:"description"`
	ServiceArea []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"serviceArea"`
}

func (e dhlTrackEvent) location() string {
	if len(e.ServiceArea) == 0 {
		return ""
	}
	return cmp.Or(e.ServiceArea[0].Description, e.ServiceArea[0].Code)
}

type dhlTrackResponse struct {
	Shipments []struct {
		ShipmentTrackingNumber flexString `json:"shipmentTrackingNumber"`
		Status                 struct {
			StatusCode  string `json:"statusCode"`
			Description string `json:"description"`
		} `json:"status"`
		EstimatedDeliveryDate string          `json:"estimatedDeliveryDate"`
		Events                []dhlTrackEvent `json:"events"`
	} `json:"shipments"`
}
