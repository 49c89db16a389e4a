package carriers

import (
	"cmp"
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/usama216/shipping-market-sub004/internal/domain"
)

const (
	upsSandboxURL    = "https://wwwcie.ups.com"
	upsProductionURL = "https://onlinetools.ups.com"
	upsAPIVersion    = "v2403"
)

var upsServiceNames = map[string]string{
	"01": "UPS Next Day Air",
	"02": "UPS 2nd Day Air",
	"03": "UPS Ground",
	"07": "UPS Worldwide Express",
	"08": "UPS Worldwide Expedited",
	"11": "UPS Standard",
	"12": "UPS 3 Day Select",
	"13": "UPS Next Day Air Saver",
	"14": "UPS Next Day Air Early",
	"54": "UPS Worldwide Express Plus",
	"59": "UPS 2nd Day Air A.M.",
	"65": "UPS Worldwide Saver",
}

// UPSClient talks to the UPS REST APIs with OAuth client credentials
type UPSClient struct {
	*client
}

// NewUPSClient creates a UPS client
func NewUPSClient(cfg Config, deps Deps) *UPSClient {
	deps = deps.withDefaults()
	c := &UPSClient{client: newClient(domain.CarrierUPS, cfg.baseURL(upsSandboxURL, upsProductionURL), cfg, deps)}
	c.auth = bearerAuth{session: NewAuthSession(domain.CarrierUPS, c.fetchToken, deps)}
	return c
}

func (c *UPSClient) fetchToken(ctx context.Context) (Token, error) {
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return Token{}, authError(c.name, "client credentials are not configured", domain.ErrMissingCredentials)
	}

	header := http.Header{}
	header.Set("Authorization", "Basic "+basicCredentials(c.cfg.ClientID, c.cfg.ClientSecret))
	if c.cfg.AccountNumber != "" {
		header.Set("x-merchant-id", c.cfg.AccountNumber)
	}

	// UPS sends expires_in as a string
	var out struct {
		AccessToken string     `json:"access_token"`
		ExpiresIn   flexString `json:"expires_in"`
		Status      string     `json:"status"`
	}
	_, err := c.transport.DoJSON(ctx, Request{
		Operation: "token",
		Method:    http.MethodPost,
		Path:      "/security/v1/oauth/token",
		Form:      url.Values{"grant_type": {"client_credentials"}},
		Header:    header,
	}, &out)
	if err != nil {
		return Token{}, err
	}
	return Token{
		AccessToken: out.AccessToken,
		ExpiresAt:   expiresIn(time.Now(), out.ExpiresIn.Int()),
	}, nil
}

func (c *UPSClient) headers() http.Header {
	h := http.Header{}
	h.Set("transId", uuid.NewString())
	h.Set("transactionSrc", "shipping-gateway")
	return h
}

// GetRates shops every UPS service for the route
func (c *UPSClient) GetRates(ctx context.Context, req domain.ShipmentRequest) ([]domain.RateResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, requestError(c.name, err)
	}

	var out upsRateResponse
	if _, err := c.call(ctx, Request{
		Operation:  "rates",
		Method:     http.MethodPost,
		Path:       "/api/rating/" + upsAPIVersion + "/Shop",
		Body:       c.toUPSRateRequest(req),
		Header:     c.headers(),
		Idempotent: true,
	}, &out); err != nil {
		return nil, err
	}

	rates := make([]domain.RateResponse, 0, len(out.RateResponse.RatedShipment))
	for _, rs := range out.RateResponse.RatedShipment {
		charges := rs.TotalCharges
		if rs.NegotiatedRateCharges != nil && rs.NegotiatedRateCharges.TotalCharge.MonetaryValue.IsPositive() {
			charges = rs.NegotiatedRateCharges.TotalCharge
		}
		rates = append(rates, domain.RateResponse{
			Carrier:     c.name,
			ServiceCode: rs.Service.Code,
			ServiceName: c.cfg.serviceName(rs.Service.Code, upsServiceNames),
			Price:       charges.MonetaryValue,
			Currency:    cmp.Or(charges.CurrencyCode, domain.DefaultCurrency),
			TransitDays: rs.GuaranteedDelivery.BusinessDaysInTransit.Int(),
		})
	}
	return rates, nil
}

// CreateShipment books a shipment and returns the label inline
func (c *UPSClient) CreateShipment(ctx context.Context, req domain.ShipmentRequest, _ ...domain.PackageContents) (*domain.ShipmentResponse, error) {
	if err := req.ValidateForShipment(); err != nil {
		return c.shipmentFailure(ctx, requestError(c.name, err))
	}

	var out upsShipResponse
	resp, err := c.call(ctx, Request{
		Operation: "ship",
		Method:    http.MethodPost,
		Path:      "/api/shipments/" + upsAPIVersion + "/ship",
		Body:      c.toUPSShipRequest(req),
		Header:    c.headers(),
	}, &out)
	if err != nil {
		return c.shipmentFailure(ctx, err)
	}

	results := out.ShipmentResponse.ShipmentResults
	trackingNumber := ""
	var label *domain.Label
	for _, pkg := range results.PackageResults {
		trackingNumber = cmp.Or(trackingNumber, pkg.TrackingNumber)
		if label == nil && pkg.ShippingLabel.GraphicImage != "" {
			label = &domain.Label{
				Data:   pkg.ShippingLabel.GraphicImage,
				Format: domain.LabelFormat(strings.ToUpper(pkg.ShippingLabel.ImageFormat.Code)),
			}
		}
	}
	if trackingNumber == "" {
		trackingNumber = results.ShipmentIdentificationNumber
	}

	return domain.ShipmentSucceeded(c.name, trackingNumber, results.ShipmentIdentificationNumber, label, resp.Body), nil
}

// GetLabel recovers the label of an existing shipment
func (c *UPSClient) GetLabel(ctx context.Context, trackingNumber string) *domain.LabelResponse {
	var out struct {
		LabelRecoveryResponse struct {
			LabelResults oneOrMany[struct {
				TrackingNumber string        `json:"TrackingNumber"`
				LabelImage     upsLabelImage `json:"LabelImage"`
			}] `json:"LabelResults"`
		} `json:"LabelRecoveryResponse"`
	}
	_, err := c.call(ctx, Request{
		Operation: "label",
		Method:    http.MethodPost,
		Path:      "/api/labels/" + upsAPIVersion + "/recovery",
		Body: map[string]any{
			"LabelRecoveryRequest": map[string]any{
				"LabelSpecification": map[string]any{"LabelImageFormat": upsCode{Code: "PNG"}},
				"TrackingNumber":     trackingNumber,
			},
		},
		Header:     c.headers(),
		Idempotent: true,
	}, &out)
	if err != nil {
		return c.labelFailure(ctx, trackingNumber, err)
	}

	for _, r := range out.LabelRecoveryResponse.LabelResults {
		if r.LabelImage.GraphicImage != "" {
			return domain.LabelFound(c.name, trackingNumber, &domain.Label{
				Data:   r.LabelImage.GraphicImage,
				Format: domain.LabelFormat(strings.ToUpper(r.LabelImage.ImageFormat.Code)),
			})
		}
	}
	return domain.LabelNotFound(c.name, trackingNumber, "")
}

// Track returns the package status and activity history
func (c *UPSClient) Track(ctx context.Context, trackingNumber string) *domain.TrackingResponse {
	var out upsTrackResponse
	resp, err := c.call(ctx, Request{
		Operation:  "track",
		Method:     http.MethodGet,
		Path:       "/api/track/v1/details/" + url.PathEscape(trackingNumber),
		Query:      url.Values{"locale": {"en_US"}, "returnSignature": {"false"}},
		Header:     c.headers(),
		Idempotent: true,
	}, &out)
	if err != nil {
		return c.trackingFailure(ctx, trackingNumber, err)
	}

	if len(out.TrackResponse.Shipment) == 0 {
		return c.trackingFailure(ctx, trackingNumber, domain.NewCarrierError(c.name, domain.ErrorKindBusiness, "no tracking results", nil))
	}
	shipment := out.TrackResponse.Shipment[0]
	if len(shipment.Package) == 0 {
		message := "no tracking results"
		if len(shipment.Warnings) > 0 {
			message = shipment.Warnings[0].Message
		}
		return c.trackingFailure(ctx, trackingNumber, domain.NewCarrierError(c.name, domain.ErrorKindBusiness, message, nil))
	}
	pkg := shipment.Package[0]

	events := make([]domain.TrackingEvent, 0, len(pkg.Activity))
	for _, a := range pkg.Activity {
		ts, _ := parseTime(a.Date + a.Time)
		events = append(events, domain.NewTrackingEvent(ts, a.Status.Type, a.Status.Description, a.Location.Address.String()))
	}

	details := domain.TrackingDetails{
		Description: pkg.CurrentStatus.Description,
		Events:      events,
		RawResponse: resp.Body,
	}
	if len(pkg.Activity) > 0 {
		details.RawStatus = latestUPSActivity(pkg.Activity).Status.Type
	}
	for _, d := range pkg.DeliveryDate {
		switch d.Type {
		case "DEL":
			details.DeliveredAt = parseTimePtr(d.Date + pkg.DeliveryTime.EndTime)
		case "SDD", "RDD":
			details.EstimatedDelivery = parseTimePtr(d.Date)
		}
	}

	return domain.NewTrackingResponse(c.name, cmp.Or(pkg.TrackingNumber, trackingNumber), details)
}

// CancelShipment voids a shipment by its identification number
func (c *UPSClient) CancelShipment(ctx context.Context, trackingNumber string) bool {
	var out struct {
		VoidShipmentResponse struct {
			SummaryResult struct {
				Status upsStatus `json:"Status"`
			} `json:"SummaryResult"`
		} `json:"VoidShipmentResponse"`
	}
	_, err := c.call(ctx, Request{
		Operation: "cancel",
		Method:    http.MethodDelete,
		Path:      "/api/shipments/" + upsAPIVersion + "/void/cancel/" + url.PathEscape(trackingNumber),
		Header:    c.headers(),
	}, &out)
	if err != nil {
		return c.cancelFailure(ctx, trackingNumber, err)
	}
	return out.VoidShipmentResponse.SummaryResult.Status.Code == "1"
}

// ValidateAddress returns the first street level candidate
func (c *UPSClient) ValidateAddress(ctx context.Context, address domain.Address) domain.Address {
	var out struct {
		XAVResponse struct {
			Candidate oneOrMany[struct {
				AddressKeyFormat upsAddressKeyFormat `json:"AddressKeyFormat"`
			}] `json:"Candidate"`
		} `json:"XAVResponse"`
	}
	_, err := c.call(ctx, Request{
		Operation: "address",
		Method:    http.MethodPost,
		Path:      "/api/addressvalidation/v2/1",
		Body: map[string]any{
			"XAVRequest": map[string]any{
				"AddressKeyFormat": upsAddressKeyFormat{
					ConsigneeName:      address.Name,
					AddressLine:        address.StreetLines(),
					PoliticalDivision2: address.City,
					PoliticalDivision1: address.State,
					PostcodePrimaryLow: address.PostalCode,
					CountryCode:        strings.ToUpper(address.Country),
				},
			},
		},
		Header:     c.headers(),
		Idempotent: true,
	}, &out)
	if err != nil {
		return c.addressFailure(ctx, address, err)
	}
	if len(out.XAVResponse.Candidate) == 0 {
		return address
	}

	k := out.XAVResponse.Candidate[0].AddressKeyFormat
	result := address
	if len(k.AddressLine) > 0 {
		result.Street1 = k.AddressLine[0]
		result.Street2 = strings.Join(k.AddressLine[1:], " ")
	}
	result.City = cmp.Or(k.PoliticalDivision2, address.City)
	result.State = cmp.Or(k.PoliticalDivision1, address.State)
	if k.PostcodePrimaryLow != "" {
		result.PostalCode = k.PostcodePrimaryLow
		if k.PostcodeExtendedLow != "" {
			result.PostalCode += "-" + k.PostcodeExtendedLow
		}
	}
	result.Country = cmp.Or(k.CountryCode, address.Country)
	return result
}

// --- Translation methods ---

func (c *UPSClient) toUPSShipment(req domain.ShipmentRequest) upsShipment {
	shipper := toUPSParty(req.Shipper)
	shipper.ShipperNumber = c.cfg.AccountNumber
	from := toUPSParty(req.Shipper)
	return upsShipment{
		Shipper:  shipper,
		ShipTo:   toUPSParty(req.Recipient),
		ShipFrom: &from,
		Package:  toUPSPackages(req.Packages, "PackagingType"),
	}
}

func (c *UPSClient) toUPSRateRequest(req domain.ShipmentRequest) map[string]any {
	shipment := c.toUPSShipment(req)
	if c.cfg.AccountNumber != "" {
		shipment.ShipmentRatingOptions = &upsRatingOptions{NegotiatedRatesIndicator: "Y"}
	}
	return map[string]any{
		"RateRequest": map[string]any{
			"Request": map[string]any{
				"RequestOption":        "Shop",
				"TransactionReference": map[string]string{"CustomerContext": req.Reference},
			},
			"Shipment": shipment,
		},
	}
}

func (c *UPSClient) toUPSShipRequest(req domain.ShipmentRequest) map[string]any {
	shipment := c.toUPSShipment(req)
	shipment.Description = cmp.Or(req.Reference, "Merchandise")
	shipment.Service = &upsCode{Code: c.service(req)}
	shipment.Package = toUPSPackages(req.Packages, "Packaging")
	shipment.PaymentInformation = &upsPayment{
		ShipmentCharge: []upsShipmentCharge{{Type: "01", BillShipper: upsBillShipper{AccountNumber: c.cfg.AccountNumber}}},
	}
	if req.Reference != "" {
		shipment.ReferenceNumber = &upsReference{Value: req.Reference}
	}

	imageFormat := "PNG"
	if req.LabelFormatOrDefault() == domain.LabelFormatZPL {
		imageFormat = "ZPL"
	}

	return map[string]any{
		"ShipmentRequest": map[string]any{
			"Request":  map[string]any{"RequestOption": "nonvalidate"},
			"Shipment": shipment,
			"LabelSpecification": map[string]any{
				"LabelImageFormat": upsCode{Code: imageFormat},
				"LabelStockSize":   map[string]string{"Height": "6", "Width": "4"},
			},
		},
	}
}

func toUPSParty(a domain.Address) upsParty {
	address := upsAddress{
		AddressLine:       a.StreetLines(),
		City:              a.City,
		StateProvinceCode: a.State,
		PostalCode:        a.PostalCode,
		CountryCode:       strings.ToUpper(a.Country),
	}
	if a.Residential {
		address.ResidentialAddressIndicator = "Y"
	}
	return upsParty{
		Name:          cmp.Or(a.Company, a.Name),
		AttentionName: a.Name,
		Phone:         upsPhone(a.Phone),
		Address:       address,
	}
}

func upsPhone(number string) *upsPhoneNumber {
	if number == "" {
		return nil
	}
	return &upsPhoneNumber{Number: number}
}

// toUPSPackages names the packaging field per API: rating uses
// PackagingType, shipping uses Packaging.
func toUPSPackages(packages []domain.Package, packagingField string) []upsPackage {
	out := make([]upsPackage, 0, len(packages))
	for _, p := range packages {
		l, w, h := p.DimensionsIN()
		pkg := upsPackage{
			Dimensions: upsDimensions{
				UnitOfMeasurement: upsCode{Code: "IN"},
				Length:            formatNumber(roundUp(l)),
				Width:             formatNumber(roundUp(w)),
				Height:            formatNumber(roundUp(h)),
			},
			PackageWeight: upsWeight{
				UnitOfMeasurement: upsCode{Code: "LBS"},
				Weight:            formatNumber(roundUp(p.WeightLB())),
			},
		}
		packaging := &upsCode{Code: "02"}
		if packagingField == "Packaging" {
			pkg.Packaging = packaging
		} else {
			pkg.PackagingType = packaging
		}
		out = append(out, pkg)
	}
	return out
}

func latestUPSActivity(activities []upsActivity) upsActivity {
	latest := activities[0]
	latestAt, _ := parseTime(latest.Date + latest.Time)
	for _, a := range activities[1:] {
		if at, ok := parseTime(a.Date + a.Time); ok && at.After(latestAt) {
			latest, latestAt = a, at
		}
	}
	return latest
}

// --- UPS API models ---

type upsCode struct {
	Code        string `json:"Code"`
	Description string `json:"Description,omitempty"`
}

type upsAddress struct {
	AddressLine                 []string `json:"AddressLine,omitempty"`
	City                        string   `json:"City,omitempty"`
	StateProvinceCode           string   `json:"StateProvinceCode,omitempty"`
	PostalCode                  string   `json:"PostalCode,omitempty"`
	CountryCode                 string   `json:"CountryCode"`
	ResidentialAddressIndicator string   `json:"ResidentialAddressIndicator,omitempty"`
}

type upsPhoneNumber struct {
	Number string `json:"Number"`
}

type upsParty struct {
	Name          string          `json:"Name,omitempty"`
	AttentionName string          `json:"AttentionName,omitempty"`
	ShipperNumber string          `json:"ShipperNumber,omitempty"`
	Phone         *upsPhoneNumber `json:"Phone,omitempty"`
	Address       upsAddress      `json:"Address"`
}

type upsDimensions struct {
	UnitOfMeasurement upsCode `json:"UnitOfMeasurement"`
	Length            string  `json:"Length"`
	Width             string  `json:"Width"`
	Height            string  `json:"Height"`
}

type upsWeight struct {
	UnitOfMeasurement upsCode `json:"UnitOfMeasurement"`
	Weight            string  `json:"Weight"`
}

type upsPackage struct {
	PackagingType *upsCode      `json:"PackagingType,omitempty"`
	Packaging     *upsCode      `json:"Packaging,omitempty"`
	Dimensions    upsDimensions `json:"Dimensions"`
	PackageWeight upsWeight     `json:"PackageWeight"`
}

type upsRatingOptions struct {
	NegotiatedRatesIndicator string `json:"NegotiatedRatesIndicator"`
}

type upsBillShipper struct {
	AccountNumber string `json:"AccountNumber"`
}

type upsShipmentCharge struct {
	Type        string         `json:"Type"`
	BillShipper upsBillShipper `json:"BillShipper"`
}

type upsPayment struct {
	ShipmentCharge []upsShipmentCharge `json:"ShipmentCharge"`
}

type upsReference struct {
	Value string `json:"Value"`
}

type upsShipment struct {
	Description           string            `json:"Description,omitempty"`
	Shipper               upsParty          `json:"Shipper"`
	ShipTo                upsParty          `json:"ShipTo"`
	ShipFrom              *upsParty         `json:"ShipFrom,omitempty"`
	PaymentInformation    *upsPayment       `json:"PaymentInformation,omitempty"`
	Service               *upsCode          `json:"Service,omitempty"`
	Package               []upsPackage      `json:"Package"`
	ReferenceNumber       *upsReference     `json:"ReferenceNumber,omitempty"`
	ShipmentRatingOptions *upsRatingOptions `json:"ShipmentRatingOptions,omitempty"`
}

type upsCharges struct {
	CurrencyCode  string          `json:"CurrencyCode"`
	MonetaryValue decimal.Decimal `json:"MonetaryValue"`
}

type upsRateResponse struct {
	RateResponse struct {
		RatedShipment oneOrMany[struct {
			Service               upsCode    `json:"Service"`
			TotalCharges          upsCharges `json:"TotalCharges"`
			NegotiatedRateCharges *struct {
				TotalCharge upsCharges `json:"TotalCharge"`
			} `json:"NegotiatedRateCharges"`
			GuaranteedDelivery struct {
				BusinessDaysInTransit flexString `json:"BusinessDaysInTransit"`
			} `json:"GuaranteedDelivery"`
		}] `json:"RatedShipment"`
	} `json:"RateResponse"`
}

type upsLabelImage struct {
	ImageFormat  upsCode `json:"LabelImageFormat"`
	GraphicImage string  `json:"GraphicImage"`
}

type upsShipResponse struct {
	ShipmentResponse struct {
		ShipmentResults struct {
			ShipmentIdentificationNumber string `json:"ShipmentIdentificationNumber"`
			PackageResults               oneOrMany[struct {
				TrackingNumber string `json:"TrackingNumber"`
				ShippingLabel  struct {
					ImageFormat  upsCode `json:"ImageFormat"`
					GraphicImage string  `json:"GraphicImage"`
				} `json:"ShippingLabel"`
			}] `json:"PackageResults"`
		} `json:"ShipmentResults"`
	} `json:"ShipmentResponse"`
}

type upsStatus struct {
	Code        string `json:"Code"`
	Description string `json:"Description"`
}

type upsAddressKeyFormat struct {
	ConsigneeName       string            `json:"ConsigneeName,omitempty"`
	AddressLine         oneOrMany[string] `json:"AddressLine,omitempty"`
	PoliticalDivision2  string            `json:"PoliticalDivision2,omitempty"`
	PoliticalDivision1  string            `json:"PoliticalDivision1,omitempty"`
	PostcodePrimaryLow  string            `json:"PostcodePrimaryLow,omitempty"`
	PostcodeExtendedLow string            `json:"PostcodeExtendedLow,omitempty"`
	CountryCode         string            `json:"CountryCode"`
}

type upsActivityAddress struct {
	City          string `json:"city"`
	StateProvince string `json:"stateProvince"`
	CountryCode   string `json:"countryCode"`
}

func (a upsActivityAddress) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{a.City, a.StateProvince, a.CountryCode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

type upsActivityLocation struct {
	Address upsActivityAddress `json:"address"`
}

type upsActivity struct {
	Location upsActivityLocation `json:"location"`
	Status   struct {
		Type        string `json:"type"`
		Description string `json:"description"`
		Code        string `json:"code"`
	} `json:"status"`
	Date string `json:"date"`
	Time string `json:"time"`
}

type upsTrackResponse struct {
	TrackResponse struct {
		Shipment []struct {
			Package []struct {
				TrackingNumber string `json:"trackingNumber"`
				DeliveryDate   []struct {
					Type string `json:"type"`
					Date string `json:"date"`
				} `json:"deliveryDate"`
				DeliveryTime struct {
					EndTime string `json:"endTime"`
				} `json:"deliveryTime"`
				CurrentStatus struct {
					Description string `json:"description"`
					Code        string `json:"code"`
				} `json:"currentStatus"`
				Activity []upsActivity `json:"activity"`
			} `json:"package"`
			Warnings []struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"warnings"`
		} `json:"shipment"`
	} `json:"trackResponse"`
}
