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
	fedexSandboxURL    = "https://apis-sandbox.fedex.com"
	fedexProductionURL = "https://apis.fedex.com"
)

var fedexServiceNames = map[string]string{
	"FEDEX_GROUND":                 "FedEx Ground",
	"GROUND_HOME_DELIVERY":         "FedEx Home Delivery",
	"FEDEX_EXPRESS_SAVER":          "FedEx Express Saver",
	"FEDEX_2_DAY":                  "FedEx 2Day",
	"STANDARD_OVERNIGHT":           "FedEx Standard Overnight",
	"PRIORITY_OVERNIGHT":           "FedEx Priority Overnight",
	"FEDEX_INTERNATIONAL_PRIORITY": "FedEx International Priority",
	"INTERNATIONAL_ECONOMY":        "FedEx International Economy",
}

// FedExClient talks to the FedEx REST APIs with OAuth client credentials
type FedExClient struct {
	*client
}

// NewFedExClient creates a FedEx client
func NewFedExClient(cfg Config, deps Deps) *FedExClient {
	deps = deps.withDefaults()
	c := &FedExClient{client: newClient(domain.CarrierFedEx, cfg.baseURL(fedexSandboxURL, fedexProductionURL), cfg, deps)}
	c.auth = bearerAuth{session: NewAuthSession(domain.CarrierFedEx, c.fetchToken, deps)}
	return c
}

func (c *FedExClient) fetchToken(ctx context.Context) (Token, error) {
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return Token{}, authError(c.name, "client credentials are not configured", domain.ErrMissingCredentials)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	_, err := c.transport.DoJSON(ctx, Request{
		Operation: "token",
		Method:    http.MethodPost,
		Path:      "/oauth/token",
		Form: url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {c.cfg.ClientID},
			"client_secret": {c.cfg.ClientSecret},
		},
	}, &out)
	if err != nil {
		return Token{}, err
	}
	return Token{
		AccessToken: out.AccessToken,
		ExpiresAt:   expiresIn(time.Now(), out.ExpiresIn),
	}, nil
}

// GetRates quotes every FedEx service for the request, or only the
// requested one when a service code is set.
func (c *FedExClient) GetRates(ctx context.Context, req domain.ShipmentRequest) ([]domain.RateResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, requestError(c.name, err)
	}

	var out fedexRateResponse
	if _, err := c.call(ctx, Request{
		Operation:  "rates",
		Method:     http.MethodPost,
		Path:       "/rate/v1/rates/quotes",
		Body:       c.toFedExRateRequest(req),
		Idempotent: true,
	}, &out); err != nil {
		return nil, err
	}

	return c.fromFedExRates(out), nil
}

// CreateShipment books a shipment and returns the label inline
func (c *FedExClient) CreateShipment(ctx context.Context, req domain.ShipmentRequest, _ ...domain.PackageContents) (*domain.ShipmentResponse, error) {
	if err := req.ValidateForShipment(); err != nil {
		return c.shipmentFailure(ctx, requestError(c.name, err))
	}

	var out fedexShipResponse
	resp, err := c.call(ctx, Request{
		Operation: "ship",
		Method:    http.MethodPost,
		Path:      "/ship/v1/shipments",
		Body:      c.toFedExShipRequest(req),
	}, &out)
	if err != nil {
		return c.shipmentFailure(ctx, err)
	}

	return c.fromFedExShipResponse(out, req.LabelFormatOrDefault(), resp.Body), nil
}

// GetLabel is not offered by the FedEx REST API; labels are only returned
// at creation time.
func (c *FedExClient) GetLabel(ctx context.Context, trackingNumber string) *domain.LabelResponse {
	return domain.LabelNotFound(c.name, trackingNumber, "label re-fetch is not supported by fedex")
}

// Track returns the latest status and scan history
func (c *FedExClient) Track(ctx context.Context, trackingNumber string) *domain.TrackingResponse {
	var out fedexTrackResponse
	resp, err := c.call(ctx, Request{
		Operation: "track",
		Method:    http.MethodPost,
		Path:      "/track/v1/trackingnumbers",
		Body: map[string]any{
			"includeDetailedScans": true,
			"trackingInfo": []map[string]any{
				{"trackingNumberInfo": map[string]string{"trackingNumber": trackingNumber}},
			},
		},
		Idempotent: true,
	}, &out)
	if err != nil {
		return c.trackingFailure(ctx, trackingNumber, err)
	}

	return c.fromFedExTrackResponse(ctx, trackingNumber, out, resp.Body)
}

// CancelShipment deletes all packages of a shipment
func (c *FedExClient) CancelShipment(ctx context.Context, trackingNumber string) bool {
	var out struct {
		Output struct {
			CancelledShipment bool   `json:"cancelledShipment"`
			Message           string `json:"message"`
		} `json:"output"`
	}
	_, err := c.call(ctx, Request{
		Operation: "cancel",
		Method:    http.MethodPut,
		Path:      "/ship/v1/shipments/cancel",
		Body: map[string]any{
			"accountNumber":   fedexAccount{Value: c.cfg.AccountNumber},
			"trackingNumber":  trackingNumber,
			"deletionControl": "DELETE_ALL_PACKAGES",
		},
	}, &out)
	if err != nil {
		return c.cancelFailure(ctx, trackingNumber, err)
	}
	if !out.Output.CancelledShipment {
		c.logger.WithContext(ctx).Warn("FedEx declined cancellation", "trackingNumber", trackingNumber, "message", out.Output.Message)
	}
	return out.Output.CancelledShipment
}

// ValidateAddress resolves the address to its standardized form
func (c *FedExClient) ValidateAddress(ctx context.Context, address domain.Address) domain.Address {
	var out struct {
		Output struct {
			ResolvedAddresses []struct {
				StreetLinesToken    []string `json:"streetLinesToken"`
				City                string   `json:"city"`
				StateOrProvinceCode string   `json:"stateOrProvinceCode"`
				PostalCode          string   `json:"postalCode"`
				CountryCode         string   `json:"countryCode"`
				Classification      string   `json:"classification"`
			} `json:"resolvedAddresses"`
		} `json:"output"`
	}
	_, err := c.call(ctx, Request{
		Operation: "address",
		Method:    http.MethodPost,
		Path:      "/address/v1/addresses/resolve",
		Body: map[string]any{
			"addressesToValidate": []map[string]any{{"address": toFedExAddress(address)}},
		},
		Idempotent: true,
	}, &out)
	if err != nil {
		return c.addressFailure(ctx, address, err)
	}
	if len(out.Output.ResolvedAddresses) == 0 {
		return address
	}

	resolved := out.Output.ResolvedAddresses[0]
	result := address
	if len(resolved.StreetLinesToken) > 0 {
		result.Street1 = resolved.StreetLinesToken[0]
		result.Street2 = strings.Join(resolved.StreetLinesToken[1:], " ")
	}
	result.City = cmp.Or(resolved.City, address.City)
	result.State = cmp.Or(resolved.StateOrProvinceCode, address.State)
	result.PostalCode = cmp.Or(resolved.PostalCode, address.PostalCode)
	result.Country = cmp.Or(resolved.CountryCode, address.Country)
	switch strings.ToUpper(resolved.Classification) {
	case "RESIDENTIAL":
		result.Residential = true
	case "BUSINESS":
		result.Residential = false
	}
	return result
}

// --- Translation methods ---

func (c *FedExClient) toFedExRateRequest(req domain.ShipmentRequest) fedexRateRequest {
	return fedexRateRequest{
		AccountNumber: fedexAccount{Value: c.cfg.AccountNumber},
		RequestedShipment: fedexRequestedShipment{
			Shipper:                   fedexParty{Address: toFedExAddress(req.Shipper)},
			Recipient:                 &fedexParty{Address: toFedExAddress(req.Recipient)},
			PickupType:                "DROPOFF_AT_FEDEX_LOCATION",
			ServiceType:               req.ServiceCode,
			RateRequestType:           []string{"ACCOUNT", "LIST"},
			PreferredCurrency:         req.CurrencyOrDefault(),
			RequestedPackageLineItems: toFedExPackages(req.Packages),
		},
	}
}

func (c *FedExClient) toFedExShipRequest(req domain.ShipmentRequest) fedexShipRequest {
	shipDate := time.Now()
	if req.ShipDate != nil {
		shipDate = *req.ShipDate
	}
	shipper := toFedExParty(req.Shipper)
	recipient := toFedExParty(req.Recipient)

	imageType := "PDF"
	if f := req.LabelFormatOrDefault(); f != domain.LabelFormatPDF {
		imageType = string(f)
	}

	packages := toFedExPackages(req.Packages)
	if req.Reference != "" {
		for i := range packages {
			packages[i].CustomerReferences = []fedexReference{{CustomerReferenceType: "CUSTOMER_REFERENCE", Value: req.Reference}}
		}
	}

	return fedexShipRequest{
		LabelResponseOptions: "LABEL",
		AccountNumber:        fedexAccount{Value: c.cfg.AccountNumber},
		RequestedShipment: fedexRequestedShipment{
			Shipper:                   shipper,
			Recipients:                []fedexParty{recipient},
			ShipDatestamp:             shipDate.Format("2006-01-02"),
			ServiceType:               c.service(req),
			PackagingType:             "YOUR_PACKAGING",
			PickupType:                "USE_SCHEDULED_PICKUP",
			ShippingChargesPayment:    &fedexPayment{PaymentType: "SENDER"},
			LabelSpecification:        &fedexLabelSpec{ImageType: imageType, LabelStockType: "PAPER_85X11_TOP_HALF_LABEL"},
			RequestedPackageLineItems: packages,
		},
	}
}

func (c *FedExClient) fromFedExRates(out fedexRateResponse) []domain.RateResponse {
	rates := make([]domain.RateResponse, 0, len(out.Output.RateReplyDetails))
	for _, d := range out.Output.RateReplyDetails {
		if len(d.RatedShipmentDetails) == 0 {
			continue
		}
		detail := d.RatedShipmentDetails[0]
		for _, rsd := range d.RatedShipmentDetails {
			if rsd.RateType == "ACCOUNT" {
				detail = rsd
				break
			}
		}

		days := transitDays(d.OperationalDetail.TransitTime)
		if days == 0 {
			days = transitDays(d.Commit.TransitDays.MinimumTransitTime)
		}

		rates = append(rates, domain.RateResponse{
			Carrier:           c.name,
			ServiceCode:       d.ServiceType,
			ServiceName:       cmp.Or(d.ServiceName, c.cfg.serviceName(d.ServiceType, fedexServiceNames)),
			Price:             detail.TotalNetCharge,
			Currency:          cmp.Or(detail.Currency, domain.DefaultCurrency),
			TransitDays:       days,
			EstimatedDelivery: parseTimePtr(d.Commit.DateDetail.DayFormat),
		})
	}
	return rates
}

func (c *FedExClient) fromFedExShipResponse(out fedexShipResponse, format domain.LabelFormat, raw []byte) *domain.ShipmentResponse {
	if len(out.Output.TransactionShipments) == 0 {
		return domain.ShipmentFailed(c.name, "fedex returned no shipment", nil, raw)
	}
	shipment := out.Output.TransactionShipments[0]

	trackingNumber := shipment.MasterTrackingNumber
	var label *domain.Label
	for _, piece := range shipment.PieceResponses {
		trackingNumber = cmp.Or(trackingNumber, piece.TrackingNumber)
		for _, doc := range piece.PackageDocuments {
			if label == nil && (doc.EncodedLabel != "" || doc.URL != "") {
				label = &domain.Label{URL: doc.URL, Data: doc.EncodedLabel, Format: format}
			}
		}
	}

	resp := domain.ShipmentSucceeded(c.name, trackingNumber, shipment.ShipmentID(), label, raw)
	for _, doc := range shipment.ShipmentDocuments {
		resp.Documents = append(resp.Documents, domain.Document{
			Type:   strings.ToLower(cmp.Or(doc.ContentType, "document")),
			Format: doc.DocType,
			Data:   doc.EncodedLabel,
			URL:    doc.URL,
		})
	}
	return resp
}

func (c *FedExClient) fromFedExTrackResponse(ctx context.Context, trackingNumber string, out fedexTrackResponse, raw []byte) *domain.TrackingResponse {
	if len(out.Output.CompleteTrackResults) == 0 || len(out.Output.CompleteTrackResults[0].TrackResults) == 0 {
		return c.trackingFailure(ctx, trackingNumber, domain.NewCarrierError(c.name, domain.ErrorKindBusiness, "no tracking results", nil))
	}
	result := out.Output.CompleteTrackResults[0].TrackResults[0]
	if result.Error != nil && result.Error.Message != "" {
		return c.trackingFailure(ctx, trackingNumber, domain.NewCarrierError(c.name, domain.ErrorKindBusiness, result.Error.Message, nil))
	}

	events := make([]domain.TrackingEvent, 0, len(result.ScanEvents))
	for _, e := range result.ScanEvents {
		ts, _ := parseTime(e.Date)
		events = append(events, domain.NewTrackingEvent(ts, cmp.Or(e.DerivedStatusCode, e.EventType), e.EventDescription, e.ScanLocation.String()))
	}

	details := domain.TrackingDetails{
		RawStatus:       cmp.Or(result.LatestStatusDetail.DerivedCode, result.LatestStatusDetail.Code),
		Description:     cmp.Or(result.LatestStatusDetail.Description, result.LatestStatusDetail.StatusByLocale),
		SignedBy:        result.DeliveryDetails.ReceivedByName,
		Events:          events,
		CurrentLocation: result.LatestStatusDetail.ScanLocation.String(),
		RawResponse:     raw,
	}
	for _, dt := range result.DateAndTimes {
		switch dt.Type {
		case "ACTUAL_DELIVERY":
			details.DeliveredAt = parseTimePtr(dt.DateTime)
		case "ESTIMATED_DELIVERY":
			details.EstimatedDelivery = parseTimePtr(dt.DateTime)
		}
	}

	return domain.NewTrackingResponse(c.name, cmp.Or(result.TrackingNumberInfo.TrackingNumber, trackingNumber), details)
}

func toFedExAddress(a domain.Address) fedexAddress {
	return fedexAddress{
		StreetLines:         a.StreetLines(),
		City:                a.City,
		StateOrProvinceCode: a.State,
		PostalCode:          a.PostalCode,
		CountryCode:         strings.ToUpper(a.Country),
		Residential:         a.Residential,
	}
}

func toFedExParty(a domain.Address) fedexParty {
	return fedexParty{
		Contact: &fedexContact{
			PersonName:   a.Name,
			CompanyName:  a.Company,
			PhoneNumber:  a.Phone,
			EmailAddress: a.Email,
		},
		Address: toFedExAddress(a),
	}
}

func toFedExPackages(packages []domain.Package) []fedexPackage {
	out := make([]fedexPackage, 0, len(packages))
	for _, p := range packages {
		l, w, h := p.DimensionsIN()
		pkg := fedexPackage{
			Weight: fedexWeight{Units: "LB", Value: roundUp(p.WeightLB())},
			Dimensions: &fedexDimensions{
				Length: int(roundUp(l)),
				Width:  int(roundUp(w)),
				Height: int(roundUp(h)),
				Units:  "IN",
			},
		}
		if p.DeclaredValue.IsPositive() {
			pkg.DeclaredValue = &fedexMoney{Amount: p.DeclaredValue, Currency: domain.DefaultCurrency}
		}
		out = append(out, pkg)
	}
	return out
}

// roundUp rounds to one decimal place, never below the input
func roundUp(v float64) float64 {
	r, _ := decimal.NewFromFloat(v).RoundCeil(1).Float64()
	return r
}

// --- FedEx API models ---

type fedexAccount struct {
	Value string `json:"value"`
}

type fedexAddress struct {
	StreetLines         []string `json:"streetLines,omitempty"`
	City                string   `json:"city,omitempty"`
	StateOrProvinceCode string   `json:"stateOrProvinceCode,omitempty"`
	PostalCode          string   `json:"postalCode,omitempty"`
	CountryCode         string   `json:"countryCode"`
	Residential         bool     `json:"residential,omitempty"`
}

type fedexContact struct {
	PersonName   string `json:"personName,omitempty"`
	CompanyName  string `json:"companyName,omitempty"`
	PhoneNumber  string `json:"phoneNumber,omitempty"`
	EmailAddress string `json:"emailAddress,omitempty"`
}

type fedexParty struct {
	Contact *fedexContact `json:"contact,omitempty"`
	Address fedexAddress  `json:"address"`
}

type fedexWeight struct {
	Units string  `json:"units"`
	Value float64 `json:"value"`
}

type fedexDimensions struct {
	Length int    `json:"length"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Units  string `json:"units"`
}

type fedexMoney struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type fedexReference struct {
	CustomerReferenceType string `json:"customerReferenceType"`
	Value                 string `json:"value"`
}

type fedexPackage struct {
	Weight             fedexWeight      `json:"weight"`
	Dimensions         *fedexDimensions `json:"dimensions,omitempty"`
	DeclaredValue      *fedexMoney      `json:"declaredValue,omitempty"`
	CustomerReferences []fedexReference `json:"customerReferences,omitempty"`
}

type fedexPayment struct {
	PaymentType string `json:"paymentType"`
}

type fedexLabelSpec struct {
	ImageType      string `json:"imageType"`
	LabelStockType string `json:"labelStockType"`
}

type fedexRequestedShipment struct {
	Shipper                   fedexParty      `json:"shipper"`
	Recipient                 *fedexParty     `json:"recipient,omitempty"`
	Recipients                []fedexParty    `json:"recipients,omitempty"`
	ShipDatestamp             string          `json:"shipDatestamp,omitempty"`
	ServiceType               string          `json:"serviceType,omitempty"`
	PackagingType             string          `json:"packagingType,omitempty"`
	PickupType                string          `json:"pickupType"`
	RateRequestType           []string        `json:"rateRequestType,omitempty"`
	PreferredCurrency         string          `json:"preferredCurrency,omitempty"`
	ShippingChargesPayment    *fedexPayment   `json:"shippingChargesPayment,omitempty"`
	LabelSpecification        *fedexLabelSpec `json:"labelSpecification,omitempty"`
	RequestedPackageLineItems []fedexPackage  `json:"requestedPackageLineItems"`
}

type fedexRateRequest struct {
	AccountNumber     fedexAccount           `json:"accountNumber"`
	RequestedShipment fedexRequestedShipment `json:"requestedShipment"`
}

type fedexShipRequest struct {
	LabelResponseOptions string                 `json:"labelResponseOptions"`
	AccountNumber        fedexAccount           `json:"accountNumber"`
	RequestedShipment    fedexRequestedShipment `json:"requestedShipment"`
}

type fedexRateResponse struct {
	Output struct {
		RateReplyDetails []struct {
			ServiceType          string `json:"serviceType"`
			ServiceName          string `json:"serviceName"`
			RatedShipmentDetails []struct {
				RateType       string          `json:"rateType"`
				TotalNetCharge decimal.Decimal `json:"totalNetCharge"`
				Currency       string          `json:"currency"`
			} `json:"ratedShipmentDetails"`
			OperationalDetail struct {
				TransitTime string `json:"transitTime"`
			} `json:"operationalDetail"`
			Commit struct {
				DateDetail struct {
					DayFormat string `json:"dayFormat"`
				} `json:"dateDetail"`
				TransitDays struct {
					MinimumTransitTime string `json:"minimumTransitTime"`
				} `json:"transitDays"`
			} `json:"commit"`
		} `json:"rateReplyDetails"`
	} `json:"output"`
}

type fedexDocument struct {
	URL          string `json:"url"`
	EncodedLabel string `json:"encodedLabel"`
	DocType      string `json:"docType"`
	ContentType  string `json:"contentType"`
}

type fedexTransactionShipment struct {
	MasterTrackingNumber string          `json:"masterTrackingNumber"`
	ShipmentDocuments    []fedexDocument `json:"shipmentDocuments"`
	PieceResponses       []struct {
		TrackingNumber   string          `json:"trackingNumber"`
		PackageDocuments []fedexDocument `json:"packageDocuments"`
	} `json:"pieceResponses"`
	CompletedShipmentDetail struct {
		MasterTrackingID struct {
			TrackingNumber string `json:"trackingNumber"`
			FormID         string `json:"formId"`
		} `json:"masterTrackingId"`
	} `json:"completedShipmentDetail"`
}

// ShipmentID is the FedEx form id of the master package, when present
func (s fedexTransactionShipment) ShipmentID() string {
	return s.CompletedShipmentDetail.MasterTrackingID.FormID
}

type fedexShipResponse struct {
	Output struct {
		TransactionShipments []fedexTransactionShipment `json:"transactionShipments"`
	} `json:"output"`
}

type fedexLocation struct {
	City                string `json:"city"`
	StateOrProvinceCode string `json:"stateOrProvinceCode"`
	CountryCode         string `json:"countryCode"`
}

func (l fedexLocation) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{l.City, l.StateOrProvinceCode, l.CountryCode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

type fedexTrackResponse struct {
	Output struct {
		CompleteTrackResults []struct {
			TrackingNumber string `json:"trackingNumber"`
			TrackResults   []struct {
				TrackingNumberInfo struct {
					TrackingNumber string `json:"trackingNumber"`
				} `json:"trackingNumberInfo"`
				LatestStatusDetail struct {
					Code           string        `json:"code"`
					DerivedCode    string        `json:"derivedCode"`
					StatusByLocale string        `json:"statusByLocale"`
					Description    string        `json:"description"`
					ScanLocation   fedexLocation `json:"scanLocation"`
				} `json:"latestStatusDetail"`
				DateAndTimes []struct {
					Type     string `json:"type"`
					DateTime string `json:"dateTime"`
				} `json:"dateAndTimes"`
				DeliveryDetails struct {
					ReceivedByName string `json:"receivedByName"`
				} `json:"deliveryDetails"`
				ScanEvents []struct {
					Date              string        `json:"date"`
					EventType         string        `json:"eventType"`
					EventDescription  string        `json:"eventDescription"`
					DerivedStatusCode string        `json:"derivedStatusCode"`
					ScanLocation      fedexLocation `json:"scanLocation"`
				} `json:"scanEvents"`
				Error *struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			} `json:"trackResults"`
		} `json:"completeTrackResults"`
	} `json:"output"`
}
