package domain

import (
	"errors"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// WeightUnit is the unit of a package weight
type WeightUnit string

const (
	WeightUnitLB WeightUnit = "lb"
	WeightUnitKG WeightUnit = "kg"
)

// DimensionUnit is the unit of package dimensions
type DimensionUnit string

const (
	DimensionUnitIN DimensionUnit = "in"
	DimensionUnitCM DimensionUnit = "cm"
)

// LabelFormat is the requested label image format
type LabelFormat string

const (
	LabelFormatPDF LabelFormat = "PDF"
	LabelFormatZPL LabelFormat = "ZPL"
	LabelFormatPNG LabelFormat = "PNG"
)

const (
	kgToLb = 2.20462262
	cmToIn = 0.393700787
)

// Address represents a shipping address
type Address struct {
	Name        string `json:"name,omitempty"`
	Company     string `json:"company,omitempty"`
	Street1     string `json:"street1,omitempty"`
	Street2     string `json:"street2,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	PostalCode  string `json:"postalCode,omitempty"`
	Country     string `json:"country" validate:"required,len=2"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
	Residential bool   `json:"residential,omitempty"`
}

// Zone is the coarse routing zone used for rate caching: country plus the
// first three postal characters.
func (a Address) Zone() string {
	postal := strings.ToUpper(strings.ReplaceAll(a.PostalCode, " ", ""))
	if len(postal) > 3 {
		postal = postal[:3]
	}
	return strings.ToUpper(a.Country) + ":" + postal
}

// StreetLines returns the non-empty street lines
func (a Address) StreetLines() []string {
	lines := make([]string, 0, 2)
	for _, l := range []string{a.Street1, a.Street2} {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// Package is one physical parcel within a request
type Package struct {
	Weight        float64         `json:"weight" validate:"gt=0"`
	WeightUnit    WeightUnit      `json:"weightUnit" validate:"required,oneof=lb kg"`
	Length        float64         `json:"length" validate:"gt=0"`
	Width         float64         `json:"width" validate:"gt=0"`
	Height        float64         `json:"height" validate:"gt=0"`
	DimensionUnit DimensionUnit   `json:"dimensionUnit" validate:"required,oneof=in cm"`
	DeclaredValue decimal.Decimal `json:"declaredValue"`
	Description   string          `json:"description,omitempty"`
}

// WeightLB returns the weight in pounds
func (p Package) WeightLB() float64 {
	if p.WeightUnit == WeightUnitKG {
		return p.Weight * kgToLb
	}
	return p.Weight
}

// WeightKG returns the weight in kilograms
func (p Package) WeightKG() float64 {
	if p.WeightUnit == WeightUnitLB {
		return p.Weight / kgToLb
	}
	return p.Weight
}

// DimensionsIN returns length, width and height in inches
func (p Package) DimensionsIN() (float64, float64, float64) {
	if p.DimensionUnit == DimensionUnitCM {
		return p.Length * cmToIn, p.Width * cmToIn, p.Height * cmToIn
	}
	return p.Length, p.Width, p.Height
}

// DimensionsCM returns length, width and height in centimetres
func (p Package) DimensionsCM() (float64, float64, float64) {
	if p.DimensionUnit == DimensionUnitIN {
		return p.Length / cmToIn, p.Width / cmToIn, p.Height / cmToIn
	}
	return p.Length, p.Width, p.Height
}

// PackageContents is one commercial invoice line. Only carriers that need
// customs data at submission time read it.
type PackageContents struct {
	Description     string          `json:"description" validate:"required"`
	Quantity        int             `json:"quantity" validate:"gt=0"`
	UnitValue       decimal.Decimal `json:"unitValue"`
	Weight          float64         `json:"weight" validate:"gte=0"`
	WeightUnit      WeightUnit      `json:"weightUnit,omitempty" validate:"omitempty,oneof=lb kg"`
	HSCode          string          `json:"hsCode,omitempty"`
	CountryOfOrigin string          `json:"countryOfOrigin,omitempty" validate:"omitempty,len=2"`
	SKU             string          `json:"sku,omitempty"`
}

// WeightKG returns the line weight per unit in kilograms
func (c PackageContents) WeightKG() float64 {
	if c.WeightUnit == WeightUnitLB {
		return c.Weight / kgToLb
	}
	return c.Weight
}

// ShipmentRequest is the input of one rate or shipment attempt. It is a
// value type; carrier clients never retain it.
type ShipmentRequest struct {
	Shipper     Address     `json:"shipper"`
	Recipient   Address     `json:"recipient"`
	Packages    []Package   `json:"packages" validate:"required,min=1,dive"`
	ServiceCode string      `json:"serviceCode,omitempty"`
	LabelFormat LabelFormat `json:"labelFormat,omitempty" validate:"omitempty,oneof=PDF ZPL PNG"`
	Currency    string      `json:"currency,omitempty" validate:"omitempty,len=3"`
	Reference   string      `json:"reference,omitempty"`
	ShipDate    *time.Time  `json:"shipDate,omitempty"`
}

// NewShipmentRequest builds a request that owns its own package slice
func NewShipmentRequest(shipper, recipient Address, packages []Package, serviceCode string) ShipmentRequest {
	return ShipmentRequest{
		Shipper:     shipper,
		Recipient:   recipient,
		Packages:    append([]Package(nil), packages...),
		ServiceCode: serviceCode,
	}
}

// WithService returns a copy of the request for another service code
func (r ShipmentRequest) WithService(serviceCode string) ShipmentRequest {
	c := r
	c.Packages = append([]Package(nil), r.Packages...)
	c.ServiceCode = serviceCode
	return c
}

// TotalWeightLB is the sum of package weights in pounds
func (r ShipmentRequest) TotalWeightLB() float64 {
	total := 0.0
	for _, p := range r.Packages {
		total += p.WeightLB()
	}
	return total
}

// TotalVolumeIN3 is the sum of package volumes in cubic inches
func (r ShipmentRequest) TotalVolumeIN3() float64 {
	total := 0.0
	for _, p := range r.Packages {
		l, w, h := p.DimensionsIN()
		total += l * w * h
	}
	return total
}

// TotalDeclaredValue is the sum of declared values
func (r ShipmentRequest) TotalDeclaredValue() decimal.Decimal {
	total := decimal.Zero
	for _, p := range r.Packages {
		total = total.Add(p.DeclaredValue)
	}
	return total
}

// IsInternational reports whether shipper and recipient countries differ
func (r ShipmentRequest) IsInternational() bool {
	return !strings.EqualFold(r.Shipper.Country, r.Recipient.Country)
}

// CurrencyOrDefault returns the request currency, USD when unset
func (r ShipmentRequest) CurrencyOrDefault() string {
	if r.Currency == "" {
		return DefaultCurrency
	}
	return strings.ToUpper(r.Currency)
}

// LabelFormatOrDefault returns the requested label format, PDF when unset
func (r ShipmentRequest) LabelFormatOrDefault() LabelFormat {
	if r.LabelFormat == "" {
		return LabelFormatPDF
	}
	return r.LabelFormat
}

// Validate checks the request for rating
func (r ShipmentRequest) Validate() error {
	details := validationDetails(getValidator().Struct(r))
	for i, p := range r.Packages {
		if p.DeclaredValue.IsNegative() {
			details = append(details, ErrorDetail{
				Field:   "packages[" + strconv.Itoa(i) + "].declaredValue",
				Message: "must not be negative",
				Value:   p.DeclaredValue.String(),
			})
		}
	}
	if len(details) > 0 {
		return &RequestValidationError{Errors: details}
	}
	return nil
}

// ValidateForShipment additionally requires full addresses, which carriers
// need to print a label.
func (r ShipmentRequest) ValidateForShipment() error {
	var details []ErrorDetail
	var rve *RequestValidationError
	if err := r.Validate(); err != nil {
		if !errors.As(err, &rve) {
			return err
		}
		details = append(details, rve.Errors...)
	}

	for _, side := range []struct {
		name string
		addr Address
	}{{"shipper", r.Shipper}, {"recipient", r.Recipient}} {
		for field, value := range map[string]string{
			"name":       side.addr.Name,
			"street1":    side.addr.Street1,
			"city":       side.addr.City,
			"postalCode": side.addr.PostalCode,
		} {
			if strings.TrimSpace(value) == "" {
				details = append(details, ErrorDetail{Field: side.name + "." + field, Message: "is required"})
			}
		}
	}

	if len(details) > 0 {
		sortDetails(details)
		return &RequestValidationError{Errors: details}
	}
	return nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

func validationDetails(err error) []ErrorDetail {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]ErrorDetail, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		msg := "failed " + fe.Tag()
		switch fe.Tag() {
		case "required":
			msg = "is required"
		case "gt":
			msg = "must be greater than " + fe.Param()
		case "oneof":
			msg = "must be one of: " + fe.Param()
		case "min":
			msg = "must contain at least " + fe.Param()
		case "len":
			msg = "must have length " + fe.Param()
		}
		out = append(out, ErrorDetail{Field: field, Message: msg, Value: stringify(fe.Value())})
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return decimal.NewFromFloat(t).String()
	case WeightUnit:
		return string(t)
	case DimensionUnit:
		return string(t)
	case LabelFormat:
		return string(t)
	default:
		return ""
	}
}

func sortDetails(d []ErrorDetail) {
	sort.SliceStable(d, func(i, j int) bool { return d[i].Field < d[j].Field })
}

// CeilBucket rounds v up to a whole number of buckets of the given size
func CeilBucket(v, size float64) int {
	if v <= 0 || size <= 0 {
		return 0
	}
	return int(math.Ceil(v/size - 1e-9))
}
