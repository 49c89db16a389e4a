package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test fixtures
func createTestAddress(name, country, postal string) Address {
	return Address{
		Name:       name,
		Street1:    "123 Main St",
		City:       "Miami",
		State:      "FL",
		PostalCode: postal,
		Country:    country,
		Phone:      "+1-555-0100",
	}
}

func createTestPackage() Package {
	return Package{
		Weight:        2.2,
		WeightUnit:    WeightUnitLB,
		Length:        10,
		Width:         8,
		Height:        6,
		DimensionUnit: DimensionUnitIN,
		DeclaredValue: decimal.NewFromInt(50),
	}
}

func createTestRequest() ShipmentRequest {
	return NewShipmentRequest(
		createTestAddress("Warehouse", "US", "33166"),
		createTestAddress("Jane Doe", "GB", "SW1A 1AA"),
		[]Package{createTestPackage()},
		"",
	)
}

func TestShipmentRequest_Validate(t *testing.T) {
	req := createTestRequest()
	require.NoError(t, req.Validate())
	require.NoError(t, req.ValidateForShipment())
}

func TestShipmentRequest_ValidateReportsEveryField(t *testing.T) {
	req := createTestRequest()
	req.Packages[0].Weight = 0
	req.Packages[0].WeightUnit = "oz"
	req.Recipient.Country = ""

	err := req.Validate()
	var rve *RequestValidationError
	require.ErrorAs(t, err, &rve)

	fields := make([]string, 0, len(rve.Errors))
	for _, d := range rve.Errors {
		fields = append(fields, d.Field)
	}
	assert.Contains(t, fields, "recipient.country")
	assert.Contains(t, fields, "packages[0].weight")
	assert.Contains(t, fields, "packages[0].weightUnit")
}

func TestShipmentRequest_ValidateRequiresPackages(t *testing.T) {
	req := createTestRequest()
	req.Packages = nil

	err := req.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "packages")
}

func TestShipmentRequest_ValidateRejectsNegativeDeclaredValue(t *testing.T) {
	req := createTestRequest()
	req.Packages[0].DeclaredValue = decimal.NewFromInt(-1)

	err := req.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "packages[0].declaredValue: must not be negative")
}

func TestShipmentRequest_ValidateForShipmentNeedsFullAddresses(t *testing.T) {
	req := createTestRequest()
	req.Shipper.Street1 = ""
	req.Recipient.Name = " "

	err := req.ValidateForShipment()
	var rve *RequestValidationError
	require.ErrorAs(t, err, &rve)
	require.Len(t, rve.Errors, 2)
	assert.Equal(t, "recipient.name", rve.Errors[0].Field)
	assert.Equal(t, "shipper.street1", rve.Errors[1].Field)
}

func TestShipmentRequest_Totals(t *testing.T) {
	metric := Package{
		Weight:        1,
		WeightUnit:    WeightUnitKG,
		Length:        10,
		Width:         10,
		Height:        10,
		DimensionUnit: DimensionUnitCM,
		DeclaredValue: decimal.NewFromInt(25),
	}
	req := createTestRequest()
	req.Packages = append(req.Packages, metric)

	assert.InDelta(t, 2.2+2.20462262, req.TotalWeightLB(), 1e-6)
	assert.InDelta(t, 480+61.0237, req.TotalVolumeIN3(), 1e-3)
	assert.True(t, decimal.NewFromInt(75).Equal(req.TotalDeclaredValue()))
	assert.True(t, req.IsInternational())
}

func TestShipmentRequest_WithServiceCopiesPackages(t *testing.T) {
	req := createTestRequest()
	other := req.WithService("FEDEX_GROUND")
	other.Packages[0].Weight = 99

	assert.Equal(t, "FEDEX_GROUND", other.ServiceCode)
	assert.Empty(t, req.ServiceCode)
	assert.Equal(t, 2.2, req.Packages[0].Weight)
}

func TestShipmentRequest_Defaults(t *testing.T) {
	req := createTestRequest()
	assert.Equal(t, "USD", req.CurrencyOrDefault())
	assert.Equal(t, LabelFormatPDF, req.LabelFormatOrDefault())

	req.Currency = "gbp"
	req.LabelFormat = LabelFormatZPL
	assert.Equal(t, "GBP", req.CurrencyOrDefault())
	assert.Equal(t, LabelFormatZPL, req.LabelFormatOrDefault())
}

func TestAddress_Zone(t *testing.T) {
	assert.Equal(t, "GB:SW1", createTestAddress("a", "gb", "sw1a 1aa").Zone())
	assert.Equal(t, "US:10", createTestAddress("a", "US", "10").Zone())
}

func TestAddress_StreetLines(t *testing.T) {
	addr := createTestAddress("a", "US", "33166")
	assert.Equal(t, []string{"123 Main St"}, addr.StreetLines())

	addr.Street2 = "Suite 4"
	assert.Equal(t, []string{"123 Main St", "Suite 4"}, addr.StreetLines())
}

func TestCeilBucket(t *testing.T) {
	assert.Equal(t, 3, CeilBucket(2.2, 1))
	assert.Equal(t, 2, CeilBucket(2.0, 1))
	assert.Equal(t, 1, CeilBucket(480, 500))
	assert.Equal(t, 2, CeilBucket(501, 500))
	assert.Equal(t, 0, CeilBucket(0, 500))
}
