package application

import (
	"github.com/usama216/shipping-market-sub004/internal/domain"
)

// SubmitCommand books a shipment with the chosen carrier and service
type SubmitCommand struct {
	SubmissionID string
	Request      domain.ShipmentRequest
	Carrier      string
	Service      string
	Contents     []domain.PackageContents
}

// TrackingQuery identifies one shipment to poll
type TrackingQuery struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"trackingNumber"`
}

