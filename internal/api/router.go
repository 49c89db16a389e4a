package api

import (
	"github.com/gin-gonic/gin"

	"github.com/usama216/shipping-market-sub004/internal/application"
	"github.com/usama216/shipping-market-sub004/pkg/logging"
	"github.com/usama216/shipping-market-sub004/pkg/middleware"
	"github.com/usama216/shipping-market-sub004/pkg/resilience"
)

// Services are the application services exposed over HTTP
type Services struct {
	Rates       *application.RateShopper
	Submissions *application.SubmissionCoordinator
	Tracking    *application.TrackingAggregator
	Carriers    application.CarrierLookup
	Breakers    *resilience.CircuitBreakerRegistry
}

// RegisterRoutes mounts the /api/v1 routes on router
func RegisterRoutes(router *gin.Engine, svc Services, logger *logging.Logger) {
	middleware.InitValidator()
	logger = logger.WithComponent("api")

	v1 := router.Group("/api/v1")
	{
		v1.POST("/rates", shopRatesHandler(svc.Rates, logger))
		v1.POST("/shipments", createShipmentHandler(svc.Submissions, svc.Carriers, logger))
		v1.POST("/tracking/batch", trackBatchHandler(svc.Tracking, logger))
		v1.GET("/carriers", listCarriersHandler(svc))

		carriers := v1.Group("/carriers/:carrier")
		{
			carriers.GET("/labels/:trackingNumber", getLabelHandler(svc.Submissions, logger))
			carriers.GET("/tracking/:trackingNumber", trackShipmentHandler(svc.Tracking, logger))
			carriers.DELETE("/shipments/:trackingNumber", cancelShipmentHandler(svc.Submissions, logger))
			carriers.POST("/addresses/validate", validateAddressHandler(svc.Carriers, logger))
		}
	}
}
