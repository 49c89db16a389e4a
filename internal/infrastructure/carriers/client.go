package carriers

import (
	"cmp"
	"context"
	"net/http"

	"github.com/usama216/shipping-market-sub004/internal/domain"
	"github.com/usama216/shipping-market-sub004/pkg/logging"
)

// client holds what every carrier adapter shares: identity, transport
// and credentials.
type client struct {
	name      string
	cfg       Config
	transport *Transport
	auth      authorizer
	logger    *logging.Logger
}

func newClient(name, baseURL string, cfg Config, deps Deps) *client {
	cfg = cfg.withDefaults()
	deps = deps.withDefaults()
	return &client{
		name:      name,
		cfg:       cfg,
		transport: NewTransport(name, baseURL, cfg, deps),
		logger:    deps.Logger.WithCarrier(name),
	}
}

// Name returns the carrier identifier
func (c *client) Name() string {
	return c.name
}

// Authenticate establishes the carrier session
func (c *client) Authenticate(ctx context.Context) (bool, error) {
	return c.auth.Authenticate(ctx)
}

// IsAuthenticated reports whether a usable session exists
func (c *client) IsAuthenticated() bool {
	return c.auth.IsAuthenticated()
}

// call authorizes and sends a request. A rejected token is dropped so the
// next call refreshes it.
func (c *client) call(ctx context.Context, req Request, out any) (*Response, error) {
	if req.Header == nil {
		req.Header = http.Header{}
	}
	if err := c.auth.authorize(ctx, req.Header); err != nil {
		return nil, err
	}
	resp, err := c.transport.DoJSON(ctx, req, out)
	if domain.IsAuthError(err) {
		c.auth.invalidate()
	}
	return resp, err
}

// shipmentFailure applies the creation error policy: carrier rejections
// become failed responses, infrastructure failures stay errors.
func (c *client) shipmentFailure(ctx context.Context, err error) (*domain.ShipmentResponse, error) {
	ce, ok := domain.AsCarrierError(err)
	if ok && (ce.Kind == domain.ErrorKindValidation || ce.Kind == domain.ErrorKindBusiness) {
		c.logger.WithContext(ctx).WithError(err).Info("Carrier rejected shipment")
		return domain.ShipmentFailedFromError(c.name, err), nil
	}
	return nil, err
}

func (c *client) trackingFailure(ctx context.Context, trackingNumber string, err error) *domain.TrackingResponse {
	c.logger.WithContext(ctx).WithError(err).Warn("Tracking lookup failed", "trackingNumber", trackingNumber)
	return domain.UnknownTracking(c.name, trackingNumber, err.Error())
}

func (c *client) labelFailure(ctx context.Context, trackingNumber string, err error) *domain.LabelResponse {
	c.logger.WithContext(ctx).WithError(err).Warn("Label fetch failed", "trackingNumber", trackingNumber)
	return domain.LabelNotFound(c.name, trackingNumber, err.Error())
}

func (c *client) cancelFailure(ctx context.Context, trackingNumber string, err error) bool {
	c.logger.WithContext(ctx).WithError(err).Warn("Shipment cancellation failed", "trackingNumber", trackingNumber)
	return false
}

func (c *client) addressFailure(ctx context.Context, address domain.Address, err error) domain.Address {
	c.logger.WithContext(ctx).WithError(err).Debug("Address validation unavailable, keeping input")
	return address
}

func (c *client) service(req domain.ShipmentRequest) string {
	return cmp.Or(req.ServiceCode, c.cfg.DefaultService)
}
