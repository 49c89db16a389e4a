package middleware

import (
	stderrors "errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/usama216/shipping-market-sub004/pkg/errors"
)

var validateOnce sync.Once

var (
	carrierRegex        = regexp.MustCompile(`^(fedex|dhl|ups|myus)$`)
	trackingNumberRegex = regexp.MustCompile(`^[A-Za-z0-9]{6,40}$`)
)

// InitValidator registers the shipping tags on gin's validator engine
func InitValidator() {
	validateOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		RegisterShippingValidations(v)
	})
}

// RegisterShippingValidations adds the carrier_code and tracking_number tags
// and reports fields by their JSON names.
func RegisterShippingValidations(v *validator.Validate) {
	_ = v.RegisterValidation("carrier_code", func(fl validator.FieldLevel) bool {
		return carrierRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("tracking_number", func(fl validator.FieldLevel) bool {
		return trackingNumberRegex.MatchString(fl.Field().String())
	})
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
}

// ValidationFieldErrors converts validator errors into field errors
func ValidationFieldErrors(err error) []errors.FieldError {
	var validationErrors validator.ValidationErrors
	if !stderrors.As(err, &validationErrors) {
		return nil
	}

	out := make([]errors.FieldError, 0, len(validationErrors))
	for _, e := range validationErrors {
		out = append(out, errors.FieldError{
			Field:   strings.TrimPrefix(e.Namespace(), namespaceRoot(e)),
			Message: formatValidationError(e),
		})
	}
	return out
}

func namespaceRoot(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[:i+1]
	}
	return ""
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "len":
		return "must have length " + e.Param()
	case "email":
		return "must be a valid email address"
	case "carrier_code":
		return "must be one of: fedex, dhl, ups, myus"
	case "tracking_number":
		return "must be a valid tracking number (6-40 alphanumeric characters)"
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "is invalid"
	}
}

// BindAndValidate binds request body and validates it
func BindAndValidate(c *gin.Context, obj any) *errors.AppError {
	if err := c.ShouldBindJSON(obj); err != nil {
		if fields := ValidationFieldErrors(err); len(fields) > 0 {
			return errors.ErrValidation("validation failed").WithFieldErrors(fields)
		}
		return errors.ErrBadRequest("invalid request body: " + err.Error())
	}
	return nil
}
