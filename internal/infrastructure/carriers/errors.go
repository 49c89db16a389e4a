package carriers

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/usama216/shipping-market-sub004/internal/domain"
)

const unknownErrorMessage = "Unknown carrier API error"

// errorBody is a carrier error payload split into its top-level fields.
// Each known shape is decoded on its own so one field of an unexpected
// type does not hide the others.
type errorBody map[string]json.RawMessage

// text returns a string or number field, empty for anything else
func (b errorBody) text(key string) string {
	return textOf(b[key])
}

// list returns the entries of an array field. A single object or string
// counts as one entry.
func (b errorBody) list(key string) []json.RawMessage {
	raw, ok := b[key]
	if !ok {
		return nil
	}
	var entries oneOrMany[json.RawMessage]
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	return entries
}

// object returns a nested object field, nil when the field is not an object
func (b errorBody) object(key string) errorBody {
	raw, ok := b[key]
	if !ok {
		return nil
	}
	var nested errorBody
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil
	}
	return nested
}

func textOf(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return ""
		}
		return s
	case '{', '[', 'n':
		return ""
	default:
		return string(raw)
	}
}

// FromAPIResponse converts a failed carrier response body into a
// CarrierError. It never returns nil and always keeps the raw body.
func FromAPIResponse(body []byte, status int) *domain.CarrierError {
	ce := &domain.CarrierError{
		Kind:        kindForStatus(status),
		StatusCode:  status,
		RawResponse: string(body),
	}

	var b errorBody
	if err := json.Unmarshal(bytes.TrimSpace(body), &b); err != nil {
		ce.Message = unknownErrorMessage
		return ce
	}

	if msg, details := dhlMessage(b); msg != "" {
		ce.Message = msg
		ce.Errors = details
	}

	entries := b.list("errors")
	if response := b.object("response"); response != nil {
		entries = append(entries, response.list("errors")...)
	}
	if msg, details := listMessage(entries); msg != "" {
		ce.Message = msg
		ce.Errors = details
	}

	if ce.Message == "" {
		ce.Message = genericMessage(b)
	}
	return ce
}

func dhlMessage(b errorBody) (string, []domain.ErrorDetail) {
	base := cmp.Or(b.text("detail"), b.text("title"))
	var lines []string
	var details []domain.ErrorDetail

	for _, raw := range b.list("additionalDetails") {
		var d errorBody
		if err := json.Unmarshal(raw, &d); err != nil {
			// DHL sometimes sends plain strings
			s := textOf(raw)
			if s == "" {
				continue
			}
			d = errorBody{"message": raw}
		}
		field := cmp.Or(d.text("field"), "general")
		value := cmp.Or(d.text("invalidValue"), d.text("value"))
		message := d.text("message")
		switch {
		case message != "":
		case value != "":
			message = "invalid value '" + value + "'"
		default:
			message = "invalid value"
		}
		lines = append(lines, field+": "+message)
		details = append(details, domain.ErrorDetail{
			Field:   field,
			Message: message,
			Value:   value,
		})
	}

	if len(lines) == 0 {
		return base, nil
	}
	if base == "" {
		return strings.Join(lines, "\n"), details
	}
	return base + "\n" + strings.Join(lines, "\n"), details
}

func listMessage(entries []json.RawMessage) (string, []domain.ErrorDetail) {
	var messages []string
	var details []domain.ErrorDetail

	for _, raw := range entries {
		var e errorBody
		if err := json.Unmarshal(raw, &e); err != nil {
			continue
		}
		code := e.text("code")
		message := cmp.Or(e.text("message"), code)
		if message == "" {
			continue
		}
		detail := domain.ErrorDetail{Field: "general", Message: e.text("message"), Code: code}

		var params []errorBody
		for _, p := range e.list("parameterList") {
			var param errorBody
			if json.Unmarshal(p, &param) == nil {
				params = append(params, param)
			}
		}
		if len(params) > 0 {
			values := make([]string, 0, len(params))
			for _, p := range params {
				values = append(values, p.text("value"))
			}
			message += " (Parameters: " + strings.Join(values, ", ") + ")"
			detail.Field = cmp.Or(params[0].text("key"), "general")
			detail.Value = params[0].text("value")
		}
		if detail.Message == "" {
			detail.Message = message
		}
		messages = append(messages, message)
		details = append(details, detail)
	}

	return strings.Join(messages, "; "), details
}

func genericMessage(b errorBody) string {
	if nested := b.object("error"); nested != nil {
		if msg := nested.text("message"); msg != "" {
			return msg
		}
	}
	if oauth := b.text("error"); oauth != "" {
		if desc := b.text("error_description"); desc != "" {
			return oauth + ": " + desc
		}
		return oauth
	}
	if msg := b.text("message"); msg != "" {
		return msg
	}
	return unknownErrorMessage
}

func kindForStatus(status int) domain.ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.ErrorKindAuth
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return domain.ErrorKindTransport
	case status >= 400:
		return domain.ErrorKindValidation
	default:
		return domain.ErrorKindBusiness
	}
}

// transportError wraps a network level failure
func transportError(carrier, message string, cause error) *domain.CarrierError {
	return domain.NewCarrierError(carrier, domain.ErrorKindTransport, message, cause)
}

// authError reports missing or rejected credentials
func authError(carrier, message string, cause error) *domain.CarrierError {
	return domain.NewCarrierError(carrier, domain.ErrorKindAuth, message, cause)
}

// requestError turns a request validation failure into a carrier
// validation error carrying every field detail.
func requestError(carrier string, err error) *domain.CarrierError {
	ce := domain.NewCarrierError(carrier, domain.ErrorKindValidation, err.Error(), err)
	var rve *domain.RequestValidationError
	if errors.As(err, &rve) {
		ce.Errors = rve.Errors
	}
	return ce
}
