package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	contractdomain "github.com/smallbiznis/rentflow/internal/contract/domain"
	invoicedomain "github.com/smallbiznis/rentflow/internal/invoice/domain"
	"github.com/smallbiznis/rentflow/internal/invoicing/calc"
	invoicingdomain "github.com/smallbiznis/rentflow/internal/invoicing/domain"
	meterreadingdomain "github.com/smallbiznis/rentflow/internal/meterreading/domain"
	settingdomain "github.com/smallbiznis/rentflow/internal/setting/domain"
	"github.com/smallbiznis/rentflow/pkg/db"
)

type ValidationError struct {
	Field   string            `json:"field"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrOrgRequired        = errors.New("organization_required")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// validationSentinels are reported as 400 with the sentinel text as code.
var validationSentinels = []error{
	ErrInvalidRequest,
	ErrOrgRequired,
	calc.ErrInvalidPeriod,
	calc.ErrInvalidActualDays,
	calc.ErrInvalidQuantity,
	calc.ErrInvalidUnit,
	calc.ErrInvalidRoundingMode,
	invoicingdomain.ErrInvalidRequest,
	invoicingdomain.ErrInvalidOrganization,
	invoicingdomain.ErrUnknownService,
	contractdomain.ErrInvalidOrganization,
	contractdomain.ErrInvalidID,
	contractdomain.ErrInvalidRoom,
	contractdomain.ErrInvalidTenant,
	contractdomain.ErrInvalidRent,
	contractdomain.ErrInvalidTerm,
	contractdomain.ErrInvalidServiceName,
	contractdomain.ErrInvalidServiceUnit,
	contractdomain.ErrInvalidServicePrice,
	contractdomain.ErrInvalidQuantity,
	contractdomain.ErrDuplicateService,
	meterreadingdomain.ErrInvalidOrganization,
	meterreadingdomain.ErrInvalidRoom,
	meterreadingdomain.ErrInvalidService,
	settingdomain.ErrInvalidOrganization,
	settingdomain.ErrUnknownKey,
	settingdomain.ErrInvalidValue,
	invoicedomain.ErrInvalidOrganization,
	invoicedomain.ErrInvalidID,
	invoicedomain.ErrInvalidContract,
	invoicedomain.ErrInvalidPayment,
	invoicedomain.ErrInvalidStatus,
	invoicedomain.ErrInvalidNumberTemplate,
}

var validationFields = map[string]string{
	"organization_required":   "organization",
	"unknown_service":         "services",
	"duplicate_service":       "services",
	"unknown_setting_key":     "key",
	"invalid_setting_value":   "value",
	"invalid_invoice_id":      "id",
	"invalid_contract_id":     "contract_id",
	"invalid_payment_amount":  "amount",
	"invalid_number_template": "value",
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, validationPayload(vErr.Errors...)
	}

	var meterErr *calc.MeterReadingError
	if errors.As(err, &meterErr) {
		return http.StatusBadRequest, validationPayload(ValidationError{
			Field:   "meter_end",
			Code:    calc.ErrInvalidMeterReading.Error(),
			Message: "meter_end must not be below meter_start",
			Details: map[string]string{
				"service_id": meterErr.ServiceID,
				"expected":   ">= " + meterErr.MeterStart.String(),
				"actual":     meterErr.MeterEnd.String(),
			},
		})
	}

	if sentinel := matchValidationSentinel(err); sentinel != nil {
		code := sentinel.Error()
		return http.StatusBadRequest, validationPayload(ValidationError{
			Field:   validationErrorField(code),
			Code:    code,
			Message: validationErrorMessage(code, err),
		})
	}

	switch {
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, invoicingdomain.ErrStaleResult):
		return http.StatusConflict, errorPayload{
			Type:    "stale_result",
			Message: "a newer computation superseded this request",
		}
	case errors.Is(err, invoicedomain.ErrPeriodInvoiced),
		errors.Is(err, invoicedomain.ErrPeriodLocked),
		errors.Is(err, contractdomain.ErrAlreadyTerminated):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: unwrapCode(err),
		}
	case errors.Is(err, invoicedomain.ErrIncompleteServiceData),
		errors.Is(err, invoicedomain.ErrDebtLookupFailed):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unprocessable_invoice",
			Message: unwrapCode(err),
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog reports the envelope type and the most specific code.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}

func validationPayload(items ...ValidationError) errorPayload {
	return errorPayload{
		Type:    "validation_error",
		Message: "validation error",
		Errors:  items,
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func matchValidationSentinel(err error) error {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, contractdomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, meterreadingdomain.ErrNotFound),
		errors.Is(err, settingdomain.ErrNotFound),
		db.IsNotFound(err):
		return true
	default:
		return false
	}
}

func unwrapCode(err error) string {
	for _, sentinel := range []error{
		invoicedomain.ErrPeriodInvoiced,
		invoicedomain.ErrPeriodLocked,
		invoicedomain.ErrIncompleteServiceData,
		invoicedomain.ErrDebtLookupFailed,
		contractdomain.ErrAlreadyTerminated,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "conflict"
}

func validationErrorField(code string) string {
	if field, ok := validationFields[code]; ok {
		return field
	}
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string, err error) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "organization_required":
		return "X-Org-ID header is required"
	}
	// Wrapped errors carry the offending value after the code.
	if msg := err.Error(); msg != code {
		return msg
	}
	return "invalid value"
}
