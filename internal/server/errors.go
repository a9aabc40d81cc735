package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/hostfolio/hostfolio/internal/billing/domain"
	orgdomain "github.com/hostfolio/hostfolio/internal/organization/domain"
	subdomain "github.com/hostfolio/hostfolio/internal/subscription/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
	ErrInternal       = errors.New("internal_error")
)

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

func mapError(err error) (int, errorPayload) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	case errors.Is(err, billingdomain.ErrInvalidSignature),
		errors.Is(err, billingdomain.ErrSignatureExpired):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_signature",
			Message: "webhook signature rejected",
		}
	case errors.Is(err, billingdomain.ErrInvalidPayload),
		errors.Is(err, billingdomain.ErrInvalidEvent),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, orgdomain.ErrInvalidOrganization),
		errors.Is(err, subdomain.ErrInvalidSubscription):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "invalid request",
		}
	case errors.Is(err, billingdomain.ErrUnknownProvider),
		errors.Is(err, ErrNotFound),
		errors.Is(err, orgdomain.ErrOrganizationNotFound),
		errors.Is(err, subdomain.ErrSubscriptionNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, billingdomain.ErrMissingSecret):
		return http.StatusInternalServerError, errorPayload{
			Type:    "configuration_error",
			Message: "webhook secret not configured",
		}
	case errors.Is(err, billingdomain.ErrStoreUnavailable),
		errors.Is(err, billingdomain.ErrProviderUnavailable),
		errors.Is(err, billingdomain.ErrMissingCorrelation):
		return http.StatusInternalServerError, errorPayload{
			Type:    "temporarily_unavailable",
			Message: "event could not be processed, retry later",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog keeps request logs low-cardinality: a coarse type plus
// the sentinel code.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status == http.StatusBadRequest:
		return "client_error", payload.Type
	case status == http.StatusNotFound:
		return "not_found", payload.Type
	default:
		return "server_error", payload.Type
	}
}
