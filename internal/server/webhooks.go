package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/hostfolio/hostfolio/internal/billing/domain"
)

// HandleBillingWebhook acknowledges duplicates and abandoned events with
// success so the provider stops redelivering; everything else maps through
// the error middleware.
func (s *Server) HandleBillingWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err = s.ingestSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		if errors.Is(err, billingdomain.ErrEventAlreadyProcessed) ||
			errors.Is(err, billingdomain.ErrRetriesExhausted) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
