// Package handlers contains the handlers for the API
package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/marketbots/marketcore/internal/models"
	"github.com/marketbots/marketcore/internal/service"
	"github.com/marketbots/marketcore/pkg/utils/response"
)

// IngestHandler is the handler for the ingest API
type IngestHandler struct {
	distributor *service.Distributor
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(distributor *service.Distributor) *IngestHandler {
	return &IngestHandler{distributor: distributor}
}

// IngestResponseData is the response data for the IngestUpdates endpoint
type IngestResponseData struct {
	Applied  int      `json:"applied"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors,omitempty"`
}

// IngestUpdates applies a batch of decoded updates in order
func (h *IngestHandler) IngestUpdates(c echo.Context) error {
	var updates []models.Update
	if err := c.Bind(&updates); err != nil {
		return response.ErrorResponse(c, http.StatusBadRequest, response.ErrTypeInput, "Invalid request body")
	}
	if len(updates) == 0 {
		return response.ErrorResponse(c, http.StatusBadRequest, response.ErrTypeInput, "No updates specified")
	}

	responseData := IngestResponseData{}
	for _, u := range updates {
		if _, err := h.distributor.Ingest(u); err != nil {
			responseData.Rejected++
			responseData.Errors = append(responseData.Errors, err.Error())
			continue
		}
		responseData.Applied++
	}

	return response.SuccessResponse(c, responseData)
}
