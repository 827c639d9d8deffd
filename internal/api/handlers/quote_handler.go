// Package handlers contains the handlers for the API
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/marketbots/marketcore/internal/models"
	"github.com/marketbots/marketcore/internal/service"
	"github.com/marketbots/marketcore/pkg/utils/response"
)

// QuoteHandler is the handler for the quote API
type QuoteHandler struct {
	store *service.PriceStore
}

// NewQuoteHandler creates a new quote handler
func NewQuoteHandler(store *service.PriceStore) *QuoteHandler {
	return &QuoteHandler{store: store}
}

// GetQuote gets the full quote for the given instrument tokens
func (h *QuoteHandler) GetQuote(c echo.Context) error {
	return h.handleRequest(c, mapStateToQuoteData)
}

// GetOHLC gets the OHLC data for the given instrument tokens
func (h *QuoteHandler) GetOHLC(c echo.Context) error {
	return h.handleRequest(c, mapStateToOHLCData)
}

// GetLTP gets the LTP data for the given instrument tokens
func (h *QuoteHandler) GetLTP(c echo.Context) error {
	return h.handleRequest(c, mapStateToLTPData)
}

// handleRequest is the common function to handle the request for the quote API
func (h *QuoteHandler) handleRequest(c echo.Context, mapper func(models.MarketState) interface{}) error {
	tokensStr := c.QueryParams()["i"]
	if len(tokensStr) == 0 {
		return response.ErrorResponse(c, http.StatusBadRequest, response.ErrTypeInput, "No instruments specified")
	}

	data := make(map[string]interface{})
	for _, tokenStr := range tokensStr {
		token, err := strconv.ParseUint(tokenStr, 10, 32)
		if err != nil {
			return response.ErrorResponse(c, http.StatusBadRequest, response.ErrTypeInput, "Invalid `instrument_token`, must be digits")
		}

		state, err := h.store.Snapshot(uint32(token))
		if err != nil {
			if errors.Is(err, service.ErrUnknownToken) {
				return response.ErrorResponse(c, http.StatusBadRequest, response.ErrTypeInput, fmt.Sprintf("Unknown instrument token: %d", token))
			}
			// No update received yet, skip silently
			continue
		}
		data[tokenStr] = mapper(state)
	}

	if len(data) == 0 {
		return response.ErrorResponse(c, http.StatusNotFound, response.ErrTypeDataNotFound, fmt.Sprintf("No data found for instruments: %v", tokensStr))
	}

	return response.SuccessResponse(c, data)
}
