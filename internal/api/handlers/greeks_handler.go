// Package handlers contains the handlers for the API
package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/marketbots/marketcore/internal/service"
	"github.com/marketbots/marketcore/pkg/utils/response"
)

// GreeksHandler is the handler for the greeks API
type GreeksHandler struct {
	cache *service.GreeksCache
}

// NewGreeksHandler creates a new greeks handler
func NewGreeksHandler(cache *service.GreeksCache) *GreeksHandler {
	return &GreeksHandler{cache: cache}
}

// GetGreeks returns the latest computed greeks for the given instrument tokens
func (h *GreeksHandler) GetGreeks(c echo.Context) error {
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
		result, ok := h.cache.Latest(uint32(token))
		if !ok {
			continue
		}
		data[tokenStr] = result
	}

	if len(data) == 0 {
		return response.ErrorResponse(c, http.StatusNotFound, response.ErrTypeDataNotFound, fmt.Sprintf("No greeks found for instruments: %v", tokensStr))
	}

	return response.SuccessResponse(c, data)
}
