// Package handlers contains the handlers for the API
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/marketbots/marketcore/internal/service"
	"github.com/marketbots/marketcore/pkg/utils/response"
)

// streamBufferSize is the per-client event channel depth.
const streamBufferSize = 1000

// StreamHandler is the handler for the stream API
type StreamHandler struct {
	distributor *service.Distributor
}

// NewStreamHandler creates a new handler for the stream API
func NewStreamHandler(distributor *service.Distributor) *StreamHandler {
	return &StreamHandler{distributor: distributor}
}

// StreamRequestBody is the request body for the stream API
type StreamRequestBody struct {
	Tokens []string `json:"instruments"`
}

// StreamChangeEvents streams change events for the given instrument tokens
// over SSE. An empty token list subscribes to all instruments.
func (h *StreamHandler) StreamChangeEvents(c echo.Context) error {
	var req StreamRequestBody
	if err := c.Bind(&req); err != nil {
		return response.ErrorResponse(c, http.StatusBadRequest, response.ErrTypeInput, "Invalid request body")
	}

	tokens := make([]uint32, 0, len(req.Tokens))
	for _, tokenStr := range req.Tokens {
		token, err := strconv.ParseUint(tokenStr, 10, 32)
		if err != nil {
			return response.ErrorResponse(c, http.StatusBadRequest, response.ErrTypeInput, "Invalid `instrument_token`, must be digits")
		}
		tokens = append(tokens, uint32(token))
	}

	sub := h.distributor.Subscribe(streamBufferSize, tokens...)
	defer h.distributor.Unsubscribe(sub)

	// Set headers for SSE
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	// Send an initial message to establish the connection
	if _, err := c.Response().Write([]byte("data: connected\n\n")); err != nil {
		return nil
	}
	c.Response().Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", payload); err != nil {
				return nil
			}
			c.Response().Flush()
		}
	}
}
