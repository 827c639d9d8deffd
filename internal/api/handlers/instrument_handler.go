// Package handlers contains the handlers for the API
package handlers

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/marketbots/marketcore/internal/models"
	"github.com/marketbots/marketcore/internal/service"
	"github.com/marketbots/marketcore/pkg/utils/response"
)

// InstrumentHandler is the handler for the instrument API
type InstrumentHandler struct {
	instruments *service.InstrumentService
}

// NewInstrumentHandler creates a new instrument handler
func NewInstrumentHandler(instruments *service.InstrumentService) *InstrumentHandler {
	return &InstrumentHandler{instruments: instruments}
}

// LoadInstrumentsResponseData is the response data for the LoadInstruments endpoint
type LoadInstrumentsResponseData struct {
	Timestamp string           `json:"timestamp"`
	Stats     models.LoadStats `json:"stats"`
}

// LoadInstruments loads a contract master CSV posted in the request body
func (h *InstrumentHandler) LoadInstruments(c echo.Context) error {
	records, err := service.ParseMasterCSV(c.Request().Body)
	if err != nil {
		return response.ErrorResponse(c, http.StatusBadRequest, response.ErrTypeInput, err.Error())
	}

	stats, err := h.instruments.Load(records)
	if err != nil {
		return response.ErrorResponse(c, http.StatusUnprocessableEntity, response.ErrTypeLoad, err.Error())
	}

	responseData := LoadInstrumentsResponseData{
		Timestamp: time.Now().Format("2006-01-02 15:04:05"),
		Stats:     stats,
	}

	return response.SuccessResponse(c, responseData)
}

// GetStats returns the load stats of the active generation
func (h *InstrumentHandler) GetStats(c echo.Context) error {
	stats, err := h.instruments.Stats()
	if err != nil {
		return response.ErrorResponse(c, http.StatusNotFound, response.ErrTypeDataNotFound, err.Error())
	}
	return response.SuccessResponse(c, stats)
}

// GetInstrumentsInfo returns instruments by tokens
func (h *InstrumentHandler) GetInstrumentsInfo(c echo.Context) error {
	tokensStr := c.QueryParams()["t"]
	if len(tokensStr) == 0 {
		return response.ErrorResponse(c, http.StatusBadRequest, response.ErrTypeInput, "`t` is required")
	}

	result := make(map[string]interface{})
	for _, tokenStr := range tokensStr {
		token, err := strconv.ParseUint(tokenStr, 10, 32)
		if err != nil {
			return response.ErrorResponse(c, http.StatusBadRequest, response.ErrTypeInput, "Invalid `instrument_token`, must be digits")
		}
		instrument, err := h.instruments.LookupByToken(uint32(token))
		if err != nil {
			continue
		}
		result[tokenStr] = instrument
	}

	return response.SuccessResponse(c, result)
}

// GetTokensBySymbol returns the tokens for a tradingsymbol, optionally
// narrowed by series
func (h *InstrumentHandler) GetTokensBySymbol(c echo.Context) error {
	symbol := c.QueryParam("tradingsymbol")
	series := c.QueryParam("series")
	if len(symbol) == 0 {
		return response.ErrorResponse(c, http.StatusBadRequest, response.ErrTypeInput, "`tradingsymbol` is required")
	}

	tokens, err := h.instruments.LookupBySymbol(symbol, series)
	if err != nil {
		return response.ErrorResponse(c, http.StatusInternalServerError, response.ErrTypeServer, err.Error())
	}
	return response.SuccessResponse(c, tokens)
}

// GetSymbols returns the unique tradingsymbols, optionally narrowed by series
func (h *InstrumentHandler) GetSymbols(c echo.Context) error {
	series := c.QueryParam("series")

	symbols, err := h.instruments.UniqueSymbols(series)
	if err != nil {
		return response.ErrorResponse(c, http.StatusInternalServerError, response.ErrTypeServer, err.Error())
	}
	return response.SuccessResponse(c, symbols)
}

// GetOptionChain returns tokens for an underlying name and expiry within a
// strike range
func (h *InstrumentHandler) GetOptionChain(c echo.Context) error {
	name := c.QueryParam("name")
	expiry := c.QueryParam("expiry")
	strikeFromStr := c.QueryParam("strike_from")
	strikeToStr := c.QueryParam("strike_to")

	if len(name) == 0 || len(expiry) == 0 {
		return response.ErrorResponse(c, http.StatusBadRequest, response.ErrTypeInput, "`name` and `expiry` are required")
	}
	if _, err := time.Parse("2006-01-02", expiry); err != nil {
		return response.ErrorResponse(c, http.StatusBadRequest, response.ErrTypeInput, "Invalid `expiry` value, must be a valid date")
	}

	strikeFrom := 0.0
	strikeTo := 1e12
	if len(strikeFromStr) > 0 {
		v, err := strconv.ParseFloat(strikeFromStr, 64)
		if err != nil {
			return response.ErrorResponse(c, http.StatusBadRequest, response.ErrTypeInput, "Invalid `strike_from` value")
		}
		strikeFrom = v
	}
	if len(strikeToStr) > 0 {
		v, err := strconv.ParseFloat(strikeToStr, 64)
		if err != nil {
			return response.ErrorResponse(c, http.StatusBadRequest, response.ErrTypeInput, "Invalid `strike_to` value")
		}
		strikeTo = v
	}

	tokens, err := h.instruments.LookupByExpiryStrike(name, expiry, strikeFrom, strikeTo)
	if err != nil {
		return response.ErrorResponse(c, http.StatusInternalServerError, response.ErrTypeServer, err.Error())
	}
	return response.SuccessResponse(c, tokens)
}

// GetInstrumentsQuery returns a list of instruments for the given filters
func (h *InstrumentHandler) GetInstrumentsQuery(c echo.Context) error {
	expiry := c.QueryParam("expiry")
	instrumentType := c.QueryParam("instrument_type")

	// check if expiry is input and is a valid date
	if len(expiry) > 0 {
		_, err := time.Parse("2006-01-02", expiry)
		if err != nil {
			return response.ErrorResponse(c, http.StatusBadRequest, response.ErrTypeInput, "Invalid `expiry` value, must be a valid date")
		}
	}
	// Check if instrument_type is one of FUT, CE, PE, EQ
	if len(instrumentType) > 0 && !regexp.MustCompile(`^(FUT|CE|PE|EQ|SP)$`).MatchString(instrumentType) {
		return response.ErrorResponse(c, http.StatusBadRequest, response.ErrTypeInput, "Invalid `instrument_type` value, must be `FUT`, `CE`, `PE`, `EQ` or `SP`")
	}

	var params models.QueryInstrumentsParams
	if err := c.Bind(&params); err != nil {
		return response.ErrorResponse(c, http.StatusBadRequest, response.ErrTypeInput, "Invalid query parameters")
	}

	instruments, err := h.instruments.Query(params)
	if err != nil {
		return response.ErrorResponse(c, http.StatusInternalServerError, response.ErrTypeServer, err.Error())
	}
	return response.SuccessResponse(c, instruments)
}
