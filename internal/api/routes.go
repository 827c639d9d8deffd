// Package api contains the API routes for the Marketcore API
package api

import (
	"fmt"
	"log"

	"github.com/labstack/echo/v4"

	"github.com/marketbots/marketcore/internal/api/handlers"
	"github.com/marketbots/marketcore/internal/api/middleware"
	"github.com/marketbots/marketcore/internal/config"
	"github.com/marketbots/marketcore/internal/service"
	"github.com/marketbots/marketcore/pkg/utils/response"
)

// Services holds the service instances the routes are wired to
type Services struct {
	Store       *service.PriceStore
	Distributor *service.Distributor
	Instruments *service.InstrumentService
	Greeks      *service.GreeksCache
}

// SetupRoutes configures the routes for the API
func SetupRoutes(e *echo.Echo, cfg *config.Config, svc Services) {

	// Create a group for all API routes
	api := e.Group("/api")

	// Index route
	api.GET("/", indexRoute)

	// Instrument routes (protected)
	instrumentHandler := handlers.NewInstrumentHandler(svc.Instruments)
	instrumentGroup := api.Group("/instrument")
	instrumentGroup.Use(middleware.AuthMiddleware(cfg.APIKey))
	instrumentGroup.POST("/load", instrumentHandler.LoadInstruments)
	instrumentGroup.GET("/stats", instrumentHandler.GetStats)
	instrumentGroup.GET("/info", instrumentHandler.GetInstrumentsInfo)
	instrumentGroup.GET("/tokens", instrumentHandler.GetTokensBySymbol)
	instrumentGroup.GET("/symbols", instrumentHandler.GetSymbols)
	instrumentGroup.GET("/query", instrumentHandler.GetInstrumentsQuery)

	// Optionchain routes (protected)
	optionchainGroup := api.Group("/instrument/oc")
	optionchainGroup.Use(middleware.AuthMiddleware(cfg.APIKey))
	optionchainGroup.GET("", instrumentHandler.GetOptionChain)

	// Quote routes (protected)
	quoteHandler := handlers.NewQuoteHandler(svc.Store)
	quoteGroup := api.Group("/quote")
	quoteGroup.Use(middleware.AuthMiddleware(cfg.APIKey))
	quoteGroup.GET("", quoteHandler.GetQuote)
	quoteGroup.GET("/ohlc", quoteHandler.GetOHLC)
	quoteGroup.GET("/ltp", quoteHandler.GetLTP)

	// Greeks routes (protected)
	greeksHandler := handlers.NewGreeksHandler(svc.Greeks)
	greeksGroup := api.Group("/greeks")
	greeksGroup.Use(middleware.AuthMiddleware(cfg.APIKey))
	greeksGroup.GET("", greeksHandler.GetGreeks)

	// Ingest routes (protected)
	ingestHandler := handlers.NewIngestHandler(svc.Distributor)
	ingestGroup := api.Group("/ingest")
	ingestGroup.Use(middleware.AuthMiddleware(cfg.APIKey))
	ingestGroup.POST("/updates", ingestHandler.IngestUpdates)

	// Stream routes (protected)
	streamHandler := handlers.NewStreamHandler(svc.Distributor)
	streamGroup := api.Group("/stream")
	streamGroup.Use(middleware.AuthMiddleware(cfg.APIKey))
	streamGroup.POST("/events", streamHandler.StreamChangeEvents)

}

// indexRoute sets up the index route for the API
func indexRoute(c echo.Context) error {
	cfg, err := config.Get()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	message := fmt.Sprintf("%s %s", cfg.APIName, cfg.APIVersion)
	return response.SuccessResponse(c, message)
}
