// Package server exposes the gateway's request surface: the HTTP routes and
// the websocket push endpoint subscribers connect to.
package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tickergate/hub"
	"tickergate/logger"
	"tickergate/pair"
	"tickergate/trading"
)

// PairRegistry is the slice of the registry the request surface needs.
type PairRegistry interface {
	Current() string
	Set(requested string) (pair string, switched bool, err error)
}

type Server struct {
	registry PairRegistry
	hub      *hub.Hub
	trader   trading.Client
	log      *logger.Log
	upgrader websocket.Upgrader
}

func New(registry PairRegistry, h *hub.Hub, trader trading.Client) *Server {
	return &Server{
		registry: registry,
		hub:      h,
		trader:   trader,
		log:      logger.GetLogger(),
		upgrader: websocket.Upgrader{
			// The push feed is public by design, same as the REST surface.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", s.handleRoot)
	r.GET("/ws", s.handleSubscriber)

	r.POST("/set-pair", s.handleSetPair)
	r.GET("/balance/:pair", s.handleBalance)
	r.POST("/place-order", s.handlePlaceOrder)
	r.POST("/cancel-order", s.handleCancelOrder)
	r.GET("/orders", s.handleOrders)
	r.GET("/account", s.handleAccount)
	r.GET("/positions", s.handlePositions)
	r.GET("/top-movers", s.handleTopMovers)
	r.GET("/all-pairs", s.handleAllPairs)

	return r
}

// respondError maps the gateway error taxonomy onto one JSON error body.
// Validation problems carry their own message; venue failures propagate the
// venue's message; everything else is a generic 500 with the detail logged
// server-side only.
func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pair.ErrMissingPair):
		c.JSON(http.StatusBadRequest, gin.H{"error": `The "pair" field is missing.`})
	case errors.Is(err, pair.ErrInvalidPair):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid pair format."})
	case errors.Is(err, trading.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		var venueErr *trading.UpstreamError
		if errors.As(err, &venueErr) {
			c.JSON(http.StatusBadGateway, gin.H{"error": venueErr.Message})
			return
		}
		s.log.WithComponent("gateway").WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error."})
	}
}
