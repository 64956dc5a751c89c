package server

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tickergate/logger"
	"tickergate/pair"
	"tickergate/trading"
)

const quoteAsset = "USDT"

func (s *Server) handleRoot(c *gin.Context) {
	c.String(http.StatusOK, "Realtime crypto ticker gateway is up. Tracking pair: %s.", s.registry.Current())
}

type setPairRequest struct {
	Pair string `json:"pair"`
}

func (s *Server) handleSetPair(c *gin.Context) {
	var req setPairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, pair.ErrMissingPair)
		return
	}

	p, switched, err := s.registry.Set(req.Pair)
	if err != nil {
		if errors.Is(err, pair.ErrMissingPair) || errors.Is(err, pair.ErrInvalidPair) {
			s.respondError(c, err)
			return
		}
		s.log.WithComponent("gateway").WithError(err).Error("pair switch failed upstream")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to update pair subscription."})
		return
	}

	message := "Pair already tracked."
	if switched {
		message = "Pair subscription updated."
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "pair": p})
}

type balanceSide struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

func (s *Server) handleBalance(c *gin.Context) {
	requested := strings.ToUpper(strings.TrimSpace(c.Param("pair")))
	base := strings.TrimSuffix(requested, quoteAsset)

	acct, err := s.trader.Account(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	baseBalance := findBalance(acct.Balances, base)
	quoteBalance := findBalance(acct.Balances, quoteAsset)
	if baseBalance == nil && quoteBalance == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Balances not found for " + base + " and " + quoteAsset})
		return
	}

	// A side missing from the account reports as zero rather than an error.
	resp := gin.H{
		"base":  balanceSide{Asset: base},
		"quote": balanceSide{Asset: quoteAsset},
	}
	if baseBalance != nil {
		resp["base"] = balanceSide{Asset: baseBalance.Asset, Free: baseBalance.Free, Locked: baseBalance.Locked}
	}
	if quoteBalance != nil {
		resp["quote"] = balanceSide{Asset: quoteBalance.Asset, Free: quoteBalance.Free, Locked: quoteBalance.Locked}
	}
	c.JSON(http.StatusOK, resp)
}

func findBalance(balances []trading.Balance, asset string) *trading.Balance {
	for i := range balances {
		if balances[i].Asset == asset {
			return &balances[i]
		}
	}
	return nil
}

type placeOrderRequest struct {
	Side     string      `json:"side"`
	Type     string      `json:"type"`
	Quantity interface{} `json:"quantity"`
	Price    interface{} `json:"price"`
}

func (s *Server) handlePlaceOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required order parameters."})
		return
	}

	if req.Side == "" || req.Type == "" || req.Quantity == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required order parameters."})
		return
	}
	orderType := strings.ToUpper(req.Type)
	if orderType == "LIMIT" && req.Price == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required order parameters for LIMIT order."})
		return
	}

	quantity, ok := toDecimal(req.Quantity)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid quantity or price."})
		return
	}

	order := trading.OrderRequest{
		Symbol:   s.registry.Current(),
		Side:     strings.ToUpper(req.Side),
		Type:     orderType,
		Quantity: quantity.String(),
	}
	if orderType == "LIMIT" {
		price, ok := toDecimal(req.Price)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid quantity or price."})
			return
		}
		order.Price = price.String()
		order.TimeInForce = "GTC"
	}

	placed, err := s.trader.PlaceOrder(c.Request.Context(), order)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order placed successfully!", "order": placed})
}

// toDecimal accepts the quantity/price field as a JSON number or a numeric
// string.
func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch value := v.(type) {
	case float64:
		return decimal.NewFromFloat(value), true
	case string:
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	default:
		return decimal.Decimal{}, false
	}
}

type cancelOrderRequest struct {
	Symbol            string `json:"symbol"`
	OrderID           int64  `json:"orderId"`
	OrigClientOrderID string `json:"origClientOrderId"`
}

func (s *Server) handleCancelOrder(c *gin.Context) {
	var req cancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Symbol and either orderId or origClientOrderId are required."})
		return
	}
	if req.Symbol == "" || (req.OrderID == 0 && req.OrigClientOrderID == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Symbol and either orderId or origClientOrderId are required."})
		return
	}

	cancelled, err := s.trader.CancelOrder(c.Request.Context(), trading.CancelRequest{
		Symbol:            strings.ToUpper(req.Symbol),
		OrderID:           req.OrderID,
		OrigClientOrderID: req.OrigClientOrderID,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cancelled)
}

func (s *Server) handleOrders(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		symbol = s.registry.Current()
	}

	all, err := s.trader.Orders(c.Request.Context(), symbol)
	if err != nil {
		s.respondError(c, err)
		return
	}
	open, err := s.trader.OpenOrders(c.Request.Context(), symbol)
	if err != nil {
		s.respondError(c, err)
		return
	}

	// The historical listing can lag; merge in open orders and de-duplicate.
	seen := make(map[int64]struct{}, len(all)+len(open))
	merged := make([]trading.Order, 0, len(all)+len(open))
	for _, o := range append(all, open...) {
		if _, ok := seen[o.OrderID]; ok {
			continue
		}
		seen[o.OrderID] = struct{}{}
		merged = append(merged, o)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Time > merged[j].Time })

	c.JSON(http.StatusOK, merged)
}

func (s *Server) handleAccount(c *gin.Context) {
	acct, err := s.trader.Account(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

func (s *Server) handlePositions(c *gin.Context) {
	acct, err := s.trader.Account(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	positions := make([]trading.Balance, 0)
	for _, b := range acct.Balances {
		if b.Free > 0 || b.Locked > 0 {
			positions = append(positions, b)
		}
	}
	c.JSON(http.StatusOK, positions)
}

type mover struct {
	Symbol             string `json:"symbol"`
	PriceChangePercent string `json:"priceChangePercent"`
}

func (s *Server) handleTopMovers(c *gin.Context) {
	stats, err := s.trader.TickerStats(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	type candidate struct {
		symbol string
		change decimal.Decimal
	}
	candidates := make([]candidate, 0, len(stats))
	for _, t := range stats {
		if t.PriceChangePercent == "" || !strings.HasSuffix(t.Symbol, quoteAsset) {
			continue
		}
		change, err := decimal.NewFromString(t.PriceChangePercent)
		if err != nil {
			s.log.WithComponent("gateway").WithError(err).
				WithFields(logger.Fields{"symbol": t.Symbol}).
				Debug("skipping ticker with unparseable change percent")
			continue
		}
		candidates = append(candidates, candidate{symbol: t.Symbol, change: change})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].change.GreaterThan(candidates[j].change) })

	take := func(from []candidate) []mover {
		n := len(from)
		if n > 10 {
			n = 10
		}
		out := make([]mover, 0, n)
		for _, cand := range from[:n] {
			out = append(out, mover{Symbol: cand.symbol, PriceChangePercent: cand.change.StringFixed(2)})
		}
		return out
	}

	gainers := take(candidates)
	reversed := make([]candidate, len(candidates))
	for i, cand := range candidates {
		reversed[len(candidates)-1-i] = cand
	}
	losers := take(reversed)

	c.JSON(http.StatusOK, gin.H{"gainers": gainers, "losers": losers})
}

func (s *Server) handleAllPairs(c *gin.Context) {
	stats, err := s.trader.TickerStats(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	symbols := make([]string, 0, len(stats))
	for _, t := range stats {
		symbols = append(symbols, t.Symbol)
	}
	c.JSON(http.StatusOK, gin.H{"allPairs": symbols})
}
