// Package binance implements trading.Client with the venue's spot REST API.
package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"golang.org/x/time/rate"

	"tickergate/logger"
	"tickergate/trading"
)

// Client wraps the venue SDK behind the trading.Client interface. Every
// request passes the shared rate limiter first so a burst of gateway calls
// cannot trip the venue's request-weight limits.
type Client struct {
	api     *binance.Client
	limiter *rate.Limiter
	log     *logger.Log
}

func NewClient(apiKey, apiSecret, baseURL string, requestsPerSecond, burst int) *Client {
	api := binance.NewClient(apiKey, apiSecret)
	if baseURL != "" {
		api.BaseURL = baseURL
	}
	return &Client{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		log:     logger.GetLogger(),
	}
}

func (c *Client) Account(ctx context.Context) (*trading.Account, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	acct, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, wrapVenueError(err)
	}

	balances := make([]trading.Balance, 0, len(acct.Balances))
	for _, b := range acct.Balances {
		balance, err := convertBalance(b)
		if err != nil {
			c.log.WithComponent("binance_trading").WithError(err).
				WithFields(logger.Fields{"asset": b.Asset}).
				Warn("skipping balance with unparseable amounts")
			continue
		}
		balances = append(balances, balance)
	}

	return &trading.Account{
		CanTrade:    acct.CanTrade,
		CanWithdraw: acct.CanWithdraw,
		CanDeposit:  acct.CanDeposit,
		UpdateTime:  acct.UpdateTime,
		Balances:    balances,
	}, nil
}

func (c *Client) PlaceOrder(ctx context.Context, req trading.OrderRequest) (*trading.Order, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	svc := c.api.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(binance.SideType(req.Side)).
		Type(binance.OrderType(req.Type)).
		Quantity(req.Quantity)
	if req.Price != "" {
		svc = svc.Price(req.Price)
	}
	if req.TimeInForce != "" {
		svc = svc.TimeInForce(binance.TimeInForceType(req.TimeInForce))
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return nil, wrapVenueError(err)
	}

	return &trading.Order{
		Symbol:           res.Symbol,
		OrderID:          res.OrderID,
		ClientOrderID:    res.ClientOrderID,
		Price:            res.Price,
		OrigQuantity:     res.OrigQuantity,
		ExecutedQuantity: res.ExecutedQuantity,
		Status:           string(res.Status),
		Type:             string(res.Type),
		Side:             string(res.Side),
		Time:             res.TransactTime,
	}, nil
}

func (c *Client) CancelOrder(ctx context.Context, req trading.CancelRequest) (*trading.Order, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	svc := c.api.NewCancelOrderService().Symbol(req.Symbol)
	if req.OrderID != 0 {
		svc = svc.OrderID(req.OrderID)
	} else {
		svc = svc.OrigClientOrderID(req.OrigClientOrderID)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return nil, wrapVenueError(err)
	}

	return &trading.Order{
		Symbol:           res.Symbol,
		OrderID:          res.OrderID,
		ClientOrderID:    res.ClientOrderID,
		Price:            res.Price,
		OrigQuantity:     res.OrigQuantity,
		ExecutedQuantity: res.ExecutedQuantity,
		Status:           string(res.Status),
		Type:             string(res.Type),
		Side:             string(res.Side),
		Time:             res.TransactTime,
	}, nil
}

func (c *Client) Orders(ctx context.Context, symbol string) ([]trading.Order, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	orders, err := c.api.NewListOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, wrapVenueError(err)
	}
	return convertOrders(orders), nil
}

func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]trading.Order, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	orders, err := c.api.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, wrapVenueError(err)
	}
	return convertOrders(orders), nil
}

func (c *Client) TickerStats(ctx context.Context) ([]trading.TickerStat, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	stats, err := c.api.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, wrapVenueError(err)
	}

	out := make([]trading.TickerStat, 0, len(stats))
	for _, s := range stats {
		out = append(out, trading.TickerStat{
			Symbol:             s.Symbol,
			PriceChangePercent: s.PriceChangePercent,
			LastPrice:          s.LastPrice,
		})
	}
	return out, nil
}

func convertOrders(orders []*binance.Order) []trading.Order {
	out := make([]trading.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, trading.Order{
			Symbol:           o.Symbol,
			OrderID:          o.OrderID,
			ClientOrderID:    o.ClientOrderID,
			Price:            o.Price,
			OrigQuantity:     o.OrigQuantity,
			ExecutedQuantity: o.ExecutedQuantity,
			Status:           string(o.Status),
			Type:             string(o.Type),
			Side:             string(o.Side),
			Time:             o.Time,
		})
	}
	return out
}

func convertBalance(b binance.Balance) (trading.Balance, error) {
	free, err := strconv.ParseFloat(b.Free, 64)
	if err != nil {
		return trading.Balance{}, fmt.Errorf("parse free amount: %w", err)
	}
	locked, err := strconv.ParseFloat(b.Locked, 64)
	if err != nil {
		return trading.Balance{}, fmt.Errorf("parse locked amount: %w", err)
	}
	return trading.Balance{Asset: b.Asset, Free: free, Locked: locked}, nil
}

// wrapVenueError maps the SDK's API error onto the gateway taxonomy so the
// request surface can propagate the venue's own message.
func wrapVenueError(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return &trading.UpstreamError{Code: apiErr.Code, Message: apiErr.Message}
	}
	return err
}
