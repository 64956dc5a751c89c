// Package trading is the synchronous boundary to the venue's account and
// order API.
package trading

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound reports that the venue has no record of the requested
// resource.
var ErrNotFound = errors.New("not found")

// UpstreamError carries a venue-provided failure through to the request
// surface.
type UpstreamError struct {
	Code    int64
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("venue error %d: %s", e.Code, e.Message)
}

// Balance is one asset's free and locked amounts.
type Balance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

// Account is the venue account snapshot.
type Account struct {
	CanTrade    bool      `json:"canTrade"`
	CanWithdraw bool      `json:"canWithdraw"`
	CanDeposit  bool      `json:"canDeposit"`
	UpdateTime  uint64    `json:"updateTime"`
	Balances    []Balance `json:"balances"`
}

// Order is the venue's view of one order.
type Order struct {
	Symbol           string `json:"symbol"`
	OrderID          int64  `json:"orderId"`
	ClientOrderID    string `json:"clientOrderId"`
	Price            string `json:"price"`
	OrigQuantity     string `json:"origQty"`
	ExecutedQuantity string `json:"executedQty"`
	Status           string `json:"status"`
	Type             string `json:"type"`
	Side             string `json:"side"`
	Time             int64  `json:"time"`
}

// TickerStat is one symbol's rolling 24h statistics.
type TickerStat struct {
	Symbol             string `json:"symbol"`
	PriceChangePercent string `json:"priceChangePercent"`
	LastPrice          string `json:"lastPrice"`
}

// OrderRequest describes an order to place. Quantity and Price are decimal
// strings the way the venue expects them; Price and TimeInForce are only
// set for limit orders.
type OrderRequest struct {
	Symbol      string
	Side        string
	Type        string
	Quantity    string
	Price       string
	TimeInForce string
}

// CancelRequest identifies an order to cancel by venue id or by the
// client-assigned id.
type CancelRequest struct {
	Symbol            string
	OrderID           int64
	OrigClientOrderID string
}

// Client is the venue trading capability consumed by the request surface.
type Client interface {
	Account(ctx context.Context) (*Account, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error)
	CancelOrder(ctx context.Context, req CancelRequest) (*Order, error)
	Orders(ctx context.Context, symbol string) ([]Order, error)
	OpenOrders(ctx context.Context, symbol string) ([]Order, error)
	TickerStats(ctx context.Context) ([]TickerStat, error)
}
