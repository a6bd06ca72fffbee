package exchange

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/courtsidehq/courtside/internal/telemetry"
)

// OrderRequest is the engine-side shape of an order submission. Prices are
// integer cents in [1,99], quantities positive integer contracts.
type OrderRequest struct {
	ClientID   string `json:"client_order_id"`
	GameID     string `json:"market"`
	Action     string `json:"action"` // "buy" or "sell"
	Side       string `json:"side"`   // "yes" or "no"
	PriceCents int    `json:"price_cents"`
	Count      int    `json:"count"`
}

// Ack is the exchange's positive response to a submission.
type Ack struct {
	ExchangeID string
	Status     string
}

// RejectError carries the exchange's terminal refusal of an order. The
// caller turns it into an order_reject event, it is not a transport
// failure.
type RejectError struct {
	Status int
	Body   string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("order rejected: status=%d body=%s", e.Status, e.Body)
}

func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (Ack, error) {
	body, status, err := c.post(ctx, "/v1/orders", req)
	if err != nil {
		telemetry.Metrics.OrderErrors.Inc()
		return Ack{}, err
	}
	if status < 200 || status >= 300 {
		telemetry.Metrics.OrderErrors.Inc()
		return Ack{}, &RejectError{Status: status, Body: string(body)}
	}

	var resp struct {
		Order struct {
			OrderID string `json:"order_id"`
			Status  string `json:"status"`
		} `json:"order"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Ack{}, fmt.Errorf("unmarshal order response: %w", err)
	}

	telemetry.Metrics.OrdersSent.Inc()
	telemetry.Infof("exchange: order placed market=%s side=%s count=%d @%dc -> %s",
		req.GameID, req.Side, req.Count, req.PriceCents, resp.Order.OrderID)
	return Ack{ExchangeID: resp.Order.OrderID, Status: resp.Order.Status}, nil
}

func (c *Client) CancelOrder(ctx context.Context, exchangeID string) error {
	_, status, err := c.delete(ctx, "/v1/orders/"+exchangeID)
	if err != nil {
		return err
	}
	// 404 counts as cancelled: the order is already gone.
	if status != 404 && (status < 200 || status >= 300) {
		return fmt.Errorf("cancel %s: status=%d", exchangeID, status)
	}
	return nil
}

// ExchangePosition is the exchange's authoritative view of one holding.
type ExchangePosition struct {
	GameID        string `json:"market"`
	Side          string `json:"side"`
	Quantity      int    `json:"position"`
	AvgPriceCents int    `json:"avg_price_cents"`
}

func (c *Client) FetchPositions(ctx context.Context) ([]ExchangePosition, error) {
	body, status, err := c.get(ctx, "/v1/portfolio/positions")
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, fmt.Errorf("fetch positions: status=%d", status)
	}
	var resp struct {
		Positions []ExchangePosition `json:"positions"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal positions: %w", err)
	}
	return resp.Positions, nil
}

// ExchangeOrder is the exchange's view of a resting order.
type ExchangeOrder struct {
	ExchangeID string `json:"order_id"`
	ClientID   string `json:"client_order_id"`
	GameID     string `json:"market"`
	Side       string `json:"side"`
	PriceCents int    `json:"price_cents"`
	Quantity   int    `json:"count"`
	FilledQty  int    `json:"filled_count"`
}

func (c *Client) FetchOpenOrders(ctx context.Context) ([]ExchangeOrder, error) {
	body, status, err := c.get(ctx, "/v1/portfolio/orders?status=open")
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, fmt.Errorf("fetch open orders: status=%d", status)
	}
	var resp struct {
		Orders []ExchangeOrder `json:"orders"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal orders: %w", err)
	}
	return resp.Orders, nil
}
