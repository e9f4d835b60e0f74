package database

// OrderSide identifies whether an order buys or sells energy.
type OrderSide string

// Set of order sides.
const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus tracks the lifecycle of an order in the book.
type OrderStatus string

// Set of order statuses. Orders move open -> partial -> filled, or to
// cancelled from either open state.
const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusPartial   OrderStatus = "partially_filled"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order represents a resting or incoming buy/sell energy order. Orders are
// mutated only by the matching engine (fills) or by an owner cancellation.
type Order struct {
	ID           string      `json:"id"`
	Trader       AccountID   `json:"trader"`
	Side         OrderSide   `json:"side"`
	EnergyAmount float64     `json:"energy_amount"` // Original kWh requested.
	Remaining    float64     `json:"remaining"`     // Unfilled kWh.
	PricePerKWH  float64     `json:"price_per_kwh"`
	Status       OrderStatus `json:"status"`
	CreatedAt    uint64      `json:"created_at"`           // Unix seconds of pool acceptance.
	ExpiresAt    uint64      `json:"expires_at,omitempty"` // Unix seconds, zero means never.
}

// Expired reports whether the order can no longer trade at the given time.
func (o Order) Expired(now uint64) bool {
	return o.ExpiresAt != 0 && now >= o.ExpiresAt
}

// Fill reduces the remaining amount and moves the status accordingly.
func (o *Order) Fill(amount float64) {
	o.Remaining -= amount
	if o.Remaining <= 0 {
		o.Remaining = 0
		o.Status = OrderStatusFilled
		return
	}
	o.Status = OrderStatusPartial
}

// =============================================================================

// Trade represents an executed match between a buy and a sell order. Trades
// are immutable once created.
type Trade struct {
	ID           string    `json:"id"`
	BuyOrderID   string    `json:"buy_order_id"`
	SellOrderID  string    `json:"sell_order_id"`
	Buyer        AccountID `json:"buyer"`
	Seller       AccountID `json:"seller"`
	EnergyAmount float64   `json:"energy_amount"`
	PricePerKWH  float64   `json:"price_per_kwh"` // The resting order's price.
	TotalPrice   float64   `json:"total_price"`
	GridFee      float64   `json:"grid_fee"` // Grid tokens retained by the grid.
	ExecutedAt   uint64    `json:"executed_at"`
}
