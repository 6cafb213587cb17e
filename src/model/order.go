package model

import "github.com/shopspring/decimal"

// OrderState is the exchange-reported state of an entry order or a protective algo order.
type OrderState string

const (
	OrderStatePending         OrderState = "pending"
	OrderStatePartiallyFilled OrderState = "partially_filled"
	OrderStateFilled          OrderState = "filled"
	OrderStateCancelled       OrderState = "cancelled"
	OrderStateRejected        OrderState = "rejected"
)

// ExitLeg identifies which side of an OCO executed.
type ExitLeg string

const (
	ExitLegNone       ExitLeg = ""
	ExitLegTakeProfit ExitLeg = "tp"
	ExitLegStopLoss   ExitLeg = "sl"
)

// OrderStatus is a point-in-time snapshot of an exchange order.
type OrderStatus struct {
	OrderID    string          `json:"order_id"`
	ClientID   string          `json:"client_id"`
	State      OrderState      `json:"state"`
	FilledSize decimal.Decimal `json:"filled_size"`
	AvgPrice   decimal.Decimal `json:"avg_price"`
	// Exit is only set for executed protective orders.
	Exit ExitLeg `json:"exit,omitempty"`
}

func (o OrderStatus) Done() bool {
	return o.State == OrderStateFilled || o.State == OrderStateCancelled || o.State == OrderStateRejected
}
