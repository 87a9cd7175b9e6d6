package broker

import (
	"context"
	"errors"

	"robinhood-trade-bot-go/internal/strategy"
)

// ErrNotAuthenticated indicates the brokerage session is invalid and
// could not be re-established. It is the only fatal condition in a
// trading cycle: the engine transitions to not-running when it surfaces.
var ErrNotAuthenticated = errors.New("brokerage session is not authenticated")

// Portfolio is a point-in-time account summary.
type Portfolio struct {
	TotalValue  float64 `json:"total_value"`  // total equity
	BuyingPower float64 `json:"buying_power"` // withdrawable/spendable cash
	DayChange   float64 `json:"day_change"`   // equity change since previous close
}

// Position is one open holding.
type Position struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
}

// Order is the brokerage's acknowledgement of a placed order.
type Order struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// Client is the brokerage session: authentication, account state and
// order placement. One instance is shared by the scheduled cycle and
// operator-triggered trades; implementations serialize their own
// session refresh.
type Client interface {
	IsAuthenticated() bool
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Portfolio(ctx context.Context) (Portfolio, error)
	OpenPositions(ctx context.Context) ([]Position, error)
	PlaceOrder(ctx context.Context, symbol string, side strategy.Action, dollarAmount float64) (Order, error)
}
