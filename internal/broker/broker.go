// Package broker defines the Broker interface and provides implementations
// for executing orders and managing accounts across different brokerages.
package broker

import (
	"context"
	"errors"

	"traderbot/internal/domain"
)

var (
	// ErrRejected is returned when a broker refuses an order.
	ErrRejected = errors.New("order rejected")
	// ErrOrderNotFound is returned when an order ID is unknown to the broker.
	ErrOrderNotFound = errors.New("order not found")
)

// Broker abstracts brokerage operations for order execution and account management.
type Broker interface {
	// Name returns the broker identifier (e.g. "alpaca", "simulator").
	Name() string

	// SubmitOrder sends an order to the brokerage for execution.
	SubmitOrder(ctx context.Context, order *domain.Order) (*domain.Order, error)

	// CancelOrder requests cancellation of an open order by its ID.
	CancelOrder(ctx context.Context, orderID string) error

	// GetPositions returns all current positions held at the brokerage.
	GetPositions(ctx context.Context) ([]domain.Position, error)

	// GetAccount returns a snapshot of the account's financial metrics.
	GetAccount(ctx context.Context) (*domain.AccountInfo, error)
}

// Marker is implemented by brokers that value holdings from prices supplied
// by the caller instead of a live quote feed.
type Marker interface {
	Mark(symbol string, price float64)
}

func validateOrder(order *domain.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	if order.Symbol == "" {
		return errors.New("order symbol is empty")
	}
	if order.Qty <= 0 {
		return errors.New("order quantity must be positive")
	}
	switch order.Side {
	case domain.OrderSideBuy, domain.OrderSideSell:
	default:
		return errors.New("unknown order side " + string(order.Side))
	}
	if order.Type != "" && order.Type != domain.OrderTypeMarket {
		return errors.New("unsupported order type " + string(order.Type))
	}
	return nil
}
