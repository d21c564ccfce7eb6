package broker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"traderbot/internal/domain"
	"traderbot/internal/util"
)

// Compile-time interface check.
var _ Broker = (*AlpacaBroker)(nil)

// AlpacaOptions configures an AlpacaBroker.
type AlpacaOptions struct {
	APIKey    string
	APISecret string
	// BaseURL is the trading endpoint, paper or live.
	BaseURL string
	// DataURL is the market data endpoint. A trailing /v2 is accepted.
	DataURL string
	// Feed selects the data feed ("iex" or "sip"). Empty uses the
	// account default.
	Feed string
	// RequestsPerMinute caps market data calls. Zero disables limiting.
	RequestsPerMinute int
	// Retries is the number of attempts for read calls. Defaults to 3.
	Retries    int
	RetryDelay time.Duration
}

// AlpacaBroker implements the Broker interface using the Alpaca brokerage
// API, and serves historical and recent bars from Alpaca market data.
type AlpacaBroker struct {
	trade      *alpaca.Client
	data       *marketdata.Client
	feed       string
	limiter    *util.RateLimiter
	retries    int
	retryDelay time.Duration
	log        *slog.Logger
}

// NewAlpacaBroker creates a new AlpacaBroker configured with the given
// credentials and API endpoints.
func NewAlpacaBroker(opts AlpacaOptions) *AlpacaBroker {
	tradeOpts := alpaca.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
	}
	if opts.BaseURL != "" {
		tradeOpts.BaseURL = strings.TrimSuffix(strings.TrimSuffix(opts.BaseURL, "/"), "/v2")
	}
	dataOpts := marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
	}
	if opts.DataURL != "" {
		dataOpts.BaseURL = strings.TrimSuffix(strings.TrimSuffix(opts.DataURL, "/"), "/v2")
	}
	retries := opts.Retries
	if retries < 1 {
		retries = 3
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return &AlpacaBroker{
		trade:      alpaca.NewClient(tradeOpts),
		data:       marketdata.NewClient(dataOpts),
		feed:       opts.Feed,
		limiter:    util.NewRateLimiter(opts.RequestsPerMinute),
		retries:    retries,
		retryDelay: delay,
		log:        slog.Default().With("broker", "alpaca"),
	}
}

// Name returns "alpaca".
func (b *AlpacaBroker) Name() string {
	return "alpaca"
}

// SubmitOrder places a day market order. Orders are sent once; a missing
// ClientOrderID is filled with a fresh UUID so the broker can deduplicate.
func (b *AlpacaBroker) SubmitOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if err := validateOrder(order); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if order.ClientOrderID == "" {
		order.ClientOrderID = uuid.NewString()
	}
	qty := decimal.NewFromFloat(order.Qty)
	placed, err := b.trade.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:        order.Symbol,
		Qty:           &qty,
		Side:          alpaca.Side(order.Side),
		Type:          alpaca.Market,
		TimeInForce:   alpaca.Day,
		ClientOrderID: order.ClientOrderID,
	})
	if err != nil {
		return nil, fmt.Errorf("placing %s order for %s: %w", order.Side, order.Symbol, err)
	}
	out := *order
	applyAlpacaOrder(&out, placed)
	return &out, nil
}

// CancelOrder requests cancellation of an open order via the Alpaca API.
func (b *AlpacaBroker) CancelOrder(ctx context.Context, orderID string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := b.trade.CancelOrder(orderID); err != nil {
		return fmt.Errorf("cancelling order %s: %w", orderID, err)
	}
	return nil
}

// GetPositions returns all current positions from the Alpaca account.
func (b *AlpacaBroker) GetPositions(ctx context.Context) ([]domain.Position, error) {
	var raw []alpaca.Position
	err := b.retry(ctx, func() error {
		var err error
		raw, err = b.trade.GetPositions()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing positions: %w", err)
	}
	positions := make([]domain.Position, 0, len(raw))
	for _, p := range raw {
		pos := domain.Position{
			Symbol:        p.Symbol,
			Qty:           p.Qty.InexactFloat64(),
			Side:          domain.PositionSide(strings.ToLower(p.Side)),
			AvgEntryPrice: p.AvgEntryPrice.InexactFloat64(),
		}
		if p.MarketValue != nil {
			pos.MarketValue = p.MarketValue.InexactFloat64()
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// GetAccount returns the current account information from the Alpaca API.
func (b *AlpacaBroker) GetAccount(ctx context.Context) (*domain.AccountInfo, error) {
	var acct *alpaca.Account
	err := b.retry(ctx, func() error {
		var err error
		acct, err = b.trade.GetAccount()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("getting account: %w", err)
	}
	return &domain.AccountInfo{
		Equity:      acct.Equity.InexactFloat64(),
		Cash:        acct.Cash.InexactFloat64(),
		BuyingPower: acct.BuyingPower.InexactFloat64(),
	}, nil
}

// FetchBars returns bars for symbol in [start, end], oldest first. A zero
// end means up to now.
func (b *AlpacaBroker) FetchBars(ctx context.Context, symbol string, tf marketdata.TimeFrame, start, end time.Time) ([]domain.Bar, error) {
	symbol = strings.ToUpper(symbol)
	var raw []marketdata.Bar
	err := b.retry(ctx, func() error {
		var err error
		raw, err = b.data.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame: tf,
			Start:     start,
			End:       end,
			Feed:      b.feed,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s bars for %s: %w", tf, symbol, err)
	}
	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		bars = append(bars, domain.Bar{
			Symbol:     symbol,
			Timestamp:  ab.Timestamp.UTC(),
			Open:       ab.Open,
			High:       ab.High,
			Low:        ab.Low,
			Close:      ab.Close,
			Volume:     float64(ab.Volume),
			TradeCount: int64(ab.TradeCount),
			VWAP:       ab.VWAP,
		})
	}
	b.log.Debug("fetched bars", "symbol", symbol, "timeframe", tf.String(), "count", len(bars))
	return bars, nil
}

// LatestBars returns the most recent n bars for symbol.
func (b *AlpacaBroker) LatestBars(ctx context.Context, symbol string, tf marketdata.TimeFrame, n int) ([]domain.Bar, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: lookback must be positive", domain.ErrConfiguration)
	}
	end := time.Now().UTC()
	bars, err := b.FetchBars(ctx, symbol, tf, end.Add(-lookbackWindow(tf, n)), end)
	if err != nil {
		return nil, err
	}
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	return bars, nil
}

func (b *AlpacaBroker) retry(ctx context.Context, fn func() error) error {
	return util.Retry(ctx, b.retries, b.retryDelay, func() error {
		if err := b.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		return fn()
	})
}

func applyAlpacaOrder(dst *domain.Order, o *alpaca.Order) {
	if o == nil {
		return
	}
	dst.BrokerID = o.ID
	if dst.ID == "" {
		dst.ID = o.ID
	}
	if o.ClientOrderID != "" {
		dst.ClientOrderID = o.ClientOrderID
	}
	if o.Qty != nil {
		dst.Qty = o.Qty.InexactFloat64()
	}
	dst.FilledQty = o.FilledQty.InexactFloat64()
	if o.FilledAvgPrice != nil {
		dst.FilledAvgPrice = o.FilledAvgPrice.InexactFloat64()
	}
	dst.Status = mapAlpacaStatus(o.Status)
	if !o.CreatedAt.IsZero() {
		dst.CreatedAt = o.CreatedAt.UTC()
	}
	if !o.UpdatedAt.IsZero() {
		dst.UpdatedAt = o.UpdatedAt.UTC()
	}
}

func mapAlpacaStatus(status string) domain.OrderStatus {
	switch strings.ToLower(status) {
	case "new":
		return domain.OrderStatusNew
	case "filled":
		return domain.OrderStatusFilled
	case "canceled", "cancelled", "expired", "done_for_day":
		return domain.OrderStatusCancelled
	case "rejected", "suspended":
		return domain.OrderStatusRejected
	default:
		return domain.OrderStatusAccepted
	}
}
