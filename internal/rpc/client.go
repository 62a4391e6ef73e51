package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"tradecal/internal/calendar"
	"tradecal/internal/domain"
	"tradecal/internal/util"
)

// Client calls a remote data service. It is safe for concurrent use.
type Client struct {
	addr        string
	conn        *grpc.ClientConn
	maxAttempts int
	retryBase   time.Duration
	log         *slog.Logger
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	maxAttempts int
	retryBase   time.Duration
	log         *slog.Logger
	dialOpts    []grpc.DialOption
}

// WithRetry sets how many times a transient failure is attempted and the
// first backoff delay.
func WithRetry(maxAttempts int, base time.Duration) Option {
	return func(o *clientOptions) {
		o.maxAttempts = maxAttempts
		o.retryBase = base
	}
}

// WithLogger sets the client's logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *clientOptions) { o.log = log }
}

// WithDialOptions appends gRPC dial options.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *clientOptions) { o.dialOpts = append(o.dialOpts, opts...) }
}

// Dial creates a client targeting addr. The connection is established lazily
// on the first call.
func Dial(addr string, opts ...Option) (*Client, error) {
	o := clientOptions{maxAttempts: 3, retryBase: 200 * time.Millisecond, log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, o.dialOpts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &Client{
		addr:        addr,
		conn:        conn,
		maxAttempts: o.maxAttempts,
		retryBase:   o.retryBase,
		log:         o.log,
	}, nil
}

// Close releases the connection.
func (c *Client) Close() error { return c.conn.Close() }

// Call invokes fn with params and returns the response's data value.
// Transient failures are retried; InvalidArgument, NotFound and
// Unimplemented are returned at once.
func (c *Client) Call(ctx context.Context, fn string, params map[string]any) (*structpb.Value, error) {
	req, err := structpb.NewStruct(map[string]any{"func": fn, "params": params})
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", fn, err)
	}

	var resp *structpb.Struct
	attempt := 0
	err = util.Retry(ctx, c.maxAttempts, c.retryBase, func(ctx context.Context) error {
		attempt++
		out := new(structpb.Struct)
		if err := c.conn.Invoke(ctx, CallMethod, req, out); err != nil {
			if permanent(err) {
				return util.Permanent(err)
			}
			c.log.Warn("rpc call failed, retrying", "addr", c.addr, "func", fn, "attempt", attempt, "error", err)
			return err
		}
		resp = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return resp.GetFields()["data"], nil
}

func permanent(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.Unimplemented, codes.Canceled:
		return true
	}
	return false
}

// TradingDays returns the market's trading days, ascending.
func (c *Client) TradingDays(ctx context.Context) ([]time.Time, error) {
	data, err := c.Call(ctx, FuncTdays, nil)
	if err != nil {
		return nil, err
	}
	values := data.GetListValue().GetValues()
	days := make([]time.Time, 0, len(values))
	for _, v := range values {
		d, err := calendar.ParseDay(v.GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", FuncTdays, err)
		}
		days = append(days, d)
	}
	return days, nil
}

// DailyBars returns the daily bars of symbol with dates in [start, end].
func (c *Client) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	data, err := c.Call(ctx, FuncKline, map[string]any{
		"symbol": symbol,
		"s":      start.Format(paramDateLayout),
		"e":      end.Format(paramDateLayout),
	})
	if err != nil {
		return nil, err
	}

	rows := data.GetListValue().GetValues()
	bars := make([]domain.Bar, 0, len(rows))
	for _, row := range rows {
		f := row.GetStructValue().GetFields()
		d, err := time.Parse(rowDateLayout, f["date"].GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("%s %s: bad row date: %w", FuncKline, symbol, err)
		}
		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timestamp: d,
			Open:      f["open"].GetNumberValue(),
			High:      f["high"].GetNumberValue(),
			Low:       f["low"].GetNumberValue(),
			Close:     f["close"].GetNumberValue(),
			Volume:    int64(f["volume"].GetNumberValue()),
			Amount:    f["amount"].GetNumberValue(),
		})
	}
	return bars, nil
}

// Adjustments returns the raw corporate actions of symbol: splits with their
// price ratio and dividends with their cash amount.
func (c *Client) Adjustments(ctx context.Context, symbol string) ([]domain.Adjustment, error) {
	data, err := c.Call(ctx, FuncDivid, map[string]any{"symbol": symbol})
	if err != nil {
		return nil, err
	}

	rows := data.GetListValue().GetValues()
	out := make([]domain.Adjustment, 0, len(rows))
	for _, row := range rows {
		f := row.GetStructValue().GetFields()
		d, err := time.Parse(rowDateLayout, f["date"].GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("%s %s: bad row date: %w", FuncDivid, symbol, err)
		}
		action := domain.AdjustmentAction(f["action"].GetStringValue())
		switch action {
		case domain.ActionSplit, domain.ActionDividend:
		default:
			return nil, fmt.Errorf("%s %s: unknown action %q", FuncDivid, symbol, action)
		}
		out = append(out, domain.Adjustment{
			Symbol: symbol,
			Date:   d,
			Action: action,
			Value:  f["value"].GetNumberValue(),
		})
	}
	return out, nil
}
