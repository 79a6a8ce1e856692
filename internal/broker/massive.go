package broker

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/zerodte/optionagent/internal/domain"
	"github.com/zerodte/optionagent/internal/logger"
)

// massiveBroker implements Broker against Massive's REST API through a
// resty client, matching the option-replay provider's use of resty for
// its own vendor HTTP calls.
type massiveBroker struct {
	apiKey  string
	client  *resty.Client
	baseURL string
}

// NewMassiveBroker constructs a Massive-backed broker adapter.
func NewMassiveBroker(apiKey string) Broker {
	logger.Infof("initializing massive broker adapter")
	client := resty.New().
		SetTimeout(60 * time.Second).
		SetRetryCount(0). // 429s are handled explicitly by processGetRequest
		SetHeader("Accept", "application/json")
	return &massiveBroker{
		apiKey:  apiKey,
		client:  client,
		baseURL: "https://api.massive.com",
	}
}

type massiveContract struct {
	ContractType string  `json:"contract_type"`
	ExpiryDate   string  `json:"expiration_date"`
	StrikePrice  float64 `json:"strike_price"`
	Ticker       string  `json:"ticker"`
}

type massiveContractsResp struct {
	Results []massiveContract `json:"results"`
	NextURL string            `json:"next_url"`
}

type massiveQuote struct {
	Bid  float64 `json:"bid"`
	Ask  float64 `json:"ask"`
	Last float64 `json:"last"`
}

type massiveBar struct {
	Timestamp int64   `json:"t"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
}

type massiveBarsResp struct {
	Results []massiveBar `json:"results"`
}

func (m *massiveBroker) GetOptionChain(ctx context.Context, underlying string, expiration time.Time) (Chain, error) {
	var out Chain
	out.Underlying = underlying
	out.Expiration = expiration

	next := m.baseURL + "/v3/reference/options/contracts"
	params := map[string]string{
		"underlying_ticker": underlying,
		"expiration_date":   expiration.Format("2006-01-02"),
		"apiKey":            m.apiKey,
	}

	for next != "" {
		var page massiveContractsResp
		resp, err := m.processGetRequest(ctx, next, params, &page)
		if err != nil {
			return Chain{}, err
		}
		_ = resp

		for _, c := range page.Results {
			quote, err := m.GetQuote(ctx, c.Ticker)
			if err != nil {
				logger.Debugf("broker: quote lookup failed for %s: %v", c.Ticker, err)
				continue
			}
			out.Contracts = append(out.Contracts, domain.OptionChainContract{
				Symbol:       c.Ticker,
				Strike:       c.StrikePrice,
				ContractType: c.ContractType,
				Bid:          quote.Bid,
				Ask:          quote.Ask,
			})
		}

		params = nil
		if page.NextURL != "" {
			next = page.NextURL + "&apiKey=" + m.apiKey
		} else {
			next = ""
		}
	}

	return out, nil
}

func (m *massiveBroker) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	u := fmt.Sprintf("%s/v3/quotes/%s", m.baseURL, url.PathEscape(symbol))
	var q massiveQuote
	if _, err := m.processGetRequest(ctx, u, map[string]string{"apiKey": m.apiKey}, &q); err != nil {
		return domain.Quote{}, err
	}
	return domain.Quote{Bid: q.Bid, Ask: q.Ask, Last: q.Last}, nil
}

func (m *massiveBroker) GetPriceHistory(ctx context.Context, underlying string, from, to time.Time, timeframe time.Duration) ([]domain.Bar, error) {
	mult, span := timeframeToMultiplierSpan(timeframe)
	u := fmt.Sprintf(
		"%s/v2/aggs/ticker/%s/range/%d/%s/%s/%s",
		m.baseURL, underlying, mult, span, from.Format("2006-01-02"), to.Format("2006-01-02"),
	)

	var parsed massiveBarsResp
	if _, err := m.processGetRequest(ctx, u, map[string]string{"apiKey": m.apiKey}, &parsed); err != nil {
		return nil, err
	}

	bars := make([]domain.Bar, len(parsed.Results))
	for i, b := range parsed.Results {
		bars[i] = domain.Bar{
			Timestamp: time.Unix(0, b.Timestamp*int64(time.Millisecond)),
			Open:      b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
		}
	}
	return bars, nil
}

func (m *massiveBroker) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	form := map[string]string{
		"symbol":   req.Symbol,
		"side":     string(req.Side),
		"type":     string(req.Type),
		"quantity": strconv.Itoa(req.Quantity),
		"apiKey":   m.apiKey,
	}
	if req.Type == OrderTypeLimit {
		form["limit_price"] = strconv.FormatFloat(req.LimitPrice, 'f', 2, 64)
	}

	var out struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	}
	resp, err := m.client.R().
		SetContext(ctx).
		SetQueryParams(form).
		SetResult(&out).
		Post(m.baseURL + "/v1/orders")
	if err != nil {
		return OrderResult{}, fmt.Errorf("broker: placing order: %w", err)
	}
	if resp.IsError() {
		return OrderResult{}, fmt.Errorf("broker: order rejected, status %d", resp.StatusCode())
	}
	return OrderResult{OrderID: out.OrderID, Status: OrderStatus(out.Status)}, nil
}

func (m *massiveBroker) GetOrderStatus(ctx context.Context, orderID string) (OrderState, error) {
	u := fmt.Sprintf("%s/v1/orders/%s", m.baseURL, url.PathEscape(orderID))
	var out struct {
		Status      string  `json:"status"`
		FilledPrice float64 `json:"filled_price"`
		FilledQty   int     `json:"filled_quantity"`
		FilledAt    int64   `json:"filled_at"`
	}
	if _, err := m.processGetRequest(ctx, u, map[string]string{"apiKey": m.apiKey}, &out); err != nil {
		return OrderState{}, err
	}

	state := OrderState{OrderID: orderID, Status: OrderStatus(out.Status), FilledPrice: out.FilledPrice, FilledQty: out.FilledQty}
	if out.FilledAt > 0 {
		state.FilledAt = time.Unix(out.FilledAt, 0)
	}
	return state, nil
}

func (m *massiveBroker) CancelOrder(ctx context.Context, orderID string) error {
	u := fmt.Sprintf("%s/v1/orders/%s", m.baseURL, url.PathEscape(orderID))
	resp, err := m.client.R().
		SetContext(ctx).
		SetQueryParam("apiKey", m.apiKey).
		Delete(u)
	if err != nil {
		return fmt.Errorf("broker: cancelling order: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("broker: cancel failed, status %d", resp.StatusCode())
	}
	return nil
}

// processGetRequest retries indefinitely on HTTP 429 by sleeping until
// the next minute boundary, matching the venue's per-minute rate limit
// window, and decodes the response body into out.
func (m *massiveBroker) processGetRequest(ctx context.Context, rawURL string, params map[string]string, out interface{}) (*resty.Response, error) {
	for {
		req := m.client.R().SetContext(ctx).SetResult(out)
		if params != nil {
			req = req.SetQueryParams(params)
		}
		resp, err := req.Get(rawURL)
		if err != nil {
			return nil, fmt.Errorf("broker: request to %s: %w", rawURL, err)
		}

		if !resp.IsError() {
			return resp, nil
		}

		if resp.StatusCode() == 429 {
			now := time.Now()
			sleepDuration := time.Until(now.Truncate(time.Minute).Add(time.Minute))
			logger.Infof("broker: rate limit hit, sleeping for %s", sleepDuration)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(sleepDuration):
			}
			continue
		}

		return nil, fmt.Errorf("broker: unexpected status %d: %s", resp.StatusCode(), resp.String())
	}
}

func timeframeToMultiplierSpan(tf time.Duration) (int, string) {
	switch {
	case tf >= 24*time.Hour:
		return int(tf / (24 * time.Hour)), "day"
	case tf >= time.Hour:
		return int(tf / time.Hour), "hour"
	default:
		return int(tf / time.Minute), "minute"
	}
}
