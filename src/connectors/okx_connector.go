// REST API CLIENT FOR OKX V5 SPOT
// RESTY ONLY + INTERNAL RETRY ON IDEMPOTENT READS
package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"spotexecutor/src/model"
)

// -----------------------------
// CONFIG
// -----------------------------
const (
	defaultRetryAttempts   = 3
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 4 * time.Second

	defaultOKXBaseURL = "https://www.okx.com"
	okxTimeFormat     = "2006-01-02T15:04:05.000Z"

	// OKX accepts "-1" as the order price of a triggered leg, meaning market.
	marketOrdPx = "-1"
)

// -----------------------------
// API RESPONSE WRAPPER
// -----------------------------
type APIResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type okxAck struct {
	OrdID       string `json:"ordId"`
	ClOrdID     string `json:"clOrdId"`
	AlgoID      string `json:"algoId"`
	AlgoClOrdID string `json:"algoClOrdId"`
	SCode       string `json:"sCode"`
	SMsg        string `json:"sMsg"`
}

type okxInstrument struct {
	InstID  string `json:"instId"`
	BaseCcy string `json:"baseCcy"`
	TickSz  string `json:"tickSz"`
	LotSz   string `json:"lotSz"`
	MinSz   string `json:"minSz"`
}

type okxOrder struct {
	InstID    string `json:"instId"`
	OrdID     string `json:"ordId"`
	ClOrdID   string `json:"clOrdId"`
	State     string `json:"state"`
	AccFillSz string `json:"accFillSz"`
	AvgPx     string `json:"avgPx"`
}

type okxAlgoOrder struct {
	InstID      string `json:"instId"`
	AlgoID      string `json:"algoId"`
	AlgoClOrdID string `json:"algoClOrdId"`
	State       string `json:"state"`
	Sz          string `json:"sz"`
	ActualSide  string `json:"actualSide"`
	ActualPx    string `json:"actualPx"`
	ActualSz    string `json:"actualSz"`
	OrdID       string `json:"ordId"`
	TpTriggerPx string `json:"tpTriggerPx"`
	SlTriggerPx string `json:"slTriggerPx"`
}

type okxTicker struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
}

type okxBalance struct {
	Details []struct {
		Ccy      string `json:"ccy"`
		AvailBal string `json:"availBal"`
		Eq       string `json:"eq"`
	} `json:"details"`
}

// -----------------------------
// AUTHENTICATED CLIENT
// -----------------------------
type Client struct {
	apiKey     string
	apiSecret  string
	passphrase string
	simulated  bool
	amend      bool
	baseURL    string
	http       *resty.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// isRetryableResp retries reads only. Writes are never replayed by the
// transport; the caller reconciles them by client order id.
func isRetryableResp(r *resty.Response, err error) bool {
	if r != nil && r.Request != nil && r.Request.Method != "" && r.Request.Method != http.MethodGet {
		return false
	}

	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}

	var env APIResponse
	if code == 200 && json.Unmarshal(r.Body(), &env) == nil && isTransientCode(env.Code) {
		return true
	}
	return false
}

func NewClient(cfg Config) *Client {
	retryCount := defaultRetryAttempts - 1

	baseURL := strings.TrimRight(cfg.OKXBaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOKXBaseURL
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}

	limit := rate.Limit(cfg.OKXRateLimit)
	if cfg.OKXRateLimit <= 0 {
		limit = rate.Inf
	}
	burst := int(cfg.OKXRateLimit)
	if burst < 1 {
		burst = 1
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &Client{
		apiKey:     cfg.OKXAPIKey,
		apiSecret:  cfg.OKXAPISecret,
		passphrase: cfg.OKXPassphrase,
		simulated:  cfg.OKXSimulated,
		amend:      cfg.OKXAmendAlgos,
		baseURL:    baseURL,
		http:       httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		now:        time.Now,
	}
}

// SupportsAmend reports whether protective stops are amended in place.
func (c *Client) SupportsAmend() bool {
	return c.amend
}

// signRequest builds base64(hmac_sha256(timestamp + method + requestPath + body)).
func signRequest(timestamp, method, requestPath, body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + strings.ToUpper(method) + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body interface{}, auth bool, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limiter: %v", ErrTransient, err)
		}
	}

	query := ""
	if len(params) > 0 {
		query = params.Encode()
	}
	requestPath := path
	if query != "" {
		requestPath += "?" + query
	}

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body failed: %w", err)
		}
		payload = b
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	if auth {
		ts := c.now().UTC().Format(okxTimeFormat)
		req = req.
			SetHeader("OK-ACCESS-KEY", c.apiKey).
			SetHeader("OK-ACCESS-SIGN", signRequest(ts, method, requestPath, string(payload), c.apiSecret)).
			SetHeader("OK-ACCESS-TIMESTAMP", ts).
			SetHeader("OK-ACCESS-PASSPHRASE", c.passphrase)
	}
	if c.simulated {
		req = req.SetHeader("x-simulated-trading", "1")
	}
	if query != "" {
		req = req.SetQueryString(query)
	}
	if payload != nil {
		req = req.SetBody(payload)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrTransient, method, path, err)
	}

	raw := resp.Body()
	status := resp.StatusCode()
	if status >= 500 || status == 429 || status == 408 {
		return fmt.Errorf("%w: HTTP %d: %s", ErrTransient, status, string(raw))
	}

	var env APIResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		if status != 200 {
			return fmt.Errorf("%w: HTTP %d: %s", ErrRejected, status, string(raw))
		}
		return fmt.Errorf("%w: json unmarshal failed: %v. raw=%s", ErrTransient, err, string(raw))
	}

	if env.Code != "0" {
		code, msg := env.Code, env.Msg
		// batch-style endpoints report the real reason per item
		var acks []okxAck
		if json.Unmarshal(env.Data, &acks) == nil && len(acks) > 0 && acks[0].SCode != "" && acks[0].SCode != "0" {
			code, msg = acks[0].SCode, acks[0].SMsg
		}
		apiErr := newAPIError(code, msg)
		logger.WithFields(map[string]interface{}{
			"component": "okx",
			"method":    method,
			"path":      path,
			"code":      code,
		}).Warn("okx - request failed: " + msg)
		return apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("json unmarshal into output failed: %w. raw=%s", err, string(raw))
		}
	}
	return nil
}

func dec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func firstAck(acks []okxAck) (okxAck, error) {
	if len(acks) == 0 {
		return okxAck{}, fmt.Errorf("%w: empty acknowledgement", ErrTransient)
	}
	a := acks[0]
	if a.SCode != "" && a.SCode != "0" {
		return a, newAPIError(a.SCode, a.SMsg)
	}
	return a, nil
}

// -----------------------------
// MARKET DATA
// -----------------------------

// GetInstrument returns tick and lot size for a spot pair.
func (c *Client) GetInstrument(ctx context.Context, symbol string) (*model.Instrument, error) {
	params := url.Values{}
	params.Set("instType", "SPOT")
	params.Set("instId", symbol)

	var out []okxInstrument
	if err := c.doRequest(ctx, http.MethodGet, "/api/v5/public/instruments", params, nil, false, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: instrument %s", ErrNotFound, symbol)
	}
	return &model.Instrument{
		Symbol:  out[0].InstID,
		BaseCcy: out[0].BaseCcy,
		TickSz:  dec(out[0].TickSz),
		LotSz:   dec(out[0].LotSz),
		MinSz:   dec(out[0].MinSz),
	}, nil
}

// GetCandles returns up to limit bars, oldest first.
func (c *Client) GetCandles(ctx context.Context, symbol, bar string, limit int) (model.CandleSeries, error) {
	params := url.Values{}
	params.Set("instId", symbol)
	params.Set("bar", bar)
	params.Set("limit", strconv.Itoa(limit))

	var rows [][]string
	if err := c.doRequest(ctx, http.MethodGet, "/api/v5/market/candles", params, nil, false, &rows); err != nil {
		return nil, err
	}

	out := make(model.CandleSeries, 0, len(rows))
	// OKX returns newest first
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		if len(r) < 6 {
			continue
		}
		ms, err := strconv.ParseInt(r[0], 10, 64)
		if err != nil {
			continue
		}
		out = append(out, model.Candle{
			Symbol:   symbol,
			Datetime: time.UnixMilli(ms).UTC(),
			Open:     dec(r[1]),
			High:     dec(r[2]),
			Low:      dec(r[3]),
			Close:    dec(r[4]),
			Volume:   dec(r[5]),
		})
	}
	return out, nil
}

func (c *Client) GetTicker(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("instId", symbol)

	var out []okxTicker
	if err := c.doRequest(ctx, http.MethodGet, "/api/v5/market/ticker", params, nil, false, &out); err != nil {
		return decimal.Zero, err
	}
	if len(out) == 0 || out[0].Last == "" {
		return decimal.Zero, fmt.Errorf("%w: empty ticker for %s", ErrTransient, symbol)
	}
	last, err := decimal.NewFromString(out[0].Last)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad ticker price %q", ErrTransient, out[0].Last)
	}
	return last, nil
}

// -----------------------------
// ACCOUNT
// -----------------------------

// GetBalance returns the available balance of one currency.
func (c *Client) GetBalance(ctx context.Context, ccy string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("ccy", ccy)

	var out []okxBalance
	if err := c.doRequest(ctx, http.MethodGet, "/api/v5/account/balance", params, nil, true, &out); err != nil {
		return decimal.Zero, err
	}
	if len(out) == 0 {
		return decimal.Zero, nil
	}
	for _, d := range out[0].Details {
		if d.Ccy == ccy {
			return dec(d.AvailBal), nil
		}
	}
	return decimal.Zero, nil
}

// -----------------------------
// TRADING
// -----------------------------

func (c *Client) placeOrder(ctx context.Context, body map[string]string) (string, error) {
	var acks []okxAck
	if err := c.doRequest(ctx, http.MethodPost, "/api/v5/trade/order", nil, body, true, &acks); err != nil {
		return "", err
	}
	ack, err := firstAck(acks)
	if err != nil {
		return "", err
	}
	return ack.OrdID, nil
}

// PlaceLimitBuy submits a cash limit buy tagged with clientID.
func (c *Client) PlaceLimitBuy(ctx context.Context, symbol, clientID string, price, size decimal.Decimal) (string, error) {
	if !price.IsPositive() || !size.IsPositive() {
		return "", fmt.Errorf("%w: price and size must be > 0", ErrPrecision)
	}
	return c.placeOrder(ctx, map[string]string{
		"instId":  symbol,
		"tdMode":  "cash",
		"side":    "buy",
		"ordType": "limit",
		"px":      price.String(),
		"sz":      size.String(),
		"clOrdId": clientID,
	})
}

// PlaceMarketSell sells size units of the base currency.
func (c *Client) PlaceMarketSell(ctx context.Context, symbol, clientID string, size decimal.Decimal) (string, error) {
	if !size.IsPositive() {
		return "", fmt.Errorf("%w: size must be > 0", ErrPrecision)
	}
	return c.placeOrder(ctx, map[string]string{
		"instId":  symbol,
		"tdMode":  "cash",
		"side":    "sell",
		"ordType": "market",
		"tgtCcy":  "base_ccy",
		"sz":      size.String(),
		"clOrdId": clientID,
	})
}

func mapOrderState(raw string) model.OrderState {
	switch raw {
	case "live":
		return model.OrderStatePending
	case "partially_filled":
		return model.OrderStatePartiallyFilled
	case "filled":
		return model.OrderStateFilled
	case "canceled", "mmp_canceled":
		return model.OrderStateCancelled
	default:
		return model.OrderStatePending
	}
}

func (c *Client) queryOrder(ctx context.Context, symbol, key, value string) (*model.OrderStatus, error) {
	params := url.Values{}
	params.Set("instId", symbol)
	params.Set(key, value)

	var out []okxOrder
	if err := c.doRequest(ctx, http.MethodGet, "/api/v5/trade/order", params, nil, true, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s=%s", ErrNotFound, key, value)
	}
	o := out[0]
	return &model.OrderStatus{
		OrderID:    o.OrdID,
		ClientID:   o.ClOrdID,
		State:      mapOrderState(o.State),
		FilledSize: dec(o.AccFillSz),
		AvgPrice:   dec(o.AvgPx),
	}, nil
}

func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (*model.OrderStatus, error) {
	return c.queryOrder(ctx, symbol, "ordId", orderID)
}

func (c *Client) FindOrderByClientID(ctx context.Context, symbol, clientID string) (*model.OrderStatus, error) {
	return c.queryOrder(ctx, symbol, "clOrdId", clientID)
}

func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	var acks []okxAck
	body := map[string]string{"instId": symbol, "ordId": orderID}
	if err := c.doRequest(ctx, http.MethodPost, "/api/v5/trade/cancel-order", nil, body, true, &acks); err != nil {
		return err
	}
	_, err := firstAck(acks)
	return err
}

// -----------------------------
// PROTECTIVE (ALGO) ORDERS
// -----------------------------

// PlaceOCO submits a sell OCO with market-priced legs for a long position.
func (c *Client) PlaceOCO(ctx context.Context, symbol, clientID string, size, takeProfit, stopLoss decimal.Decimal) (string, error) {
	if !size.IsPositive() {
		return "", fmt.Errorf("%w: size must be > 0", ErrPrecision)
	}
	if !stopLoss.LessThan(takeProfit) {
		return "", fmt.Errorf("%w: stop %s must be below take profit %s", ErrRejected, stopLoss, takeProfit)
	}
	body := map[string]string{
		"instId":      symbol,
		"tdMode":      "cash",
		"side":        "sell",
		"ordType":     "oco",
		"sz":          size.String(),
		"tpTriggerPx": takeProfit.String(),
		"tpOrdPx":     marketOrdPx,
		"slTriggerPx": stopLoss.String(),
		"slOrdPx":     marketOrdPx,
		"algoClOrdId": clientID,
	}

	var acks []okxAck
	if err := c.doRequest(ctx, http.MethodPost, "/api/v5/trade/order-algo", nil, body, true, &acks); err != nil {
		return "", err
	}
	ack, err := firstAck(acks)
	if err != nil {
		return "", err
	}
	return ack.AlgoID, nil
}

// AmendOCO moves the stop-loss trigger of a live OCO in place.
func (c *Client) AmendOCO(ctx context.Context, symbol, algoID string, stopLoss decimal.Decimal) error {
	body := map[string]string{
		"instId":         symbol,
		"algoId":         algoID,
		"newSlTriggerPx": stopLoss.String(),
		"newSlOrdPx":     marketOrdPx,
	}
	var acks []okxAck
	if err := c.doRequest(ctx, http.MethodPost, "/api/v5/trade/amend-algos", nil, body, true, &acks); err != nil {
		return err
	}
	_, err := firstAck(acks)
	return err
}

func (c *Client) CancelAlgo(ctx context.Context, symbol, algoID string) error {
	body := []map[string]string{{"instId": symbol, "algoId": algoID}}
	var acks []okxAck
	if err := c.doRequest(ctx, http.MethodPost, "/api/v5/trade/cancel-algos", nil, body, true, &acks); err != nil {
		return err
	}
	_, err := firstAck(acks)
	return err
}

func (c *Client) queryAlgo(ctx context.Context, symbol, key, value string) (*model.OrderStatus, error) {
	params := url.Values{}
	params.Set(key, value)

	var out []okxAlgoOrder
	if err := c.doRequest(ctx, http.MethodGet, "/api/v5/trade/order-algo", params, nil, true, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s=%s", ErrNotFound, key, value)
	}
	a := out[0]

	st := &model.OrderStatus{
		OrderID:  a.AlgoID,
		ClientID: a.AlgoClOrdID,
	}
	switch a.State {
	case "live", "pause", "partially_effective":
		st.State = model.OrderStatePending
		return st, nil
	case "canceled":
		st.State = model.OrderStateCancelled
		return st, nil
	case "order_failed", "partially_failed":
		st.State = model.OrderStateRejected
		return st, nil
	case "effective":
	default:
		st.State = model.OrderStatePending
		return st, nil
	}

	switch a.ActualSide {
	case "tp":
		st.Exit = model.ExitLegTakeProfit
	case "sl":
		st.Exit = model.ExitLegStopLoss
	}

	// the algo triggered a market order; its fill price is the exit
	if a.OrdID != "" {
		child, err := c.GetOrder(ctx, symbol, a.OrdID)
		if err != nil {
			return nil, err
		}
		if child.State != model.OrderStateFilled {
			st.State = model.OrderStatePending
			return st, nil
		}
		st.State = model.OrderStateFilled
		st.FilledSize = child.FilledSize
		st.AvgPrice = child.AvgPrice
		return st, nil
	}

	st.State = model.OrderStateFilled
	st.FilledSize = dec(a.ActualSz)
	if st.FilledSize.IsZero() {
		st.FilledSize = dec(a.Sz)
	}
	st.AvgPrice = dec(a.ActualPx)
	if !st.AvgPrice.IsPositive() {
		if st.Exit == model.ExitLegTakeProfit {
			st.AvgPrice = dec(a.TpTriggerPx)
		} else {
			st.AvgPrice = dec(a.SlTriggerPx)
		}
	}
	return st, nil
}

func (c *Client) GetAlgoOrder(ctx context.Context, symbol, algoID string) (*model.OrderStatus, error) {
	return c.queryAlgo(ctx, symbol, "algoId", algoID)
}

func (c *Client) FindAlgoByClientID(ctx context.Context, symbol, clientID string) (*model.OrderStatus, error) {
	return c.queryAlgo(ctx, symbol, "algoClOrdId", clientID)
}

// IsTransient reports whether err carries no information about the order.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
