package marketinfra

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/Abraxas-365/finai/pkg/errx"
	"github.com/Abraxas-365/finai/pkg/market"
	"github.com/shopspring/decimal"
)

const maxErrorBody = 512

var validSymbol = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

// AlpacaConfig holds credentials and endpoints
type AlpacaConfig struct {
	APIKey     string
	SecretKey  string
	TradingURL string
	DataURL    string
	// Feed is the market data feed, "iex" for free plans or "sip"
	Feed    string
	Timeout time.Duration
}

// AlpacaClient talks to the Alpaca trading and market data REST APIs
type AlpacaClient struct {
	cfg        AlpacaConfig
	httpClient *http.Client
}

func NewAlpacaClient(cfg AlpacaConfig) *AlpacaClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.TradingURL = strings.TrimRight(cfg.TradingURL, "/")
	cfg.DataURL = strings.TrimRight(cfg.DataURL, "/")
	return &AlpacaClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// GetAccount returns the account snapshot
func (c *AlpacaClient) GetAccount(ctx context.Context) (*market.Account, error) {
	var account market.Account
	if err := c.get(ctx, c.cfg.TradingURL+"/v2/account", &account); err != nil {
		return nil, market.ErrRegistry.NewWithCause(market.ErrAccountInfo, err)
	}
	return &account, nil
}

// GetPositions returns all open positions
func (c *AlpacaClient) GetPositions(ctx context.Context) ([]market.Position, error) {
	var positions []market.Position
	if err := c.get(ctx, c.cfg.TradingURL+"/v2/positions", &positions); err != nil {
		return nil, market.ErrRegistry.NewWithCause(market.ErrPositions, err)
	}
	return positions, nil
}

type snapshotResponse struct {
	LatestTrade *struct {
		Timestamp time.Time       `json:"t"`
		Price     decimal.Decimal `json:"p"`
		Size      decimal.Decimal `json:"s"`
	} `json:"latestTrade"`
	LatestQuote *struct {
		AskPrice decimal.Decimal `json:"ap"`
		AskSize  decimal.Decimal `json:"as"`
		BidPrice decimal.Decimal `json:"bp"`
		BidSize  decimal.Decimal `json:"bs"`
	} `json:"latestQuote"`
	DailyBar *struct {
		Open   decimal.Decimal `json:"o"`
		High   decimal.Decimal `json:"h"`
		Low    decimal.Decimal `json:"l"`
		Close  decimal.Decimal `json:"c"`
		Volume decimal.Decimal `json:"v"`
	} `json:"dailyBar"`
}

// GetQuote returns the latest trade, quote and daily bar of ticker from a
// single snapshot request
func (c *AlpacaClient) GetQuote(ctx context.Context, ticker string) (*market.Quote, error) {
	symbol := strings.ToUpper(strings.TrimSpace(ticker))
	if !validSymbol.MatchString(symbol) {
		return nil, market.ErrRegistry.NewWithMessage(market.ErrMarketData, "invalid ticker symbol").
			WithDetail("ticker", ticker)
	}

	endpoint := fmt.Sprintf("%s/v2/stocks/%s/snapshot", c.cfg.DataURL, url.PathEscape(symbol))
	if c.cfg.Feed != "" {
		endpoint += "?feed=" + url.QueryEscape(c.cfg.Feed)
	}

	var snap snapshotResponse
	if err := c.get(ctx, endpoint, &snap); err != nil {
		return nil, market.ErrRegistry.NewWithCause(market.ErrMarketData, err).WithDetail("ticker", symbol)
	}
	if snap.LatestTrade == nil {
		return nil, market.ErrRegistry.NewWithCause(market.ErrMarketData, fmt.Errorf("no trades reported for %s", symbol)).
			WithDetail("ticker", symbol)
	}

	q := &market.Quote{
		Symbol:    symbol,
		Price:     snap.LatestTrade.Price,
		TradeTime: snap.LatestTrade.Timestamp,
	}
	if snap.LatestQuote != nil {
		q.AskPrice = snap.LatestQuote.AskPrice
		q.AskSize = snap.LatestQuote.AskSize
		q.BidPrice = snap.LatestQuote.BidPrice
		q.BidSize = snap.LatestQuote.BidSize
	}
	if snap.DailyBar != nil {
		q.Open = snap.DailyBar.Open
		q.High = snap.DailyBar.High
		q.Low = snap.DailyBar.Low
		q.Close = snap.DailyBar.Close
		q.Volume = snap.DailyBar.Volume
	}
	return q, nil
}

func (c *AlpacaClient) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", c.cfg.APIKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// statusError turns a non-2xx response into an error carrying the status and
// the upstream message
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var apiErr struct {
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
		msg = apiErr.Message
	}

	e := errx.New(fmt.Sprintf("alpaca returned %d", resp.StatusCode), errx.TypeExternal).
		WithDetail("status", resp.StatusCode)
	if msg != "" {
		e.Message += ": " + msg
	}
	return e
}

var _ market.Client = (*AlpacaClient)(nil)
