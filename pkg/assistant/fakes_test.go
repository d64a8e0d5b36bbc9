package assistant

import (
	"context"
	"sync"

	"github.com/Abraxas-365/finai/pkg/filing"
	"github.com/Abraxas-365/finai/pkg/market"
	"github.com/shopspring/decimal"
)

type fakeMarket struct {
	accountErr   error
	positionsErr error
	quoteErrs    map[string]error

	mu             sync.Mutex
	accountCalls   int
	positionsCalls int
	quoteCalls     []string
}

func (m *fakeMarket) GetAccount(context.Context) (*market.Account, error) {
	m.mu.Lock()
	m.accountCalls++
	m.mu.Unlock()
	if m.accountErr != nil {
		return nil, m.accountErr
	}
	return &market.Account{
		ID:          "acc-1",
		Status:      "ACTIVE",
		Currency:    "USD",
		Cash:        decimal.RequireFromString("1500.25"),
		BuyingPower: decimal.RequireFromString("3000.50"),
		Equity:      decimal.RequireFromString("10250"),
		LastEquity:  decimal.RequireFromString("10000"),
	}, nil
}

func (m *fakeMarket) GetPositions(context.Context) ([]market.Position, error) {
	m.mu.Lock()
	m.positionsCalls++
	m.mu.Unlock()
	if m.positionsErr != nil {
		return nil, m.positionsErr
	}
	return []market.Position{{
		Symbol:       "AAPL",
		Qty:          decimal.NewFromInt(10),
		MarketValue:  decimal.RequireFromString("2250"),
		CurrentPrice: decimal.RequireFromString("225"),
	}}, nil
}

func (m *fakeMarket) GetQuote(_ context.Context, ticker string) (*market.Quote, error) {
	m.mu.Lock()
	m.quoteCalls = append(m.quoteCalls, ticker)
	m.mu.Unlock()
	if err := m.quoteErrs[ticker]; err != nil {
		return nil, err
	}
	return &market.Quote{
		Symbol:   ticker,
		Price:    decimal.RequireFromString("187.42"),
		BidPrice: decimal.RequireFromString("187.40"),
		BidSize:  decimal.NewFromInt(3),
		AskPrice: decimal.RequireFromString("187.45"),
		AskSize:  decimal.NewFromInt(2),
		Volume:   decimal.NewFromInt(41000000),
	}, nil
}

func (m *fakeMarket) calls() (account, positions int, quotes []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accountCalls, m.positionsCalls, append([]string(nil), m.quoteCalls...)
}

type fakeFilings struct {
	errs map[string]error

	mu    sync.Mutex
	calls []string
}

func (f *fakeFilings) GetFilingContext(_ context.Context, ticker, _, _ string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, ticker)
	f.mu.Unlock()
	if err := f.errs[ticker]; err != nil {
		return "", err
	}
	return "Filing Information: " + ticker + " Inc.\n\nContext 1:\nNet sales increased.", nil
}

func (f *fakeFilings) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func rateLimited() error {
	return filing.ErrRegistry.New(filing.ErrRateLimited).WithDetail("ticker", "AAPL")
}

var _ market.Client = (*fakeMarket)(nil)
var _ filing.ContextRetriever = (*fakeFilings)(nil)
