package assistant

import (
	"context"
	"errors"
	"testing"

	"github.com/Abraxas-365/finai/pkg/market"
	"github.com/stretchr/testify/assert"
)

func TestResolveGating(t *testing.T) {
	tests := []struct {
		name          string
		c             Classification
		wantAccount   int
		wantPositions int
		wantQuotes    []string
		wantFilings   []string
	}{
		{name: "nothing requested", c: DefaultClassification()},
		{name: "account only", c: Classification{RequiresAccountInfo: true}, wantAccount: 1},
		{name: "positions only", c: Classification{RequiresPositions: true}, wantPositions: 1},
		{name: "price without ticker", c: Classification{RequiresStockPrice: true, Requires10K: true}},
		{
			name:        "price and filing",
			c:           Classification{RequiresStockPrice: true, Requires10K: true, Tickers: []string{"AAPL"}},
			wantQuotes:  []string{"AAPL"},
			wantFilings: []string{"AAPL"},
		},
		{name: "tickers without flags", c: Classification{Tickers: []string{"AAPL"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mkt := &fakeMarket{}
			filings := &fakeFilings{}
			bundle := NewResolver(mkt, filings, ResolverConfig{}, nil).Resolve(context.Background(), "q", "", tt.c)

			account, positions, quotes := mkt.calls()
			assert.Equal(t, tt.wantAccount, account)
			assert.Equal(t, tt.wantPositions, positions)
			assert.ElementsMatch(t, tt.wantQuotes, quotes)
			assert.ElementsMatch(t, tt.wantFilings, filings.called())

			assert.Equal(t, tt.wantAccount > 0, bundle.AccountInfo != "")
			assert.Equal(t, tt.wantPositions > 0, bundle.Positions != "")
			assert.Equal(t, len(tt.wantQuotes) > 0, bundle.StockInfo != "")
			assert.Equal(t, len(tt.wantFilings) > 0, bundle.SECContext != "")
		})
	}
}

func TestResolveRendersSuccess(t *testing.T) {
	bundle := NewResolver(&fakeMarket{}, &fakeFilings{}, ResolverConfig{}, nil).Resolve(context.Background(), "q", "",
		Classification{RequiresAccountInfo: true, RequiresPositions: true, RequiresStockPrice: true, Tickers: []string{"AAPL"}})

	assert.Contains(t, bundle.AccountInfo, "Cash: $1,500.25")
	assert.Contains(t, bundle.AccountInfo, "Buying Power: $3,000.50")
	assert.Contains(t, bundle.Positions, "AAPL | 10 | $2,250.00")
	assert.Contains(t, bundle.StockInfo, "Symbol: AAPL")
	assert.Contains(t, bundle.StockInfo, "Bid: $187.40 x 3")
}

func TestResolveFailuresAreInline(t *testing.T) {
	mkt := &fakeMarket{
		accountErr:   market.ErrRegistry.NewWithCause(market.ErrAccountInfo, errors.New("401 unauthorized")),
		positionsErr: errors.New("timeout"),
	}
	bundle := NewResolver(mkt, &fakeFilings{}, ResolverConfig{}, nil).Resolve(context.Background(), "q", "",
		Classification{RequiresAccountInfo: true, RequiresPositions: true})

	assert.Equal(t, "Error retrieving account info: Account information unavailable: 401 unauthorized", bundle.AccountInfo)
	assert.Equal(t, "Error retrieving portfolio positions: timeout", bundle.Positions)
}

func TestResolveFilingFailureDoesNotSuppressPrices(t *testing.T) {
	filings := &fakeFilings{errs: map[string]error{"AAPL": rateLimited()}}
	bundle := NewResolver(&fakeMarket{}, filings, ResolverConfig{}, nil).Resolve(context.Background(), "q", "",
		Classification{Requires10K: true, RequiresStockPrice: true, Tickers: []string{"AAPL", "MSFT"}})

	assert.Equal(t,
		"Error retrieving context from 10-K filing: Filing API rate limit exceeded\n\n"+
			"Filing Information: MSFT Inc.\n\nContext 1:\nNet sales increased.",
		bundle.SECContext)
	assert.Contains(t, bundle.StockInfo, "Symbol: AAPL")
	assert.Contains(t, bundle.StockInfo, "Symbol: MSFT")
}

func TestResolvePartialQuotes(t *testing.T) {
	mkt := &fakeMarket{quoteErrs: map[string]error{"ZZZZ": errors.New("symbol not found")}}
	bundle := NewResolver(mkt, &fakeFilings{}, ResolverConfig{}, nil).Resolve(context.Background(), "q", "",
		Classification{RequiresStockPrice: true, Tickers: []string{"ZZZZ", "AMZN"}})

	assert.Regexp(t, `^Error retrieving stock price for ZZZZ: symbol not found\n\nSymbol: AMZN\n`, bundle.StockInfo)
}

func TestResolveCapsTickers(t *testing.T) {
	mkt := &fakeMarket{}
	NewResolver(mkt, &fakeFilings{}, ResolverConfig{MaxTickers: 2, TickerConcurrency: 1}, nil).Resolve(context.Background(), "q", "",
		Classification{RequiresStockPrice: true, Tickers: []string{"A", "B", "C"}})

	_, _, quotes := mkt.calls()
	assert.Equal(t, []string{"A", "B"}, quotes)
}
