// Package market holds brokerage account, position and quote data and renders
// it as prompt context.
package market

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Abraxas-365/finai/pkg/errx"
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var ErrRegistry = errx.NewRegistry("MARKET")

var (
	ErrMarketData  = ErrRegistry.Register("DATA_ERROR", errx.TypeExternal, http.StatusBadGateway, "Market data unavailable")
	ErrAccountInfo = ErrRegistry.Register("ACCOUNT_INFO_ERROR", errx.TypeExternal, http.StatusBadGateway, "Account information unavailable")
	ErrPositions   = ErrRegistry.Register("POSITIONS_ERROR", errx.TypeExternal, http.StatusBadGateway, "Portfolio positions unavailable")
)

// Account is a snapshot of the brokerage account
type Account struct {
	ID                string          `json:"id"`
	Status            string          `json:"status"`
	Currency          string          `json:"currency"`
	Cash              decimal.Decimal `json:"cash"`
	PortfolioValue    decimal.Decimal `json:"portfolio_value"`
	BuyingPower       decimal.Decimal `json:"buying_power"`
	Equity            decimal.Decimal `json:"equity"`
	LastEquity        decimal.Decimal `json:"last_equity"`
	LongMarketValue   decimal.Decimal `json:"long_market_value"`
	ShortMarketValue  decimal.Decimal `json:"short_market_value"`
	InitialMargin     decimal.Decimal `json:"initial_margin"`
	MaintenanceMargin decimal.Decimal `json:"maintenance_margin"`
}

// Position is one open holding
type Position struct {
	Symbol         string          `json:"symbol"`
	Qty            decimal.Decimal `json:"qty"`
	MarketValue    decimal.Decimal `json:"market_value"`
	CostBasis      decimal.Decimal `json:"cost_basis"`
	UnrealizedPL   decimal.Decimal `json:"unrealized_pl"`
	UnrealizedPLPC decimal.Decimal `json:"unrealized_plpc"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	LastdayPrice   decimal.Decimal `json:"lastday_price"`
	ChangeToday    decimal.Decimal `json:"change_today"`
}

// Quote is the latest trade, top of book and daily bar of a symbol
type Quote struct {
	Symbol    string
	Price     decimal.Decimal
	TradeTime time.Time
	BidPrice  decimal.Decimal
	BidSize   decimal.Decimal
	AskPrice  decimal.Decimal
	AskSize   decimal.Decimal
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Money formats amount in currency (USD when empty) as "$1,234.56"
func Money(amount decimal.Decimal, currency string) string {
	if currency == "" {
		currency = money.USD
	}
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2) + " " + currency
	}
	factor := decimal.New(1, int32(cur.Fraction))
	return money.New(amount.Mul(factor).Round(0).IntPart(), cur.Code).Display()
}

// SignedMoney is Money with an explicit sign for positive amounts
func SignedMoney(amount decimal.Decimal, currency string) string {
	if amount.IsPositive() {
		return "+" + Money(amount, currency)
	}
	return Money(amount, currency)
}

// Percent renders a ratio (0.0123) as a signed percentage (+1.23%)
func Percent(ratio decimal.Decimal) string {
	pct := ratio.Mul(decimal.NewFromInt(100)).StringFixed(2)
	if ratio.IsPositive() {
		return "+" + pct + "%"
	}
	return pct + "%"
}

func (a Account) Render() string {
	var sb strings.Builder
	line := func(label, value string) {
		fmt.Fprintf(&sb, "%s: %s\n", label, value)
	}
	line("Account ID", a.ID)
	line("Status", a.Status)
	line("Cash", Money(a.Cash, a.Currency))
	line("Buying Power", Money(a.BuyingPower, a.Currency))
	line("Equity", Money(a.Equity, a.Currency))
	line("Portfolio Value", Money(a.PortfolioValue, a.Currency))
	line("Previous Close Equity", Money(a.LastEquity, a.Currency))
	line("Change Since Previous Close", SignedMoney(a.Equity.Sub(a.LastEquity), a.Currency))
	line("Long Market Value", Money(a.LongMarketValue, a.Currency))
	line("Short Market Value", Money(a.ShortMarketValue, a.Currency))
	line("Initial Margin", Money(a.InitialMargin, a.Currency))
	line("Maintenance Margin", Money(a.MaintenanceMargin, a.Currency))
	return strings.TrimRight(sb.String(), "\n")
}

// RenderPositions renders holdings as a pipe separated table
func RenderPositions(positions []Position) string {
	if len(positions) == 0 {
		return "No open positions."
	}

	var sb strings.Builder
	sb.WriteString("Symbol | Quantity | Market Value | Cost Basis | Unrealized P/L | Unrealized P/L % | Current Price | Change Today\n")
	for _, p := range positions {
		fmt.Fprintf(&sb, "%s | %s | %s | %s | %s | %s | %s | %s\n",
			p.Symbol,
			p.Qty.String(),
			Money(p.MarketValue, ""),
			Money(p.CostBasis, ""),
			SignedMoney(p.UnrealizedPL, ""),
			Percent(p.UnrealizedPLPC),
			Money(p.CurrentPrice, ""),
			Percent(p.ChangeToday),
		)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (q Quote) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Symbol: %s\n", q.Symbol)
	if q.TradeTime.IsZero() {
		fmt.Fprintf(&sb, "Last Price: %s\n", Money(q.Price, ""))
	} else {
		fmt.Fprintf(&sb, "Last Price: %s (as of %s)\n", Money(q.Price, ""), q.TradeTime.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&sb, "Bid: %s x %s\n", Money(q.BidPrice, ""), q.BidSize.String())
	fmt.Fprintf(&sb, "Ask: %s x %s\n", Money(q.AskPrice, ""), q.AskSize.String())
	fmt.Fprintf(&sb, "Day Open: %s\n", Money(q.Open, ""))
	fmt.Fprintf(&sb, "Day High: %s\n", Money(q.High, ""))
	fmt.Fprintf(&sb, "Day Low: %s\n", Money(q.Low, ""))
	fmt.Fprintf(&sb, "Day Volume: %s", q.Volume.String())
	return sb.String()
}
