package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/Abraxas-365/finai/pkg/filing"
	"github.com/Abraxas-365/finai/pkg/logx"
	"github.com/Abraxas-365/finai/pkg/market"
	"github.com/Abraxas-365/finai/pkg/observability"
	"golang.org/x/sync/errgroup"
)

// ResolverConfig bounds the per-ticker work of a turn
type ResolverConfig struct {
	// MaxTickers caps how many tickers are fetched, in classification order
	MaxTickers int
	// TickerConcurrency caps the parallel fetches inside one resolver
	TickerConcurrency int
}

// Resolver fills a ContextBundle from the collaborators a Classification
// asks for. A failed fetch never fails the turn: its slot carries the error
// text instead.
type Resolver struct {
	market  market.Client
	filings filing.ContextRetriever
	cfg     ResolverConfig
	metrics *observability.Metrics
}

func NewResolver(mkt market.Client, filings filing.ContextRetriever, cfg ResolverConfig, metrics *observability.Metrics) *Resolver {
	if cfg.MaxTickers <= 0 {
		cfg.MaxTickers = 5
	}
	if cfg.TickerConcurrency <= 0 {
		cfg.TickerConcurrency = 4
	}
	return &Resolver{market: mkt, filings: filings, cfg: cfg, metrics: metrics}
}

// Resolve runs the gated resolvers concurrently and returns once all of them
// are done
func (r *Resolver) Resolve(ctx context.Context, query, history string, c Classification) ContextBundle {
	tickers := c.Tickers
	if len(tickers) > r.cfg.MaxTickers {
		logx.Warnf("Only the first %d of %d tickers are resolved", r.cfg.MaxTickers, len(tickers))
		tickers = tickers[:r.cfg.MaxTickers]
	}

	var bundle ContextBundle
	var g errgroup.Group

	if c.Requires10K && len(tickers) > 0 {
		g.Go(func() error {
			bundle.SECContext = r.filingContext(ctx, tickers, query, history)
			return nil
		})
	}
	if c.RequiresAccountInfo {
		g.Go(func() error {
			bundle.AccountInfo = r.accountInfo(ctx)
			return nil
		})
	}
	if c.RequiresPositions {
		g.Go(func() error {
			bundle.Positions = r.positions(ctx)
			return nil
		})
	}
	if c.RequiresStockPrice && len(tickers) > 0 {
		g.Go(func() error {
			bundle.StockInfo = r.stockInfo(ctx, tickers)
			return nil
		})
	}

	_ = g.Wait()
	return bundle
}

func (r *Resolver) accountInfo(ctx context.Context) string {
	account, err := r.market.GetAccount(ctx)
	if err != nil {
		r.failed(CategoryAccountInfo, "", err)
		return "Error retrieving account info: " + err.Error()
	}
	return account.Render()
}

func (r *Resolver) positions(ctx context.Context) string {
	positions, err := r.market.GetPositions(ctx)
	if err != nil {
		r.failed(CategoryPositions, "", err)
		return "Error retrieving portfolio positions: " + err.Error()
	}
	return market.RenderPositions(positions)
}

func (r *Resolver) stockInfo(ctx context.Context, tickers []string) string {
	return r.perTicker(ctx, tickers, func(ctx context.Context, ticker string) string {
		quote, err := r.market.GetQuote(ctx, ticker)
		if err != nil {
			r.failed(CategoryStockInfo, ticker, err)
			return fmt.Sprintf("Error retrieving stock price for %s: %s", ticker, err.Error())
		}
		return quote.Render()
	})
}

func (r *Resolver) filingContext(ctx context.Context, tickers []string, query, history string) string {
	return r.perTicker(ctx, tickers, func(ctx context.Context, ticker string) string {
		text, err := r.filings.GetFilingContext(ctx, ticker, query, history)
		if err != nil {
			r.failed(CategorySECContext, ticker, err)
			return "Error retrieving context from 10-K filing: " + err.Error()
		}
		return text
	})
}

// perTicker runs fetch for every ticker with bounded parallelism and joins
// the sections in ticker order
func (r *Resolver) perTicker(ctx context.Context, tickers []string, fetch func(context.Context, string) string) string {
	sections := make([]string, len(tickers))

	var g errgroup.Group
	g.SetLimit(r.cfg.TickerConcurrency)
	for i, ticker := range tickers {
		g.Go(func() error {
			sections[i] = strings.TrimSpace(fetch(ctx, ticker))
			return nil
		})
	}
	_ = g.Wait()

	return strings.Join(sections, "\n\n")
}

func (r *Resolver) failed(c Category, ticker string, err error) {
	fields := logx.Fields{"resolver": string(c)}
	if ticker != "" {
		fields["ticker"] = ticker
	}
	logx.WithFields(fields).Warnf("Context fetch failed: %v", err)
	r.metrics.ObserveResolverFailure(string(c))
}
