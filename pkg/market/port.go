package market

import "context"

// Client is the brokerage and market data collaborator
type Client interface {
	GetAccount(ctx context.Context) (*Account, error)
	GetPositions(ctx context.Context) ([]Position, error)
	GetQuote(ctx context.Context, ticker string) (*Quote, error)
}
