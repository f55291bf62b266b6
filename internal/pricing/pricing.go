package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/novasettle/loan-marketplace/internal/domain"
)

// PriceSource resolves a token to its USD unit price
//
//go:generate mockgen -source=pricing.go -destination=../mocks/pricing.go -package=mocks -mock_names=PriceSource=MockPriceSource
type PriceSource interface {
	PriceUSD(token domain.Token) (decimal.Decimal, bool)
}

// StaticPrices is a fixed price table
type StaticPrices map[domain.Token]decimal.Decimal

// DefaultPrices returns the demo price table
func DefaultPrices() StaticPrices {
	return StaticPrices{
		domain.TokenSOL:  decimal.NewFromInt(50),
		domain.TokenUSDC: decimal.NewFromInt(1),
		domain.TokenUSDT: decimal.NewFromInt(1),
		domain.TokenBTC:  decimal.NewFromInt(30000),
		domain.TokenETH:  decimal.NewFromInt(2000),
	}
}

// NewStaticPrices builds a price table from configured overrides on top of the defaults
func NewStaticPrices(overrides map[string]string) (StaticPrices, error) {
	prices := DefaultPrices()
	for symbol, raw := range overrides {
		token, ok := domain.ParseToken(symbol)
		if !ok {
			return nil, fmt.Errorf("unsupported token in price table: %q", symbol)
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid price for %s: %w", token, err)
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("price for %s must be positive", token)
		}
		prices[token] = price
	}
	return prices, nil
}

func (p StaticPrices) PriceUSD(token domain.Token) (decimal.Decimal, bool) {
	price, ok := p[token]
	return price, ok
}

// CollateralizationRatio returns collateral value over loan value as a whole percentage.
// ok is false when either token has no price.
func CollateralizationRatio(l domain.Listing, src PriceSource) (ratio decimal.Decimal, ok bool) {
	loanPrice, ok := src.PriceUSD(l.LoanToken)
	if !ok {
		return decimal.Zero, false
	}
	collateralPrice, ok := src.PriceUSD(l.CollateralToken)
	if !ok {
		return decimal.Zero, false
	}

	loanValue := l.LoanAmount.Mul(loanPrice)
	if loanValue.IsZero() {
		return decimal.Zero, false
	}
	collateralValue := l.CollateralAmount.Mul(collateralPrice)

	return collateralValue.Div(loanValue).Mul(decimal.NewFromInt(100)).Round(0), true
}
