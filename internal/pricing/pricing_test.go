package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novasettle/loan-marketplace/internal/domain"
)

func TestCollateralizationRatio(t *testing.T) {
	tests := []struct {
		name       string
		loanToken  domain.Token
		loan       string
		collToken  domain.Token
		collateral string
		expected   string
	}{
		// 100 SOL * 50 / 5000 USDC
		{"sol backed usdc loan", domain.TokenUSDC, "5000", domain.TokenSOL, "100", "100"},
		// 0.25 BTC * 30000 / 10000 USDT
		{"btc backed usdt loan", domain.TokenUSDT, "10000", domain.TokenBTC, "0.25", "75"},
		// 15 ETH * 2000 / (1000 SOL * 50)
		{"eth backed sol loan", domain.TokenSOL, "1000", domain.TokenETH, "15", "60"},
		// 8.2 SOL * 50 / 5000 = 8.2%
		{"rounds to whole percent", domain.TokenUSDC, "5000", domain.TokenSOL, "8.2", "8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := domain.Listing{
				LoanToken:        tt.loanToken,
				LoanAmount:       decimal.RequireFromString(tt.loan),
				CollateralToken:  tt.collToken,
				CollateralAmount: decimal.RequireFromString(tt.collateral),
			}
			ratio, ok := CollateralizationRatio(l, DefaultPrices())
			require.True(t, ok)
			assert.Equal(t, tt.expected, ratio.String())
		})
	}
}

func TestCollateralizationRatio_MissingPrice(t *testing.T) {
	prices := StaticPrices{domain.TokenUSDC: decimal.NewFromInt(1)}
	l := domain.Listing{
		LoanToken:        domain.TokenUSDC,
		LoanAmount:       decimal.NewFromInt(10),
		CollateralToken:  domain.TokenSOL,
		CollateralAmount: decimal.NewFromInt(1),
	}

	_, ok := CollateralizationRatio(l, prices)
	assert.False(t, ok)
}

func TestNewStaticPrices(t *testing.T) {
	prices, err := NewStaticPrices(map[string]string{"sol": "142.5"})
	require.NoError(t, err)

	sol, ok := prices.PriceUSD(domain.TokenSOL)
	require.True(t, ok)
	assert.Equal(t, "142.5", sol.String())

	btc, ok := prices.PriceUSD(domain.TokenBTC)
	require.True(t, ok)
	assert.Equal(t, "30000", btc.String())

	_, err = NewStaticPrices(map[string]string{"DOGE": "1"})
	assert.Error(t, err)

	_, err = NewStaticPrices(map[string]string{"ETH": "zero"})
	assert.Error(t, err)

	_, err = NewStaticPrices(map[string]string{"ETH": "0"})
	assert.Error(t, err)
}

func TestExpectedInterest(t *testing.T) {
	tests := []struct {
		name     string
		loan     string
		apr      string
		termDays int
		interest string
		ret      string
	}{
		{"thirty days at 8.5%", "5000", "8.5", 30, "34.93150685", "0.7"},
		{"full year", "1000", "10", 365, "100", "10"},
		{"zero apr", "250", "0", 90, "0", "0"},
		{"fractional principal", "0.1", "12", 15, "0.00049315", "0.49"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := domain.Listing{
				LoanAmount: decimal.RequireFromString(tt.loan),
				APR:        decimal.RequireFromString(tt.apr),
				TermDays:   tt.termDays,
			}
			assert.Equal(t, tt.interest, ExpectedInterest(l).String())
			assert.Equal(t, tt.ret, ExpectedReturn(l).String())
		})
	}
}

func TestMaturityDate(t *testing.T) {
	created := time.Date(2026, 1, 20, 15, 4, 5, 0, time.UTC)
	l := domain.Listing{CreatedAt: created, TermDays: 30}

	assert.Equal(t, time.Date(2026, 2, 19, 15, 4, 5, 0, time.UTC), MaturityDate(l))
}
