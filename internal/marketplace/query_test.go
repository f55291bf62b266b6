package marketplace_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novasettle/loan-marketplace/internal/domain"
	"github.com/novasettle/loan-marketplace/internal/marketplace"
)

func listing(id uint64, loan, collateral domain.Token, loanAmount, collateralAmount, apr string, termDays int, createdAt time.Time) domain.Listing {
	return domain.Listing{
		ID:               id,
		LoanToken:        loan,
		LoanAmount:       decimal.RequireFromString(loanAmount),
		CollateralToken:  collateral,
		CollateralAmount: decimal.RequireFromString(collateralAmount),
		APR:              decimal.RequireFromString(apr),
		TermDays:         termDays,
		Creator:          creatorA,
		TokenAddress:     "Mint" + string(loan) + string(collateral),
		Status:           domain.ListingStatusActive,
		CreatedAt:        createdAt,
	}
}

func ids(listings []domain.Listing) []uint64 {
	out := make([]uint64, 0, len(listings))
	for _, l := range listings {
		out = append(out, l.ID)
	}
	return out
}

func fixture() []domain.Listing {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	owner := buyerB
	tx := txHash

	purchased := listing(5, domain.TokenUSDC, domain.TokenSOL, "100", "500", "30", 7, base.Add(5*time.Hour))
	purchased.Status = domain.ListingStatusPurchased
	purchased.Owner = &owner
	purchased.TransactionHash = &tx

	cancelled := listing(6, domain.TokenUSDC, domain.TokenSOL, "100", "500", "30", 7, base.Add(6*time.Hour))
	cancelled.Status = domain.ListingStatusCancelled

	mine := listing(4, domain.TokenETH, domain.TokenBTC, "1", "2", "11", 14, base.Add(4*time.Hour))
	mine.Creator = buyerB

	return []domain.Listing{
		listing(1, domain.TokenUSDC, domain.TokenSOL, "1000", "20", "8.5", 30, base.Add(1*time.Hour)),
		listing(2, domain.TokenUSDT, domain.TokenBTC, "10000", "0.25", "12", 60, base.Add(2*time.Hour)),
		listing(3, domain.TokenSOL, domain.TokenETH, "10", "16", "9.75", 45, base.Add(3*time.Hour)),
		mine,
		purchased,
		cancelled,
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name  string
		query marketplace.Query
		want  []uint64
	}{
		{name: "purchasable newest first", query: marketplace.Query{}, want: []uint64{4, 3, 2, 1}},
		{name: "oldest", query: marketplace.Query{Sort: marketplace.SortOldest}, want: []uint64{1, 2, 3, 4}},
		{name: "highest apr", query: marketplace.Query{Sort: marketplace.SortHighestAPR}, want: []uint64{2, 4, 3, 1}},
		{name: "lowest apr", query: marketplace.Query{Sort: marketplace.SortLowestAPR}, want: []uint64{1, 3, 4, 2}},
		{name: "high apr", query: marketplace.Query{Filter: marketplace.FilterHighAPR}, want: []uint64{4, 2}},
		{name: "low risk", query: marketplace.Query{Filter: marketplace.FilterLowRisk}, want: []uint64{4, 3}},
		{name: "short term", query: marketplace.Query{Filter: marketplace.FilterShortTerm}, want: []uint64{4, 1}},
		{name: "search token symbol", query: marketplace.Query{Search: "Sol"}, want: []uint64{3, 1}},
		{name: "search token address", query: marketplace.Query{Search: "mintusdt"}, want: []uint64{2}},
		{name: "exclude creator", query: marketplace.Query{ExcludeCreator: buyerB}, want: []uint64{3, 2, 1}},
		{name: "no match", query: marketplace.Query{Search: "doge"}, want: []uint64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := fixture()
			got := marketplace.Apply(input, tt.query)
			assert.Equal(t, tt.want, ids(got))
			assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6}, ids(input))
		})
	}
}

func TestApply_SameCreatedAtOrdersByID(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	input := []domain.Listing{
		listing(1, domain.TokenUSDC, domain.TokenSOL, "1", "1", "5", 10, at),
		listing(2, domain.TokenUSDC, domain.TokenSOL, "1", "1", "5", 10, at),
	}

	assert.Equal(t, []uint64{2, 1}, ids(marketplace.Apply(input, marketplace.Query{Sort: marketplace.SortNewest})))
	assert.Equal(t, []uint64{1, 2}, ids(marketplace.Apply(input, marketplace.Query{Sort: marketplace.SortOldest})))
}

func TestPurchasable(t *testing.T) {
	assert.Equal(t, []uint64{1, 2, 3, 4}, ids(marketplace.Purchasable(fixture(), "")))
	assert.Equal(t, []uint64{1, 2, 3}, ids(marketplace.Purchasable(fixture(), buyerB)))
}

func TestParseFilter(t *testing.T) {
	f, err := marketplace.ParseFilter("")
	require.NoError(t, err)
	assert.Equal(t, marketplace.FilterAll, f)

	f, err = marketplace.ParseFilter(" High-APR ")
	require.NoError(t, err)
	assert.Equal(t, marketplace.FilterHighAPR, f)

	_, err = marketplace.ParseFilter("cheap")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestParseSortOrder(t *testing.T) {
	s, err := marketplace.ParseSortOrder("")
	require.NoError(t, err)
	assert.Equal(t, marketplace.SortNewest, s)

	s, err = marketplace.ParseSortOrder("lowest-apr")
	require.NoError(t, err)
	assert.Equal(t, marketplace.SortLowestAPR, s)

	_, err = marketplace.ParseSortOrder("random")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}
