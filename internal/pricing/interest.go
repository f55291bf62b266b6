package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/novasettle/loan-marketplace/internal/domain"
)

const daysPerYear = 365

// interestPlaces is the precision of projected interest amounts
const interestPlaces = 8

// ExpectedInterest is the simple interest owed at maturity, in units of the loan token:
// loanAmount × apr/100 × termDays/365
func ExpectedInterest(l domain.Listing) decimal.Decimal {
	return l.LoanAmount.
		Mul(l.APR).
		Mul(decimal.NewFromInt(int64(l.TermDays))).
		DivRound(decimal.NewFromInt(100*daysPerYear), interestPlaces)
}

// ExpectedReturn is the return over the whole term as a percentage of principal,
// rounded to two places
func ExpectedReturn(l domain.Listing) decimal.Decimal {
	return l.APR.
		Mul(decimal.NewFromInt(int64(l.TermDays))).
		DivRound(decimal.NewFromInt(daysPerYear), 2)
}

// MaturityDate is the creation time plus the term in calendar days
func MaturityDate(l domain.Listing) time.Time {
	return l.CreatedAt.AddDate(0, 0, l.TermDays)
}
