package marketplace

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/novasettle/loan-marketplace/internal/domain"
	"github.com/novasettle/loan-marketplace/internal/lifecycle"
)

// Filter narrows the marketplace to a risk/return profile
type Filter string

const (
	FilterAll       Filter = "all"
	FilterHighAPR   Filter = "high-apr"
	FilterLowRisk   Filter = "low-risk"
	FilterShortTerm Filter = "short-term"
)

// SortOrder orders the marketplace
type SortOrder string

const (
	SortNewest     SortOrder = "newest"
	SortOldest     SortOrder = "oldest"
	SortHighestAPR SortOrder = "highest-apr"
	SortLowestAPR  SortOrder = "lowest-apr"
)

var (
	highAPRThreshold = decimal.NewFromInt(10)
	lowRiskCoverage  = decimal.RequireFromString("1.5")
	shortTermMaxDays = 30
	validFilters     = map[Filter]bool{FilterAll: true, FilterHighAPR: true, FilterLowRisk: true, FilterShortTerm: true}
	validSortOrders  = map[SortOrder]bool{SortNewest: true, SortOldest: true, SortHighestAPR: true, SortLowestAPR: true}
)

// Query selects and orders purchasable listings
type Query struct {
	// Search is a case-insensitive substring matched against both token symbols and the token address
	Search string
	Filter Filter
	Sort   SortOrder
	// ExcludeCreator hides listings created by this address
	ExcludeCreator string
}

// ParseFilter parses a filter name, defaulting to FilterAll
func ParseFilter(raw string) (Filter, error) {
	f := Filter(strings.ToLower(strings.TrimSpace(raw)))
	if f == "" {
		return FilterAll, nil
	}
	if !validFilters[f] {
		return "", domain.NewValidationError("filter", "must be one of all, high-apr, low-risk, short-term")
	}
	return f, nil
}

// ParseSortOrder parses a sort order, defaulting to SortNewest
func ParseSortOrder(raw string) (SortOrder, error) {
	s := SortOrder(strings.ToLower(strings.TrimSpace(raw)))
	if s == "" {
		return SortNewest, nil
	}
	if !validSortOrders[s] {
		return "", domain.NewValidationError("sort", "must be one of newest, oldest, highest-apr, lowest-apr")
	}
	return s, nil
}

// Purchasable returns the purchasable subset, hiding listings created by excludeCreator
func Purchasable(listings []domain.Listing, excludeCreator string) []domain.Listing {
	out := make([]domain.Listing, 0, len(listings))
	for _, l := range listings {
		if !lifecycle.Purchasable(l) {
			continue
		}
		if excludeCreator != "" && l.Creator == excludeCreator {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Apply returns the purchasable listings matching q in the requested order.
// The input slice is not modified.
func Apply(listings []domain.Listing, q Query) []domain.Listing {
	search := strings.ToLower(strings.TrimSpace(q.Search))

	out := make([]domain.Listing, 0, len(listings))
	for _, l := range Purchasable(listings, q.ExcludeCreator) {
		if search != "" && !matchesSearch(l, search) {
			continue
		}
		if !matchesFilter(l, q.Filter) {
			continue
		}
		out = append(out, l)
	}

	sortListings(out, q.Sort)
	return out
}

func matchesSearch(l domain.Listing, needle string) bool {
	return strings.Contains(strings.ToLower(string(l.LoanToken)), needle) ||
		strings.Contains(strings.ToLower(string(l.CollateralToken)), needle) ||
		strings.Contains(strings.ToLower(l.TokenAddress), needle)
}

func matchesFilter(l domain.Listing, f Filter) bool {
	switch f {
	case FilterHighAPR:
		return l.APR.GreaterThan(highAPRThreshold)
	case FilterLowRisk:
		return l.CollateralAmount.GreaterThan(l.LoanAmount.Mul(lowRiskCoverage))
	case FilterShortTerm:
		return l.TermDays <= shortTermMaxDays
	}
	return true
}

func sortListings(listings []domain.Listing, order SortOrder) {
	newer := func(a, b domain.Listing) bool {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID > b.ID
		}
		return a.CreatedAt.After(b.CreatedAt)
	}

	sort.SliceStable(listings, func(i, j int) bool {
		a, b := listings[i], listings[j]
		switch order {
		case SortOldest:
			return newer(b, a)
		case SortHighestAPR:
			if !a.APR.Equal(b.APR) {
				return a.APR.GreaterThan(b.APR)
			}
		case SortLowestAPR:
			if !a.APR.Equal(b.APR) {
				return a.APR.LessThan(b.APR)
			}
		}
		return newer(a, b)
	})
}
