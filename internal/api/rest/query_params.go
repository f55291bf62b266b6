package rest

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/novasettle/loan-marketplace/internal/domain"
	"github.com/novasettle/loan-marketplace/internal/marketplace"
)

// MarketplaceQueryParams holds query parameters for GET /api/marketplace
type MarketplaceQueryParams struct {
	Search         string `form:"q"`
	Filter         string `form:"filter"`
	Sort           string `form:"sort"`
	ExcludeCreator string `form:"exclude_creator"`
}

// ParseMarketplaceQuery parses query parameters for GET /api/marketplace
func ParseMarketplaceQuery(c *gin.Context) (marketplace.Query, error) {
	var params MarketplaceQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return marketplace.Query{}, domain.NewValidationError("query", err.Error())
	}

	verr := &domain.ValidationError{}
	filter, err := marketplace.ParseFilter(params.Filter)
	if err != nil {
		verr.Add("filter", "must be one of all, high-apr, low-risk, short-term")
	}
	order, err := marketplace.ParseSortOrder(params.Sort)
	if err != nil {
		verr.Add("sort", "must be one of newest, oldest, highest-apr, lowest-apr")
	}
	if verr.HasErrors() {
		return marketplace.Query{}, verr
	}

	return marketplace.Query{
		Search:         strings.TrimSpace(params.Search),
		Filter:         filter,
		Sort:           order,
		ExcludeCreator: strings.TrimSpace(params.ExcludeCreator),
	}, nil
}

// parseListingID parses the :id path parameter
func parseListingID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
