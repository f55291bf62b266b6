package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// Listing represents the listings table - one row per loan offer
type Listing struct {
	// ID is the listing identifier, allocated by the listings_id_seq sequence
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// LoanToken is the symbol of the borrowed currency
	LoanToken string `gorm:"column:loan_token;not null;type:text"`
	// LoanAmount is stored as NUMERIC to keep arbitrary precision
	LoanAmount decimal.Decimal `gorm:"column:loan_amount;not null;type:numeric"`
	// CollateralToken is the symbol of the pledged currency
	CollateralToken  string          `gorm:"column:collateral_token;not null;type:text"`
	CollateralAmount decimal.Decimal `gorm:"column:collateral_amount;not null;type:numeric"`
	// APR is an annual percentage rate, e.g. 8.5
	APR          decimal.Decimal `gorm:"column:apr;not null;type:numeric"`
	TermDays     int             `gorm:"column:term_days;not null"`
	Creator      string          `gorm:"column:creator;not null;type:text;index:idx_listings_creator"`
	TokenAddress string          `gorm:"column:token_address;not null;type:text"`
	Status       string          `gorm:"column:status;not null;type:text;index:idx_listings_status"`
	// Owner, TransactionHash and PurchasedAt are written together by a purchase
	Owner           *string    `gorm:"column:owner;type:text;index:idx_listings_owner"`
	TransactionHash *string    `gorm:"column:transaction_hash;type:text"`
	PurchasedAt     *time.Time `gorm:"column:purchased_at;type:timestamptz"`
	CreatedAt       time.Time  `gorm:"column:created_at;not null;type:timestamptz"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;not null;type:timestamptz"`
}

// TableName specifies the table name for the Listing model
func (Listing) TableName() string {
	return "listings"
}
