package marketplace

import "github.com/novasettle/loan-marketplace/internal/domain"

// exampleListings are published on an empty store when example seeding is enabled
var exampleListings = []domain.CreateListingInput{
	{
		LoanToken: "USDC", LoanAmount: "5000", CollateralToken: "SOL", CollateralAmount: "100",
		APR: "8.5", TermDays: 30,
		Creator:      "5YNmS1R9nNSCDzb5a7mMJ1dwK9uHeAAF4CerVckCBAnj",
		TokenAddress: "CT5zKYSQHNmP6TXc5n1nqP9V1CZL15gyY6DoBP3qKhry",
	},
	{
		LoanToken: "USDT", LoanAmount: "10000", CollateralToken: "BTC", CollateralAmount: "0.25",
		APR: "12.0", TermDays: 60,
		Creator:      "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		TokenAddress: "FcVprKm3RChe8jDEhjnzWYRcGdUxGMgfaC1YZgPXLGfx",
	},
	{
		LoanToken: "SOL", LoanAmount: "1000", CollateralToken: "ETH", CollateralAmount: "15",
		APR: "9.75", TermDays: 45,
		Creator:      "2KW2XRd9kwqet15Aha2oK3tYvd3nWbTFH1MBiRAv1BE1",
		TokenAddress: "G15NVgQS9NUo8exjr7JTjA2zy3ajL4DgYJNnEVzfbZ5a",
	},
	{
		LoanToken: "USDC", LoanAmount: "25000", CollateralToken: "SOL", CollateralAmount: "500",
		APR: "7.2", TermDays: 90,
		Creator:      "F9TechAtLAS1giauHmE2WvjpdeH9of4XWzWxXxxDh24Z",
		TokenAddress: "Dj84BA7c425RTLv9jTYJBMhSKf8rxUbHyPdkFMjLHKP4",
	},
}

const (
	devPeerCreator  = "DT4n6ABtRRJ1AXe9CpLnSmTADQAvYTRKwPg2qdms7ZLw"
	devOtherCreator = "2gVkYWexTHR5Hb2aLeQN3tnngvWzisFKXDUPqHxLYUSx"
	devPurchaseTx   = "2ZgydTugHJKQjGGkonjRPSGp6RvKmKRt2yzX3tp1FjASNLHf7n6QcKR8u4F7RpXktvA2VGLo2Bn7M3"
)

// devSeed is one listing created by a development reset; purchasedByCaller marks
// the listing the calling wallet already owns afterwards
type devSeed struct {
	input             domain.CreateListingInput
	purchasedByCaller bool
}

// devResetSeeds gives the calling wallet one listing of its own, two listings it can
// buy and one listing it has already bought
func devResetSeeds(wallet string) []devSeed {
	return []devSeed{
		{input: domain.CreateListingInput{
			LoanToken: "USDC", LoanAmount: "5000", CollateralToken: "SOL", CollateralAmount: "8.2",
			APR: "12.5", TermDays: 30,
			Creator:      wallet,
			TokenAddress: "4Kj8o7aSBXQec1zs8Q9ZNpV5un4LPRiUJyJpzZqsJoWw",
		}},
		{input: domain.CreateListingInput{
			LoanToken: "SOL", LoanAmount: "150", CollateralToken: "BTC", CollateralAmount: "0.12",
			APR: "9.2", TermDays: 60,
			Creator:      devPeerCreator,
			TokenAddress: "8rVJM94XZz2CrVL7P1Vnpd4tGFqmX3vGBvCzzQhLELP3",
		}},
		{input: domain.CreateListingInput{
			LoanToken: "USDT", LoanAmount: "10000", CollateralToken: "SOL", CollateralAmount: "20.5",
			APR: "14.8", TermDays: 90,
			Creator:      devOtherCreator,
			TokenAddress: "7aSBXQec1zs8Q9ZNpV5un4LPRiUJyJpzZqsJoWw4Kj8o",
		}},
		{
			input: domain.CreateListingInput{
				LoanToken: "ETH", LoanAmount: "2.5", CollateralToken: "SOL", CollateralAmount: "50",
				APR: "8.75", TermDays: 45,
				Creator:      devOtherCreator,
				TokenAddress: "9vYWKtgmPvEFJvP4X3c8gX4mZ3SjUMT11WQKjaMr1e7k",
			},
			purchasedByCaller: true,
		},
	}
}
