package domain

import "strings"

// Token is a ticker symbol from the fixed set the marketplace trades in
type Token string

const (
	TokenUSDC Token = "USDC"
	TokenUSDT Token = "USDT"
	TokenSOL  Token = "SOL"
	TokenBTC  Token = "BTC"
	TokenETH  Token = "ETH"
)

// SupportedTokens lists every token accepted as loan or collateral currency
var SupportedTokens = []Token{TokenUSDC, TokenUSDT, TokenSOL, TokenBTC, TokenETH}

// Valid reports whether the token is part of the supported set
func (t Token) Valid() bool {
	for _, s := range SupportedTokens {
		if s == t {
			return true
		}
	}
	return false
}

func (t Token) String() string {
	return string(t)
}

// ParseToken normalizes a raw symbol (case-insensitive, surrounding whitespace ignored)
// and reports whether it is supported
func ParseToken(raw string) (Token, bool) {
	t := Token(strings.ToUpper(strings.TrimSpace(raw)))
	return t, t.Valid()
}
