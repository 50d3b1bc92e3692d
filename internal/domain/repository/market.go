package repository

import "strings"

// Market filters the instrument universe.
type Market string

const (
	MarketUS     Market = "US"
	MarketIN     Market = "IN"
	MarketCrypto Market = "CRYPTO"
)

// IsValidMarket returns true if m is a supported market.
func IsValidMarket(m Market) bool {
	switch m {
	case MarketUS, MarketIN, MarketCrypto:
		return true
	default:
		return false
	}
}

// DefaultMarket returns the default market.
func DefaultMarket() Market { return MarketUS }

// NormalizeMarket converts a raw string to a valid market (or the default).
func NormalizeMarket(s string) Market {
	m := Market(strings.ToUpper(strings.TrimSpace(s)))
	if IsValidMarket(m) {
		return m
	}
	return DefaultMarket()
}
