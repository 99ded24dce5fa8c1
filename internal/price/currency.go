package price

import (
	"net"
	"strings"
)

// Currency is a display currency inferred from the storefront domain.
type Currency struct {
	Code   string
	Symbol string
}

// USD is the fallback for unknown domains.
var USD = Currency{Code: "USD", Symbol: "$"}

// domainCurrencies is checked in order; the first matching suffix wins.
var domainCurrencies = []struct {
	suffixes []string
	currency Currency
}{
	{[]string{".co.uk"}, Currency{Code: "GBP", Symbol: "£"}},
	{[]string{".de", ".fr", ".es", ".it"}, Currency{Code: "EUR", Symbol: "€"}},
	{[]string{".co.jp"}, Currency{Code: "JPY", Symbol: "¥"}},
	{[]string{".com.au"}, Currency{Code: "AUD", Symbol: "A$"}},
	{[]string{".ca"}, Currency{Code: "CAD", Symbol: "C$"}},
}

// DetectCurrency maps a hostname to its display currency. No conversion is
// ever performed; the result only labels amounts.
func DetectCurrency(host string) Currency {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")

	for _, dc := range domainCurrencies {
		for _, s := range dc.suffixes {
			if strings.HasSuffix(host, s) {
				return dc.currency
			}
		}
	}
	return USD
}
