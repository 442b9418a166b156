package binance

import (
	"fmt"
	"regexp"
	"strings"
)

// Common quote currencies in order of priority for detection
var quoteCurrencies = []string{"USDT", "BUSD", "USDC", "FDUSD", "BTC", "ETH", "BNB"}

var validSymbol = regexp.MustCompile(`^[A-Z0-9]{2,20}$`)

// NormalizeSymbol converts "BTC/USDT", "btc-usdt" or "BTC" to "BTCUSDT"
func NormalizeSymbol(input string, defaultQuote string) string {
	if input == "" {
		return ""
	}

	s := strings.ToUpper(input)
	s = strings.NewReplacer("-", "", "/", "", "_", "").Replace(s)

	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return s
		}
	}
	return s + strings.ToUpper(defaultQuote)
}

// ValidateSymbol checks a normalized symbol
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if !validSymbol.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format: %s", symbol)
	}
	return nil
}
