package shared

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var rupiahPrinter = message.NewPrinter(language.Indonesian)

// FormatRupiah renders an amount with Indonesian digit grouping, e.g.
// "Rp100.000". Used for display strings only; arithmetic stays on decimal.
func FormatRupiah(amount decimal.Decimal) string {
	f, _ := amount.Float64()
	return rupiahPrinter.Sprintf("Rp%v", number.Decimal(f, number.MaxFractionDigits(2)))
}
