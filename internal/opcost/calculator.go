// Package opcost computes what a purchase price would grow to if invested.
package opcost

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/truecost/internal/model"
)

// FutureValue compounds presentValue annually at annualRatePercent for years.
func FutureValue(presentValue, annualRatePercent float64, years int) float64 {
	return presentValue * math.Pow(1+annualRatePercent/100, float64(years))
}

// Calculator applies a fixed rate and horizon taken from Settings.
type Calculator struct {
	rate  float64
	years int
}

// NewCalculator creates a Calculator for the given settings.
func NewCalculator(s model.Settings) *Calculator {
	return &Calculator{rate: s.ReturnRate, years: s.Years}
}

// FutureValue projects presentValue over the configured horizon.
func (c *Calculator) FutureValue(presentValue float64) float64 {
	return FutureValue(presentValue, c.rate, c.years)
}

// Years returns the configured horizon.
func (c *Calculator) Years() int { return c.years }

// Formatter renders amounts with a currency symbol.
type Formatter struct {
	symbol  string
	printer *message.Printer
}

// NewFormatter creates a Formatter that prefixes amounts with symbol.
func NewFormatter(symbol string) *Formatter {
	return &Formatter{symbol: symbol, printer: message.NewPrinter(language.AmericanEnglish)}
}

// Format renders amounts of 1000 or more without decimals and with grouping
// ("$1,967"); smaller amounts always carry two decimals ("$196.72").
func (f *Formatter) Format(amount float64) string {
	if amount >= 1000 {
		return f.symbol + f.printer.Sprintf("%.0f", amount)
	}
	return f.FormatExact(amount)
}

// FormatExact always renders two decimals.
func (f *Formatter) FormatExact(amount float64) string {
	return f.symbol + fmt.Sprintf("%.2f", amount)
}

// Projection is the present and future value of a single price.
type Projection struct {
	Present float64
	Future  float64
	Years   int
}

// Project builds the projection for price.
func (c *Calculator) Project(price float64) Projection {
	return Projection{Present: price, Future: c.FutureValue(price), Years: c.years}
}

// BadgeText is the annotation shown next to a detected price.
func (f *Formatter) BadgeText(p Projection) string {
	return fmt.Sprintf("If invested, worth %s in %d yrs", f.Format(p.Future), p.Years)
}

// ProjectionText is the modal line shown after a "want" response.
func (f *Formatter) ProjectionText(p Projection) string {
	return fmt.Sprintf("%s today could become %s in %d years", f.FormatExact(p.Present), f.Format(p.Future), p.Years)
}
