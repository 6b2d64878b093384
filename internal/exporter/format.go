package exporter

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// weightPlaces bounds the digits written for allocated weights so float
// summation noise does not reach the files
const weightPlaces = 6

// formatFloat formats a value with at most weightPlaces decimals and no
// trailing zeros
func formatFloat(f float64) string {
	return decimal.NewFromFloat(f).Round(weightPlaces).String()
}

// formatOptional renders nil as an empty cell
func formatOptional(f *float64) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f)
}

// formatInt formats an int value for CSV output
func formatInt(i int) string {
	return strconv.Itoa(i)
}

// formatBool formats a boolean value for CSV output
func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// formatFlag renders an indicator as 0 or 1
func formatFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
