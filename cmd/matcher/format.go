package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

// formatMoney renders dollar amounts compactly: $750K, $1.5M.
func formatMoney(v *float64) string {
	if v == nil || *v <= 0 {
		return "-"
	}
	switch amount := *v; {
	case amount >= 1e9:
		return "$" + trimFloat(amount/1e9) + "B"
	case amount >= 1e6:
		return "$" + trimFloat(amount/1e6) + "M"
	case amount >= 1e3:
		return "$" + trimFloat(amount/1e3) + "K"
	default:
		return fmt.Sprintf("$%.0f", amount)
	}
}

func trimFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func formatDuration(start time.Time, end *time.Time) string {
	if end == nil {
		return "running"
	}
	return end.Sub(start).Round(time.Second).String()
}
