package paymentprovider

import "github.com/shopspring/decimal"

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func copyMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// formatMinor renders an amount in minor units as a major-unit decimal string.
func formatMinor(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
