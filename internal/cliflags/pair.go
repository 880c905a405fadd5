package cliflags

import (
	"strconv"
	"strings"
)

// splitNumberPair parses "P" or "P,K" into (P, K), with K left at -1 ("not
// given") when absent, matching spec §6's `-m P[,K]` grammar.
func splitNumberPair(s string, parse func(string) (float64, error)) (float64, float64, error) {
	parts := strings.SplitN(s, ",", 2)
	p, err := parse(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	if len(parts) == 1 {
		return p, -1, nil
	}
	k, err := parse(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	return p, k, nil
}

func splitNumberPairInt(s string, parse func(string) (int64, error)) (int64, int64, error) {
	parts := strings.SplitN(s, ",", 2)
	p, err := parse(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	if len(parts) == 1 {
		return p, -1, nil
	}
	k, err := parse(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	return p, k, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func parseInt(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
