package common

import (
	"math"
	"strings"
)

// SplitList splits a comma separated list, trimming blanks and dropping empty items.
func SplitList(s string) []string {
	var r []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			r = append(r, item)
		}
	}
	return r
}

// LeftRunes returns at most n leading runes of s.
func LeftRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func RoundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
