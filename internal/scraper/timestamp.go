package scraper

import (
	"regexp"
	"strconv"
)

var dateLiteralPattern = regexp.MustCompile(`new Date\((\d+\.\d+)\);`)

// ExtractUnixTimestamp finds a `new Date(<seconds>.<fraction>);` literal in an
// inline script and returns the embedded timestamp.
func ExtractUnixTimestamp(script string) (float64, bool) {
	match := dateLiteralPattern.FindStringSubmatch(script)
	if match == nil {
		return 0, false
	}

	ts, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}
