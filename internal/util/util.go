package util

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var slugPattern = regexp.MustCompile("[^a-z0-9]+")

// Slugify creates an MQTT-safe slug from the given string. Panel names are
// frequently Italian ("Piano Terra", "Perimetrale Sù"), so accents are folded
// before the non-alphanumeric sweep.
func Slugify(s string) string {
	s = strings.ToLower(s)

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, _ = transform.String(t, s)

	s = slugPattern.ReplaceAllString(s, "-")

	return strings.Trim(s, "-")
}

// Normalize removes NULL bytes and trims the string. The cloud pads zone and
// area names to fixed-width fields.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}

// Round rounds a float64 to the given number of decimal places.
func Round(num float64, decimalPlaces int) float64 {
	shift := math.Pow(10, float64(decimalPlaces))
	return math.Round(num*shift) / shift
}

// ContainsAny reports whether s contains any of the given substrings.
func ContainsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
