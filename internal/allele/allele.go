// Package allele holds the HLA nomenclature rules shared by the table parser,
// the converter and the KIR classifier.
//
// A molecular allele is a locus, a '*', and colon-separated fields
// ("A*01:01:01:01"). A serological type is a locus (or "Cw" for locus C)
// followed by a number ("A1", "B27", "Cw14").
package allele

import (
	"regexp"
	"strings"
)

var (
	locusRe       = regexp.MustCompile(`^([A-Z]+\d*)\*`)
	serologicalRe = regexp.MustCompile(`^[A-Z]+\d+$`)
	cwRe          = regexp.MustCompile(`^Cw\d+$`)
)

// LocusC is serologically named with a "Cw" prefix.
const LocusC = "C"

// ToTwoField truncates a molecular allele to its first two colon-delimited
// fields. Anything without both '*' and ':' is returned unchanged.
func ToTwoField(s string) string {
	return Truncate(s, 2)
}

// Truncate keeps the first n colon-delimited fields of a molecular allele.
// Inputs that are not molecular (no '*' or no ':') are returned unchanged, as
// are alleles that already have n or fewer fields.
func Truncate(s string, n int) string {
	if n < 1 || !strings.Contains(s, "*") || !strings.Contains(s, ":") {
		return s
	}
	parts := strings.Split(s, ":")
	if len(parts) <= n {
		return s
	}
	return strings.Join(parts[:n], ":")
}

// Fields splits a molecular allele on ':'.
func Fields(s string) []string {
	return strings.Split(s, ":")
}

// Locus extracts the locus name ("A", "DRB1") preceding '*'.
func Locus(s string) (string, bool) {
	m := locusRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsMolecular reports whether s looks like a molecular designation.
func IsMolecular(s string) bool {
	return strings.Contains(s, "*")
}

// IsSerological reports whether s has serological shape: no '*' and either
// letters followed by digits, or "Cw" followed by digits.
func IsSerological(s string) bool {
	if strings.Contains(s, "*") {
		return false
	}
	return serologicalRe.MatchString(s) || cwRe.MatchString(s)
}

// SerologicalName joins a locus and a serological number, using the "Cw"
// prefix for locus C.
func SerologicalName(locus, number string) string {
	if locus == LocusC {
		return "Cw" + number
	}
	return locus + number
}
