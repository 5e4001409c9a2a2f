package kir

import (
	"strings"
)

// NormalizeVersion turns an IPD-IMGT/HLA release identifier into the dotted
// form the IPD API filters on. "3610" becomes "3.61.0", "3.61" becomes
// "3.61.0" and "3" becomes "3.0.0". Three-segment input is returned as is and
// anything unrecognised passes through unchanged.
func NormalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if strings.Count(v, ".") == 2 {
		return v
	}
	if len(v) == 4 && isDigits(v) {
		minor := strings.TrimLeft(v[1:3], "0")
		if minor == "" {
			minor = "0"
		}
		return v[:1] + "." + minor + ".0"
	}

	s := strings.TrimSuffix(v, ".0")
	parts := strings.Split(s, ".")
	switch {
	case len(parts) == 2:
		return parts[0] + "." + parts[1] + ".0"
	case len(parts) == 1 && len(parts[0]) <= 2:
		return parts[0] + ".0.0"
	}
	return v
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
