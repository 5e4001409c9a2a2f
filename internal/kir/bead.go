package kir

import "strings"

// ParseBeadAnnotation splits a single-antigen bead name such as "B27,Bw4"
// into the antigen and its Bw4/Bw6 annotation. Other annotations are
// dropped. A name that is not exactly two comma-separated parts is returned
// whole, trimmed, with no annotation.
func ParseBeadAnnotation(bead string) (antigen, annotation string) {
	parts := strings.Split(bead, ",")
	if len(parts) != 2 {
		return strings.TrimSpace(bead), ""
	}
	antigen = strings.TrimSpace(parts[0])
	switch a := strings.TrimSpace(parts[1]); a {
	case Bw4, Bw6:
		return antigen, a
	}
	return antigen, ""
}
