// Package wmda reads the WMDA relationship files published with each
// IPD-IMGT/HLA release and builds the lookup tables the converter queries.
//
// Two files are consumed per release:
//
//	rel_dna_ser.<release>.txt  molecular allele -> serological number
//	rel_ser_ser.<release>.txt  broad antigen -> split antigens
//
// Both are ';'-delimited text with '#' comment lines.
package wmda

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/tavinathanson/imgtsero/internal/allele"
)

// Tables is the parsed, read-only form of one release's relationship files.
// It is never mutated after Parse returns.
type Tables struct {
	release string

	// 2-field allele -> serological number ("1", "203"), not yet prefixed.
	molToSero map[string]string
	// serological name ("A1", "Cw14") -> sorted unique 2-field alleles.
	seroToMol map[string][]string
	// broad name -> split names, file order.
	broadToSplits map[string][]string
	// split name -> broad name.
	splitToBroad map[string]string
	// locus -> every full-resolution allele in rel_dna_ser.
	alleles map[string]map[string]struct{}
	// locus -> 2-field roots of the above.
	roots map[string]map[string]struct{}
}

func newTables(release string) *Tables {
	return &Tables{
		release:       release,
		molToSero:     make(map[string]string),
		seroToMol:     make(map[string][]string),
		broadToSplits: make(map[string][]string),
		splitToBroad:  make(map[string]string),
		alleles:       make(map[string]map[string]struct{}),
		roots:         make(map[string]map[string]struct{}),
	}
}

// Release returns the release the tables were loaded for, or "" when they
// were parsed from readers.
func (t *Tables) Release() string {
	return t.release
}

// SerologicalNumber returns the bare serological number recorded for a
// 2-field allele.
func (t *Tables) SerologicalNumber(twoField string) (string, bool) {
	n, ok := t.molToSero[twoField]
	return n, ok
}

// SerologicalFor returns the serological name ("A1", "Cw14") of a molecular
// allele of any resolution, looked up through its 2-field form.
func (t *Tables) SerologicalFor(molecular string) (string, bool) {
	n, ok := t.molToSero[allele.ToTwoField(molecular)]
	if !ok {
		return "", false
	}
	locus, ok := allele.Locus(molecular)
	if !ok {
		return "", false
	}
	return allele.SerologicalName(locus, n), true
}

// HasSerological reports whether name is a key of the serological index.
func (t *Tables) HasSerological(name string) bool {
	_, ok := t.seroToMol[name]
	return ok
}

// MolecularFor returns a copy of the sorted 2-field alleles of a serological
// name. Unknown names yield nil.
func (t *Tables) MolecularFor(name string) []string {
	list, ok := t.seroToMol[name]
	if !ok {
		return nil
	}
	out := make([]string, len(list))
	copy(out, list)
	return out
}

// SerologicalNames returns every serological name, sorted.
func (t *Tables) SerologicalNames() []string {
	out := make([]string, 0, len(t.seroToMol))
	for k := range t.seroToMol {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// BroadOf returns the broad antigen a split belongs to.
func (t *Tables) BroadOf(split string) (string, bool) {
	b, ok := t.splitToBroad[split]
	return b, ok
}

// SplitsOf returns a copy of the splits of a broad antigen in file order.
func (t *Tables) SplitsOf(broad string) []string {
	s := t.broadToSplits[broad]
	if len(s) == 0 {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// IsBroad reports whether name has at least one split.
func (t *Tables) IsBroad(name string) bool {
	return len(t.broadToSplits[name]) > 0
}

// IsSplit reports whether name belongs to a broad antigen.
func (t *Tables) IsSplit(name string) bool {
	_, ok := t.splitToBroad[name]
	return ok
}

// Loci returns every locus seen in rel_dna_ser, sorted.
func (t *Tables) Loci() []string {
	out := make([]string, 0, len(t.alleles))
	for l := range t.alleles {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// AllelesForLocus returns the full-resolution alleles of locus, sorted.
func (t *Tables) AllelesForLocus(locus string) []string {
	set := t.alleles[locus]
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// HasAllele reports whether molecular is a known allele of its locus, either
// exactly or through its 2-field root.
func (t *Tables) HasAllele(molecular string) bool {
	locus, ok := allele.Locus(molecular)
	if !ok {
		return false
	}
	if _, ok := t.alleles[locus][molecular]; ok {
		return true
	}
	_, ok = t.roots[locus][allele.ToTwoField(molecular)]
	return ok
}

// FindAlleles returns every known allele matching the regular expression
// pattern, case-insensitively, sorted.
func (t *Tables) FindAlleles(pattern string) ([]string, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid allele pattern %q: %w", pattern, err)
	}
	var out []string
	for _, set := range t.alleles {
		for a := range set {
			if re.MatchString(a) {
				out = append(out, a)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Stats summarises table sizes.
type Stats struct {
	Loci        int `json:"loci"`
	Alleles     int `json:"alleles"`
	Mapped      int `json:"mapped_alleles"`
	Serological int `json:"serological_types"`
	Broads      int `json:"broad_antigens"`
	Splits      int `json:"split_antigens"`
}

// Stats returns table sizes.
func (t *Tables) Stats() Stats {
	s := Stats{
		Loci:        len(t.alleles),
		Mapped:      len(t.molToSero),
		Serological: len(t.seroToMol),
		Broads:      len(t.broadToSplits),
		Splits:      len(t.splitToBroad),
	}
	for _, set := range t.alleles {
		s.Alleles += len(set)
	}
	return s
}
