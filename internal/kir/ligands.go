package kir

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tavinathanson/imgtsero/internal/allele"
	"github.com/tavinathanson/imgtsero/internal/hlaerr"
)

// LigandMap maps an allele name to its KIR ligand detail ("Bw4 - 80I", "C1").
// A nil value records an allele the source knows but gives no ligand for.
type LigandMap map[string]*string

// Lookup returns the ligand detail of name. An exact key wins, even one
// holding nil. Otherwise trailing fields are dropped one at a time, down to
// the first field, and the first key found wins.
func (m LigandMap) Lookup(name string) (string, bool) {
	if v, ok := m[name]; ok {
		return deref(v)
	}
	parts := allele.Fields(name)
	for i := len(parts) - 1; i >= 1; i-- {
		if v, ok := m[strings.Join(parts[:i], ":")]; ok {
			return deref(v)
		}
	}
	return "", false
}

func deref(v *string) (string, bool) {
	if v == nil || *v == "" {
		return "", false
	}
	return *v, true
}

// Grouped returns the alleles of every ligand detail, each list sorted.
func (m LigandMap) Grouped() map[string][]string {
	out := make(map[string][]string)
	for name, v := range m {
		if d, ok := deref(v); ok {
			out[d] = append(out[d], name)
		}
	}
	for _, list := range out {
		sort.Strings(list)
	}
	return out
}

// Compress returns a copy of m extended with 2-field keys for every group of
// alleles sharing a 2-field root and a single ligand value, plus 1-field keys
// ("A*23") for locus A groups that agree. Alleles with no ligand are ignored
// when grouping. Any 2-field group that disagrees fails the whole call with
// an error listing every member of every such group.
func Compress(m LigandMap) (LigandMap, error) {
	twoField := make(map[string]map[string]string)
	oneFieldA := make(map[string]map[string]string)
	for name, v := range m {
		d, ok := deref(v)
		if !ok {
			continue
		}
		parts := allele.Fields(name)
		if len(parts) >= 2 {
			addMember(twoField, parts[0]+":"+parts[1], name, d)
		}
		if strings.HasPrefix(name, "A*") {
			addMember(oneFieldA, parts[0], name, d)
		}
	}

	out := make(LigandMap, len(m)+len(twoField))
	for k, v := range m {
		out[k] = v
	}

	var conflicts []string
	for _, root := range sortedKeys(twoField) {
		d, ok := unanimous(twoField[root])
		if !ok {
			conflicts = append(conflicts, describeConflict(root, twoField[root]))
			continue
		}
		out[root] = &d
	}
	if len(conflicts) > 0 {
		return nil, hlaerr.New(hlaerr.ErrInconsistentLigand,
			"Inconsistent KIR ligand types found for the following alleles:\n"+strings.Join(conflicts, ""))
	}

	for root, members := range oneFieldA {
		if d, ok := unanimous(members); ok {
			out[root] = &d
		}
	}
	return out, nil
}

func addMember(groups map[string]map[string]string, root, name, detail string) {
	g, ok := groups[root]
	if !ok {
		g = make(map[string]string)
		groups[root] = g
	}
	g[name] = detail
}

func unanimous(members map[string]string) (string, bool) {
	var first string
	seen := false
	for _, d := range members {
		if !seen {
			first, seen = d, true
			continue
		}
		if d != first {
			return "", false
		}
	}
	return first, seen
}

func describeConflict(root string, members map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s:\n", root)
	for _, name := range sortedKeys(members) {
		fmt.Fprintf(&b, "  - %s: %s\n", name, members[name])
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
