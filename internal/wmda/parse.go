package wmda

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/tavinathanson/imgtsero/internal/allele"
)

// Parse builds tables from a rel_dna_ser stream and an optional rel_ser_ser
// stream. A nil serSer leaves the broad/split indices empty.
func Parse(dnaSer, serSer io.Reader) (*Tables, error) {
	t := newTables("")
	if err := t.readRelDNASer(dnaSer); err != nil {
		return nil, err
	}
	if serSer != nil {
		if err := t.readRelSerSer(serSer); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// eachRecord calls fn with the ';'-split fields of every non-blank,
// non-comment line.
func eachRecord(r io.Reader, fn func(fields []string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fn(strings.Split(line, ";"))
	}
	return scanner.Err()
}

// readRelDNASer reads lines of the form
//
//	A*;01:01:01:01;1;;;
//
// locus prefix (with '*'), allele suffix, serological number, unused fields.
func (t *Tables) readRelDNASer(r io.Reader) error {
	sets := make(map[string]map[string]struct{})

	err := eachRecord(r, func(fields []string) {
		if len(fields) < 3 {
			return
		}
		prefix, suffix, sero := fields[0], fields[1], fields[2]
		if prefix == "" || suffix == "" {
			return
		}
		full := prefix + suffix
		locus, ok := allele.Locus(full)
		if !ok {
			return
		}
		twoField := allele.ToTwoField(full)
		addTo(t.alleles, locus, full)
		addTo(t.roots, locus, twoField)

		number, ok := serologicalNumber(locus, suffix, sero)
		if !ok {
			return
		}
		t.molToSero[twoField] = number
		addTo(sets, allele.SerologicalName(locus, number), twoField)
	})
	if err != nil {
		return fmt.Errorf("cannot read rel_dna_ser: %w", err)
	}

	for name, set := range sets {
		list := make([]string, 0, len(set))
		for a := range set {
			list = append(list, a)
		}
		sort.Strings(list)
		t.seroToMol[name] = list
	}
	return nil
}

// serologicalNumber interprets the serological field of one rel_dna_ser line.
//
// Empty and "0" mean no serological equivalent. "?" is ambiguous and recorded
// only for locus C, whose number is then taken from the allele's first field
// (C*14:02 -> Cw14). A literal number is used as given for every locus.
func serologicalNumber(locus, suffix, field string) (string, bool) {
	switch {
	case field == "" || field == "0":
		return "", false
	case field != "?":
		return field, true
	case locus != allele.LocusC:
		return "", false
	}
	parts := strings.Split(suffix, ":")
	if len(parts) < 2 || parts[0] == "" {
		return "", false
	}
	return parts[0], true
}

// readRelSerSer reads lines of the form
//
//	A;9;23/24;2403
//
// locus, broad number, then two '/'-separated split lists that are combined.
func (t *Tables) readRelSerSer(r io.Reader) error {
	err := eachRecord(r, func(fields []string) {
		if len(fields) < 4 {
			return
		}
		locus, broadNum := fields[0], fields[1]
		if locus == "" || broadNum == "" {
			return
		}
		broad := allele.SerologicalName(locus, broadNum)

		var splits []string
		for _, list := range fields[2:4] {
			if list == "" {
				continue
			}
			for _, n := range strings.Split(list, "/") {
				if n == "" {
					continue
				}
				split := allele.SerologicalName(locus, n)
				splits = append(splits, split)
				t.splitToBroad[split] = broad
			}
		}
		if len(splits) > 0 {
			t.broadToSplits[broad] = splits
		}
	})
	if err != nil {
		return fmt.Errorf("cannot read rel_ser_ser: %w", err)
	}
	return nil
}

func addTo(m map[string]map[string]struct{}, key, value string) {
	set, ok := m[key]
	if !ok {
		set = make(map[string]struct{})
		m[key] = set
	}
	set[value] = struct{}{}
}
