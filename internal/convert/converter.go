// Package convert translates HLA types between serological names ("A1",
// "Cw14") and 2-field molecular alleles ("A*01:01") using the WMDA tables.
package convert

import (
	"sort"
	"strings"

	"github.com/tavinathanson/imgtsero/internal/allele"
	"github.com/tavinathanson/imgtsero/internal/hlaerr"
	"github.com/tavinathanson/imgtsero/internal/wmda"
)

// Format selects the output side of a conversion.
type Format string

const (
	// FormatAuto converts to whichever side the input is not.
	FormatAuto        Format = ""
	FormatSerological Format = "s"
	FormatMolecular   Format = "m"
)

// BroadMode controls how a split antigen is reported when converting to
// serological form.
type BroadMode string

const (
	// BroadSplit reports the split as resolved ("A203").
	BroadSplit BroadMode = "split"
	// BroadBroad reports the broad antigen instead ("A2").
	BroadBroad BroadMode = "broad"
	// BroadBoth reports "A2 (A203)".
	BroadBoth BroadMode = "both"
)

// Options tunes a single Convert call. The zero value auto-detects the
// direction, does not expand splits and reports splits as resolved.
type Options struct {
	Target       Format
	ExpandSplits bool
	HandleBroad  BroadMode
}

// Result holds either a serological name or a list of 2-field alleles,
// according to Target.
type Result struct {
	Input       string   `json:"input"`
	Target      Format   `json:"target"`
	Serological string   `json:"serological,omitempty"`
	Molecular   []string `json:"molecular,omitempty"`
}

// String renders the result the way the CLI prints it.
func (r Result) String() string {
	if r.Target == FormatSerological {
		return r.Serological
	}
	return strings.Join(r.Molecular, ", ")
}

// TableSource hands out loaded WMDA tables. *wmda.Parser implements it.
type TableSource interface {
	Tables() (*wmda.Tables, error)
}

// Converter answers conversion queries against one TableSource.
type Converter struct {
	source TableSource
}

// New returns a Converter reading from source.
func New(source TableSource) *Converter {
	return &Converter{source: source}
}

// Validate checks option values without touching any data.
func (o Options) Validate() error {
	switch o.Target {
	case FormatAuto, FormatSerological, FormatMolecular:
	default:
		return hlaerr.Newf(hlaerr.ErrInvalidTargetFormat,
			"Unsupported target format: %s. Use 's' for serological, 'm' for molecular, or leave empty to auto-detect.", o.Target)
	}
	return validateBroadMode(o.HandleBroad)
}

func validateBroadMode(m BroadMode) error {
	switch m {
	case "", BroadSplit, BroadBroad, BroadBoth:
		return nil
	}
	return hlaerr.Newf(hlaerr.ErrInvalidHandleBroad,
		"Invalid handle_broad value: %s. Use 'split', 'broad', or 'both'.", m)
}

// Convert converts hlaType according to opts. Option values are validated
// before any table is loaded.
func (c *Converter) Convert(hlaType string, opts Options) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}

	target := opts.Target
	if target == FormatAuto {
		if allele.IsSerological(hlaType) {
			target = FormatMolecular
		} else {
			target = FormatSerological
		}
	}

	res := Result{Input: hlaType, Target: target}
	if target == FormatSerological {
		s, err := c.ToSerological(hlaType, opts.HandleBroad)
		if err != nil {
			return Result{}, err
		}
		res.Serological = s
		return res, nil
	}
	m, err := c.ToMolecular(hlaType, opts.ExpandSplits)
	if err != nil {
		return Result{}, err
	}
	res.Molecular = m
	return res, nil
}

// ToSerological returns the serological name of a molecular allele, shaped
// by mode. A serological input is validated and returned unchanged.
func (c *Converter) ToSerological(hlaType string, mode BroadMode) (string, error) {
	if err := validateBroadMode(mode); err != nil {
		return "", err
	}
	t, err := c.source.Tables()
	if err != nil {
		return "", err
	}

	switch {
	case allele.IsMolecular(hlaType):
		if !t.HasAllele(hlaType) {
			return "", hlaerr.Newf(hlaerr.ErrUnrecognizedMolecular, "Unrecognized molecular allele: %s", hlaType)
		}
		sero, ok := t.SerologicalFor(hlaType)
		if !ok {
			return "", hlaerr.Newf(hlaerr.ErrNoSerologicalEquivalent,
				"No serological equivalent found for molecular allele: %s", hlaType)
		}
		return formatBroad(t, sero, mode), nil

	case allele.IsSerological(hlaType):
		if !t.HasSerological(hlaType) {
			return "", hlaerr.Newf(hlaerr.ErrUnrecognizedSerological, "Unrecognized serological allele: %s", hlaType)
		}
		return hlaType, nil
	}
	return "", hlaerr.Newf(hlaerr.ErrInvalidFormat, "Invalid HLA format: %s", hlaType)
}

func formatBroad(t *wmda.Tables, sero string, mode BroadMode) string {
	broad, ok := t.BroadOf(sero)
	if !ok {
		return sero
	}
	switch mode {
	case BroadBroad:
		return broad
	case BroadBoth:
		return broad + " (" + sero + ")"
	}
	return sero
}

// ToMolecular returns the sorted 2-field alleles of a serological name. With
// expand set and a broad antigen as input, the alleles of every split are
// merged in. A molecular input is validated and returned as its 2-field form.
func (c *Converter) ToMolecular(hlaType string, expand bool) ([]string, error) {
	t, err := c.source.Tables()
	if err != nil {
		return nil, err
	}

	switch {
	case allele.IsSerological(hlaType):
		if !t.HasSerological(hlaType) {
			return nil, hlaerr.Newf(hlaerr.ErrUnrecognizedSerological, "Unrecognized serological allele: %s", hlaType)
		}
		alleles := t.MolecularFor(hlaType)
		if expand && t.IsBroad(hlaType) {
			alleles = mergeSplits(t, hlaType, alleles)
		}
		if len(alleles) == 0 {
			return nil, hlaerr.Newf(hlaerr.ErrNoMolecularEquivalents,
				"No molecular equivalents found for serological allele: %s", hlaType)
		}
		for i, a := range alleles {
			alleles[i] = allele.ToTwoField(a)
		}
		return alleles, nil

	case allele.IsMolecular(hlaType):
		if !t.HasAllele(hlaType) {
			return nil, hlaerr.Newf(hlaerr.ErrUnrecognizedMolecular, "Unrecognized molecular allele: %s", hlaType)
		}
		return []string{allele.ToTwoField(hlaType)}, nil
	}
	return nil, hlaerr.Newf(hlaerr.ErrInvalidFormat, "Invalid HLA format: %s", hlaType)
}

func mergeSplits(t *wmda.Tables, broad string, own []string) []string {
	seen := make(map[string]struct{}, len(own))
	for _, a := range own {
		seen[a] = struct{}{}
	}
	for _, split := range t.SplitsOf(broad) {
		for _, a := range t.MolecularFor(split) {
			seen[a] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// IsValidMolecular reports whether hlaType is a known allele, exactly or
// through its 2-field root.
func (c *Converter) IsValidMolecular(hlaType string) (bool, error) {
	if !allele.IsMolecular(hlaType) {
		return false, nil
	}
	t, err := c.source.Tables()
	if err != nil {
		return false, err
	}
	return t.HasAllele(hlaType), nil
}

// IsValidSerological reports whether hlaType is a known serological name.
func (c *Converter) IsValidSerological(hlaType string) (bool, error) {
	t, err := c.source.Tables()
	if err != nil {
		return false, err
	}
	return t.HasSerological(hlaType), nil
}
