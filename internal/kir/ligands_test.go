package kir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavinathanson/imgtsero/internal/hlaerr"
)

func str(s string) *string { return &s }

func TestCompress_AddsTwoFieldKey(t *testing.T) {
	m := LigandMap{
		"B*27:05:02": str("Bw4 - 80T"),
		"B*27:05:09": str("Bw4 - 80T"),
		"B*07:02:01": str("Bw6"),
		"B*07:02:02": nil,
	}
	out, err := Compress(m)
	require.NoError(t, err)

	require.Contains(t, out, "B*27:05")
	assert.Equal(t, "Bw4 - 80T", *out["B*27:05"])
	assert.Equal(t, "Bw6", *out["B*07:02"], "null members are ignored when grouping")
	assert.Nil(t, out["B*07:02:02"])
	assert.NotContains(t, out, "B*27", "1-field keys are only added for locus A")
	assert.Len(t, m, 4, "input is not modified")
}

func TestCompress_ConflictNamesEveryAllele(t *testing.T) {
	m := LigandMap{
		"B*27:05:02": str("Bw4"),
		"B*27:05:09": str("Bw6"),
		"C*01:02:01": str("C1"),
		"C*01:02:02": str("C2"),
		"C*07:02:01": str("C1"),
	}
	_, err := Compress(m)
	require.Error(t, err)
	assert.True(t, hlaerr.Is(err, hlaerr.ErrInconsistentLigand))
	assert.Equal(t, hlaerr.KindConflict, hlaerr.KindOf(err))
	assert.Equal(t,
		"Inconsistent KIR ligand types found for the following alleles:\n"+
			"\nB*27:05:\n  - B*27:05:02: Bw4\n  - B*27:05:09: Bw6\n"+
			"\nC*01:02:\n  - C*01:02:01: C1\n  - C*01:02:02: C2\n",
		err.Error())
}

func TestCompress_LocusAOneField(t *testing.T) {
	m := LigandMap{
		"A*23:01:01": str("Bw4 - 80I"),
		"A*23:17":    str("Bw4 - 80I"),
		"A*24:02:01": str("Bw4 - 80I"),
		"A*24:03:01": str("Bw4 - 80T"),
		"A*01:01:01": nil,
	}
	out, err := Compress(m)
	require.NoError(t, err)

	require.Contains(t, out, "A*23")
	assert.Equal(t, "Bw4 - 80I", *out["A*23"])
	assert.NotContains(t, out, "A*24", "disagreeing 1-field group is skipped, not an error")
	assert.NotContains(t, out, "A*01")
	assert.Equal(t, "Bw4 - 80T", *out["A*24:03"])
}

func TestLookup(t *testing.T) {
	m := LigandMap{
		"B*27:05":    str("Bw4 - 80T"),
		"B*07:02:01": nil,
		"B*07:02":    str("Bw6"),
		"A*23":       str("Bw4 - 80I"),
	}
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"B*27:05", "Bw4 - 80T", true},
		{"B*27:05:02:01", "Bw4 - 80T", true},
		{"B*27:05:02", "Bw4 - 80T", true},
		{"A*23:01:01", "Bw4 - 80I", true},
		{"B*07:02:01", "", false},
		{"B*07:02:05", "Bw6", true},
		{"B*08:01", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := m.Lookup(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestGrouped(t *testing.T) {
	m := LigandMap{
		"C*07:02": str("C1"),
		"C*01:02": str("C1"),
		"C*02:02": str("C2"),
		"B*08:01": nil,
	}
	g := m.Grouped()
	assert.Equal(t, map[string][]string{
		"C1": {"C*01:02", "C*07:02"},
		"C2": {"C*02:02"},
	}, g)
	assert.Equal(t, []string{"C1", "C2"}, Details(g))
}

func TestParseBeadAnnotation(t *testing.T) {
	cases := []struct {
		in, antigen, annotation string
	}{
		{"B27,Bw4", "B27", "Bw4"},
		{"B7, Bw6", "B7", "Bw6"},
		{"Cw7", "Cw7", ""},
		{" A23 ", "A23", ""},
		{"B27,Foo", "B27", ""},
		{"B27,Bw4,extra", "B27,Bw4,extra", ""},
	}
	for _, c := range cases {
		antigen, annotation := ParseBeadAnnotation(c.in)
		assert.Equal(t, c.antigen, antigen, c.in)
		assert.Equal(t, c.annotation, annotation, c.in)
	}
}
