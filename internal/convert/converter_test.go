package convert

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavinathanson/imgtsero/internal/allele"
	"github.com/tavinathanson/imgtsero/internal/hlaerr"
	"github.com/tavinathanson/imgtsero/internal/logging"
	"github.com/tavinathanson/imgtsero/internal/wmda"
)

func newTestConverter(t *testing.T) (*Converter, *wmda.Tables) {
	t.Helper()
	p := wmda.NewParser("../wmda/testdata", "3610", wmda.WithLogger(logging.Discard()))
	tables, err := p.Tables()
	require.NoError(t, err)
	return New(p), tables
}

// countingSource fails every load and counts attempts.
type countingSource struct {
	calls int
}

func (s *countingSource) Tables() (*wmda.Tables, error) {
	s.calls++
	return nil, hlaerr.New(hlaerr.ErrDataNotFound, "no data")
}

func TestConvert_Scenarios(t *testing.T) {
	c, _ := newTestConverter(t)

	cases := []struct {
		name string
		in   string
		opts Options
		want string
	}{
		{"molecular to serological", "A*01:01", Options{Target: FormatSerological}, "A1"},
		{"high resolution input", "A*01:01:01:01", Options{Target: FormatSerological}, "A1"},
		{"split by default", "A*02:03", Options{Target: FormatSerological}, "A203"},
		{"broad mode", "A*02:03", Options{Target: FormatSerological, HandleBroad: BroadBroad}, "A2"},
		{"both mode", "A*02:03", Options{Target: FormatSerological, HandleBroad: BroadBoth}, "A2 (A203)"},
		{"both mode without broad", "A*01:01", Options{Target: FormatSerological, HandleBroad: BroadBoth}, "A1"},
		{"broad mode on locus C", "C*03:02", Options{Target: FormatSerological, HandleBroad: BroadBroad}, "Cw3"},
		{"locus C placeholder", "C*14:02", Options{Target: FormatSerological}, "Cw14"},
		{"locus C literal number", "C*03:02:01", Options{Target: FormatSerological}, "Cw10"},
		{"auto detect molecular", "B*27:05", Options{}, "B27"},
		{"serological passthrough", "B27", Options{Target: FormatSerological, HandleBroad: BroadBroad}, "B27"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := c.Convert(tc.in, tc.opts)
			require.NoError(t, err)
			assert.Equal(t, FormatSerological, res.Target)
			assert.Equal(t, tc.want, res.Serological)
			assert.Equal(t, tc.want, res.String())
		})
	}
}

func TestConvert_ToMolecular(t *testing.T) {
	c, _ := newTestConverter(t)

	cases := []struct {
		name string
		in   string
		opts Options
		want []string
	}{
		{"serological", "A1", Options{Target: FormatMolecular}, []string{"A*01:01", "A*01:02"}},
		{"auto detect serological", "Cw10", Options{}, []string{"C*03:02", "C*03:04"}},
		{"broad without expansion", "A2", Options{}, []string{"A*02:01"}},
		{"broad expanded", "A2", Options{ExpandSplits: true}, []string{"A*02:01", "A*02:03", "A*02:10"}},
		{"locus C broad expanded", "Cw3", Options{ExpandSplits: true}, []string{"C*03:02", "C*03:03", "C*03:04", "C*03:07"}},
		{"expansion ignored for non-broad", "B27", Options{ExpandSplits: true}, []string{"B*27:05"}},
		{"molecular passthrough", "A*01:01:01:01", Options{Target: FormatMolecular, ExpandSplits: true}, []string{"A*01:01"}},
		{"null allele passthrough", "A*01:11N", Options{Target: FormatMolecular}, []string{"A*01:11N"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := c.Convert(tc.in, tc.opts)
			require.NoError(t, err)
			assert.Equal(t, FormatMolecular, res.Target)
			if diff := cmp.Diff(tc.want, res.Molecular); diff != "" {
				t.Errorf("Convert(%q) mismatch (-want +got):\n%s", tc.in, diff)
			}
		})
	}
}

func TestConvert_DomainErrors(t *testing.T) {
	c, _ := newTestConverter(t)

	cases := []struct {
		in      string
		opts    Options
		code    hlaerr.Code
		message string
	}{
		{"A*99:99", Options{Target: FormatSerological}, hlaerr.ErrUnrecognizedMolecular, "Unrecognized molecular allele: A*99:99"},
		{"A*99:99", Options{Target: FormatMolecular}, hlaerr.ErrUnrecognizedMolecular, "Unrecognized molecular allele: A*99:99"},
		{"X*01:01", Options{}, hlaerr.ErrUnrecognizedMolecular, "Unrecognized molecular allele: X*01:01"},
		{"A*01:11N", Options{Target: FormatSerological}, hlaerr.ErrNoSerologicalEquivalent, "No serological equivalent found for molecular allele: A*01:11N"},
		{"A*02:99", Options{}, hlaerr.ErrNoSerologicalEquivalent, "No serological equivalent found for molecular allele: A*02:99"},
		{"C1", Options{}, hlaerr.ErrUnrecognizedSerological, "Unrecognized serological allele: C1"},
		{"C10", Options{Target: FormatSerological}, hlaerr.ErrUnrecognizedSerological, "Unrecognized serological allele: C10"},
		{"A9", Options{ExpandSplits: true}, hlaerr.ErrUnrecognizedSerological, "Unrecognized serological allele: A9"},
		{"A99", Options{}, hlaerr.ErrUnrecognizedSerological, "Unrecognized serological allele: A99"},
		{"invalid", Options{}, hlaerr.ErrInvalidFormat, "Invalid HLA format: invalid"},
		{"a1", Options{Target: FormatMolecular}, hlaerr.ErrInvalidFormat, "Invalid HLA format: a1"},
		{"", Options{}, hlaerr.ErrInvalidFormat, "Invalid HLA format: "},
	}
	for _, tc := range cases {
		_, err := c.Convert(tc.in, tc.opts)
		require.Error(t, err, tc.in)
		assert.True(t, hlaerr.Is(err, tc.code), "%q: got %v", tc.in, hlaerr.CodeOf(err))
		assert.Equal(t, hlaerr.KindUnrecognized, hlaerr.KindOf(err))
		assert.False(t, hlaerr.IsArgument(err))
		assert.EqualError(t, err, tc.message)
	}
}

func TestConvert_ArgumentErrorsBeforeDataAccess(t *testing.T) {
	src := &countingSource{}
	c := New(src)

	_, err := c.Convert("A*01:01", Options{Target: "x"})
	require.Error(t, err)
	assert.True(t, hlaerr.Is(err, hlaerr.ErrInvalidTargetFormat))
	assert.True(t, hlaerr.IsArgument(err))

	_, err = c.Convert("A*01:01", Options{HandleBroad: "invalid"})
	require.Error(t, err)
	assert.True(t, hlaerr.Is(err, hlaerr.ErrInvalidHandleBroad))
	assert.Contains(t, err.Error(), "Invalid handle_broad value: invalid")

	_, err = c.ToSerological("A*01:01", "neither")
	require.Error(t, err)
	assert.True(t, hlaerr.IsArgument(err))

	assert.Zero(t, src.calls)

	_, err = c.Convert("A*01:01", Options{})
	require.Error(t, err)
	assert.True(t, hlaerr.Is(err, hlaerr.ErrDataNotFound))
	assert.Equal(t, 1, src.calls)
}

func TestConvert_DataErrorPropagates(t *testing.T) {
	p := wmda.NewParser(t.TempDir(), "3610", wmda.WithLogger(logging.Discard()))
	c := New(p)

	_, err := c.Convert("A1", Options{})
	require.Error(t, err)
	assert.Equal(t, hlaerr.KindData, hlaerr.KindOf(err))

	_, err = c.IsValidSerological("A1")
	assert.Error(t, err)
}

func TestIsValid(t *testing.T) {
	c, _ := newTestConverter(t)

	for _, a := range []string{"A*01:01", "A*01:01:01:01", "A*01:01:01:77", "DPB1*01:01:01"} {
		ok, err := c.IsValidMolecular(a)
		require.NoError(t, err)
		assert.True(t, ok, a)
	}
	for _, a := range []string{"A*99:99", "A1", "*01:01", "A*"} {
		ok, err := c.IsValidMolecular(a)
		require.NoError(t, err)
		assert.False(t, ok, a)
	}

	ok, err := c.IsValidSerological("Cw14")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.IsValidSerological("C14")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMolecularResultIsNotShared(t *testing.T) {
	c, _ := newTestConverter(t)
	first, err := c.ToMolecular("A1", false)
	require.NoError(t, err)
	first[0] = "changed"

	second, err := c.ToMolecular("A1", false)
	require.NoError(t, err)
	assert.Equal(t, "A*01:01", second[0])
}

func TestProperty_RoundTripForNonSplits(t *testing.T) {
	c, tables := newTestConverter(t)

	for _, name := range tables.SerologicalNames() {
		for _, m := range tables.MolecularFor(name) {
			s, err := c.ToSerological(m, BroadSplit)
			require.NoError(t, err, m)
			if tables.IsSplit(s) {
				continue
			}
			back, err := c.ToMolecular(s, false)
			require.NoError(t, err, s)
			for _, b := range back {
				again, err := c.ToSerological(b, BroadSplit)
				require.NoError(t, err, b)
				assert.Equal(t, s, again, "%s -> %s -> %s", m, s, b)
			}
		}
	}
}

func TestProperty_ExpansionIsSupersetSortedUnique(t *testing.T) {
	c, tables := newTestConverter(t)

	for _, broad := range []string{"A2", "Cw3"} {
		expanded, err := c.ToMolecular(broad, true)
		require.NoError(t, err)

		want := map[string]bool{}
		own, err := c.ToMolecular(broad, false)
		require.NoError(t, err)
		for _, a := range own {
			want[a] = true
		}
		for _, split := range tables.SplitsOf(broad) {
			got, err := c.ToMolecular(split, false)
			if hlaerr.Is(err, hlaerr.ErrUnrecognizedSerological) {
				continue
			}
			require.NoError(t, err)
			for _, a := range got {
				want[a] = true
			}
		}
		for a := range want {
			assert.Contains(t, expanded, a, broad)
		}
		assert.IsIncreasing(t, expanded, broad)
	}
}

func TestProperty_BothIsBroadSplit(t *testing.T) {
	c, tables := newTestConverter(t)
	for _, m := range []string{"A*02:03", "A*02:10", "A*24:03", "B*51:01", "C*03:03"} {
		split, err := c.ToSerological(m, BroadSplit)
		require.NoError(t, err)
		broad, ok := tables.BroadOf(split)
		require.True(t, ok, split)

		both, err := c.ToSerological(m, BroadBoth)
		require.NoError(t, err)
		assert.Equal(t, broad+" ("+split+")", both)
	}
}

func TestProperty_TwoFieldIdempotent(t *testing.T) {
	for _, in := range []string{"A*01:01:01:01", "A*01", "A1", "", "DRB1*15:01:01:01", "not:molecular"} {
		once := allele.ToTwoField(in)
		assert.Equal(t, once, allele.ToTwoField(once), in)
	}
}

func TestProperty_LocusCNeedsCwPrefix(t *testing.T) {
	c, _ := newTestConverter(t)
	for _, in := range []string{"C1", "C2", "C3", "C7", "C10"} {
		_, err := c.Convert(in, Options{})
		assert.True(t, hlaerr.Is(err, hlaerr.ErrUnrecognizedSerological), in)
	}
}

func TestResultString(t *testing.T) {
	r := Result{Target: FormatMolecular, Molecular: []string{"A*01:01", "A*01:02"}}
	assert.Equal(t, "A*01:01, A*01:02", r.String())

	r = Result{Target: FormatSerological, Serological: "A2 (A203)"}
	assert.Equal(t, "A2 (A203)", r.String())
}
