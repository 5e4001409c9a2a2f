// Package kir classifies HLA class I alleles by KIR ligand group (Bw4, Bw6,
// C1, C2) using ligand assignments from the IPD-IMGT/HLA API, cached per
// release in the data directory.
package kir

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tavinathanson/imgtsero/internal/allele"
	"github.com/tavinathanson/imgtsero/internal/hlaerr"
	"github.com/tavinathanson/imgtsero/internal/logging"
)

// Ligand groups.
const (
	Bw4 = "Bw4"
	Bw6 = "Bw6"
	C1  = "C1"
	C2  = "C2"
)

const sourceAPI = "api"

var receptors = map[string][]string{
	Bw4: {"KIR3DL1"},
	C1:  {"KIR2DL2", "KIR2DL3"},
	C2:  {"KIR2DL1"},
}

// Receptors returns the inhibitory KIRs that bind a ligand group. Bw6 and
// unknown groups bind none.
func Receptors(group string) []string {
	r := receptors[group]
	out := make([]string, len(r))
	copy(out, r)
	return out
}

// Classification is the KIR ligand verdict for one allele or antigen.
// Empty Type, Detail and Source mean no ligand data was found.
type Classification struct {
	IsLigand  bool     `json:"is_kir_ligand"`
	Type      string   `json:"kir_ligand_type"`
	Detail    string   `json:"kir_ligand_type_detail"`
	Receptors []string `json:"kir_receptors"`
	Source    string   `json:"source"`
}

func unclassified() Classification {
	return Classification{Receptors: []string{}}
}

// BaseGroup reduces a ligand detail to its group: any "Bw4..." detail is
// Bw4, and C1, C2 and Bw6 stand for themselves.
func BaseGroup(detail string) string {
	switch {
	case strings.HasPrefix(detail, Bw4):
		return Bw4
	case detail == C1, detail == C2, detail == Bw6:
		return detail
	}
	return ""
}

func isLigandGroup(group string) bool {
	return group == Bw4 || group == C1 || group == C2
}

// SerologicalResolver expands a serological antigen to its molecular
// alleles. *convert.Converter implements it.
type SerologicalResolver interface {
	ToMolecular(hlaType string, expand bool) ([]string, error)
}

// Classifier answers KIR ligand queries for one release.
type Classifier struct {
	version     string
	dataDir     string
	source      Source
	resolver    SerologicalResolver
	logger      *slog.Logger
	lockTimeout time.Duration

	mu      sync.Mutex
	ligands LigandMap
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithSource replaces the IPD API client.
func WithSource(s Source) Option {
	return func(c *Classifier) { c.source = s }
}

// WithResolver enables serological input in Classify.
func WithResolver(r SerologicalResolver) Option {
	return func(c *Classifier) { c.resolver = r }
}

// WithLogger sets the classifier's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// WithLockTimeout bounds the wait for the data-directory lock when writing
// the cache.
func WithLockTimeout(d time.Duration) Option {
	return func(c *Classifier) { c.lockTimeout = d }
}

// NewClassifier returns a classifier for version ("3610" or "3.61.0") that
// caches under dataDir.
func NewClassifier(version, dataDir string, opts ...Option) *Classifier {
	c := &Classifier{
		version:     NormalizeVersion(version),
		dataDir:     dataDir,
		lockTimeout: 30 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	if c.source == nil {
		c.source = NewIPDClient("", 0)
	}
	if c.logger == nil {
		c.logger = logging.Default()
	}
	return c
}

// Version returns the normalized version.
func (c *Classifier) Version() string {
	return c.version
}

// CachePath returns the classifier's cache file.
func (c *Classifier) CachePath() string {
	return CachePath(c.dataDir, c.version)
}

// Load makes ligand data available, reading the cache when possible and
// fetching from the source otherwise. force skips the cache and refetches.
// A successful fetch is written back to the cache; a failed write is logged
// and otherwise ignored.
func (c *Classifier) Load(ctx context.Context, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.loadLocked(ctx, force)
	return err
}

func (c *Classifier) loaded(ctx context.Context) (LigandMap, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(ctx, false)
}

func (c *Classifier) loadLocked(ctx context.Context, force bool) (LigandMap, error) {
	if c.ligands != nil && !force {
		return c.ligands, nil
	}

	if !force {
		m, err := LoadCache(c.dataDir, c.version)
		switch {
		case err == nil:
			c.logger.Debug("kir ligand cache hit", "version", c.version, "alleles", len(m))
			c.ligands = m
			return m, nil
		case errors.Is(err, fs.ErrNotExist):
			c.logger.Debug("kir ligand cache miss", "version", c.version)
		default:
			c.logger.Warn("ignoring unreadable kir ligand cache", "path", c.CachePath(), "err", err)
		}
	}

	c.logger.Info("fetching kir ligand data", "version", c.version, "source", c.source.ID())
	raw, err := c.source.Fetch(ctx, c.version)
	if err != nil {
		return nil, err
	}
	m, err := Compress(raw)
	if err != nil {
		return nil, err
	}
	if err := SaveCache(c.dataDir, c.version, m, c.lockTimeout); err != nil {
		c.logger.Warn("cannot save kir ligand cache", "path", c.CachePath(), "err", err)
	}
	c.ligands = m
	return m, nil
}

// Ligand returns the ligand detail of an allele at any resolution.
func (c *Classifier) Ligand(ctx context.Context, name string) (string, bool, error) {
	m, err := c.loaded(ctx)
	if err != nil {
		return "", false, err
	}
	d, ok := m.Lookup(name)
	return d, ok, nil
}

// ClassifyAllele classifies one molecular allele. A bead annotation of Bw4
// or Bw6 that contradicts the allele's group is an ErrBeadConflict error;
// other annotations are ignored.
func (c *Classifier) ClassifyAllele(ctx context.Context, name, bead string) (Classification, error) {
	m, err := c.loaded(ctx)
	if err != nil {
		return Classification{}, err
	}

	res := unclassified()
	detail, ok := m.Lookup(name)
	if !ok {
		return res, nil
	}
	group := BaseGroup(detail)
	res.Type = group
	res.Detail = detail
	res.Source = sourceAPI
	if isLigandGroup(group) {
		res.IsLigand = true
		res.Receptors = Receptors(group)
	}
	if err := checkBead(bead, group, "allele", name); err != nil {
		return Classification{}, err
	}
	return res, nil
}

// ClassifySerological classifies an antigen from its molecular alleles.
// When every allele with data agrees on the group the result carries that
// group, with a "Mixed: ..." detail if the details differ. Disagreeing
// groups give a "Mixed: ..." type that is never a ligand.
func (c *Classifier) ClassifySerological(ctx context.Context, name string, alleles []string, bead string) (Classification, error) {
	m, err := c.loaded(ctx)
	if err != nil {
		return Classification{}, err
	}

	details := make(map[string]struct{})
	groups := make(map[string]struct{})
	for _, a := range alleles {
		d, ok := m.Lookup(a)
		if !ok {
			continue
		}
		details[d] = struct{}{}
		if g := BaseGroup(d); g != "" {
			groups[g] = struct{}{}
		}
	}

	res := unclassified()
	switch len(groups) {
	case 0:
		return res, nil
	case 1:
		group := sortedKeys(groups)[0]
		res.Type = group
		res.Detail = mixed(details)
		res.Source = sourceAPI
		if isLigandGroup(group) {
			res.IsLigand = true
			res.Receptors = Receptors(group)
		}
		if err := checkBead(bead, group, "serological antigen", name); err != nil {
			return Classification{}, err
		}
	default:
		res.Type = "Mixed: " + strings.Join(sortedKeys(groups), ", ")
		res.Detail = "Mixed: " + strings.Join(sortedKeys(details), ", ")
		res.Source = sourceAPI
	}
	return res, nil
}

// mixed returns the single detail, or "Mixed: a, b" when there are several.
func mixed(details map[string]struct{}) string {
	keys := sortedKeys(details)
	if len(keys) == 1 {
		return keys[0]
	}
	return "Mixed: " + strings.Join(keys, ", ")
}

func checkBead(bead, group, what, name string) error {
	if bead != Bw4 && bead != Bw6 {
		return nil
	}
	if group != "" && group != bead {
		return hlaerr.Newf(hlaerr.ErrBeadConflict,
			"Bead annotation '%s' conflicts with API data '%s' for %s %s", bead, group, what, name)
	}
	return nil
}

// Classify accepts either form. Molecular alleles are classified directly.
// Serological antigens are expanded through the resolver; an antigen that
// cannot be resolved, like any input of neither form, yields an empty
// classification rather than an error.
func (c *Classifier) Classify(ctx context.Context, hlaType, bead string) (Classification, error) {
	if _, err := c.loaded(ctx); err != nil {
		return Classification{}, err
	}
	if allele.IsMolecular(hlaType) {
		return c.ClassifyAllele(ctx, hlaType, bead)
	}
	if !allele.IsSerological(hlaType) || c.resolver == nil {
		return unclassified(), nil
	}
	alleles, err := c.resolver.ToMolecular(hlaType, false)
	if err != nil {
		if hlaerr.KindOf(err) == hlaerr.KindUnrecognized {
			c.logger.Debug("cannot resolve serological type", "hla_type", hlaType, "err", err)
			return unclassified(), nil
		}
		return Classification{}, err
	}
	return c.ClassifySerological(ctx, hlaType, alleles, bead)
}

// Grouped returns every allele key grouped by ligand detail, each list
// sorted.
func (c *Classifier) Grouped(ctx context.Context) (map[string][]string, error) {
	m, err := c.loaded(ctx)
	if err != nil {
		return nil, err
	}
	return m.Grouped(), nil
}

// Details returns the distinct ligand details present, sorted.
func Details(grouped map[string][]string) []string {
	out := make([]string, 0, len(grouped))
	for k := range grouped {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
