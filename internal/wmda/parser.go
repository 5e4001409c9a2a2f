package wmda

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/tavinathanson/imgtsero/internal/logging"
)

// Fetcher downloads a release's relationship files into the data directory.
type Fetcher interface {
	Download(ctx context.Context, release string) (*Files, error)
}

// Parser loads the tables for one data directory and release on first use and
// hands out the same read-only *Tables afterwards. A failed load is not
// remembered; the next call tries again.
type Parser struct {
	dataDir string
	release string
	fetcher Fetcher
	logger  *slog.Logger

	mu     sync.Mutex
	tables *Tables
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithFetcher lets Ensure download missing files.
func WithFetcher(f Fetcher) ParserOption {
	return func(p *Parser) { p.fetcher = f }
}

// WithLogger sets the parser's logger.
func WithLogger(l *slog.Logger) ParserOption {
	return func(p *Parser) { p.logger = l }
}

// NewParser returns a parser for release under dataDir. An empty release
// selects the newest release present in dataDir at load time.
func NewParser(dataDir, release string, opts ...ParserOption) *Parser {
	p := &Parser{dataDir: dataDir, release: release}
	for _, o := range opts {
		o(p)
	}
	if p.logger == nil {
		p.logger = logging.Default()
	}
	return p
}

// DataDir returns the directory the parser reads from.
func (p *Parser) DataDir() string {
	return p.dataDir
}

// Release returns the configured release, which may be empty.
func (p *Parser) Release() string {
	return p.release
}

// Ensure downloads the release's files when rel_dna_ser is missing and a
// Fetcher is configured. Without a Fetcher, or with no release set, it does
// nothing and Tables reports the missing data.
func (p *Parser) Ensure(ctx context.Context) error {
	if p.fetcher == nil || p.release == "" {
		return nil
	}
	files := FilesFor(p.dataDir, p.release)
	if _, err := os.Stat(files.RelDNASer); err == nil {
		return nil
	}
	p.logger.Info("release files missing, downloading", "release", p.release, "data_dir", p.dataDir)
	_, err := p.fetcher.Download(ctx, p.release)
	return err
}

// Tables returns the parsed tables, loading them on the first call.
func (p *Parser) Tables() (*Tables, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tables != nil {
		return p.tables, nil
	}

	release := p.release
	if release == "" {
		latest, err := LatestRelease(p.dataDir)
		if err != nil {
			return nil, err
		}
		release = latest
	}

	t, err := Load(p.dataDir, release)
	if err != nil {
		return nil, err
	}
	st := t.Stats()
	p.logger.Debug("wmda tables loaded",
		"release", release,
		"loci", st.Loci,
		"alleles", st.Alleles,
		"serological_types", st.Serological,
		"broad_antigens", st.Broads,
	)
	p.tables = t
	return t, nil
}
