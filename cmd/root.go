package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tavinathanson/imgtsero/internal/config"
	"github.com/tavinathanson/imgtsero/internal/convert"
	"github.com/tavinathanson/imgtsero/internal/hlaerr"
	"github.com/tavinathanson/imgtsero/internal/kir"
	"github.com/tavinathanson/imgtsero/internal/logging"
	"github.com/tavinathanson/imgtsero/internal/wmda"
)

var (
	flagDataDir   string
	flagRelease   string
	flagLogLevel  string
	flagLogFormat string
	flagTimeout   time.Duration
)

// appCfg is the effective configuration: config.yaml, then IMGTSERO_*
// overrides, then persistent flags. Set by loadAppConfig before every command.
var appCfg *config.Config

var rootCmd = &cobra.Command{
	Use:          "imgtsero",
	Short:        "imgtsero: convert HLA types between serological and molecular nomenclature",
	SilenceUsage: true, // don't print usage on operational errors
	Long: `imgtsero converts HLA typings between serological names (A1, B27, Cw14) and
2-field molecular alleles (A*01:01) using the WMDA relationship files of an
IPD-IMGT/HLA release, and classifies class I alleles by KIR ligand group.

Release files live in the data directory (default ~/.imgtsero/data).`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadAppConfig(cmd)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagDataDir, "data-dir", "", "Directory holding release files (overrides data_dir)")
	pf.StringVarP(&flagRelease, "release", "r", "", "IPD-IMGT/HLA release, e.g. 3610 (default: newest in data dir)")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flagLogFormat, "log-format", "", "Log format: text or json")
	pf.DurationVar(&flagTimeout, "timeout", 0, "Timeout for network operations (overrides timeout)")
}

// loadAppConfig resolves appCfg and configures logging.
func loadAppConfig(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		if cfg.DataDir, err = config.ExpandPath(flagDataDir); err != nil {
			return err
		}
	}
	if flags.Changed("release") {
		cfg.Release = strings.TrimSpace(flagRelease)
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = flagLogFormat
	}
	if flags.Changed("timeout") {
		cfg.Timeout = flagTimeout.String()
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	format, _ := logging.ParseFormat(cfg.LogFormat)
	logging.Init(stderr, level, format)
	appCfg = cfg
	return nil
}

// withTimeout bounds ctx by the configured network timeout, if any.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	d, _ := appCfg.TimeoutDuration()
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// newDownloader returns a WMDA downloader for the configured data dir.
func newDownloader() *wmda.Downloader {
	d := wmda.NewDownloader(appCfg.DataDir)
	if appCfg.WMDABaseURL != "" {
		d.BaseURL = appCfg.WMDABaseURL
	}
	d.Logger = logging.Default()
	return d
}

// newParser returns a table parser for the configured release. When
// auto_download is on and the release files are missing they are fetched
// first.
func newParser(ctx context.Context) (*wmda.Parser, error) {
	opts := []wmda.ParserOption{wmda.WithLogger(logging.Default())}
	if appCfg.AutoDownload {
		opts = append(opts, wmda.WithFetcher(newDownloader()))
	}
	p := wmda.NewParser(appCfg.DataDir, appCfg.Release, opts...)

	ctx, cancel := withTimeout(ctx)
	defer cancel()
	if err := p.Ensure(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// loadTables returns the parser and its loaded tables.
func loadTables(ctx context.Context) (*wmda.Parser, *wmda.Tables, error) {
	p, err := newParser(ctx)
	if err != nil {
		return nil, nil, err
	}
	t, err := p.Tables()
	if err != nil {
		return nil, nil, err
	}
	return p, t, nil
}

// newClassifier returns a KIR classifier for the release the tables were
// loaded for. resolver may be nil.
func newClassifier(release string, resolver kir.SerologicalResolver) (*kir.Classifier, error) {
	if !appCfg.EnableKIR {
		return nil, hlaerr.New(hlaerr.ErrKIRDisabled,
			"KIR ligand classification not enabled (set enable_kir: true in ~/.imgtsero/config.yaml)")
	}
	d, _ := appCfg.TimeoutDuration()
	opts := []kir.Option{
		kir.WithSource(kir.NewIPDClient(appCfg.IPDAPIURL, d)),
		kir.WithLogger(logging.Default()),
	}
	if resolver != nil {
		opts = append(opts, kir.WithResolver(resolver))
	}
	return kir.NewClassifier(release, appCfg.DataDir, opts...), nil
}

// newConverter wires a converter to a freshly loaded parser.
func newConverter(ctx context.Context) (*convert.Converter, *wmda.Tables, error) {
	p, t, err := loadTables(ctx)
	if err != nil {
		return nil, nil, err
	}
	return convert.New(p), t, nil
}

// Execute is called by main.go.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error kind to a process exit status.
func exitCode(err error) int {
	switch hlaerr.KindOf(err) {
	case hlaerr.KindArgument:
		return 2
	case hlaerr.KindUnrecognized:
		return 3
	case hlaerr.KindData:
		return 4
	case hlaerr.KindConflict:
		return 5
	}
	return 1
}
