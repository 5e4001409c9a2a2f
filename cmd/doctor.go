package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tavinathanson/imgtsero/internal/config"
	"github.com/tavinathanson/imgtsero/internal/kir"
	"github.com/tavinathanson/imgtsero/internal/wmda"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, release files and caches",
	Long: `Check that imgtsero's configuration, release files and KIR ligand cache are
usable. Run this command when something seems wrong, or before filing a bug report.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(_ *cobra.Command, _ []string) error {
	allOK := true
	failD := func(format string, args ...any) {
		printErr("", fmt.Sprintf(format, args...))
		allOK = false
	}

	printSection("imgtsero doctor")
	fmt.Fprintln(stdout)

	// ── Check 1: config ───────────────────────────────────────────────────────
	fmt.Fprintln(stdout, "[ Config ]")
	cfgPath, _ := config.ConfigPath()
	if ok, err := config.Exists(); err != nil {
		failD("%v", err)
	} else if !ok {
		printWarn("", fmt.Sprintf("%s not found, using defaults (run 'imgtsero init')", cfgPath))
	} else {
		printOK("", fmt.Sprintf("valid config: %s", cfgPath))
	}
	if err := appCfg.Validate(); err != nil {
		failD("%v", err)
	}
	fmt.Fprintln(stdout)

	// ── Check 2: data directory ───────────────────────────────────────────────
	fmt.Fprintln(stdout, "[ Data directory ]")
	dataOK := false
	if info, err := os.Stat(appCfg.DataDir); err != nil {
		failD("%s not found (run 'imgtsero init')", appCfg.DataDir)
	} else if !info.IsDir() {
		failD("%s is not a directory", appCfg.DataDir)
	} else {
		printOK("", appCfg.DataDir)
		dataOK = true
	}
	fmt.Fprintln(stdout)

	// ── Check 3: release files ────────────────────────────────────────────────
	fmt.Fprintln(stdout, "[ Release files ]")
	release := ""
	if dataOK {
		r, err := resolveRelease()
		switch {
		case err != nil:
			failD("%v", err)
		default:
			release = r
			t, err := wmda.Load(appCfg.DataDir, release)
			if err != nil {
				failD("release %s: %v", release, err)
			} else {
				st := t.Stats()
				printOK(release, fmt.Sprintf("%s alleles over %d loci, %d serological types",
					humanize.Comma(int64(st.Alleles)), st.Loci, st.Serological))
			}
		}
	} else {
		printSkip("", "skipped (no data directory)")
	}
	fmt.Fprintln(stdout)

	// ── Check 4: manifest ─────────────────────────────────────────────────────
	fmt.Fprintln(stdout, "[ Manifest ]")
	if release != "" {
		m, err := wmda.ReadManifest(appCfg.DataDir, release)
		if err != nil {
			printSkip("", "no download manifest (files were not fetched by imgtsero)")
		} else if bad, err := m.Verify(appCfg.DataDir); err != nil {
			failD("cannot verify digests: %v", err)
		} else if len(bad) > 0 {
			failD("modified or missing since download: %s (run 'imgtsero download %s --force')",
				strings.Join(bad, ", "), release)
		} else {
			printOK("", fmt.Sprintf("%d file(s) match their BLAKE3 digests (fetched %s)", len(m.Files), m.FetchedAt))
		}
	} else {
		printSkip("", "skipped (no release)")
	}
	fmt.Fprintln(stdout)

	// ── Check 5: KIR ligand cache ─────────────────────────────────────────────
	fmt.Fprintln(stdout, "[ KIR cache ]")
	switch {
	case !appCfg.EnableKIR:
		printSkip("", "KIR classification disabled")
	case release == "":
		printSkip("", "skipped (no release)")
	default:
		version := kir.NormalizeVersion(release)
		m, err := kir.LoadCache(appCfg.DataDir, version)
		switch {
		case errors.Is(err, os.ErrNotExist):
			printMiss("", fmt.Sprintf("not cached yet (run 'imgtsero kir refresh' or 'imgtsero download %s --kir')", release))
		case err != nil:
			failD("%v (run 'imgtsero kir refresh')", err)
		default:
			printOK(version, fmt.Sprintf("%d allele entries: %s", len(m), kir.CachePath(appCfg.DataDir, version)))
		}
	}
	fmt.Fprintln(stdout)

	// ── Summary ───────────────────────────────────────────────────────────────
	fmt.Fprintln(stdout, "===================")
	if allOK {
		fmt.Fprintln(stdout, "✓  All checks passed. imgtsero is ready to use.")
		return nil
	}
	fmt.Fprintln(stderr, "✗  One or more checks failed. See details above.")
	return fmt.Errorf("doctor found issues")
}
