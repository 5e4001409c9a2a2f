package cmd

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tavinathanson/imgtsero/internal/wmda"
)

var (
	flagDownloadForce bool
	flagDownloadKIR   bool
)

var downloadCmd = &cobra.Command{
	Use:   "download [release]",
	Short: "Download the WMDA relationship files of a release",
	Long: `Download rel_dna_ser.txt and rel_ser_ser.txt of an IPD-IMGT/HLA release
(e.g. 3610 for 3.61.0) into the data directory, as
rel_dna_ser.<release>.txt and rel_ser_ser.<release>.txt.

Without an argument the configured release is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().BoolVar(&flagDownloadForce, "force", false, "Download even if the files are already present")
	downloadCmd.Flags().BoolVar(&flagDownloadKIR, "kir", false, "Also fetch and cache KIR ligand data for the release")
	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	release := appCfg.Release
	if len(args) == 1 {
		release = strings.TrimSpace(args[0])
	}
	if release == "" {
		return fmt.Errorf("no release given (pass one, e.g. 'imgtsero download 3610', or set release in config)")
	}

	printSection(fmt.Sprintf("Download %s", release))
	files := wmda.FilesFor(appCfg.DataDir, release)
	if _, err := os.Stat(files.RelDNASer); err == nil && !flagDownloadForce {
		printSkip("", fmt.Sprintf("already present: %s (use --force to refetch)", files.RelDNASer))
	} else {
		d := newDownloader()
		d.Progress = progressPrinter()
		printInfo("", fmt.Sprintf("from %s", d.URLFor(release, "rel_dna_ser")))
		ctx, cancel := withTimeout(cmd.Context())
		_, err := d.Download(ctx, release)
		cancel()
		fmt.Fprintln(stderr)
		if err != nil {
			return err
		}
		m, err := wmda.ReadManifest(appCfg.DataDir, release)
		if err != nil {
			printWarn("", fmt.Sprintf("no manifest recorded: %v", err))
		} else {
			for _, f := range m.Files {
				printOK(f.Name, fmt.Sprintf("%s, blake3 %s", humanize.Bytes(uint64(f.Size)), shortDigest(f.BLAKE3)))
			}
		}
	}

	if flagDownloadKIR {
		c, err := newClassifier(release, nil)
		if err != nil {
			return err
		}
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()
		if err := c.Load(ctx, flagDownloadForce); err != nil {
			return err
		}
		printOK("kir", fmt.Sprintf("ligand data ready: %s", c.CachePath()))
	}

	fmt.Fprintf(stdout, "\n✓  Release %s is ready in %s\n", release, appCfg.DataDir)
	return nil
}

// progressPrinter renders a single-line progress indicator to stderr, at
// most every 200ms per file plus once on completion.
func progressPrinter() func(url string, downloaded, total int64) {
	var lastURL string
	var lastPrint time.Time
	return func(url string, downloaded, total int64) {
		done := total > 0 && downloaded >= total
		if url == lastURL && !done && time.Since(lastPrint) < 200*time.Millisecond {
			return
		}
		if url != lastURL && lastURL != "" {
			fmt.Fprintln(stderr)
		}
		lastURL, lastPrint = url, time.Now()
		name := path.Base(url)
		if total > 0 {
			pct := float64(downloaded) / float64(total) * 100
			fmt.Fprintf(stderr, "\rDownloading %s... %s / %s (%.1f%%)", name, humanize.IBytes(uint64(downloaded)), humanize.IBytes(uint64(total)), pct)
			return
		}
		fmt.Fprintf(stderr, "\rDownloading %s... %s", name, humanize.IBytes(uint64(downloaded)))
	}
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
