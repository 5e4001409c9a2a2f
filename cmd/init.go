package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tavinathanson/imgtsero/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create ~/.imgtsero with a default config and data directory",
	Long: `Initialize imgtsero at ~/.imgtsero/:

  config.yaml   default configuration (kept if it already exists)
  .env          template of IMGTSERO_* overrides
  data/         release files and KIR ligand caches

With --download the given release is fetched right away.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var flagInitDownload string

func init() {
	initCmd.Flags().StringVar(&flagInitDownload, "download", "", "Also download this release, e.g. 3610")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	// ── 1. Resolve ~/.imgtsero ────────────────────────────────────────────────
	dir, err := config.ImgtseroDir()
	if err != nil {
		return err
	}
	cfgPath, err := config.ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}
	printOK("", fmt.Sprintf("imgtsero directory ready: %s", dir))

	// ── 2. Write config.yaml if missing ───────────────────────────────────────
	exists, err := config.Exists()
	if err != nil {
		return err
	}
	if !exists {
		cfg, err := config.DefaultConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("data-dir") {
			cfg.DataDir = appCfg.DataDir
		}
		if cmd.Flags().Changed("release") {
			cfg.Release = appCfg.Release
		}
		if err := config.Save(cfg); err != nil {
			return err
		}
		printOK("", fmt.Sprintf("Config written: %s", cfgPath))
	} else {
		printSkip("", fmt.Sprintf("Config already exists: %s", cfgPath))
	}

	// ── 3. .env template ──────────────────────────────────────────────────────
	if err := config.EnsureDotEnvTemplate(); err != nil {
		return err
	}
	envPath, _ := config.DotEnvPath()
	printOK("", fmt.Sprintf("Overrides file: %s", envPath))

	// ── 4. Data directory ─────────────────────────────────────────────────────
	if err := os.MkdirAll(appCfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("cannot create data directory: %w", err)
	}
	printOK("", fmt.Sprintf("Data directory ready: %s", appCfg.DataDir))

	// ── 5. Optional first download ────────────────────────────────────────────
	if flagInitDownload != "" {
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()
		if _, err := newDownloader().Download(ctx, flagInitDownload); err != nil {
			return err
		}
		printOK("", fmt.Sprintf("Release %s downloaded", flagInitDownload))
	}

	fmt.Fprintln(stdout, "\n✓  imgtsero init complete. Run 'imgtsero doctor' to verify your environment.")
	return nil
}
