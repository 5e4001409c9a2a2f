package cmd

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X .../cmd.version=... -X .../cmd.commit=...".
var (
	version   = "dev"
	commit    = ""
	buildDate = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show imgtsero version and build information",
	Args:  cobra.NoArgs,
	// No config is needed to report the build.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(*cobra.Command, []string) error {
		readBuildInfo().write()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

type buildInfo struct {
	Version, Commit, Date string
	GoVersion, Platform   string
}

// readBuildInfo prefers ldflags values and falls back to the VCS stamp the
// Go toolchain embeds for module builds.
func readBuildInfo() buildInfo {
	b := buildInfo{
		Version:   version,
		Commit:    commit,
		Date:      buildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	if b.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && b.Commit == "":
			b.Commit = s.Value
		case s.Key == "vcs.time" && b.Date == "":
			b.Date = s.Value
		}
	}
	return b
}

func (b buildInfo) write() {
	rows := [][2]string{
		{"Version:", b.Version},
		{"Commit:", orNA(b.Commit)},
		{"Build Date:", orNA(b.Date)},
		{"Go Version:", b.GoVersion},
		{"OS/Arch:", b.Platform},
	}
	for _, r := range rows {
		fmt.Fprintf(stdout, "%-12s%s\n", r[0], r[1])
	}
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
