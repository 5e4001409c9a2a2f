package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tavinathanson/imgtsero/internal/hlaerr"
)

var antigenCmd = &cobra.Command{
	Use:   "antigen <serological-name>",
	Short: "Show the broad/split family and alleles of a serological antigen",
	Args:  cobra.ExactArgs(1),
	RunE:  runAntigen,
}

func init() {
	rootCmd.AddCommand(antigenCmd)
}

func runAntigen(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	_, t, err := loadTables(cmd.Context())
	if err != nil {
		return err
	}
	known := t.HasSerological(name)
	if !known && !t.IsBroad(name) && !t.IsSplit(name) {
		return hlaerr.Newf(hlaerr.ErrUnrecognizedSerological, "Unrecognized serological allele: %s", name)
	}

	printSection(name)
	if broad, ok := t.BroadOf(name); ok {
		printInfo("", fmt.Sprintf("split of %s (siblings: %s)", broad, strings.Join(t.SplitsOf(broad), ", ")))
	}
	if splits := t.SplitsOf(name); len(splits) > 0 {
		printBullet("Splits:")
		for _, s := range splits {
			if n := len(t.MolecularFor(s)); n > 0 {
				printOK(s, fmt.Sprintf("%d allele(s)", n))
			} else {
				printMiss(s, "no alleles assigned")
			}
		}
	}

	alleles := t.MolecularFor(name)
	printBullet(fmt.Sprintf("Alleles (%d):", len(alleles)))
	if len(alleles) == 0 {
		printMiss("", "none assigned directly (try 'imgtsero convert --expand-splits')")
		return nil
	}
	for _, a := range alleles {
		fmt.Fprintf(stdout, "  %s\n", a)
	}
	return nil
}
