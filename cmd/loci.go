package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	flagAllelesLocus string
	flagAllelesLimit int
)

var lociCmd = &cobra.Command{
	Use:   "loci",
	Short: "List the loci of the loaded release with allele counts",
	Args:  cobra.NoArgs,
	RunE:  runLoci,
}

var allelesCmd = &cobra.Command{
	Use:   "alleles [pattern]",
	Short: "List known alleles, optionally filtered by a regular expression",
	Long: `List alleles from rel_dna_ser. The pattern is a case-insensitive regular
expression matched anywhere in the allele name:

  imgtsero alleles 'B\*27:05'
  imgtsero alleles --locus DRB1`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAlleles,
}

func init() {
	allelesCmd.Flags().StringVar(&flagAllelesLocus, "locus", "", "Only list alleles of this locus")
	allelesCmd.Flags().IntVar(&flagAllelesLimit, "limit", 0, "Show at most this many alleles (0 = all)")
	rootCmd.AddCommand(lociCmd, allelesCmd)
}

func runLoci(cmd *cobra.Command, _ []string) error {
	_, t, err := loadTables(cmd.Context())
	if err != nil {
		return err
	}
	st := t.Stats()
	printSection(fmt.Sprintf("Release %s", t.Release()))
	fmt.Fprintf(stdout, "  %s alleles, %s with a serological equivalent, %d serological types\n\n",
		humanize.Comma(int64(st.Alleles)), humanize.Comma(int64(st.Mapped)), st.Serological)

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCUS\tALLELES")
	for _, l := range t.Loci() {
		fmt.Fprintf(tw, "%s\t%s\n", l, humanize.Comma(int64(len(t.AllelesForLocus(l)))))
	}
	return tw.Flush()
}

func runAlleles(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && flagAllelesLocus == "" {
		return cmd.Help()
	}
	_, t, err := loadTables(cmd.Context())
	if err != nil {
		return err
	}

	var list []string
	switch {
	case len(args) == 1:
		list, err = t.FindAlleles(args[0])
		if err != nil {
			return err
		}
		if flagAllelesLocus != "" {
			list = filterLocus(list, flagAllelesLocus)
		}
	default:
		list = t.AllelesForLocus(flagAllelesLocus)
	}

	if len(list) == 0 {
		printMiss("", "no matching alleles")
		return nil
	}
	shown := list
	if flagAllelesLimit > 0 && len(shown) > flagAllelesLimit {
		shown = shown[:flagAllelesLimit]
	}
	for _, a := range shown {
		fmt.Fprintln(stdout, a)
	}
	if len(shown) < len(list) {
		printInfo("", fmt.Sprintf("%d more not shown", len(list)-len(shown)))
	}
	return nil
}

func filterLocus(list []string, locus string) []string {
	prefix := locus + "*"
	var out []string
	for _, a := range list {
		if len(a) > len(prefix) && a[:len(prefix)] == prefix {
			out = append(out, a)
		}
	}
	return out
}
