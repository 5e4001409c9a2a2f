package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tavinathanson/imgtsero/internal/kir"
	"github.com/tavinathanson/imgtsero/internal/wmda"
)

var (
	flagKIRJSON    bool
	flagKIRAlleles bool
)

var kirCmd = &cobra.Command{
	Use:   "kir",
	Short: "Classify HLA class I types by KIR ligand group",
	Long: `KIR ligand groups (Bw4, Bw6, C1, C2) come from the IPD-IMGT/HLA API and are
cached per release in the data directory as kir_ligand_<version>.json.`,
}

var kirClassifyCmd = &cobra.Command{
	Use:   "classify <hla-type>...",
	Short: "Classify alleles, antigens or bead names (e.g. \"B27,Bw4\")",
	Long: `Classify each argument by KIR ligand group.

Arguments may be molecular alleles (B*27:05), serological antigens (B27) or
single-antigen bead names with a Bw4/Bw6 annotation ("B27,Bw4"). A bead
annotation that contradicts the API data is reported as a conflict.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runKIRClassify,
}

var kirListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ligand details with allele counts",
	Args:  cobra.NoArgs,
	RunE:  runKIRList,
}

var kirRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refetch KIR ligand data from the API and rewrite the cache",
	Args:  cobra.NoArgs,
	RunE:  runKIRRefresh,
}

func init() {
	kirClassifyCmd.Flags().BoolVar(&flagKIRJSON, "json", false, "Print results as JSON")
	kirListCmd.Flags().BoolVar(&flagKIRAlleles, "alleles", false, "List every allele under each detail")
	kirCmd.AddCommand(kirClassifyCmd, kirListCmd, kirRefreshCmd)
	rootCmd.AddCommand(kirCmd)
}

// resolveRelease returns the configured release, or the newest release
// present in the data directory.
func resolveRelease() (string, error) {
	if appCfg.Release != "" {
		return appCfg.Release, nil
	}
	return wmda.LatestRelease(appCfg.DataDir)
}

type kirOutput struct {
	Input      string `json:"input"`
	Antigen    string `json:"antigen"`
	Annotation string `json:"bead_annotation,omitempty"`
	kir.Classification
}

func runKIRClassify(cmd *cobra.Command, args []string) error {
	conv, tables, err := newConverter(cmd.Context())
	if err != nil {
		return err
	}
	c, err := newClassifier(tables.Release(), conv)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(cmd.Context())
	defer cancel()
	if err := c.Load(ctx, false); err != nil {
		return err
	}

	var out []kirOutput
	for _, in := range args {
		antigen, annotation := kir.ParseBeadAnnotation(in)
		res, err := c.Classify(ctx, antigen, annotation)
		if err != nil {
			return err
		}
		rec := kirOutput{Input: in, Antigen: antigen, Annotation: annotation, Classification: res}
		out = append(out, rec)
		if !flagKIRJSON {
			fmt.Fprintf(stdout, "%s → %s\n", in, kirSummary(res))
		}
	}
	if flagKIRJSON {
		return printJSON(out)
	}
	return nil
}

// kirSummary renders a classification on one line.
func kirSummary(c kir.Classification) string {
	if c.Type == "" && c.Detail == "" {
		return "no KIR ligand data"
	}
	var b strings.Builder
	kind := c.Type
	if kind == "" {
		kind = "unclassified"
	}
	b.WriteString(kind)
	if c.Detail != "" && c.Detail != c.Type {
		fmt.Fprintf(&b, " (%s)", c.Detail)
	}
	if c.IsLigand {
		fmt.Fprintf(&b, ", KIR ligand for %s", strings.Join(c.Receptors, ", "))
	} else {
		b.WriteString(", not a KIR ligand")
	}
	return b.String()
}

func runKIRList(cmd *cobra.Command, _ []string) error {
	release, err := resolveRelease()
	if err != nil {
		return err
	}
	c, err := newClassifier(release, nil)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(cmd.Context())
	defer cancel()
	grouped, err := c.Grouped(ctx)
	if err != nil {
		return err
	}

	printSection(fmt.Sprintf("KIR ligands (IPD-IMGT/HLA %s)", c.Version()))
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DETAIL\tGROUP\tRECEPTORS\tALLELES")
	for _, d := range kir.Details(grouped) {
		group, receptors := "-", "-"
		if g := kir.BaseGroup(d); g != "" {
			group = g
			if r := kir.Receptors(g); len(r) > 0 {
				receptors = strings.Join(r, ",")
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", d, group, receptors, len(grouped[d]))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if flagKIRAlleles {
		for _, d := range kir.Details(grouped) {
			printBullet(d)
			for _, a := range grouped[d] {
				fmt.Fprintf(stdout, "  %s\n", a)
			}
		}
	}
	return nil
}

func runKIRRefresh(cmd *cobra.Command, _ []string) error {
	release, err := resolveRelease()
	if err != nil {
		return err
	}
	c, err := newClassifier(release, nil)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(cmd.Context())
	defer cancel()

	printInfo("", fmt.Sprintf("Fetching KIR ligand data for %s", c.Version()))
	if err := c.Load(ctx, true); err != nil {
		return err
	}
	grouped, err := c.Grouped(ctx)
	if err != nil {
		return err
	}
	var n int
	for _, list := range grouped {
		n += len(list)
	}
	printOK("", fmt.Sprintf("%d allele key(s) with ligand data cached at %s", n, c.CachePath()))
	return nil
}
