package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tavinathanson/imgtsero/internal/convert"
	"github.com/tavinathanson/imgtsero/internal/kir"
)

var (
	flagConvertTarget string
	flagConvertExpand bool
	flagConvertBroad  string
	flagConvertJSON   bool
	flagConvertKIR    bool
)

var convertCmd = &cobra.Command{
	Use:   "convert <hla-type>...",
	Short: "Convert HLA types between serological and molecular form",
	Long: `Convert each HLA type to the other nomenclature.

  imgtsero convert A*01:01            A1
  imgtsero convert A1                 A*01:01, A*01:02, ...
  imgtsero convert A2 --expand-splits include the alleles of A203, A210
  imgtsero convert A*02:03 --handle-broad both   A2 (A203)

Molecular input of any resolution is accepted; molecular output is 2-field.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringVarP(&flagConvertTarget, "to", "t", "", "Target format: s (serological) or m (molecular); default is the opposite of the input")
	convertCmd.Flags().BoolVar(&flagConvertExpand, "expand-splits", false, "For a broad antigen, include the alleles of its splits")
	convertCmd.Flags().StringVar(&flagConvertBroad, "handle-broad", string(convert.BroadSplit), "Report split antigens as: split, broad or both")
	convertCmd.Flags().BoolVar(&flagConvertJSON, "json", false, "Print results as JSON")
	convertCmd.Flags().BoolVar(&flagConvertKIR, "kir", false, "Also classify each input by KIR ligand group")
	rootCmd.AddCommand(convertCmd)
}

// convertOutput is one --json record.
type convertOutput struct {
	convert.Result
	Error string              `json:"error,omitempty"`
	KIR   *kir.Classification `json:"kir,omitempty"`
}

func runConvert(cmd *cobra.Command, args []string) error {
	opts := convert.Options{
		Target:       convert.Format(flagConvertTarget),
		ExpandSplits: flagConvertExpand,
		HandleBroad:  convert.BroadMode(flagConvertBroad),
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	conv, tables, err := newConverter(cmd.Context())
	if err != nil {
		return err
	}
	var classifier *kir.Classifier
	if flagConvertKIR {
		if classifier, err = newClassifier(tables.Release(), conv); err != nil {
			return err
		}
	}

	var (
		out    []convertOutput
		failed int
		last   error
	)
	for _, in := range args {
		res, err := conv.Convert(in, opts)
		rec := convertOutput{Result: res}
		if err != nil {
			failed++
			last = err
			rec.Result.Input = in
			rec.Error = err.Error()
			if !flagConvertJSON && len(args) > 1 {
				printErr(in, err.Error())
			}
			out = append(out, rec)
			continue
		}
		if classifier != nil {
			ctx, cancel := withTimeout(cmd.Context())
			c, kerr := classifier.Classify(ctx, in, "")
			cancel()
			if kerr != nil {
				return kerr
			}
			rec.KIR = &c
		}
		out = append(out, rec)
		if !flagConvertJSON {
			printConverted(rec)
		}
	}

	if flagConvertJSON {
		if err := printJSON(out); err != nil {
			return err
		}
	}
	switch {
	case failed == 1 && len(args) == 1:
		return last
	case failed > 0:
		return fmt.Errorf("%d of %d conversion(s) failed: %w", failed, len(args), last)
	}
	return nil
}

func printConverted(rec convertOutput) {
	line := fmt.Sprintf("%s → %s", rec.Input, rec.Result.String())
	if rec.KIR != nil {
		line += "  " + kirSummary(*rec.KIR)
	}
	fmt.Fprintln(stdout, line)
}
