// cmd_convert.go - Convert und Combined Commands
// Hauptfunktionen: newConvertCmd, newCombinedCmd, ConvertHandler, CombinedHandler
package cmd

import (
	"errors"
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/riceqc/riceconv/convert"
	"github.com/riceqc/riceconv/envconfig"
)

// convertOptions liest die gemeinsamen Flags in Pipeline-Optionen
func convertOptions(cmd *cobra.Command) (convert.Options, error) {
	var opts convert.Options
	var err error

	if opts.OutputDir, err = cmd.Flags().GetString("output-dir"); err != nil {
		return opts, err
	}
	if opts.CheckpointDir, err = cmd.Flags().GetString("checkpoint-dir"); err != nil {
		return opts, err
	}
	if opts.MobileSize, err = cmd.Flags().GetInt("mobile-size"); err != nil {
		return opts, err
	}
	if opts.Backbone, err = cmd.Flags().GetString("backbone"); err != nil {
		return opts, err
	}
	if opts.Head, err = cmd.Flags().GetString("head"); err != nil {
		return opts, err
	}
	if opts.InterchangeOnly, err = cmd.Flags().GetBool("interchange-only"); err != nil {
		return opts, err
	}
	if opts.NoQuantize, err = cmd.Flags().GetBool("no-quantize"); err != nil {
		return opts, err
	}
	if opts.MobileType, err = cmd.Flags().GetString("quantize"); err != nil {
		return opts, err
	}
	return opts, nil
}

// addConvertFlags registriert die gemeinsamen Konvertierungs-Flags
func addConvertFlags(cmd *cobra.Command) {
	cmd.Flags().String("output-dir", envconfig.OutputDir(), "Output directory for converted models")
	cmd.Flags().String("checkpoint-dir", envconfig.CheckpointDir(), "Directory to search for checkpoints")
	cmd.Flags().Int("mobile-size", int(envconfig.MobileSize()), "Image edge length for the mobile export")
	cmd.Flags().String("backbone", "", "Override the backbone architecture")
	cmd.Flags().String("head", envconfig.Head(), "Override the checkpoint head to load")
	cmd.Flags().Bool("interchange-only", false, "Skip the mobile export")
	cmd.Flags().Bool("no-quantize", false, "Export the mobile model without quantization")
	cmd.Flags().String("quantize", "F16", "Quantization type for the mobile export (F16, BF16, Q8_0)")
}

// newConvertCmd - Erstellt den Convert Command
func newConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert specialist checkpoints to GGUF",
		Args:  cobra.NoArgs,
		RunE:  ConvertHandler,
	}
	addConvertFlags(cmd)
	cmd.Flags().String("checkpoint", "", "Convert a single checkpoint file")
	cmd.Flags().Bool("all", false, "Convert all specialists from the checkpoint directory")
	cmd.Flags().Int("specialist", 0, "Override the specialist number inferred from the checkpoint name")
	return cmd
}

// ConvertHandler - Konvertiert einen oder alle Spezialisten
func ConvertHandler(cmd *cobra.Command, args []string) error {
	opts, err := convertOptions(cmd)
	if err != nil {
		return err
	}

	ckpt, err := cmd.Flags().GetString("checkpoint")
	if err != nil {
		return err
	}
	all, err := cmd.Flags().GetBool("all")
	if err != nil {
		return err
	}

	switch {
	case ckpt != "" && all:
		return errors.New("--checkpoint and --all are mutually exclusive")
	case ckpt != "":
		specialist, err := cmd.Flags().GetInt("specialist")
		if err != nil {
			return err
		}
		if specialist == 0 {
			if specialist, err = convert.SpecialistFromPath(ckpt); err != nil {
				return err
			}
		}
		res := convert.ConvertSingle(ckpt, specialist, opts)
		printResults(cmd, []convert.Result{res})
		return res.Err
	case all:
		results := convert.ConvertAll(opts)
		printResults(cmd, results)
		for _, r := range results {
			if !r.Ok() {
				return fmt.Errorf("specialist %d: %w", r.Specialist, r.Err)
			}
		}
		return nil
	default:
		return cmd.Usage()
	}
}

// newCombinedCmd - Erstellt den Combined Command
func newCombinedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "combined",
		Short: "Build the fused model from all specialist checkpoints",
		Args:  cobra.NoArgs,
		RunE:  CombinedHandler,
	}
	addConvertFlags(cmd)
	return cmd
}

// CombinedHandler - Baut und exportiert das fusionierte Modell.
// Nicht ladbare Spezialisten degradieren das Modell, der Export laeuft
// trotzdem; die Tabelle zeigt den Zustand pro Spezialist.
func CombinedHandler(cmd *cobra.Command, args []string) error {
	opts, err := convertOptions(cmd)
	if err != nil {
		return err
	}

	results, combined := convert.ConvertCombined(opts)
	printResults(cmd, results)
	if combined.Err != nil {
		return combined.Err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "wrote", combined.InterchangePath)
	if combined.MobilePath != "" {
		fmt.Fprintln(cmd.OutOrStdout(), "wrote", combined.MobilePath)
	}
	return nil
}

// printResults zeigt die Lade-Reports als Tabelle
func printResults(cmd *cobra.Command, results []convert.Result) {
	var data [][]string
	for _, r := range results {
		status := "ok"
		switch {
		case r.Err != nil:
			status = r.Err.Error()
		case r.Report.Degraded():
			status = "degraded"
		}
		data = append(data, []string{
			fmt.Sprintf("%d", r.Specialist),
			r.Report.Head,
			fmt.Sprintf("%d/%d", r.Report.Loaded, r.Report.Total),
			fmt.Sprintf("%d", len(r.Report.Skipped)),
			status,
		})
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"SPECIALIST", "HEAD", "LOADED", "SKIPPED", "STATUS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}
