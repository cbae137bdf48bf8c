// cmd_inspect.go - Inspect Command: Metadaten und Tensoren eines Artefakts
// Hauptfunktionen: newInspectCmd, InspectHandler
package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/riceqc/riceconv/checkpoint"
	"github.com/riceqc/riceconv/convert"
)

// newInspectCmd - Erstellt den Inspect Command
func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect MODEL",
		Short: "Show metadata and tensors of a converted model or checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  InspectHandler,
	}
	cmd.Flags().Bool("tensors", false, "List all tensors")
	return cmd
}

// InspectHandler - Zeigt KV-Metadaten und optional die Tensor-Liste
func InspectHandler(cmd *cobra.Command, args []string) error {
	switch strings.ToLower(filepath.Ext(args[0])) {
	case ".ckpt", ".pt", ".pth", ".bin", ".safetensors":
		return inspectCheckpoint(cmd, args[0])
	}

	m, err := convert.ReadModel(args[0])
	if err != nil {
		return err
	}

	kv := m.KV
	fmt.Fprintf(cmd.OutOrStdout(), "  Model\n")
	rows := [][]string{
		{"architecture", kv.Architecture()},
		{"name", kv.String("general.name")},
		{"file type", kv.FileType().String()},
		{"parameters", fmt.Sprintf("%d", kv.ParameterCount())},
		{"backbone", kv.BackboneName()},
		{"input size", fmt.Sprintf("%d", kv.InputSize())},
		{"comments", fmt.Sprintf("%d", kv.CommentCount())},
		{"embedding length", fmt.Sprintf("%d", kv.EmbeddingLength())},
		{"targets", strings.Join(kv.TargetNames(), ", ")},
	}
	if m.Fused() {
		rows = append(rows, []string{"specialists", fmt.Sprintf("%d", kv.SpecialistCount())})
	}
	renderTable(cmd, rows, nil)

	if showTensors, _ := cmd.Flags().GetBool("tensors"); showTensors {
		fmt.Fprintf(cmd.OutOrStdout(), "\n  Tensors\n")
		var data [][]string
		for _, t := range m.Tensors {
			data = append(data, []string{t.Name, fmt.Sprintf("%v", t.Shape), fmt.Sprintf("%d", t.Elements())})
		}
		renderTable(cmd, data, []string{"NAME", "SHAPE", "ELEMENTS"})
	}

	return nil
}

// inspectCheckpoint zeigt die Heads eines Trainings-Checkpoints
func inspectCheckpoint(cmd *cobra.Command, path string) error {
	f, err := checkpoint.Read(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "  Checkpoint\n")
	var rows [][]string
	for _, head := range f.HeadNames() {
		rows = append(rows, []string{head, fmt.Sprintf("%d params", len(f.Heads[head]))})
	}
	renderTable(cmd, rows, nil)

	if showTensors, _ := cmd.Flags().GetBool("tensors"); showTensors {
		for _, head := range f.HeadNames() {
			fmt.Fprintf(cmd.OutOrStdout(), "\n  %s\n", head)
			var data [][]string
			sd := f.Heads[head]
			for _, name := range sd.Names() {
				t := sd[name]
				data = append(data, []string{name, fmt.Sprintf("%v", t.Shape), fmt.Sprintf("%d", t.Elements())})
			}
			renderTable(cmd, data, []string{"NAME", "SHAPE", "ELEMENTS"})
		}
	}

	return nil
}

// renderTable rendert Zeilen im Listen-Stil, optional mit Kopfzeile
func renderTable(cmd *cobra.Command, data [][]string, header []string) {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	if header != nil {
		table.SetHeader(header)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetHeaderLine(false)
	}
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}
