// cmd_verify.go - Verify Command: Artefakt gegen Vorhersage pruefen
// Hauptfunktionen: newVerifyCmd, VerifyHandler
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/riceqc/riceconv/convert"
	"github.com/riceqc/riceconv/schema"
	"github.com/riceqc/riceconv/vision"
)

// newVerifyCmd - Erstellt den Verify Command
func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify MODEL IMAGE...",
		Short: "Run a converted model on images and print predictions",
		Args:  cobra.MinimumNArgs(2),
		RunE:  VerifyHandler,
	}
	cmd.Flags().String("comment", "White", "Rice variety (Paddy, Brown, White)")
	return cmd
}

// commentIndex uebersetzt den Reissorten-Namen in den Embedding-Index
func commentIndex(name string) (int, error) {
	for i, n := range schema.CommentNames {
		if n == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown rice variety %q, expected one of %v", name, schema.CommentNames)
}

// VerifyHandler - Laedt ein Artefakt, berechnet Vorhersagen fuer die
// Bilder und zeigt sie pro Ziel-Name. Funktioniert nur mit Artefakten,
// deren Backbone eine Go-Inferenz hat.
func VerifyHandler(cmd *cobra.Command, args []string) error {
	m, err := convert.ReadModel(args[0])
	if err != nil {
		return err
	}

	commentName, err := cmd.Flags().GetString("comment")
	if err != nil {
		return err
	}
	comment, err := commentIndex(commentName)
	if err != nil {
		return err
	}

	size := int(m.KV.InputSize())
	if size == 0 {
		size = 384
	}

	batch, err := vision.PrepareBatch(args[1:], size)
	if err != nil {
		return err
	}

	comments := make([]int, batch.N)
	for i := range comments {
		comments[i] = comment
	}

	var preds [][]float32
	var names []string

	if m.Fused() {
		fused, err := m.BuildFused()
		if err != nil {
			return err
		}
		preds, err = fused.Forward(batch, comments)
		if err != nil {
			return err
		}
		names = m.KV.TargetNames()
	} else {
		p, err := m.BuildPredictor()
		if err != nil {
			return err
		}
		preds, err = p.Forward(batch, comments)
		if err != nil {
			return err
		}
		names = m.KV.TargetNames()
	}

	for i, pred := range preds {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s (%s)\n", args[1+i], commentName)
		var data [][]string
		for j, name := range names {
			data = append(data, []string{name, fmt.Sprintf("%.4f", pred[j])})
		}
		renderTable(cmd, data, nil)
		fmt.Fprintln(cmd.OutOrStdout())
	}

	return nil
}
