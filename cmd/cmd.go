// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/riceqc/riceconv/envconfig"
	"github.com/riceqc/riceconv/version"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: envconfig.LogLevel(),
	})))
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "riceconv",
		Short:         "Rice quality model converter",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if v, _ := cmd.Flags().GetBool("version"); v {
				fmt.Println(version.Version)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	convertCmd := newConvertCmd()
	combinedCmd := newCombinedCmd()
	inspectCmd := newInspectCmd()
	verifyCmd := newVerifyCmd()

	envVars := envconfig.AsMap()
	for _, cmd := range []*cobra.Command{convertCmd, combinedCmd} {
		appendEnvDocs(cmd, []envconfig.EnvVar{
			envVars["RICECONV_DEBUG"],
			envVars["RICECONV_OUTPUT"],
			envVars["RICECONV_CHECKPOINTS"],
			envVars["RICECONV_HEAD"],
			envVars["RICECONV_MOBILE_SIZE"],
		})
	}
	appendEnvDocs(inspectCmd, []envconfig.EnvVar{envVars["RICECONV_DEBUG"]})
	appendEnvDocs(verifyCmd, []envconfig.EnvVar{envVars["RICECONV_DEBUG"]})

	rootCmd.AddCommand(
		convertCmd,
		combinedCmd,
		inspectCmd,
		verifyCmd,
	)

	return rootCmd
}
